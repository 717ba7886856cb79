/*
Copyright 2024 The Rojo Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package snapshot

import (
	"fmt"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/project"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// decodeProjectFile reads a *.project.json5 document and produces the
// snapshot of its root tree node. Project nodes with no $path are
// synthetic: their InstigatingSource is a project-node descriptor, not a
// real path. FromProjectNode records that descriptor in NodePath, and
// StampMetadata turns it into a dom.SourceProjectNode source so the
// Patch Engine can refuse to mutate them.
func decodeProjectFile(path string) (*InstanceSnapshot, error) {
	p, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	return FromProjectNode(p, p.Tree, "", path)
}

// FromProjectNode turns a project.Node into an InstanceSnapshot, resolving
// its $path (if any) via FromVFS and layering named children and
// $properties/$attributes on top. nodePath is the dotted descriptor used
// for project-node-sourced instances (e.g. "ReplicatedStorage.Shared").
func FromProjectNode(p *project.Project, node project.Node, nodePath, name string) (*InstanceSnapshot, error) {
	var snap *InstanceSnapshot

	if node.Path != nil {
		resolved := p.ResolvePath(*node.Path)
		fromDisk, err := FromVFS(resolved)
		if err != nil {
			return nil, fmt.Errorf("project: resolving $path %q: %w", *node.Path, err)
		}
		snap = fromDisk
		snap.Name = name
	} else {
		snap = newSnapshot("Folder", name, middleware.Project, "")
		snap.RelevantPaths = nil
		snap.NodePath = nodePath
		if snap.NodePath == "" {
			snap.NodePath = name
		}
	}

	if node.ClassName != nil {
		snap.ClassName = *node.ClassName
	}
	if node.IgnoreUnknownInstances != nil {
		snap.IgnoreUnknownInstances = *node.IgnoreUnknownInstances
	}
	for propName, raw := range node.Properties {
		v, err := rbxval.DecodeAutoJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("project: property %s on %s: %w", propName, name, err)
		}
		snap.Properties[propName] = v
	}
	if len(node.Attributes) > 0 {
		attrs, _ := snap.Properties["Attributes"].(rbxval.AttributesValue)
		if attrs == nil {
			attrs = make(rbxval.AttributesValue)
		}
		for attrName, raw := range node.Attributes {
			v, err := rbxval.DecodeAutoJSON(raw)
			if err != nil {
				return nil, fmt.Errorf("project: attribute %s on %s: %w", attrName, name, err)
			}
			attrs[attrName] = v
		}
		snap.Properties["Attributes"] = attrs
	}

	for childName, childNode := range node.Children {
		childPath := childName
		if nodePath != "" {
			childPath = nodePath + "." + childName
		}
		child, err := FromProjectNode(p, childNode, childPath, childName)
		if err != nil {
			return nil, err
		}
		snap.Children = append(snap.Children, child)
	}

	return snap, nil
}

// ProjectNodeSource returns the InstigatingSource for a snapshot produced
// from a project node with no $path of its own.
func ProjectNodeSource(nodePath string) dom.InstigatingSource {
	return dom.InstigatingSource{Kind: dom.SourceProjectNode, ProjectNodePath: nodePath}
}
