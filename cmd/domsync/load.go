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

package main

import (
	"encoding/json"
	"fmt"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/patch"
	"github.com/rojo-rbx/rojo/pkg/project"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
	"github.com/rojo-rbx/rojo/pkg/snapshot"
)

// loadProject builds a fresh DOM from p's tree: every $path node's on-disk
// subtree is read through the Snapshot Engine, and every synthetic node
// ($className/properties with no $path, or named children layered beside
// one) becomes a plain inserted instance. It returns the store and the
// Refs of every $path node that was loaded, keyed by the project-relative
// node path, so a caller (serve) can attach a filesystem watch per root.
func loadProject(p *project.Project) (*dom.Store, map[string]dom.Ref, error) {
	store, root := dom.NewStore("DataModel", p.Name)
	pathRoots := make(map[string]dom.Ref)
	if err := loadNode(store, root, p, "tree", "tree", p.Tree, pathRoots); err != nil {
		return nil, nil, err
	}
	return store, pathRoots, nil
}

func loadNode(store *dom.Store, parent dom.Ref, p *project.Project, nodePath, name string, node project.Node, pathRoots map[string]dom.Ref) error {
	ref := parent
	if node.Path != nil {
		diskPath := p.ResolvePath(*node.Path)
		snap, err := snapshot.FromVFS(diskPath)
		if err != nil {
			return fmt.Errorf("domsync: loading %s: %w", diskPath, err)
		}
		if snap == nil {
			return fmt.Errorf("domsync: %s has no recognized contents", diskPath)
		}

		var ps patch.PatchSet
		ps.Additions = []patch.Addition{snapshot.ToAddition(snap, parent)}
		applied := snapshot.ApplyPatchSet(store, nil, ps)
		if len(applied.Additions) == 0 {
			return fmt.Errorf("domsync: %s produced no instance", diskPath)
		}
		ref = applied.Additions[0].Ref
		snapshot.StampTree(store, ref, snap)
		pathRoots[nodePath] = ref
	} else if nodePath != "tree" || node.ClassName != nil {
		className := "Folder"
		if node.ClassName != nil {
			className = *node.ClassName
		}
		newRef, err := store.Insert(parent, className, name)
		if err != nil {
			return fmt.Errorf("domsync: inserting %s: %w", nodePath, err)
		}
		ref = newRef
		if len(node.Properties) > 0 {
			props, err := decodeProperties(node.Properties)
			if err != nil {
				return err
			}
			if err := store.SetProperties(ref, props); err != nil {
				return fmt.Errorf("domsync: setting properties on %s: %w", nodePath, err)
			}
		}
	}

	for childName, child := range node.Children {
		if err := loadNode(store, ref, p, nodePath+"/"+childName, childName, child, pathRoots); err != nil {
			return err
		}
	}
	return nil
}

func decodeProperties(raw map[string]json.RawMessage) (map[string]rbxval.Value, error) {
	out := make(map[string]rbxval.Value, len(raw))
	for name, r := range raw {
		v, err := rbxval.DecodeAutoJSON(r)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
