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

	"github.com/rojo-rbx/rojo/pkg/metafile"
	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// decodeModelFile reads a *.model.json5 document into an InstanceSnapshot
// tree. className is mandatory on a model file.
func decodeModelFile(path string) (*InstanceSnapshot, error) {
	m, err := metafile.ReadModel(path)
	if err != nil {
		return nil, err
	}
	if m.ClassName == nil {
		return nil, fmt.Errorf("snapshot: %s is missing a mandatory className", path)
	}

	name := stemOf(baseName(path))
	snap := newSnapshot(*m.ClassName, name, middleware.JsonModel, path)
	if err := applyModelFields(snap, m.File); err != nil {
		return nil, err
	}

	for _, childModel := range m.Children {
		child, err := modelToSnapshot(childModel, path)
		if err != nil {
			return nil, err
		}
		snap.Children = append(snap.Children, child)
	}
	return snap, nil
}

func modelToSnapshot(m metafile.ModelFile, sourcePath string) (*InstanceSnapshot, error) {
	className := "Instance"
	if m.ClassName != nil {
		className = *m.ClassName
	}
	name := className
	if m.Name != nil {
		name = *m.Name
	}
	snap := newSnapshot(className, name, middleware.JsonModel, sourcePath)
	snap.RelevantPaths = nil // nested model children carry no relevant path; the file's top-level snapshot holds it
	if err := applyModelFields(snap, m.File); err != nil {
		return nil, err
	}
	for _, childModel := range m.Children {
		child, err := modelToSnapshot(childModel, sourcePath)
		if err != nil {
			return nil, err
		}
		snap.Children = append(snap.Children, child)
	}
	return snap, nil
}

func applyModelFields(snap *InstanceSnapshot, f metafile.File) error {
	if f.Name != nil {
		snap.Name = *f.Name
	}
	if f.IgnoreUnknownInstances != nil {
		snap.IgnoreUnknownInstances = *f.IgnoreUnknownInstances
	}
	for name, raw := range f.Properties {
		v, err := rbxval.DecodeAutoJSON(raw)
		if err != nil {
			return fmt.Errorf("snapshot: model property %s: %w", name, err)
		}
		snap.Properties[name] = v
	}
	if len(f.Attributes) > 0 {
		attrs := make(rbxval.AttributesValue, len(f.Attributes))
		for name, raw := range f.Attributes {
			v, err := rbxval.DecodeAutoJSON(raw)
			if err != nil {
				return fmt.Errorf("snapshot: model attribute %s: %w", name, err)
			}
			attrs[name] = v
		}
		snap.Properties["Attributes"] = attrs
	}
	if f.ID != nil {
		attrs, _ := snap.Properties["Attributes"].(rbxval.AttributesValue)
		if attrs == nil {
			attrs = make(rbxval.AttributesValue)
		}
		attrs["Rojo_Id"] = rbxval.StringValue(*f.ID)
		snap.Properties["Attributes"] = attrs
	}
	return nil
}

// decodeJsonFile reads a bare *.json5 instance (the Json middleware): a
// File document whose ClassName is mandatory, same shape as a model file
// without children.
func decodeJsonFile(path string) (*InstanceSnapshot, error) {
	f, err := metafile.Read(path)
	if err != nil {
		return nil, err
	}
	if f == nil || f.ClassName == nil {
		return nil, fmt.Errorf("snapshot: %s is missing a mandatory className", path)
	}
	name := stemOf(baseName(path))
	snap := newSnapshot(*f.ClassName, name, middleware.Json, path)
	if err := applyModelFields(snap, *f); err != nil {
		return nil, err
	}
	return snap, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
