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

package syncback

import (
	"encoding/json"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// modelNode is one entry of the tree EncodeModelContainer walks, mirroring
// the per-instance shape the JsonModel middleware already writes for a
// single file (§4.8's encodeFile, middleware.JsonModel case), nested
// instead of scattered across a directory.
type modelNode struct {
	Name       string                     `json:"Name"`
	ClassName  string                     `json:"ClassName"`
	Properties map[string]json.RawMessage `json:"Properties,omitempty"`
	Children   []modelNode                `json:"Children,omitempty"`
}

// EncodeModelContainer renders the subtree rooted at ref as a single opaque
// blob, the stand-in this module uses wherever a real `.rbxm`/`.rbxmx`
// binary/XML encoder would run — this module never synthesizes that binary
// format (see middleware.Rbxm/Rbxmx's opaque-passthrough handling
// elsewhere), so `domsync build` needs its own serialization of a whole
// tree rather than one file per instance. The shape is the same nested
// Name/ClassName/Properties/Children JSON the Reflection Stub and the
// JsonModel middleware already use per-instance.
func EncodeModelContainer(store *dom.Store, ref dom.Ref) ([]byte, error) {
	node, err := encodeModelNode(store, ref)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(node, "", "  ")
}

func encodeModelNode(store *dom.Store, ref dom.Ref) (modelNode, error) {
	inst, ok := store.Get(ref)
	if !ok {
		return modelNode{}, nil
	}

	node := modelNode{Name: inst.Name, ClassName: inst.ClassName}
	if len(inst.Properties) > 0 {
		node.Properties = make(map[string]json.RawMessage, len(inst.Properties))
		for name, v := range inst.Properties {
			if v.Type() == rbxval.TypeRef {
				// A whole-tree container has no adjacent-file Reference
				// Linker pass; Ref properties are dropped rather than
				// failing the entire build.
				continue
			}
			raw, err := rbxval.EncodeJSON(v)
			if err != nil {
				return modelNode{}, err
			}
			node.Properties[name] = raw
		}
	}
	for _, child := range inst.Children {
		childNode, err := encodeModelNode(store, child)
		if err != nil {
			return modelNode{}, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}
