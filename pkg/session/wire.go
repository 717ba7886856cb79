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

// Package session is the Session Manager Shim: a minimal in-process harness
// standing in for the "separate session manager" the engine proper hands
// its wire protocol off to. It owns the parts a real session manager would
// own and the Change Processor should not: a websocket fan-out of applied
// patch sets, and an HTTP endpoint accepting write requests from an
// external editor plugin.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/patch"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// wireAddition is AppliedAddition narrowed to JSON-safe fields: Properties
// goes through rbxval.EncodeJSON one entry at a time instead of relying on
// encoding/json to introspect the rbxval.Value interface, which it cannot
// do (the concrete variants carry no json tags and several, Ref chief
// among them, are deliberately unrepresentable — see EncodeJSON's doc).
type wireAddition struct {
	Ref        dom.Ref                    `json:"ref"`
	Parent     dom.Ref                    `json:"parent"`
	ClassName  string                     `json:"className"`
	Name       string                     `json:"name"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Children   []wireAddition             `json:"children,omitempty"`
}

type wireUpdate struct {
	ID                dom.Ref                    `json:"id"`
	ChangedName       *string                    `json:"changedName,omitempty"`
	ChangedClassName  *string                    `json:"changedClassName,omitempty"`
	ChangedProperties map[string]json.RawMessage `json:"changedProperties,omitempty"`
}

// WirePatchSet is the JSON shape broadcast to websocket subscribers and
// accepted from a write-request POST body.
type WirePatchSet struct {
	Additions []wireAddition `json:"additions,omitempty"`
	Removals  []dom.Ref      `json:"removals,omitempty"`
	Updates   []wireUpdate   `json:"updates,omitempty"`
}

func encodeAddition(a patch.AppliedAddition) (wireAddition, error) {
	props, err := encodeProperties(a.Properties)
	if err != nil {
		return wireAddition{}, err
	}
	children := make([]wireAddition, 0, len(a.Children))
	for _, c := range a.Children {
		wc, err := encodeAddition(patch.AppliedAddition{Addition: c})
		if err != nil {
			return wireAddition{}, err
		}
		children = append(children, wc)
	}
	return wireAddition{
		Ref:        a.Ref,
		Parent:     a.Parent,
		ClassName:  a.ClassName,
		Name:       a.Name,
		Properties: props,
		Children:   children,
	}, nil
}

func encodeUpdate(u patch.AppliedUpdate) (wireUpdate, error) {
	props := make(map[string]json.RawMessage, len(u.ChangedProperties))
	for name, v := range u.ChangedProperties {
		if v == nil {
			props[name] = json.RawMessage("null")
			continue
		}
		raw, err := rbxval.EncodeJSON(*v)
		if err != nil {
			return wireUpdate{}, fmt.Errorf("property %q: %w", name, err)
		}
		props[name] = raw
	}
	return wireUpdate{
		ID:                u.ID,
		ChangedName:       u.ChangedName,
		ChangedClassName:  u.ChangedClassName,
		ChangedProperties: props,
	}, nil
}

func encodeProperties(props map[string]rbxval.Value) (map[string]json.RawMessage, error) {
	if len(props) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(props))
	for name, v := range props {
		raw, err := rbxval.EncodeJSON(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}

// EncodePatchSet renders an AppliedPatchSet into its wire form, for
// publishing over websocket.
func EncodePatchSet(ps patch.AppliedPatchSet) (WirePatchSet, error) {
	out := WirePatchSet{Removals: ps.Removals}
	for _, a := range ps.Additions {
		wa, err := encodeAddition(a)
		if err != nil {
			return WirePatchSet{}, err
		}
		out.Additions = append(out.Additions, wa)
	}
	for _, u := range ps.Updates {
		wu, err := encodeUpdate(u)
		if err != nil {
			return WirePatchSet{}, err
		}
		out.Updates = append(out.Updates, wu)
	}
	return out, nil
}

// DecodePatchSet parses an incoming write request body into a patch.PatchSet
// the Engine can apply. Additions in a write request never carry a Ref (the
// Engine assigns one on insert), so wireAddition.Ref is ignored on decode.
func DecodePatchSet(w WirePatchSet) (patch.PatchSet, error) {
	out := patch.PatchSet{Removals: w.Removals}
	for _, a := range w.Additions {
		add, err := decodeAddition(a)
		if err != nil {
			return patch.PatchSet{}, err
		}
		out.Additions = append(out.Additions, add)
	}
	for _, u := range w.Updates {
		upd, err := decodeUpdate(u)
		if err != nil {
			return patch.PatchSet{}, err
		}
		out.Updates = append(out.Updates, upd)
	}
	return out, nil
}

func decodeAddition(w wireAddition) (patch.Addition, error) {
	props, err := decodeProperties(w.Properties)
	if err != nil {
		return patch.Addition{}, err
	}
	children := make([]patch.Addition, 0, len(w.Children))
	for _, c := range w.Children {
		child, err := decodeAddition(c)
		if err != nil {
			return patch.Addition{}, err
		}
		children = append(children, child)
	}
	return patch.Addition{
		Parent:     w.Parent,
		ClassName:  w.ClassName,
		Name:       w.Name,
		Properties: props,
		Children:   children,
	}, nil
}

func decodeUpdate(w wireUpdate) (patch.Update, error) {
	props := make(map[string]*rbxval.Value, len(w.ChangedProperties))
	for name, raw := range w.ChangedProperties {
		if string(raw) == "null" {
			props[name] = nil
			continue
		}
		v, err := rbxval.DecodeAutoJSON(raw)
		if err != nil {
			return patch.Update{}, fmt.Errorf("property %q: %w", name, err)
		}
		props[name] = &v
	}
	return patch.Update{
		ID:                w.ID,
		ChangedName:       w.ChangedName,
		ChangedClassName:  w.ChangedClassName,
		ChangedProperties: props,
	}, nil
}

func decodeProperties(raws map[string]json.RawMessage) (map[string]rbxval.Value, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	out := make(map[string]rbxval.Value, len(raws))
	for name, raw := range raws {
		v, err := rbxval.DecodeAutoJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
