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
	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/patch"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
	"github.com/rojo-rbx/rojo/pkg/suppression"
)

// ComputePatchSet diffs newSnap against the instance currently recorded at
// id in store, emitting the minimum set of adds, removes, and property
// changes that would align them. Children are matched by
// display name, since a re-snapshot carries no Ref of its own; a child
// present in both is recursed into as an Update, a child only in newSnap
// becomes an Addition, and a child only in the DOM becomes a Removal.
func ComputePatchSet(newSnap *InstanceSnapshot, store *dom.Store, id dom.Ref) patch.PatchSet {
	var ps patch.PatchSet
	diffInto(newSnap, store, id, &ps)
	return ps
}

func diffInto(newSnap *InstanceSnapshot, store *dom.Store, id dom.Ref, ps *patch.PatchSet) {
	inst, ok := store.Get(id)
	if !ok {
		return
	}

	upd := patch.Update{ID: id}
	any := false
	if inst.Name != newSnap.Name {
		name := newSnap.Name
		upd.ChangedName = &name
		any = true
	}
	if inst.ClassName != newSnap.ClassName {
		class := newSnap.ClassName
		upd.ChangedClassName = &class
		any = true
	}
	if propDiff := diffProperties(inst.Properties, newSnap.Properties); len(propDiff) > 0 {
		upd.ChangedProperties = propDiff
		any = true
	}
	if any {
		ps.Updates = append(ps.Updates, upd)
	}

	used := make(map[dom.Ref]struct{}, len(inst.Children))
	oldByName := make(map[string][]dom.Ref)
	for _, childRef := range inst.Children {
		if childInst, ok := store.Get(childRef); ok {
			oldByName[childInst.Name] = append(oldByName[childInst.Name], childRef)
		}
	}

	for _, childSnap := range newSnap.Children {
		candidates := oldByName[childSnap.Name]
		var matched dom.Ref
		found := false
		for _, c := range candidates {
			if _, taken := used[c]; !taken {
				matched = c
				found = true
				break
			}
		}
		if found {
			used[matched] = struct{}{}
			diffInto(childSnap, store, matched, ps)
		} else {
			ps.Additions = append(ps.Additions, snapshotToAddition(childSnap, id))
		}
	}

	for _, childRef := range inst.Children {
		if _, ok := used[childRef]; !ok {
			ps.Removals = append(ps.Removals, childRef)
		}
	}
}

func diffProperties(old, new map[string]rbxval.Value) map[string]*rbxval.Value {
	out := make(map[string]*rbxval.Value)
	for name, newVal := range new {
		oldVal, existed := old[name]
		if !existed || !oldVal.Equal(newVal) {
			v := newVal
			out[name] = &v
		}
	}
	for name := range old {
		if _, stillPresent := new[name]; !stillPresent {
			out[name] = nil
		}
	}
	return out
}

func snapshotToAddition(snap *InstanceSnapshot, parent dom.Ref) patch.Addition {
	return ToAddition(snap, parent)
}

// ToAddition converts snap into a patch.Addition rooted at parent, recursing
// into children. The Addition deliberately omits SourcePath/Middleware/
// RelevantPaths: patch.Engine only shapes the tree, so metadata is stamped
// afterward by StampTree once real Refs exist to hang it on.
func ToAddition(snap *InstanceSnapshot, parent dom.Ref) patch.Addition {
	add := patch.Addition{
		Parent:     parent,
		ClassName:  snap.ClassName,
		Name:       snap.Name,
		Properties: snap.Properties,
	}
	for _, child := range snap.Children {
		add.Children = append(add.Children, ToAddition(child, dom.None))
	}
	return add
}

// ApplyPatchSet executes ps against store via a fresh patch.Engine,
// returning the subset that actually took effect. It stamps no metadata
// beyond what the Additions themselves carry; StampTree does that as a
// separate step, since patch.Engine itself only knows how to mutate the
// tree shape, not which filesystem path an addition came from.
func ApplyPatchSet(store *dom.Store, suppress *suppression.Map, ps patch.PatchSet) patch.AppliedPatchSet {
	engine := patch.New(store, suppress)
	return engine.Apply(ps)
}

// StampMetadata assigns snap's source/middleware/relevant-paths onto ref in
// store (typically right after an Addition was applied and a Ref was
// minted for it). It stamps ref alone; StampTree walks the children. The
// values are a straight copy of what FromVFS/FromProjectNode already
// decided.
func StampMetadata(store *dom.Store, ref dom.Ref, snap *InstanceSnapshot) {
	var source dom.InstigatingSource
	if snap.SourcePath != "" {
		source = dom.InstigatingSource{Kind: dom.SourcePath, Path: snap.SourcePath}
	} else if snap.NodePath != "" {
		source = dom.InstigatingSource{Kind: dom.SourceProjectNode, ProjectNodePath: snap.NodePath}
	}
	meta := dom.Metadata{
		Source:                 source,
		Middleware:              snap.Middleware,
		RelevantPaths:           snap.RelevantPaths,
		IgnoreUnknownInstances: snap.IgnoreUnknownInstances,
	}
	store.UpdateMetadata(ref, meta)
}

// StampTree refreshes metadata on ref and every descendant that still
// matches snap by name, covering both instances a patch.Engine.Apply call
// left untouched and ones it just inserted — Apply only shapes the tree,
// it has no notion of which filesystem path produced which child.
func StampTree(store *dom.Store, ref dom.Ref, snap *InstanceSnapshot) {
	StampMetadata(store, ref, snap)

	inst, ok := store.Get(ref)
	if !ok {
		return
	}
	byName := make(map[string]dom.Ref, len(inst.Children))
	for _, c := range inst.Children {
		if ci, ok := store.Get(c); ok {
			byName[ci.Name] = c
		}
	}
	for _, childSnap := range snap.Children {
		if childRef, ok := byName[childSnap.Name]; ok {
			StampTree(store, childRef, childSnap)
		}
	}
}
