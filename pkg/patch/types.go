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

// Package patch holds the PatchSet/AppliedPatchSet request shapes and the
// Patch Engine that applies them to a dom.Store.
package patch

import (
	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// Addition describes a full subtree to insert, mirroring the API's
// AddedInstance shape. SourcePath, Middleware, and RelevantPaths are
// optional: a caller that already wrote the backing file to disk (the
// Session Manager Shim, under suppression) fills them in so the Engine can
// stamp metadata immediately instead of waiting on a filesystem
// round-trip; an Addition reconciled from an on-disk snapshot leaves them
// empty and relies on its own explicit metadata stamp afterward.
type Addition struct {
	Parent        dom.Ref
	ClassName     string
	Name          string
	Properties    map[string]rbxval.Value
	Children      []Addition
	SourcePath    string
	Middleware    middleware.Tag
	RelevantPaths []string
}

// Update describes a per-Ref change. A nil entry in ChangedProperties'
// value means the property was removed.
type Update struct {
	ID                dom.Ref
	ChangedName       *string
	ChangedClassName  *string
	ChangedProperties map[string]*rbxval.Value
}

// PatchSet is a request: additions, removals by Ref, and per-Ref updates.
type PatchSet struct {
	Additions []Addition
	Removals  []dom.Ref
	Updates   []Update
}

// IsEmpty reports whether p has no additions, removals, or updates. (The
// Change Processor skips publishing an empty result with
// AppliedPatchSet.IsEmpty, below.)
func (p PatchSet) IsEmpty() bool {
	return len(p.Additions) == 0 && len(p.Removals) == 0 && len(p.Updates) == 0
}

// AppliedAddition is an Addition narrowed to what was actually inserted,
// with the Ref it was assigned.
type AppliedAddition struct {
	Ref    dom.Ref
	Parent dom.Ref
	Addition
}

// AppliedUpdate is an Update narrowed to the fields that actually took
// effect.
type AppliedUpdate struct {
	ID                dom.Ref
	ChangedName       *string
	ChangedClassName  *string
	ChangedProperties map[string]*rbxval.Value
}

// AppliedPatchSet is the PatchSet shape narrowed to what actually took
// effect after validation.
type AppliedPatchSet struct {
	Additions []AppliedAddition
	Removals  []dom.Ref
	Updates   []AppliedUpdate
}

// IsEmpty reports whether a has no applied additions, removals, or updates.
func (a AppliedPatchSet) IsEmpty() bool {
	return len(a.Additions) == 0 && len(a.Removals) == 0 && len(a.Updates) == 0
}
