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

// Package dom holds the live, in-memory instance tree: a generation-checked
// arena of Instances addressed by Ref, not a pointer tree. A Ref stays valid
// (and comparable, and safe to stash in a Value) even after the instance it
// named has been removed and its slot recycled, because the generation
// check turns a stale Ref into a clean miss instead of a dangling pointer.
package dom

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// Ref addresses an Instance inside a single Store. It is meaningless outside
// the Store that produced it. The zero Ref never names a live instance.
type Ref struct {
	index uint32
	gen   uint32
}

// None is the zero Ref.
var None = Ref{}

// IsNone reports whether r is the zero Ref.
func (r Ref) IsNone() bool { return r == None }

func (r Ref) String() string {
	if r.IsNone() {
		return "Ref(none)"
	}
	return fmt.Sprintf("Ref(%d@%d)", r.index, r.gen)
}

// ToValue converts r into the rbxval.Value representation stored in
// Ref-typed properties.
func (r Ref) ToValue() rbxval.RefValue { return rbxval.RefValue{Index: r.index, Gen: r.gen} }

// FromValue converts an rbxval.RefValue back into a Ref.
func FromValue(v rbxval.RefValue) Ref { return Ref{index: v.Index, gen: v.Gen} }

// refJSON is Ref's wire shape: its fields are unexported so that no caller
// outside this package can forge one, but the Session Manager Shim still
// needs to round-trip a Ref through JSON to report it to, and accept it
// back from, a websocket/HTTP client.
type refJSON struct {
	Index uint32 `json:"index"`
	Gen   uint32 `json:"gen"`
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(refJSON{Index: r.index, Gen: r.gen})
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	var w refJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.index, r.gen = w.Index, w.Gen
	return nil
}

// Instance is one node of the tree: a class name, a display name, a
// property bag, and parent/child Refs. Name is distinct from the
// filesystem name the Name Codec computes for it; the two coincide only
// when no slugification or dedup suffix was necessary.
type Instance struct {
	Ref        Ref
	ClassName  string
	Name       string
	Properties map[string]rbxval.Value
	Parent     Ref
	Children   []Ref
}

type slot struct {
	gen      uint32
	alive    bool
	inst     Instance
	metadata Metadata
}

// Store is the DOM's owning arena. All mutation happens under an exclusive
// lock held by the Change Processor's single writer goroutine; concurrent
// readers (the Syncback Planner, the Session Manager Shim) take the shared
// lock and see a consistent snapshot of whichever generation was current
// when they acquired it.
//
// pathIndex holds the invariant: the entry (p, r) is present iff p appears
// in r's relevant-paths vector. It is maintained incrementally by
// UpdateMetadata rather than recomputed, since a full rebuild on every
// metadata write would make GetIdsAtPath's callers (the Change Processor,
// on every VFS event) pay for a tree walk per event.
type Store struct {
	mu        sync.RWMutex
	slots     []slot
	freeList  []uint32
	root      Ref
	pathIndex map[string]map[Ref]struct{}
}

// NewStore creates a Store with a single root instance (conventionally a
// DataModel) and returns the store along with the root's Ref.
func NewStore(rootClassName, rootName string) (*Store, Ref) {
	s := &Store{pathIndex: make(map[string]map[Ref]struct{})}
	root := s.insertLocked(None, rootClassName, rootName)
	s.root = root
	return s, root
}

// Root returns the Ref of the store's root instance.
func (s *Store) Root() Ref { return s.root }

func (s *Store) insertLocked(parent Ref, className, name string) Ref {
	var idx uint32
	if n := len(s.freeList); n > 0 {
		idx = s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		s.slots[idx].gen++
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot{gen: 1})
	}

	ref := Ref{index: idx, gen: s.slots[idx].gen}
	s.slots[idx] = slot{
		gen:   ref.gen,
		alive: true,
		inst: Instance{
			Ref:        ref,
			ClassName:  className,
			Name:       name,
			Properties: make(map[string]rbxval.Value),
			Parent:     parent,
		},
	}

	if !parent.IsNone() {
		if p, ok := s.getLocked(parent); ok {
			p.Children = append(p.Children, ref)
			s.slots[parent.index].inst = p
		}
	}
	return ref
}

// Insert adds a new child instance under parent and returns its Ref. It
// fails if parent does not currently resolve to a live instance.
func (s *Store) Insert(parent Ref, className, name string) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !parent.IsNone() {
		if _, ok := s.getLocked(parent); !ok {
			return None, fmt.Errorf("dom: parent %s does not exist", parent)
		}
	}
	return s.insertLocked(parent, className, name), nil
}

func (s *Store) getLocked(ref Ref) (Instance, bool) {
	if int(ref.index) >= len(s.slots) {
		return Instance{}, false
	}
	sl := s.slots[ref.index]
	if !sl.alive || sl.gen != ref.gen {
		return Instance{}, false
	}
	return sl.inst, true
}

// Get returns a copy of the instance named by ref, or ok=false if ref is
// stale or was never valid.
func (s *Store) Get(ref Ref) (Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ref)
}

// SetProperties replaces the named properties on ref wholesale, leaving any
// properties not present in props untouched.
func (s *Store) SetProperties(ref Ref, props map[string]rbxval.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.getLocked(ref)
	if !ok {
		return fmt.Errorf("dom: %s does not exist", ref)
	}
	for k, v := range props {
		inst.Properties[k] = v
	}
	s.slots[ref.index].inst = inst
	return nil
}

// SetName renames ref's display name. It does not touch the filesystem; the
// Syncback Planner and Change Processor decide separately whether a rename
// requires a file move.
func (s *Store) SetName(ref Ref, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.getLocked(ref)
	if !ok {
		return fmt.Errorf("dom: %s does not exist", ref)
	}
	inst.Name = name
	s.slots[ref.index].inst = inst
	return nil
}

// SetClassName changes ref's class name. Used by the Patch Engine's
// script-family class-name migration; callers are responsible for
// checking the family restriction before calling this.
func (s *Store) SetClassName(ref Ref, className string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.getLocked(ref)
	if !ok {
		return fmt.Errorf("dom: %s does not exist", ref)
	}
	inst.ClassName = className
	s.slots[ref.index].inst = inst
	return nil
}

// Descendants returns every live Ref in ref's subtree, ref itself included,
// in breadth-first order.
func (s *Store) Descendants(ref Ref) []Ref {
	var out []Ref
	s.Walk(ref, func(inst Instance) { out = append(out, inst.Ref) })
	return out
}

// Destroy is an alias for Remove.
func (s *Store) Destroy(ref Ref) error { return s.Remove(ref) }

// Remove deletes ref and its entire subtree, recycling their slots (bumping
// each slot's generation so any Ref that still names them becomes a clean
// miss). It detaches ref from its parent's child list first.
func (s *Store) Remove(ref Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.getLocked(ref)
	if !ok {
		return fmt.Errorf("dom: %s does not exist", ref)
	}

	if !inst.Parent.IsNone() {
		if parent, ok := s.getLocked(inst.Parent); ok {
			parent.Children = removeRef(parent.Children, ref)
			s.slots[inst.Parent.index].inst = parent
		}
	}

	s.removeSubtreeLocked(ref)
	return nil
}

func (s *Store) removeSubtreeLocked(ref Ref) {
	inst, ok := s.getLocked(ref)
	if !ok {
		return
	}
	for _, child := range inst.Children {
		s.removeSubtreeLocked(child)
	}
	for _, p := range s.slots[ref.index].metadata.RelevantPaths {
		if refs, ok := s.pathIndex[p]; ok {
			delete(refs, ref)
			if len(refs) == 0 {
				delete(s.pathIndex, p)
			}
		}
	}
	s.slots[ref.index].alive = false
	s.slots[ref.index].inst = Instance{}
	s.slots[ref.index].metadata = Metadata{}
	s.freeList = append(s.freeList, ref.index)
}

func removeRef(refs []Ref, target Ref) []Ref {
	out := refs[:0]
	for _, r := range refs {
		if r != target {
			out = append(out, r)
		}
	}
	return out
}

// Path returns the slash-joined chain of Name fields from (but excluding)
// the root down to ref, e.g. "ServerScriptService/Main". The root itself
// has an empty path.
func (s *Store) Path(ref Ref) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pathLocked(ref)
}

func (s *Store) pathLocked(ref Ref) string {
	var parts []string
	cur := ref
	for cur != s.root && !cur.IsNone() {
		inst, ok := s.getLocked(cur)
		if !ok {
			break
		}
		parts = append(parts, inst.Name)
		cur = inst.Parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Walk performs a breadth-first traversal starting at ref (inclusive),
// calling visit once per live instance. Stopping early is not supported;
// callers that need to bail out should return from within visit using a
// sentinel they check themselves.
func (s *Store) Walk(ref Ref, visit func(Instance)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	queue := []Ref{ref}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		inst, ok := s.getLocked(cur)
		if !ok {
			continue
		}
		visit(inst)
		queue = append(queue, inst.Children...)
	}
}

// Len reports how many live instances the store currently holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sl := range s.slots {
		if sl.alive {
			n++
		}
	}
	return n
}
