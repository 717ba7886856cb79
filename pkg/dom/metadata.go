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

package dom

import "github.com/rojo-rbx/rojo/pkg/middleware"

// SourceKind distinguishes the two shapes an InstigatingSource can take.
type SourceKind uint8

const (
	// SourceNone marks an instance with no instigating source yet (freshly
	// inserted by a client PatchSet addition, before the API handler's
	// filesystem-side write has been reconciled back in).
	SourceNone SourceKind = iota
	// SourcePath means the instance was produced by reading a real
	// filesystem path.
	SourcePath
	// SourceProjectNode means the instance corresponds to a node in a
	// *.project.json5 tree that has no $path of its own — a synthetic
	// grouping instance the Patch Engine must refuse to rename or destroy.
	SourceProjectNode
)

// InstigatingSource names where an instance's content is written when it is
// mutated: either a real file/directory path, or a project node descriptor
// identified by its dotted path within the project tree (e.g.
// "ReplicatedStorage.Shared").
type InstigatingSource struct {
	Kind            SourceKind
	Path            string
	ProjectNodePath string
}

// Metadata is attached to every DOM instance but never exposed to clients.
type Metadata struct {
	Source                 InstigatingSource
	Middleware              middleware.Tag
	RelevantPaths           []string
	IgnoreUnknownInstances bool
}

// GetMetadata returns a copy of ref's metadata, or ok=false if ref is not a
// live instance.
func (s *Store) GetMetadata(ref Ref) (Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.liveLocked(ref) {
		return Metadata{}, false
	}
	return s.slots[ref.index].metadata, true
}

func (s *Store) liveLocked(ref Ref) bool {
	if int(ref.index) >= len(s.slots) {
		return false
	}
	sl := s.slots[ref.index]
	return sl.alive && sl.gen == ref.gen
}

// UpdateMetadata replaces ref's metadata wholesale and reconciles the
// path→Refs index against the new RelevantPaths, preserving the invariant
// that the index holds (p, r) iff p is in r's relevant paths. Only the
// Change Processor is meant to call this.
func (s *Store) UpdateMetadata(ref Ref, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(ref) {
		return errNotFound(ref)
	}

	old := s.slots[ref.index].metadata
	for _, p := range old.RelevantPaths {
		if refs, ok := s.pathIndex[p]; ok {
			delete(refs, ref)
			if len(refs) == 0 {
				delete(s.pathIndex, p)
			}
		}
	}
	for _, p := range meta.RelevantPaths {
		refs, ok := s.pathIndex[p]
		if !ok {
			refs = make(map[Ref]struct{})
			s.pathIndex[p] = refs
		}
		refs[ref] = struct{}{}
	}

	s.slots[ref.index].metadata = meta
	return nil
}

// GetIdsAtPath returns every live Ref whose relevant-paths vector contains
// path, in no particular order. The Change Processor walks upward through
// parent directories calling this until it gets a non-empty result.
func (s *Store) GetIdsAtPath(path string) []Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs, ok := s.pathIndex[path]
	if !ok {
		return nil
	}
	out := make([]Ref, 0, len(refs))
	for r := range refs {
		out = append(out, r)
	}
	return out
}

func errNotFound(ref Ref) error {
	return &notFoundError{ref: ref}
}

type notFoundError struct{ ref Ref }

func (e *notFoundError) Error() string { return "dom: " + e.ref.String() + " does not exist" }
