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
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rojo-rbx/rojo/pkg/dom"
)

// Linker is the Reference Linker: it turns in-DOM cross-references into
// relative path strings, or opaque ids when the path would collide, and
// reverses the substitution once final paths are known.
type Linker struct {
	store *dom.Store

	duplicateSiblings map[dom.Ref]struct{}
	prePrunePaths     map[dom.Ref]string

	placeholders map[string]dom.Ref
	ids          map[dom.Ref]string
	seenIDs      map[string]dom.Ref
	nextToken    uint64
	warnedDupID  bool
}

// NewLinker creates a Linker over store. prePrunePaths should be every
// live instance's path in the new DOM computed before any pruning, so
// references to since-pruned instances can still be resolved.
func NewLinker(store *dom.Store, prePrunePaths map[dom.Ref]string) *Linker {
	return &Linker{
		store:             store,
		prePrunePaths:     prePrunePaths,
		duplicateSiblings: make(map[dom.Ref]struct{}),
		placeholders:      make(map[string]dom.Ref),
		ids:               make(map[dom.Ref]string),
		seenIDs:           make(map[string]dom.Ref),
	}
}

// ComputeDuplicateSiblings precomputes, in O(N), the set of Refs that share
// a display name with at least one sibling.
func (l *Linker) ComputeDuplicateSiblings(root dom.Ref) {
	l.store.Walk(root, func(inst dom.Instance) {
		byName := make(map[string][]dom.Ref, len(inst.Children))
		for _, c := range inst.Children {
			if child, ok := l.store.Get(c); ok {
				byName[child.Name] = append(byName[child.Name], c)
			}
		}
		for _, group := range byName {
			if len(group) > 1 {
				for _, r := range group {
					l.duplicateSiblings[r] = struct{}{}
				}
			}
		}
	})
}

// pathUnique reports whether target's path to root passes through no
// duplicate-named instance at any level.
func (l *Linker) pathUnique(target dom.Ref) bool {
	cur := target
	for !cur.IsNone() {
		if _, dup := l.duplicateSiblings[cur]; dup {
			return false
		}
		inst, ok := l.store.Get(cur)
		if !ok {
			return false
		}
		if inst.Parent.IsNone() {
			break
		}
		cur = inst.Parent
	}
	return true
}

// LinkResult is what LinkReference decided for one Ref-valued property.
type LinkResult struct {
	AttrName  string
	Value     string // literal id, or a placeholder token to be resolved by FixRefPaths
	Placeholder bool
}

// LinkReference decides how to encode a reference to target from the
// property propName: a unique path gets a placeholder token (resolved
// later against the final path map); a colliding path gets an opaque id,
// and target is marked as needing its own Rojo_Id attribute. Dangling
// references (target not found at all) and truly-none references both
// return ok=false: nothing is emitted, and for a genuinely dangling ref a
// warning is logged.
func (l *Linker) LinkReference(propName string, target dom.Ref) (LinkResult, bool) {
	if target.IsNone() {
		return LinkResult{}, false
	}

	_, prePruned := l.prePrunePaths[target]
	_, stillLive := l.store.Get(target)
	if !stillLive && !prePruned {
		log.Printf("[syncback] dangling reference for property %s: target instance no longer exists", propName)
		return LinkResult{}, false
	}

	if !stillLive {
		// Pruned but its pre-prune path is known: this always resolves
		// path-based, since a pruned instance can never be the id-based
		// case (it has no more live siblings to collide with).
		token := l.newPlaceholder(target)
		return LinkResult{AttrName: "Rojo_Ref_" + propName, Value: token, Placeholder: true}, true
	}

	if l.pathUnique(target) {
		token := l.newPlaceholder(target)
		return LinkResult{AttrName: "Rojo_Ref_" + propName, Value: token, Placeholder: true}, true
	}

	id := l.ensureID(target)
	return LinkResult{AttrName: "Rojo_RefPointer_" + propName, Value: id}, true
}

func (l *Linker) newPlaceholder(target dom.Ref) string {
	l.nextToken++
	token := fmt.Sprintf("__ROJO_REF_%x__", l.nextToken)
	l.placeholders[token] = target
	return token
}

// ensureID returns target's Rojo_Id, minting a fresh one on first use. IDs
// are process-unique UUIDs.
func (l *Linker) ensureID(target dom.Ref) string {
	if id, ok := l.ids[target]; ok {
		return id
	}
	id := uuid.NewString()
	l.ids[target] = id
	return id
}

// IDFor returns the Rojo_Id assigned to ref, if the Reference Linker ever
// needed one for it, so the Syncback Planner can attach it as an
// attribute when it encodes ref itself.
func (l *Linker) IDFor(ref dom.Ref) (string, bool) {
	id, ok := l.ids[ref]
	return id, ok
}

// NoteObservedID records an id already present on a target instance's
// Attributes at decode time (e.g. a hand-edited or previously-assigned
// Rojo_Id). It logs a warning, once, the first time a duplicate is
// observed — duplicates are never validated away (see DESIGN.md), but
// silently colliding ids would make FixRefPaths resolve a
// Rojo_RefPointer_* to the wrong instance, which is worth a log line.
func (l *Linker) NoteObservedID(ref dom.Ref, id string) {
	if prior, ok := l.seenIDs[id]; ok && prior != ref && !l.warnedDupID {
		l.warnedDupID = true
		log.Printf("[syncback] duplicate Rojo_Id %q observed on more than one instance; reference resolution may be ambiguous", id)
	}
	l.seenIDs[id] = ref
	l.ids[ref] = id
}

// FixRefPaths rewrites every placeholder token in content with its
// target's final relative path, computed from sourceFilePath's directory.
// Substitution is applied only to lines containing "Rojo_Ref_" so a
// bystander string property that happens to contain a placeholder-shaped
// substring is left untouched. finalPaths supplies the authoritative
// post-walk path for every Ref; prePrunePaths (held on l) backs pruned
// targets.
func (l *Linker) FixRefPaths(content []byte, sourceFilePath string, finalPaths map[dom.Ref]string) []byte {
	lines := strings.Split(string(content), "\n")
	sourceDir := filepath.Dir(sourceFilePath)

	for i, line := range lines {
		if !strings.Contains(line, "Rojo_Ref_") {
			continue
		}
		for token, target := range l.placeholders {
			if !strings.Contains(line, token) {
				continue
			}
			targetPath, ok := finalPaths[target]
			if !ok {
				targetPath, ok = l.prePrunePaths[target]
			}
			if !ok {
				continue
			}
			rel, err := filepath.Rel(sourceDir, targetPath)
			if err != nil {
				rel = targetPath
			}
			lines[i] = strings.ReplaceAll(lines[i], token, filepath.ToSlash(rel))
		}
	}
	return []byte(strings.Join(lines, "\n"))
}

// parseDedupIndex parses the counter back out of a placeholder token made
// by newPlaceholder; only tests use it, to check that a token is
// well-formed.
func parseDedupIndex(token string) (uint64, bool) {
	const prefix, suffix = "__ROJO_REF_", "__"
	if !strings.HasPrefix(token, prefix) || !strings.HasSuffix(token, suffix) {
		return 0, false
	}
	n, err := strconv.ParseUint(token[len(prefix):len(token)-len(suffix)], 16, 64)
	return n, err == nil
}
