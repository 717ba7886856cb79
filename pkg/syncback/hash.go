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
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/minio/sha256-simd"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// Previous carries the hash and final-path results of a prior Plan pass, so
// a later incremental pass can recognize a subtree it already wrote and skip
// re-encoding it. A Ref only means anything across two passes run against
// the same long-lived dom.Store — which is exactly the case the Change
// Processor is in, re-running syncback after a batch of live DOM edits.
type Previous struct {
	Hashes map[dom.Ref]string
	Paths  map[dom.Ref]string
}

// hashSubtree recursively hashes ref's class name, display name, and
// properties (sorted by key so map iteration order never perturbs the
// digest) along with every child's own hash. Two subtrees hash equal iff
// they are structurally identical down to every descendant's properties,
// which is the condition incremental mode uses to skip re-encoding a
// subtree (see Plan's Options.Incremental).
func (p *Planner) hashSubtree(ref dom.Ref) string {
	inst, ok := p.store.Get(ref)
	if !ok {
		return ""
	}

	h := sha256.New()
	fmt.Fprintf(h, "class:%s\nname:%s\n", inst.ClassName, inst.Name)

	names := make([]string, 0, len(inst.Properties))
	for name := range inst.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		raw, err := rbxval.EncodeJSON(inst.Properties[name])
		if err != nil {
			continue
		}
		fmt.Fprintf(h, "prop:%s=%s\n", name, raw)
	}

	for _, child := range inst.Children {
		fmt.Fprintf(h, "child:%s\n", p.hashSubtree(child))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Hashes returns the subtree hash computed for every Ref this Planner
// walked (or skipped as unchanged), keyed for reuse as the next pass's
// Previous.Hashes — incremental syncback's memoization chain is built one
// Plan call at a time, not pre-computed for the whole tree up front.
func (p *Planner) Hashes() map[dom.Ref]string {
	return p.hashes
}
