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

import "github.com/rojo-rbx/rojo/pkg/dom"

// Insert inserts snap and its whole subtree under parent, stamping
// metadata on every inserted instance as it goes. This is how the
// Snapshot Engine seeds the DOM for a path that has no recorded instance
// yet — a fresh Create event, or the initial build from an empty store —
// as distinct from ComputePatchSet, which diffs against an instance that
// already exists.
func Insert(store *dom.Store, parent dom.Ref, snap *InstanceSnapshot) (dom.Ref, error) {
	ref, err := store.Insert(parent, snap.ClassName, snap.Name)
	if err != nil {
		return dom.None, err
	}
	if len(snap.Properties) > 0 {
		if err := store.SetProperties(ref, snap.Properties); err != nil {
			return dom.None, err
		}
	}
	StampMetadata(store, ref, snap)

	for _, child := range snap.Children {
		if _, err := Insert(store, ref, child); err != nil {
			return dom.None, err
		}
	}
	return ref, nil
}
