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

import "testing"

func TestStaleRefIsACleanMiss(t *testing.T) {
	store, root := NewStore("DataModel", "DataModel")

	ref, err := store.Insert(root, "Folder", "Doomed")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Remove(ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, ok := store.Get(ref); ok {
		t.Fatal("stale Ref resolved to a live instance")
	}

	// Recycle the slot; the old Ref must still miss, never alias the new
	// occupant.
	again, err := store.Insert(root, "Folder", "Recycled")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, ok := store.Get(ref); ok {
		t.Fatal("stale Ref aliased a recycled slot")
	}
	if inst, ok := store.Get(again); !ok || inst.Name != "Recycled" {
		t.Fatalf("fresh Ref did not resolve: %+v", inst)
	}
}

func TestRemoveDetachesFromParentAndDestroysSubtree(t *testing.T) {
	store, root := NewStore("DataModel", "DataModel")

	parent, _ := store.Insert(root, "Folder", "Parent")
	child, _ := store.Insert(parent, "Folder", "Child")
	grandchild, _ := store.Insert(child, "ModuleScript", "Grandchild")

	if err := store.Remove(child); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, ok := store.Get(grandchild); ok {
		t.Fatal("grandchild survived its ancestor's removal")
	}
	p, _ := store.Get(parent)
	if len(p.Children) != 0 {
		t.Fatalf("parent still lists %d child(ren)", len(p.Children))
	}
}

func TestPathIndexTracksRelevantPaths(t *testing.T) {
	store, root := NewStore("DataModel", "DataModel")
	ref, _ := store.Insert(root, "ModuleScript", "Mod")

	meta := Metadata{
		Source:        InstigatingSource{Kind: SourcePath, Path: "/proj/src/Mod.luau"},
		RelevantPaths: []string{"/proj/src/Mod.luau", "/proj/src/Mod.meta.json5"},
	}
	if err := store.UpdateMetadata(ref, meta); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	for _, p := range meta.RelevantPaths {
		if ids := store.GetIdsAtPath(p); len(ids) != 1 || ids[0] != ref {
			t.Fatalf("GetIdsAtPath(%s) = %v", p, ids)
		}
	}

	// Replacing the relevant paths must drop stale index entries.
	meta.RelevantPaths = []string{"/proj/src/Renamed.luau"}
	if err := store.UpdateMetadata(ref, meta); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if ids := store.GetIdsAtPath("/proj/src/Mod.luau"); len(ids) != 0 {
		t.Fatalf("stale index entry survived: %v", ids)
	}
	if ids := store.GetIdsAtPath("/proj/src/Renamed.luau"); len(ids) != 1 {
		t.Fatalf("new index entry missing: %v", ids)
	}

	// Destroying the instance must clear its index entries too.
	if err := store.Remove(ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ids := store.GetIdsAtPath("/proj/src/Renamed.luau"); len(ids) != 0 {
		t.Fatalf("index entry survived destruction: %v", ids)
	}
}

func TestEveryParentChainTerminatesAtRoot(t *testing.T) {
	store, root := NewStore("DataModel", "DataModel")
	a, _ := store.Insert(root, "Folder", "A")
	b, _ := store.Insert(a, "Folder", "B")
	c, _ := store.Insert(b, "ModuleScript", "C")

	for _, ref := range []Ref{a, b, c} {
		cur := ref
		for i := 0; ; i++ {
			if i > 10 {
				t.Fatalf("parent chain of %s did not terminate", ref)
			}
			inst, ok := store.Get(cur)
			if !ok {
				t.Fatalf("broken parent chain at %s", cur)
			}
			if cur == root {
				break
			}
			cur = inst.Parent
		}
	}
}

func TestPathJoinsDisplayNames(t *testing.T) {
	store, root := NewStore("DataModel", "DataModel")
	a, _ := store.Insert(root, "Folder", "ServerScriptService")
	b, _ := store.Insert(a, "Script", "Main")

	if got := store.Path(b); got != "ServerScriptService/Main" {
		t.Errorf("Path = %q", got)
	}
	if got := store.Path(root); got != "" {
		t.Errorf("root Path = %q, want empty", got)
	}
}

func TestDescendantsIncludesSelf(t *testing.T) {
	store, root := NewStore("DataModel", "DataModel")
	a, _ := store.Insert(root, "Folder", "A")
	store.Insert(a, "Folder", "B")
	store.Insert(a, "Folder", "C")

	if got := store.Descendants(a); len(got) != 3 || got[0] != a {
		t.Fatalf("Descendants = %v", got)
	}
}
