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
	"strings"
	"testing"

	"github.com/rojo-rbx/rojo/pkg/dom"
)

func TestLinkReferenceUniquePathUsesPlaceholder(t *testing.T) {
	store, root := dom.NewStore("DataModel", "Game")
	target, _ := store.Insert(root, "Folder", "Target")

	l := NewLinker(store, nil)
	l.ComputeDuplicateSiblings(root)

	res, ok := l.LinkReference("PrimaryPart", target)
	if !ok {
		t.Fatal("unique-path reference should link")
	}
	if res.AttrName != "Rojo_Ref_PrimaryPart" || !res.Placeholder {
		t.Fatalf("res = %+v", res)
	}
	if _, parsed := parseDedupIndex(res.Value); !parsed {
		t.Fatalf("placeholder %q is not a well-formed token", res.Value)
	}
}

func TestLinkReferenceDuplicateSiblingFallsBackToID(t *testing.T) {
	store, root := dom.NewStore("DataModel", "Game")
	a, _ := store.Insert(root, "Folder", "Twin")
	store.Insert(root, "Folder", "Twin")

	l := NewLinker(store, nil)
	l.ComputeDuplicateSiblings(root)

	res, ok := l.LinkReference("Target", a)
	if !ok {
		t.Fatal("reference should link")
	}
	if res.AttrName != "Rojo_RefPointer_Target" || res.Placeholder {
		t.Fatalf("res = %+v", res)
	}
	id, has := l.IDFor(a)
	if !has || id != res.Value {
		t.Fatalf("target Rojo_Id %q does not match pointer value %q", id, res.Value)
	}
}

func TestLinkReferenceDanglingEmitsNothing(t *testing.T) {
	store, root := dom.NewStore("DataModel", "Game")
	doomed, _ := store.Insert(root, "Folder", "Doomed")
	store.Remove(doomed)

	l := NewLinker(store, nil)
	l.ComputeDuplicateSiblings(root)

	if _, ok := l.LinkReference("Target", doomed); ok {
		t.Fatal("dangling reference must emit nothing")
	}
	if _, ok := l.LinkReference("Target", dom.None); ok {
		t.Fatal("none reference must emit nothing")
	}
}

// Each placeholder occurs exactly once and substitutions are independent:
// replacing one token must never produce text that a later replacement
// then matches, the classic chained string-replace bug.
func TestFixRefPathsSubstitutionsAreIndependent(t *testing.T) {
	store, root := dom.NewStore("DataModel", "Game")
	a, _ := store.Insert(root, "Folder", "A")
	b, _ := store.Insert(root, "Folder", "B")

	l := NewLinker(store, nil)
	l.ComputeDuplicateSiblings(root)

	resA, _ := l.LinkReference("First", a)
	resB, _ := l.LinkReference("Second", b)
	if resA.Value == resB.Value {
		t.Fatal("two edges shared a placeholder token")
	}

	content := []byte(
		`{"Rojo_Ref_First": "` + resA.Value + `", "Rojo_Ref_Second": "` + resB.Value + `"}`)
	finalPaths := map[dom.Ref]string{
		a: "/proj/src/A",
		b: "/proj/src/B",
	}
	out := string(l.FixRefPaths(content, "/proj/src/Owner.meta.json5", finalPaths))

	if strings.Contains(out, "__ROJO_REF_") {
		t.Fatalf("unresolved token remains: %s", out)
	}
	if !strings.Contains(out, `"Rojo_Ref_First": "A"`) || !strings.Contains(out, `"Rojo_Ref_Second": "B"`) {
		t.Fatalf("unexpected substitution result: %s", out)
	}
}

// Substitution only touches lines carrying a Rojo_Ref_ key; a string
// property that happens to contain a token-shaped substring is left alone.
func TestFixRefPathsIgnoresBystanderLines(t *testing.T) {
	store, root := dom.NewStore("DataModel", "Game")
	a, _ := store.Insert(root, "Folder", "A")

	l := NewLinker(store, nil)
	l.ComputeDuplicateSiblings(root)
	res, _ := l.LinkReference("Target", a)

	content := []byte("bystander: " + res.Value + "\n" +
		`"Rojo_Ref_Target": "` + res.Value + `"` + "\n")
	out := string(l.FixRefPaths(content, "/proj/src/Owner.meta.json5", map[dom.Ref]string{a: "/proj/src/A"}))

	lines := strings.Split(out, "\n")
	if !strings.Contains(lines[0], res.Value) {
		t.Fatalf("bystander line was rewritten: %q", lines[0])
	}
	if strings.Contains(lines[1], res.Value) {
		t.Fatalf("reference line was not rewritten: %q", lines[1])
	}
}
