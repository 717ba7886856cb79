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

package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/metafile"
	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
	"github.com/rojo-rbx/rojo/pkg/suppression"
	"github.com/rojo-rbx/rojo/pkg/vfs"
)

func newFileBackedScript(t *testing.T, store *dom.Store, parent dom.Ref, dir, name string, tag middleware.Tag, source string) dom.Ref {
	t.Helper()
	filename := name + "." + tag.Extension()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}

	className := "ModuleScript"
	switch tag {
	case middleware.ServerScript, middleware.ClientScript, middleware.PluginScript, middleware.LegacyScript:
		className = "Script"
	case middleware.LocalScript:
		className = "LocalScript"
	}
	ref, err := store.Insert(parent, className, name)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetProperties(ref, map[string]rbxval.Value{"Source": rbxval.StringValue(source)}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateMetadata(ref, dom.Metadata{
		Source:        dom.InstigatingSource{Kind: dom.SourcePath, Path: path},
		Middleware:    tag,
		RelevantPaths: []string{path},
	}); err != nil {
		t.Fatal(err)
	}
	return ref
}

func strptr(s string) *string { return &s }

// Renaming joe_test to joe/test slugifies back to the same stem: the file
// must stay where it is, untouched, and the meta file gains the real
// display name.
func TestRenameToCollidingSlugKeepsFile(t *testing.T) {
	dir := t.TempDir()
	store, root := dom.NewStore("DataModel", "DataModel")
	ref := newFileBackedScript(t, store, root, dir, "joe_test", middleware.LegacyScript, "print('hi')")

	engine := New(store, suppression.New())
	applied := engine.Apply(PatchSet{Updates: []Update{{ID: ref, ChangedName: strptr("joe/test")}}})

	if len(applied.Updates) != 1 || applied.Updates[0].ChangedName == nil {
		t.Fatalf("applied = %+v", applied)
	}

	scriptPath := filepath.Join(dir, "joe_test.legacy.luau")
	content, err := os.ReadFile(scriptPath)
	if err != nil {
		t.Fatalf("script file was destroyed: %v", err)
	}
	if string(content) != "print('hi')" {
		t.Fatalf("content = %q", content)
	}

	mf, err := metafile.Read(filepath.Join(dir, "joe_test.meta.json5"))
	if err != nil || mf == nil || mf.Name == nil || *mf.Name != "joe/test" {
		t.Fatalf("meta = %+v, %v", mf, err)
	}

	inst, _ := store.Get(ref)
	if inst.Name != "joe/test" {
		t.Errorf("display name = %q", inst.Name)
	}
}

func TestRenameMovesFileAndRemovesStaleMetaName(t *testing.T) {
	dir := t.TempDir()
	store, root := dom.NewStore("DataModel", "DataModel")
	ref := newFileBackedScript(t, store, root, dir, "Old", middleware.ModuleScript, "return 1")

	engine := New(store, suppression.New())
	applied := engine.Apply(PatchSet{Updates: []Update{{ID: ref, ChangedName: strptr("New")}}})
	if len(applied.Updates) != 1 {
		t.Fatalf("applied = %+v", applied)
	}

	if _, err := os.Stat(filepath.Join(dir, "Old.luau")); !os.IsNotExist(err) {
		t.Fatal("old file still present")
	}
	content, err := os.ReadFile(filepath.Join(dir, "New.luau"))
	if err != nil || string(content) != "return 1" {
		t.Fatalf("new file: %q, %v", content, err)
	}
	// A clean rename needs no meta name override; the meta file must not
	// have been created.
	if _, err := os.Stat(filepath.Join(dir, "New.meta.json5")); !os.IsNotExist(err) {
		t.Fatal("unneeded meta file was created")
	}

	meta, _ := store.GetMetadata(ref)
	if meta.Source.Path != filepath.Join(dir, "New.luau") {
		t.Errorf("instigating source = %q", meta.Source.Path)
	}
}

func TestRemovalOfBaseNamePromotesLowestSuffixedSibling(t *testing.T) {
	dir := t.TempDir()
	store, root := dom.NewStore("DataModel", "DataModel")

	base := newFileBackedScript(t, store, root, dir, "Foo", middleware.ModuleScript, "return 'base'")
	newFileBackedScript(t, store, root, dir, "Foo~1", middleware.ModuleScript, "return 'dup'")

	// The suffixed sibling's display name is Foo; its stem diverges.
	siblings, _ := store.Get(root)
	dup := siblings.Children[1]
	store.SetName(dup, "Foo")

	// The API handler already removed the backing file before the PatchSet
	// reaches the engine; removal here is DOM-only.
	if err := os.Remove(filepath.Join(dir, "Foo.luau")); err != nil {
		t.Fatal(err)
	}

	engine := New(store, suppression.New())
	applied := engine.Apply(PatchSet{Removals: []dom.Ref{base}})
	if len(applied.Removals) != 1 {
		t.Fatalf("applied = %+v", applied)
	}

	if _, err := os.Stat(filepath.Join(dir, "Foo~1.luau")); !os.IsNotExist(err) {
		t.Fatal("suffixed file was not renamed")
	}
	content, err := os.ReadFile(filepath.Join(dir, "Foo.luau"))
	if err != nil || string(content) != "return 'dup'" {
		t.Fatalf("promoted file: %q, %v", content, err)
	}
	// Display name now matches the stem: no meta override should remain.
	if _, err := os.Stat(filepath.Join(dir, "Foo.meta.json5")); !os.IsNotExist(err) {
		t.Fatal("stale meta name override left behind")
	}

	meta, _ := store.GetMetadata(dup)
	if meta.Source.Path != filepath.Join(dir, "Foo.luau") {
		t.Errorf("survivor source = %q", meta.Source.Path)
	}
}

func TestRemovalOfSuffixedSiblingLeavesGap(t *testing.T) {
	dir := t.TempDir()
	store, root := dom.NewStore("DataModel", "DataModel")

	newFileBackedScript(t, store, root, dir, "Foo", middleware.ModuleScript, "return 0")
	mid := newFileBackedScript(t, store, root, dir, "Foo~2", middleware.ModuleScript, "return 2")
	newFileBackedScript(t, store, root, dir, "Foo~3", middleware.ModuleScript, "return 3")

	engine := New(store, suppression.New())
	engine.Apply(PatchSet{Removals: []dom.Ref{mid}})

	// Foo~3 must not be renumbered.
	if _, err := os.Stat(filepath.Join(dir, "Foo~3.luau")); err != nil {
		t.Fatalf("Foo~3 was disturbed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Foo.luau")); err != nil {
		t.Fatalf("base was disturbed: %v", err)
	}
}

func TestProjectNodeMutationsAreRefused(t *testing.T) {
	store, root := dom.NewStore("DataModel", "DataModel")
	ref, _ := store.Insert(root, "Folder", "Synthetic")
	store.UpdateMetadata(ref, dom.Metadata{
		Source: dom.InstigatingSource{Kind: dom.SourceProjectNode, ProjectNodePath: "ReplicatedStorage.Shared"},
	})

	engine := New(store, suppression.New())
	applied := engine.Apply(PatchSet{
		Removals: []dom.Ref{ref},
		Updates:  []Update{{ID: ref, ChangedName: strptr("Other")}},
	})

	if len(applied.Removals) != 0 {
		t.Fatal("project-node removal was applied")
	}
	for _, u := range applied.Updates {
		if u.ChangedName != nil {
			t.Fatal("project-node rename was applied")
		}
	}
	if _, ok := store.Get(ref); !ok {
		t.Fatal("project-node instance was destroyed")
	}
}

func TestReclassWithinScriptFamilyRenamesSuffix(t *testing.T) {
	dir := t.TempDir()
	store, root := dom.NewStore("DataModel", "DataModel")
	ref := newFileBackedScript(t, store, root, dir, "Mod", middleware.ModuleScript, "return {}")

	engine := New(store, suppression.New())
	applied := engine.Apply(PatchSet{Updates: []Update{{ID: ref, ChangedClassName: strptr("Script")}}})
	if len(applied.Updates) != 1 || applied.Updates[0].ChangedClassName == nil {
		t.Fatalf("applied = %+v", applied)
	}

	if _, err := os.Stat(filepath.Join(dir, "Mod.legacy.luau")); err != nil {
		t.Fatalf("suffix rename missing: %v", err)
	}
	inst, _ := store.Get(ref)
	if inst.ClassName != "Script" {
		t.Errorf("class = %q", inst.ClassName)
	}
	meta, _ := store.GetMetadata(ref)
	if meta.Middleware != middleware.LegacyScript {
		t.Errorf("middleware = %v", meta.Middleware)
	}
}

func TestReclassDirectoryFormRenamesInitFile(t *testing.T) {
	dir := t.TempDir()
	modDir := filepath.Join(dir, "DirModule")
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "init.luau"), []byte("return {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "Child.luau"), []byte("return 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, root := dom.NewStore("DataModel", "DataModel")
	ref, _ := store.Insert(root, "ModuleScript", "DirModule")
	store.UpdateMetadata(ref, dom.Metadata{
		Source:        dom.InstigatingSource{Kind: dom.SourcePath, Path: modDir},
		Middleware:    middleware.ModuleScriptDir,
		RelevantPaths: []string{modDir, filepath.Join(modDir, "init.luau")},
	})

	engine := New(store, suppression.New())
	applied := engine.Apply(PatchSet{Updates: []Update{{ID: ref, ChangedClassName: strptr("Script")}}})
	if len(applied.Updates) != 1 {
		t.Fatalf("applied = %+v", applied)
	}

	if _, err := os.Stat(filepath.Join(modDir, "init.legacy.luau")); err != nil {
		t.Fatalf("init file was not renamed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(modDir, "Child.luau")); err != nil {
		t.Fatalf("children were disturbed: %v", err)
	}
	inst, _ := store.Get(ref)
	if inst.ClassName != "Script" {
		t.Errorf("class = %q", inst.ClassName)
	}
}

func TestCrossFamilyReclassIsSkipped(t *testing.T) {
	dir := t.TempDir()
	store, root := dom.NewStore("DataModel", "DataModel")
	ref := newFileBackedScript(t, store, root, dir, "Mod", middleware.ModuleScript, "return {}")

	engine := New(store, suppression.New())
	applied := engine.Apply(PatchSet{Updates: []Update{{ID: ref, ChangedClassName: strptr("Folder")}}})

	for _, u := range applied.Updates {
		if u.ChangedClassName != nil {
			t.Fatal("cross-family class change was applied")
		}
	}
	inst, _ := store.Get(ref)
	if inst.ClassName != "ModuleScript" {
		t.Errorf("class changed to %q", inst.ClassName)
	}
}

func TestSourceWriteGoesToInstigatingPath(t *testing.T) {
	dir := t.TempDir()
	store, root := dom.NewStore("DataModel", "DataModel")
	ref := newFileBackedScript(t, store, root, dir, "Mod", middleware.ModuleScript, "old")

	suppress := suppression.New()
	engine := New(store, suppress)
	newSource := rbxval.Value(rbxval.StringValue("new contents"))
	applied := engine.Apply(PatchSet{Updates: []Update{{
		ID:                ref,
		ChangedProperties: map[string]*rbxval.Value{"Source": &newSource},
	}}})
	if len(applied.Updates) != 1 {
		t.Fatalf("applied = %+v", applied)
	}

	content, err := os.ReadFile(filepath.Join(dir, "Mod.luau"))
	if err != nil || string(content) != "new contents" {
		t.Fatalf("disk = %q, %v", content, err)
	}
	inst, _ := store.Get(ref)
	if src := inst.Properties["Source"]; !src.Equal(rbxval.StringValue("new contents")) {
		t.Errorf("DOM Source = %#v", src)
	}
	// The write the engine itself issued must be suppressed.
	if !suppress.Consume(filepath.Join(dir, "Mod.luau"), vfs.Write) {
		t.Error("Source write was not suppressed")
	}
}

func TestFailedRenameUnsuppresses(t *testing.T) {
	dir := t.TempDir()
	store, root := dom.NewStore("DataModel", "DataModel")
	ref, _ := store.Insert(root, "ModuleScript", "Ghost")
	missing := filepath.Join(dir, "Ghost.luau")
	store.UpdateMetadata(ref, dom.Metadata{
		Source:        dom.InstigatingSource{Kind: dom.SourcePath, Path: missing},
		Middleware:    middleware.ModuleScript,
		RelevantPaths: []string{missing},
	})

	suppress := suppression.New()
	engine := New(store, suppress)
	engine.Apply(PatchSet{Updates: []Update{{ID: ref, ChangedName: strptr("Elsewhere")}}})

	// The rename failed (no backing file); neither path may keep credits,
	// or the next legitimate event there is silently eaten.
	if suppress.Pending(missing) {
		t.Error("old path still suppressed after failed rename")
	}
	if suppress.Pending(filepath.Join(dir, "Elsewhere.luau")) {
		t.Error("new path still suppressed after failed rename")
	}
}
