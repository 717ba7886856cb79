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
	"os"
	"path/filepath"
	"testing"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStandaloneScriptKinds(t *testing.T) {
	dir := t.TempDir()
	noRunContext := rbxval.EnumValue(0)
	cases := []struct {
		file           string
		wantClass      string
		wantName       string
		wantRunContext rbxval.EnumValue
	}{
		{"Mod.luau", "ModuleScript", "Mod", noRunContext},
		{"Srv.server.luau", "Script", "Srv", rbxval.EnumValue(middleware.RunContextServer)},
		{"Cli.client.luau", "Script", "Cli", rbxval.EnumValue(middleware.RunContextClient)},
		{"Plg.plugin.luau", "Script", "Plg", rbxval.EnumValue(middleware.RunContextPlugin)},
		{"Loc.local.luau", "LocalScript", "Loc", noRunContext},
		// Backward-compatible .lua readings: legacy Script and LocalScript.
		{"Old.server.lua", "Script", "Old", noRunContext},
		{"Old2.client.lua", "LocalScript", "Old2", noRunContext},
	}
	for _, c := range cases {
		path := filepath.Join(dir, c.file)
		writeFile(t, path, "return nil")
		snap, err := FromVFS(path)
		if err != nil {
			t.Fatalf("FromVFS(%s): %v", c.file, err)
		}
		if snap.ClassName != c.wantClass || snap.Name != c.wantName {
			t.Errorf("%s -> (%s, %s), want (%s, %s)", c.file, snap.ClassName, snap.Name, c.wantClass, c.wantName)
		}
		if src, ok := snap.Properties["Source"].(rbxval.StringValue); !ok || string(src) != "return nil" {
			t.Errorf("%s Source = %#v", c.file, snap.Properties["Source"])
		}
		rc, hasRC := snap.Properties["RunContext"].(rbxval.EnumValue)
		if c.wantRunContext == noRunContext {
			if hasRC {
				t.Errorf("%s unexpectedly carries RunContext %v", c.file, rc)
			}
		} else if !hasRC || rc != c.wantRunContext {
			t.Errorf("%s RunContext = %v (present %v), want %v", c.file, rc, hasRC, c.wantRunContext)
		}
	}
}

// A directory whose init file changes suffix changes the class of the
// directory's own instance, while children stay intact — the init-type-
// change rename scenario, both directions.
func TestDirInitTypeChange(t *testing.T) {
	dir := t.TempDir()
	mod := filepath.Join(dir, "DirModule")
	writeFile(t, filepath.Join(mod, "init.luau"), "return {}")
	writeFile(t, filepath.Join(mod, "Child.luau"), "return 1")

	snap, err := FromVFS(mod)
	if err != nil {
		t.Fatalf("FromVFS: %v", err)
	}
	if snap.ClassName != "ModuleScript" || snap.Middleware != middleware.ModuleScriptDir {
		t.Fatalf("initial: class %s, middleware %v", snap.ClassName, snap.Middleware)
	}
	if len(snap.Children) != 1 || snap.Children[0].Name != "Child" {
		t.Fatalf("children = %+v", snap.Children)
	}

	// init.luau -> init.server.luau: the directory becomes a Script.
	if err := os.Rename(filepath.Join(mod, "init.luau"), filepath.Join(mod, "init.server.luau")); err != nil {
		t.Fatal(err)
	}
	snap, err = FromVFS(mod)
	if err != nil {
		t.Fatalf("FromVFS after rename: %v", err)
	}
	if snap.ClassName != "Script" || snap.Middleware != middleware.ServerScriptDir {
		t.Fatalf("after rename: class %s, middleware %v", snap.ClassName, snap.Middleware)
	}
	if len(snap.Children) != 1 || snap.Children[0].Name != "Child" {
		t.Fatalf("children lost across init rename: %+v", snap.Children)
	}

	// And back again.
	if err := os.Rename(filepath.Join(mod, "init.server.luau"), filepath.Join(mod, "init.luau")); err != nil {
		t.Fatal(err)
	}
	snap, err = FromVFS(mod)
	if err != nil {
		t.Fatalf("FromVFS after reverse rename: %v", err)
	}
	if snap.ClassName != "ModuleScript" {
		t.Fatalf("class did not revert: %s", snap.ClassName)
	}
	if len(snap.Children) != 1 {
		t.Fatalf("children lost on the way back: %+v", snap.Children)
	}
}

func TestDirClientInitIsScriptWithClientRunContext(t *testing.T) {
	dir := t.TempDir()
	mod := filepath.Join(dir, "ClientThing")
	writeFile(t, filepath.Join(mod, "init.client.luau"), "return {}")

	snap, err := FromVFS(mod)
	if err != nil {
		t.Fatalf("FromVFS: %v", err)
	}
	if snap.ClassName != "Script" || snap.Middleware != middleware.ClientScriptDir {
		t.Fatalf("class %s, middleware %v", snap.ClassName, snap.Middleware)
	}
	rc, ok := snap.Properties["RunContext"].(rbxval.EnumValue)
	if !ok || rc != rbxval.EnumValue(middleware.RunContextClient) {
		t.Fatalf("RunContext = %v (present %v)", rc, ok)
	}
}

func TestInitFileItselfSnapshotsToNil(t *testing.T) {
	dir := t.TempDir()
	mod := filepath.Join(dir, "DirModule")
	initPath := filepath.Join(mod, "init.luau")
	writeFile(t, initPath, "return {}")

	snap, err := FromVFS(initPath)
	if err != nil {
		t.Fatalf("FromVFS: %v", err)
	}
	if snap != nil {
		t.Fatalf("init file should snapshot to nil, got %+v", snap)
	}
}

func TestAdjacentMetaOverridesNameAndIsNotAChild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "joe_test.legacy.luau"), "print('hi')")
	writeFile(t, filepath.Join(dir, "joe_test.meta.json5"), `{"name": "joe/test"}`)

	snap, err := FromVFS(dir)
	if err != nil {
		t.Fatalf("FromVFS: %v", err)
	}
	if len(snap.Children) != 1 {
		t.Fatalf("meta companion leaked as a child: %+v", snap.Children)
	}
	child := snap.Children[0]
	if child.Name != "joe/test" {
		t.Errorf("display name = %q, want the meta override", child.Name)
	}
	if child.ClassName != "Script" {
		t.Errorf("class = %q", child.ClassName)
	}

	// Both the script file and its meta file must be relevant paths, so a
	// change to either re-snapshots this instance.
	wantPaths := 2
	if len(child.RelevantPaths) != wantPaths {
		t.Errorf("RelevantPaths = %v", child.RelevantPaths)
	}
}

func TestComputePatchSetEmitsMinimalDiff(t *testing.T) {
	store, root := dom.NewStore("DataModel", "DataModel")
	parent, _ := store.Insert(root, "Folder", "src")
	keep, _ := store.Insert(parent, "ModuleScript", "Keep")
	store.SetProperties(keep, map[string]rbxval.Value{"Source": rbxval.StringValue("old")})
	store.Insert(parent, "ModuleScript", "Gone")

	newSnap := &InstanceSnapshot{
		ClassName:  "Folder",
		Name:       "src",
		Properties: map[string]rbxval.Value{},
		Children: []*InstanceSnapshot{
			{
				ClassName:  "ModuleScript",
				Name:       "Keep",
				Properties: map[string]rbxval.Value{"Source": rbxval.StringValue("new")},
			},
			{
				ClassName:  "ModuleScript",
				Name:       "Fresh",
				Properties: map[string]rbxval.Value{"Source": rbxval.StringValue("return 0")},
			},
		},
	}

	ps := ComputePatchSet(newSnap, store, parent)

	if len(ps.Removals) != 1 {
		t.Fatalf("removals = %+v", ps.Removals)
	}
	if len(ps.Additions) != 1 || ps.Additions[0].Name != "Fresh" {
		t.Fatalf("additions = %+v", ps.Additions)
	}
	if len(ps.Updates) != 1 || ps.Updates[0].ID != keep {
		t.Fatalf("updates = %+v", ps.Updates)
	}
	changed := ps.Updates[0].ChangedProperties
	if v, ok := changed["Source"]; !ok || v == nil || !(*v).Equal(rbxval.StringValue("new")) {
		t.Fatalf("changed properties = %+v", changed)
	}
}

func TestComputePatchSetNoChangesIsEmpty(t *testing.T) {
	store, root := dom.NewStore("DataModel", "DataModel")
	ref, _ := store.Insert(root, "ModuleScript", "Same")
	store.SetProperties(ref, map[string]rbxval.Value{"Source": rbxval.StringValue("x")})

	snap := &InstanceSnapshot{
		ClassName:  "ModuleScript",
		Name:       "Same",
		Properties: map[string]rbxval.Value{"Source": rbxval.StringValue("x")},
	}

	if ps := ComputePatchSet(snap, store, ref); !ps.IsEmpty() {
		t.Fatalf("expected empty patch set, got %+v", ps)
	}
}

func TestInsertStampsMetadataRecursively(t *testing.T) {
	store, root := dom.NewStore("DataModel", "DataModel")

	snap := &InstanceSnapshot{
		ClassName:     "Folder",
		Name:          "src",
		Properties:    map[string]rbxval.Value{},
		Middleware:    middleware.Dir,
		SourcePath:    "/proj/src",
		RelevantPaths: []string{"/proj/src"},
		Children: []*InstanceSnapshot{
			{
				ClassName:     "ModuleScript",
				Name:          "Mod",
				Properties:    map[string]rbxval.Value{},
				Middleware:    middleware.ModuleScript,
				SourcePath:    "/proj/src/Mod.luau",
				RelevantPaths: []string{"/proj/src/Mod.luau"},
			},
		},
	}

	ref, err := Insert(store, root, snap)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	meta, ok := store.GetMetadata(ref)
	if !ok || meta.Source.Path != "/proj/src" || meta.Middleware != middleware.Dir {
		t.Fatalf("root metadata = %+v", meta)
	}
	if ids := store.GetIdsAtPath("/proj/src/Mod.luau"); len(ids) != 1 {
		t.Fatalf("child path index = %v", ids)
	}
}

func TestCsvRoundTripsThroughSource(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "Strings.csv")
	content := "Key,Source,Context,Example,es\ngreeting,Hello,,,Hola\n"
	writeFile(t, csvPath, content)

	snap, err := FromVFS(csvPath)
	if err != nil {
		t.Fatalf("FromVFS: %v", err)
	}
	if snap.ClassName != "LocalizationTable" {
		t.Fatalf("class = %s", snap.ClassName)
	}
	src, ok := snap.Properties["Source"].(rbxval.StringValue)
	if !ok || string(src) != content {
		t.Fatalf("Source = %q, want the canonical CSV back", src)
	}
}
