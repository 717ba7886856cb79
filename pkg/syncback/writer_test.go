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
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestCommitStillRemovesFileInsideAddedDir covers the first FsSnapshot-commit
// invariant: a RemovedFile path that sits inside a directory this same pass
// also adds (the directory survives, one of its pre-existing files doesn't)
// is still processed by the Writer — insideRemovedDir only elides a path
// under a RemovedDir, never under an AddedDir.
func TestCommitStillRemovesFileInsideAddedDir(t *testing.T) {
	dir := t.TempDir()
	addedDir := filepath.Join(dir, "Sub")
	if err := os.MkdirAll(addedDir, 0o755); err != nil {
		t.Fatalf("mkdir fixture: %v", err)
	}
	stalePath := filepath.Join(addedDir, "Old.luau")
	if err := os.WriteFile(stalePath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	keptFile := filepath.Join(addedDir, "Keep.luau")

	snap := NewFsSnapshot()
	snap.AddDir(addedDir)
	snap.AddFile(keptFile, []byte("-- keep"))
	snap.RemoveFile(stalePath)

	w := NewWriter()
	if w.insideRemovedDir(stalePath, snap) {
		t.Fatalf("insideRemovedDir(%s) = true, want false: Sub is only AddedDirs, never RemovedDirs", stalePath)
	}

	if err := w.Commit(context.Background(), snap); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err = %v", stalePath, err)
	}
	got, err := os.ReadFile(keptFile)
	if err != nil {
		t.Fatalf("reading %s: %v", keptFile, err)
	}
	if string(got) != "-- keep" {
		t.Fatalf("%s = %q, want %q", keptFile, got, "-- keep")
	}
}

// TestCommitElidesFileInsideRemovedDir covers the second FsSnapshot-commit
// invariant: a RemovedFile path that sits inside a RemovedDir is redundant
// (removeDirs already deletes it recursively via os.RemoveAll) and must be
// skipped by the parallel file-removal phase rather than raced against it.
func TestCommitElidesFileInsideRemovedDir(t *testing.T) {
	dir := t.TempDir()
	removedDir := filepath.Join(dir, "Gone")
	nestedFile := filepath.Join(removedDir, "Nested.luau")
	if err := os.MkdirAll(removedDir, 0o755); err != nil {
		t.Fatalf("mkdir fixture: %v", err)
	}
	if err := os.WriteFile(nestedFile, []byte("-- nested"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	snap := NewFsSnapshot()
	snap.RemoveDir(removedDir)
	snap.RemoveFile(nestedFile)

	w := NewWriter()
	if !w.insideRemovedDir(nestedFile, snap) {
		t.Fatalf("insideRemovedDir(%s) = false, want true", nestedFile)
	}

	if err := w.Commit(context.Background(), snap); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := os.Stat(removedDir); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err = %v", removedDir, err)
	}
}
