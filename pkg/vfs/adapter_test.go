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

package vfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCanonicalizeExistingPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	got, err := a.Canonicalize(path)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if filepath.Base(got) != "file.txt" {
		t.Errorf("got %q", got)
	}
}

// A just-removed path can't be resolved directly; the adapter must fall
// back to the parent directory plus the original base name, since that is
// the key the suppression map and path index were registered under.
func TestCanonicalizeFallsBackToParentForMissingPath(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	missing := filepath.Join(dir, "removed.luau")
	got, err := a.Canonicalize(missing)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if filepath.Base(got) != "removed.luau" {
		t.Errorf("got %q", got)
	}
}

func TestWatcherDeliversWriteEvents(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	path := filepath.Join(dir, "watched.luau")
	if err := os.WriteFile(path, []byte("return 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-a.Events():
			if !ok {
				t.Fatal("event channel closed before delivery")
			}
			if filepath.Base(ev.Path) == "watched.luau" && (ev.Kind == Create || ev.Kind == Write) {
				return
			}
		case <-deadline:
			t.Fatal("no event for the new file within 5s")
		}
	}
}
