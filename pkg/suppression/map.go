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

// Package suppression holds the shared, session-scoped credit map that
// lets a write the process itself initiated pass through the VFS event
// stream unnoticed.
package suppression

import (
	"sync"

	"github.com/rojo-rbx/rojo/pkg/vfs"
)

type credits struct {
	remove      int
	createWrite int
}

// Map is the Suppression Map: a credit count per canonicalized path, split
// by event kind because a Remove suppression must never consume a
// Create/Write event and vice versa (macOS can deliver a stale Create for
// the source side of a rename, which would otherwise wrongly drain a
// Remove credit intended for that same rename).
type Map struct {
	mu      sync.Mutex
	entries map[string]*credits
}

// New creates an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]*credits)}
}

// Suppress registers credit for n future events of kind at path. Called
// immediately before a filesystem mutation the process itself initiates.
func (m *Map) Suppress(path string, kind vfs.EventKind, n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.entries[path]
	if !ok {
		c = &credits{}
		m.entries[path] = c
	}
	switch kind {
	case vfs.Remove:
		c.remove += n
	case vfs.Create, vfs.Write:
		c.createWrite += n
	}
}

// Consume attempts to spend one credit of kind at path. It reports whether
// a credit was available and spent; if so, the caller must treat the event
// as internally caused and skip patching it.
func (m *Map) Consume(path string, kind vfs.EventKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.entries[path]
	if !ok {
		return false
	}

	var consumed bool
	switch kind {
	case vfs.Remove:
		if c.remove > 0 {
			c.remove--
			consumed = true
		}
	case vfs.Create, vfs.Write:
		if c.createWrite > 0 {
			c.createWrite--
			consumed = true
		}
	}

	if c.remove == 0 && c.createWrite == 0 {
		delete(m.entries, path)
	}
	return consumed
}

// Unsuppress removes every outstanding credit at path. Callers must invoke
// this on the failure path of any operation that previously called
// Suppress, or a later legitimate event at that path is silently eaten.
func (m *Map) Unsuppress(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, path)
}

// Pending reports whether path still carries any outstanding credit of
// either kind, used by the stale-rename-source recheck during a rename.
func (m *Map) Pending(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.entries[path]
	return ok && (c.remove > 0 || c.createWrite > 0)
}
