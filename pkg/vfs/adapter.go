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

// Package vfs wraps fsnotify into an event-emitting filesystem abstraction:
// canonicalized paths, a coalescing-tolerant event stream, and a
// CommitEvent hook that lets a consumer advance the adapter's own view of
// the tree without re-triggering a watch callback.
package vfs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventKind identifies one of the four observable filesystem event shapes.
type EventKind uint8

const (
	Create EventKind = iota
	Write
	Remove
	Other
)

func (k EventKind) String() string {
	switch k {
	case Create:
		return "Create"
	case Write:
		return "Write"
	case Remove:
		return "Remove"
	default:
		return "Other"
	}
}

// Event is a single filesystem change as delivered by the adapter. Path is
// not guaranteed canonical; callers must canonicalize defensively.
type Event struct {
	Kind EventKind
	Path string
}

// Adapter wraps an fsnotify.Watcher, adding directory auto-registration
// (fsnotify itself is not recursive) and path canonicalization. It is safe
// for concurrent use; mutation of the watch set is serialized by mu, which
// also backs Lock/Unlock for callers that need to perform a sequence of
// reads and writes without an intervening event being processed out of
// order.
type Adapter struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	root    string
	events  chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// New creates an Adapter rooted at root and begins watching it recursively.
func New(root string) (*Adapter, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("vfs: creating watcher: %w", err)
	}

	a := &Adapter{
		watcher: watcher,
		root:    root,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}

	if err := a.watchTree(root); err != nil {
		watcher.Close()
		return nil, err
	}

	go a.pump()
	return a, nil
}

func (a *Adapter) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Printf("[vfs] walking %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if err := a.watcher.Add(path); err != nil {
				log.Printf("[vfs] watching %s: %v", path, err)
			}
		}
		return nil
	})
}

func (a *Adapter) pump() {
	for {
		select {
		case ev, ok := <-a.watcher.Events:
			if !ok {
				close(a.events)
				return
			}
			a.handleRaw(ev)
		case err, ok := <-a.watcher.Errors:
			if !ok {
				continue
			}
			log.Printf("[vfs] watcher error: %v", err)
		case <-a.done:
			close(a.events)
			return
		}
	}
}

func (a *Adapter) handleRaw(ev fsnotify.Event) {
	var kind EventKind
	switch {
	case ev.Op&fsnotify.Create != 0:
		kind = Create
		// fsnotify does not watch new subdirectories automatically; if the
		// created path is a directory, register it so its own children are
		// observed too.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			a.mu.Lock()
			if err := a.watcher.Add(ev.Name); err != nil {
				log.Printf("[vfs] watching new directory %s: %v", ev.Name, err)
			}
			a.mu.Unlock()
		}
	case ev.Op&fsnotify.Write != 0:
		kind = Write
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		kind = Remove
	default:
		kind = Other
	}

	select {
	case a.events <- Event{Kind: kind, Path: ev.Name}:
	case <-a.done:
	}
}

// Events returns the channel of observed events. It is closed when the
// Adapter is closed.
func (a *Adapter) Events() <-chan Event { return a.events }

// Read returns the full contents of path.
func (a *Adapter) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Metadata reports whether path exists and, if so, whether it is a
// directory.
func (a *Adapter) Metadata(path string) (isDir bool, exists bool) {
	info, err := os.Stat(path)
	if err != nil {
		return false, false
	}
	return info.IsDir(), true
}

// Canonicalize resolves path to its absolute, symlink-free form. If path
// itself doesn't exist (common right after a Remove event), it falls back
// to canonicalizing the parent directory and rejoining the base name,
// which is exactly what callers are expected to do anyway; Canonicalize
// does it for them so both the Remove and Create/Write event handlers can
// share one code path.
func (a *Adapter) Canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return filepath.Clean(resolved), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(path)
	base := filepath.Base(path)
	resolvedParent, perr := filepath.EvalSymlinks(parent)
	if perr != nil {
		return "", perr
	}
	return filepath.Join(resolvedParent, base), nil
}

// CommitEvent is a no-op hook point for advancing any internal view the
// Adapter might keep of the tree. The current implementation has no
// standalone view beyond the OS (reads always go straight to disk), so
// this only exists so callers that need to commit an event to the VFS's
// view even when they decide to swallow it (notably the Change
// Processor's suppression check) have a stable call site if that view
// grows state later.
func (a *Adapter) CommitEvent(Event) {}

// Lock acquires the adapter's mutation lock. Callers use this to perform a
// filesystem write followed by registering a suppression credit as one
// atomic step from the watcher's perspective.
func (a *Adapter) Lock() { a.mu.Lock() }

// Unlock releases the lock acquired by Lock.
func (a *Adapter) Unlock() { a.mu.Unlock() }

// Close stops the watcher and closes the event channel.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.watcher.Close()
	})
	return err
}
