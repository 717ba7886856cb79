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

// Package changeproc is the Change Processor: the single-writer event loop
// that arbitrates between filesystem events, DOM-mutation requests from the
// API, and the deferred recheck of instances that briefly vanished and may
// come back.
package changeproc

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/patch"
	"github.com/rojo-rbx/rojo/pkg/queue"
	"github.com/rojo-rbx/rojo/pkg/snapshot"
	"github.com/rojo-rbx/rojo/pkg/suppression"
	"github.com/rojo-rbx/rojo/pkg/vfs"
)

const (
	recoveryDeadline = 200 * time.Millisecond
	sweepInterval    = 500 * time.Millisecond
)

// pendingRecovery tracks a path whose file briefly disappeared; it gets one
// recheck against the real filesystem once its deadline passes, to absorb
// a delete-then-recreate that outran the watcher (a rapid editor save, or
// an atomic-rename-based save on Windows).
type pendingRecovery struct {
	path     string
	deadline time.Time
}

// Processor owns the write side of the DOM and the VFS. Every mutation,
// whether discovered on disk or requested by a client, is serialized
// through Run's select loop; nothing else is permitted to call
// dom.Store's mutating methods.
type Processor struct {
	store    *dom.Store
	vfs      *vfs.Adapter
	suppress *suppression.Map
	queue    *queue.Queue

	mutations chan mutationRequest
	shutdown  chan struct{}
	done      chan struct{}

	pending []pendingRecovery
}

// mutationRequest pairs a client-originated PatchSet with the channel its
// submitter is waiting on for the AppliedPatchSet — a synchronous call
// across an asynchronous single-writer loop, so an HTTP handler can still
// hand its caller a response body without itself touching the DOM.
type mutationRequest struct {
	ps   patch.PatchSet
	resp chan patch.AppliedPatchSet
}

// New creates a Processor wired to the given store, filesystem adapter,
// suppression map, and output queue. Call Run in its own goroutine to
// start the loop.
func New(store *dom.Store, adapter *vfs.Adapter, suppress *suppression.Map, q *queue.Queue) *Processor {
	return &Processor{
		store:     store,
		vfs:       adapter,
		suppress:  suppress,
		queue:     q,
		mutations: make(chan mutationRequest, 64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Mutate enqueues a client-originated PatchSet for the loop to apply and
// blocks until it has been applied (or the loop has already shut down,
// in which case the zero AppliedPatchSet is returned).
func (p *Processor) Mutate(ps patch.PatchSet) patch.AppliedPatchSet {
	req := mutationRequest{ps: ps, resp: make(chan patch.AppliedPatchSet, 1)}
	select {
	case p.mutations <- req:
	case <-p.done:
		return patch.AppliedPatchSet{}
	}
	select {
	case applied := <-req.resp:
		return applied
	case <-p.done:
		return patch.AppliedPatchSet{}
	}
}

// Shutdown signals the loop to exit after finishing its current work item,
// and blocks until it has.
func (p *Processor) Shutdown() {
	close(p.shutdown)
	<-p.done
}

// Run is the event loop. It returns when the VFS event channel closes or
// Shutdown is called.
func (p *Processor) Run() {
	defer close(p.done)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-p.vfs.Events():
			if !ok {
				return
			}
			p.handleEvent(ev)
			p.processPendingRecoveries()
		case req := <-p.mutations:
			p.handleMutation(req)
		case <-ticker.C:
			p.processPendingRecoveries()
		case <-p.shutdown:
			return
		}
	}
}

func (p *Processor) handleEvent(ev vfs.Event) {
	log.Printf("[changeproc] %s %s", ev.Kind, ev.Path)

	canonical, err := p.vfs.Canonicalize(ev.Path)
	if err != nil {
		log.Printf("[changeproc] canonicalizing %s: %v", ev.Path, err)
		return
	}

	if p.suppress.Consume(canonical, ev.Kind) {
		p.vfs.CommitEvent(ev)
		return
	}
	p.vfs.CommitEvent(ev)

	switch ev.Kind {
	case vfs.Create, vfs.Write:
		if p.drainStaleRenameSource(canonical) {
			return
		}
		p.applyPatches(canonical)
	case vfs.Remove:
		p.applyPatches(canonical)
	}
}

// drainStaleRenameSource absorbs a Create/Write delivered for the old half
// of a rename (observed on macOS) when a suppression credit registered by
// the rename is still outstanding at this path under a different kind. It
// reports whether it consumed one.
func (p *Processor) drainStaleRenameSource(path string) bool {
	if !p.suppress.Pending(path) {
		return false
	}
	for _, kind := range [...]vfs.EventKind{vfs.Remove, vfs.Create, vfs.Write} {
		if p.suppress.Consume(path, kind) {
			return true
		}
	}
	return false
}

// applyPatches walks upward from path through parent directories until
// GetIdsAtPath finds at least one tracked instance, then recomputes and
// reapplies each of them from the real filesystem.
func (p *Processor) applyPatches(path string) {
	cur := path
	for {
		ids := p.store.GetIdsAtPath(cur)
		if len(ids) > 0 {
			for _, id := range ids {
				p.recomputeAndApply(id, cur)
			}
			return
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return
		}
		cur = parent
	}
}

func (p *Processor) recomputeAndApply(id dom.Ref, path string) {
	// Re-snapshot from the instance's own instigating source, not the raw
	// event path: a change to an init or meta file must re-read the
	// file/directory that actually backs the instance.
	if meta, ok := p.store.GetMetadata(id); ok && meta.Source.Kind == dom.SourcePath {
		path = meta.Source.Path
	}
	snap, err := snapshot.FromVFS(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.schedulePendingRecovery(path)
			return
		}
		log.Printf("[changeproc] reading %s: %v", path, err)
		return
	}
	if snap == nil {
		return
	}

	ps := snapshot.ComputePatchSet(snap, p.store, id)
	applied := snapshot.ApplyPatchSet(p.store, p.suppress, ps)
	snapshot.StampTree(p.store, id, snap)

	if !applied.IsEmpty() {
		p.queue.Push(applied)
	}
}

func (p *Processor) schedulePendingRecovery(path string) {
	deadline := time.Now().Add(recoveryDeadline)
	for i := range p.pending {
		if p.pending[i].path == path {
			p.pending[i].deadline = deadline
			return
		}
	}
	p.pending = append(p.pending, pendingRecovery{path: path, deadline: deadline})
}

func (p *Processor) processPendingRecoveries() {
	if len(p.pending) == 0 {
		return
	}
	now := time.Now()
	remaining := p.pending[:0]
	for _, pr := range p.pending {
		if now.Before(pr.deadline) {
			remaining = append(remaining, pr)
			continue
		}
		p.recheckRecovery(pr.path)
	}
	p.pending = remaining
}

// recheckRecovery bypasses the VFS's own view and stats the real
// filesystem directly: if the path exists again, a delete-then-recreate
// raced the watcher and the content is re-snapshotted; if not, the removal
// is confirmed and every instance still tracked at that path is destroyed.
func (p *Processor) recheckRecovery(path string) {
	if _, err := os.Stat(path); err == nil {
		p.applyPatches(path)
		return
	}

	ids := p.store.GetIdsAtPath(path)
	if len(ids) == 0 {
		return
	}
	applied := snapshot.ApplyPatchSet(p.store, p.suppress, patch.PatchSet{Removals: ids})
	if !applied.IsEmpty() {
		p.queue.Push(applied)
	}
}

// handleMutation applies a client-originated PatchSet: the Patch Engine
// handles renames, class-family migrations, and Source writes as well as
// tree-shape changes, all under the DOM's single write lock. Additions
// arriving this way carry no filesystem path of their own; whatever
// submitted the PatchSet is responsible for having already written the
// backing file under suppression and for stamping its metadata once the
// new Ref is known.
func (p *Processor) handleMutation(req mutationRequest) {
	applied := snapshot.ApplyPatchSet(p.store, p.suppress, req.ps)
	if !applied.IsEmpty() {
		p.queue.Push(applied)
	}
	req.resp <- applied
}
