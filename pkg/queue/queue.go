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

// Package queue is the Message Queue: an append-only log of applied patch
// sets that subscribers read from a monotonically increasing cursor,
// oblivious to one another.
package queue

import (
	"sync"

	"github.com/rojo-rbx/rojo/pkg/patch"
)

// Entry pairs an AppliedPatchSet with the cursor it was published at.
type Entry struct {
	Cursor uint64
	Patch  patch.AppliedPatchSet
}

// Queue is the append-only log. Appends are serialized by mu; a
// subscriber's cursor is just a plain integer it owns and advances itself,
// so subscribers share no read state beyond mu, which Since, Wait and Len
// each hold only briefly to read or copy the backing slice. Reads are
// therefore not lock-free: a subscriber briefly contends with appends.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	notify  chan struct{}
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{})}
}

// Push appends a new entry and returns its cursor.
func (q *Queue) Push(p patch.AppliedPatchSet) uint64 {
	q.mu.Lock()
	cursor := uint64(len(q.entries))
	q.entries = append(q.entries, Entry{Cursor: cursor, Patch: p})
	old := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()
	close(old)
	return cursor
}

// Since returns every entry published at or after cursor, plus the cursor
// to resume from next time.
func (q *Queue) Since(cursor uint64) ([]Entry, uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cursor >= uint64(len(q.entries)) {
		return nil, uint64(len(q.entries))
	}
	out := make([]Entry, len(q.entries)-int(cursor))
	copy(out, q.entries[cursor:])
	return out, uint64(len(q.entries))
}

// Wait blocks until an entry with cursor >= at has been published, then
// returns immediately. It is used by subscriber tasks to avoid busy-polling
// Since.
func (q *Queue) Wait(at uint64) {
	q.mu.Lock()
	if uint64(len(q.entries)) > at {
		q.mu.Unlock()
		return
	}
	ch := q.notify
	q.mu.Unlock()
	<-ch
}

// Len reports the current number of published entries.
func (q *Queue) Len() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return uint64(len(q.entries))
}
