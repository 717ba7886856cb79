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

package session

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/rojo-rbx/rojo/pkg/patch"
	"github.com/rojo-rbx/rojo/pkg/queue"
)

// mutator is the subset of changeproc.Processor the Server needs: submit a
// client PatchSet to the single-writer loop and block for its applied
// result. Expressed as an interface so this package doesn't import
// changeproc (which would import session's transport-adjacent callers in
// the other direction in a fuller build).
type mutator interface {
	Mutate(patch.PatchSet) patch.AppliedPatchSet
}

// Server is the HTTP+websocket surface the `domsync serve` CLI command
// starts: a write-request endpoint that hands its PatchSet to the Change
// Processor's single-writer loop (never touching the DOM itself) and a
// websocket endpoint streaming every applied patch set back out, sourced
// from the same queue.Queue the Change Processor publishes to for
// filesystem-originated changes.
type Server struct {
	proc  mutator
	queue *queue.Queue
	hub   *Hub
}

// NewServer wires proc (the running changeproc.Processor) and q together
// behind an HTTP mux.
func NewServer(proc mutator, q *queue.Queue) *Server {
	return &Server{proc: proc, queue: q, hub: NewHub(q)}
}

// Handler returns the mux this Server serves: POST /write applies a
// WirePatchSet body to the engine, GET /subscribe upgrades to a
// websocket streaming the applied result of every future write (from any
// source, not only /write).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/write", s.handleWrite)
	mux.HandleFunc("/subscribe", s.hub.ServeWS)
	return mux
}

// Run starts the Hub's fan-out goroutine; it must be called once before
// any /subscribe request is served, and returns once done is closed.
func (s *Server) Run(done <-chan struct{}) {
	s.hub.Run(done)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var wire WirePatchSet
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		http.Error(w, "malformed write request: "+err.Error(), http.StatusBadRequest)
		return
	}
	ps, err := DecodePatchSet(wire)
	if err != nil {
		http.Error(w, "malformed write request: "+err.Error(), http.StatusBadRequest)
		return
	}

	applied := s.proc.Mutate(ps)
	if applied.IsEmpty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	out, err := EncodePatchSet(applied)
	if err != nil {
		log.Printf("[session] encoding write response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Printf("[session] writing response: %v", err)
	}
}
