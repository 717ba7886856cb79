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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rojo-rbx/rojo/pkg/patch"
	"github.com/rojo-rbx/rojo/pkg/queue"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

func TestDecodePatchSetFromWriteRequestBody(t *testing.T) {
	body := `{
		"additions": [
			{"className": "Folder", "name": "Shared", "children": [
				{"className": "ModuleScript", "name": "Util", "properties": {"Source": "return {}"}}
			]}
		],
		"updates": [
			{"id": {"index": 3, "gen": 1}, "changedName": "Renamed",
			 "changedProperties": {"Value": "hello", "Stale": null}}
		]
	}`
	var wire WirePatchSet
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ps, err := DecodePatchSet(wire)
	if err != nil {
		t.Fatalf("DecodePatchSet: %v", err)
	}

	if len(ps.Additions) != 1 || ps.Additions[0].Name != "Shared" {
		t.Fatalf("additions = %+v", ps.Additions)
	}
	child := ps.Additions[0].Children[0]
	if src, ok := child.Properties["Source"].(rbxval.StringValue); !ok || string(src) != "return {}" {
		t.Fatalf("child Source = %#v", child.Properties["Source"])
	}

	if len(ps.Updates) != 1 {
		t.Fatalf("updates = %+v", ps.Updates)
	}
	upd := ps.Updates[0]
	if upd.ChangedName == nil || *upd.ChangedName != "Renamed" {
		t.Fatalf("ChangedName = %v", upd.ChangedName)
	}
	if v := upd.ChangedProperties["Value"]; v == nil || !(*v).Equal(rbxval.StringValue("hello")) {
		t.Fatalf("Value = %v", v)
	}
	if v, ok := upd.ChangedProperties["Stale"]; !ok || v != nil {
		t.Fatal("a null property must decode as a removal (nil entry)")
	}
}

type stubMutator struct {
	got     patch.PatchSet
	applied patch.AppliedPatchSet
}

func (s *stubMutator) Mutate(ps patch.PatchSet) patch.AppliedPatchSet {
	s.got = ps
	return s.applied
}

func TestHandleWriteRoutesThroughMutator(t *testing.T) {
	stub := &stubMutator{}
	srv := NewServer(stub, queue.New())

	body := `{"updates": [{"id": {"index": 1, "gen": 1}, "changedName": "X"}]}`
	req := httptest.NewRequest(http.MethodPost, "/write", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(stub.got.Updates) != 1 {
		t.Fatalf("mutator saw %+v", stub.got)
	}
}

func TestHandleWriteRejectsMalformedBody(t *testing.T) {
	srv := NewServer(&stubMutator{}, queue.New())
	req := httptest.NewRequest(http.MethodPost, "/write", strings.NewReader("{nonsense"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleWriteRejectsGet(t *testing.T) {
	srv := NewServer(&stubMutator{}, queue.New())
	req := httptest.NewRequest(http.MethodGet, "/write", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}
