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

	"github.com/rojo-rbx/rojo/pkg/lru"
	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// modelContainerEntry is a cached read of a *.rbxm/*.rbxmx blob, keyed by
// path and invalidated by a (size, mtime) fingerprint. Binary model
// containers can be large and the Change Processor may re-snapshot the
// same path repeatedly across coalesced VFS events, so a bare re-read is
// wasted work once the fingerprint still matches.
type modelContainerEntry struct {
	size    int64
	modTime int64
	bytes   []byte
}

var modelContainerCache = lru.New[string, modelContainerEntry](64)

// decodeTextFile reads a *.txt file as a StringValue's Value property.
func decodeTextFile(path string) (*InstanceSnapshot, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := stemOf(baseName(path))
	snap := newSnapshot("StringValue", name, middleware.Text, path)
	snap.Properties["Value"] = rbxval.StringValue(contents)
	return snap, nil
}

// decodeModelContainer reads a *.rbxm/*.rbxmx binary or XML model
// container as an opaque byte stash: this module implements them as an
// opaque pass-through middleware. Real model parsing is the
// reflection/codec boundary's job, out of scope here.
func decodeModelContainer(path string, tag middleware.Tag) (*InstanceSnapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if cached, ok := modelContainerCache.Get(path); ok &&
		cached.size == info.Size() && cached.modTime == info.ModTime().UnixNano() {
		name := stemOf(baseName(path))
		snap := newSnapshot("Instance", name, tag, path)
		snap.Properties["RawModel"] = rbxval.BinaryStringValue(cached.bytes)
		return snap, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	modelContainerCache.Add(path, modelContainerEntry{
		size:    info.Size(),
		modTime: info.ModTime().UnixNano(),
		bytes:   contents,
	})

	name := stemOf(baseName(path))
	snap := newSnapshot("Instance", name, tag, path)
	snap.Properties["RawModel"] = rbxval.BinaryStringValue(contents)
	return snap, nil
}
