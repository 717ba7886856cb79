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

// Package snapshot is the Snapshot Engine: it turns a filesystem path into
// an in-memory InstanceSnapshot, and diffs a fresh snapshot against a
// recorded DOM instance to produce the minimal PatchSet that would align
// them.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rojo-rbx/rojo/pkg/metafile"
	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// InstanceSnapshot is an in-memory projection of a filesystem subtree into
// DOM shape. It carries everything the Patch Engine needs to align a
// dom.Instance with it, plus the metadata fields the Change Processor
// persists once the snapshot is applied.
type InstanceSnapshot struct {
	ClassName              string
	Name                    string
	Properties              map[string]rbxval.Value
	Children                []*InstanceSnapshot
	Middleware              middleware.Tag
	SourcePath              string
	NodePath                string
	RelevantPaths           []string
	IgnoreUnknownInstances bool
}

func newSnapshot(className, name string, tag middleware.Tag, path string) *InstanceSnapshot {
	return &InstanceSnapshot{
		ClassName:     className,
		Name:          name,
		Properties:    make(map[string]rbxval.Value),
		Middleware:    tag,
		SourcePath:    path,
		RelevantPaths: []string{path},
	}
}

// FromVFS reads path (a file or directory) and produces the InstanceSnapshot
// it represents, or nil if path is an init file (whose content the parent
// directory's snapshot already absorbed) or otherwise not instance-shaped.
func FromVFS(path string) (*InstanceSnapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return decodeDir(path)
	}
	return decodeFile(path)
}

func decodeFile(path string) (*InstanceSnapshot, error) {
	base := filepath.Base(path)
	lower := strings.ToLower(base)

	if strings.HasSuffix(lower, ".meta.json5") {
		// Adjacent meta files are absorbed by the sibling they describe, and
		// init.meta.json5 is absorbed by the parent directory.
		return nil, nil
	}

	for _, candidate := range middleware.InitFilePriority() {
		if lower == candidate.File {
			// An init file is the parent directory's own content; the
			// directory snapshot absorbs it.
			return nil, nil
		}
	}

	if tag, ok := middleware.TagForScriptSuffix(base); ok {
		return decodeScriptFile(path, tag)
	}

	switch {
	case strings.HasSuffix(lower, ".model.json5"):
		return decodeModelFile(path)
	case strings.HasSuffix(lower, ".project.json5"):
		return decodeProjectFile(path)
	case strings.HasSuffix(lower, ".json5"):
		return decodeJsonFile(path)
	case strings.HasSuffix(lower, ".csv"):
		return decodeCsvFile(path)
	case strings.HasSuffix(lower, ".txt"):
		return decodeTextFile(path)
	case strings.HasSuffix(lower, ".toml"):
		return decodeTomlFile(path)
	case strings.HasSuffix(lower, ".yml"), strings.HasSuffix(lower, ".yaml"):
		return decodeYamlFile(path)
	case strings.HasSuffix(lower, ".rbxm"):
		return decodeModelContainer(path, middleware.Rbxm)
	case strings.HasSuffix(lower, ".rbxmx"):
		return decodeModelContainer(path, middleware.Rbxmx)
	default:
		return nil, fmt.Errorf("snapshot: %s has no recognized middleware extension", path)
	}
}

func stemOf(filename string) string {
	idx := strings.IndexByte(filename, '.')
	if idx < 0 {
		return filename
	}
	return filename[:idx]
}

// applyMeta overlays an adjacent (or init) meta file onto snap: the name
// override, extra properties, attributes, and ignoreUnknownInstances flag.
func applyMeta(snap *InstanceSnapshot, metaPath string) error {
	f, err := metafile.Read(metaPath)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	snap.RelevantPaths = append(snap.RelevantPaths, metaPath)

	if f.Name != nil {
		snap.Name = *f.Name
	}
	if f.ClassName != nil {
		snap.ClassName = *f.ClassName
	}
	if f.IgnoreUnknownInstances != nil {
		snap.IgnoreUnknownInstances = *f.IgnoreUnknownInstances
	}
	for name, raw := range f.Properties {
		v, err := rbxval.DecodeAutoJSON(raw)
		if err != nil {
			return fmt.Errorf("snapshot: meta property %s: %w", name, err)
		}
		snap.Properties[name] = v
	}
	if len(f.Attributes) > 0 {
		attrs := make(rbxval.AttributesValue, len(f.Attributes))
		for name, raw := range f.Attributes {
			v, err := rbxval.DecodeAutoJSON(raw)
			if err != nil {
				return fmt.Errorf("snapshot: meta attribute %s: %w", name, err)
			}
			attrs[name] = v
		}
		snap.Properties["Attributes"] = attrs
	}
	if f.ID != nil {
		attrs, _ := snap.Properties["Attributes"].(rbxval.AttributesValue)
		if attrs == nil {
			attrs = make(rbxval.AttributesValue)
		}
		attrs["Rojo_Id"] = rbxval.StringValue(*f.ID)
		snap.Properties["Attributes"] = attrs
	}
	return nil
}

// sortedEntries returns dir's entries sorted by name for deterministic
// dedup-key collection and child ordering.
func sortedEntries(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}
