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

// Package metafile reads and writes the *.meta.json5 and *.model.json5
// sidecar documents, using tailscale/hujson so comments and
// trailing commas in hand-edited files survive a read. Writes always
// re-emit plain JSON, which is valid JSON5/HuJSON but loses any comments a
// user had added — the same tradeoff the rest of the pack's config writers
// make (none of them round-trip comments either).
package metafile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// File is the shared shape of a *.meta.json5 document. When
// adjacent to a script file, ClassName is omitted — it's derived from the
// extension instead.
type File struct {
	Name                   *string                    `json:"name,omitempty"`
	ClassName              *string                    `json:"className,omitempty"`
	Properties             map[string]json.RawMessage `json:"properties,omitempty"`
	Attributes             map[string]json.RawMessage `json:"attributes,omitempty"`
	IgnoreUnknownInstances *bool                      `json:"ignoreUnknownInstances,omitempty"`
	ID                     *string                    `json:"id,omitempty"`
}

// ModelFile is a *.model.json5 document: a File plus a mandatory ClassName
// and a nested list of children.
type ModelFile struct {
	File
	Children []ModelFile `json:"children,omitempty"`
}

// IsEmpty reports whether f carries no fields at all, meaning the meta
// file it backs should be deleted rather than written.
func (f File) IsEmpty() bool {
	return f.Name == nil && f.ClassName == nil && len(f.Properties) == 0 &&
		len(f.Attributes) == 0 && f.IgnoreUnknownInstances == nil && f.ID == nil
}

// Read parses path as HuJSON into a File. A missing file is reported as a
// nil, nil result, not an error — callers treat "no meta file" as the
// empty File.
func Read(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("metafile: parsing %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(standardized, &f); err != nil {
		return nil, fmt.Errorf("metafile: decoding %s: %w", path, err)
	}
	return &f, nil
}

// ReadModel parses path as a *.model.json5 document.
func ReadModel(path string) (*ModelFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("metafile: parsing %s: %w", path, err)
	}
	var m ModelFile
	if err := json.Unmarshal(standardized, &m); err != nil {
		return nil, fmt.Errorf("metafile: decoding %s: %w", path, err)
	}
	return &m, nil
}

// Write serializes f as indented JSON (a valid HuJSON subset) to path. If
// f is empty, Write instead removes path, tolerating its absence.
func Write(path string, f File) error {
	if f.IsEmpty() {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	out, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("metafile: encoding %s: %w", path, err)
	}
	return os.WriteFile(path, out, 0o644)
}

// WriteModel serializes m as indented JSON to path.
func WriteModel(path string, m ModelFile) error {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("metafile: encoding %s: %w", path, err)
	}
	return os.WriteFile(path, out, 0o644)
}

// UpsertName sets or clears the Name field on the meta file at path,
// creating or deleting the file as needed.
// name is nil when the filesystem stem now matches the display name and
// the override should be removed.
func UpsertName(path string, name *string) error {
	existing, err := Read(path)
	if err != nil {
		return err
	}
	var f File
	if existing != nil {
		f = *existing
	}
	f.Name = name
	return Write(path, f)
}
