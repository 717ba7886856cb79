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
	"bytes"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// LocalizationEntry is one row of a LocalizationTable: a key plus a
// translation per locale column, one header row plus one row per key.
type LocalizationEntry struct {
	Key          string
	Source       string
	Context      string
	Example      string
	Translations map[string]string
}

// decodeCsvFile reads a *.csv localization table. There is no dedicated
// compound rbxval.Value for a localization table (the real reflection
// database's LocalizationTable entries are an opaque blob from this
// module's point of view), so the parsed rows are re-encoded as canonical
// CSV text and stored in the instance's "Source" string property, giving
// round-trip fidelity without inventing a new Value variant
// for a single middleware (see DESIGN.md).
func decodeCsvFile(path string) (*InstanceSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("snapshot: parsing %s: %w", path, err)
	}

	name := stemOf(baseName(path))
	snap := newSnapshot("LocalizationTable", name, middleware.Csv, path)
	if len(records) == 0 {
		return snap, nil
	}

	header := records[0]
	localeCols := make(map[int]string)
	keyCol, sourceCol, contextCol, exampleCol := -1, -1, -1, -1
	for i, col := range header {
		switch col {
		case "Key":
			keyCol = i
		case "Source":
			sourceCol = i
		case "Context":
			contextCol = i
		case "Example":
			exampleCol = i
		default:
			localeCols[i] = col
		}
	}

	entries := make([]LocalizationEntry, 0, len(records)-1)
	for _, row := range records[1:] {
		var entry LocalizationEntry
		entry.Translations = make(map[string]string)
		get := func(col int) string {
			if col >= 0 && col < len(row) {
				return row[col]
			}
			return ""
		}
		entry.Key = get(keyCol)
		entry.Source = get(sourceCol)
		entry.Context = get(contextCol)
		entry.Example = get(exampleCol)
		for i, locale := range localeCols {
			entry.Translations[locale] = get(i)
		}
		entries = append(entries, entry)
	}

	snap.Properties["Source"] = rbxval.StringValue(encodeCsvEntries(header, entries))
	return snap, nil
}

func encodeCsvEntries(header []string, entries []LocalizationEntry) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(header)
	for _, e := range entries {
		row := make([]string, len(header))
		for i, col := range header {
			switch col {
			case "Key":
				row[i] = e.Key
			case "Source":
				row[i] = e.Source
			case "Context":
				row[i] = e.Context
			case "Example":
				row[i] = e.Example
			default:
				row[i] = e.Translations[col]
			}
		}
		w.Write(row)
	}
	w.Flush()
	return buf.String()
}
