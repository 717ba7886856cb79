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

package syncback

import (
	"os"
	"path"
)

// ExistingEntry is one pre-existing filesystem entry a Planner pass found
// on disk before it ran, as reported by ScanExistingEntries.
type ExistingEntry struct {
	Name  string
	IsDir bool
}

// ScanExistingEntries walks rootDir and lists every directory's entries,
// keyed by that directory's full path exactly as Plan's rootDir/entryPath
// values are shaped. The result drives clean-mode orphan removal against
// the real filesystem rather than against whatever a caller happens to
// remember; it does not seed Plan's dedup-key taken maps.
func ScanExistingEntries(rootDir string) (map[string][]ExistingEntry, error) {
	out := make(map[string][]ExistingEntry)
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		list := make([]ExistingEntry, 0, len(entries))
		for _, e := range entries {
			list = append(list, ExistingEntry{Name: e.Name(), IsDir: e.IsDir()})
		}
		out[dir] = list
		for _, e := range entries {
			if e.IsDir() {
				if err := walk(path.Join(dir, e.Name())); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(rootDir); err != nil {
		return nil, err
	}
	return out, nil
}

