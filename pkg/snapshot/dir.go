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
	"path/filepath"

	"github.com/rojo-rbx/rojo/pkg/middleware"
)

// decodeDir reads a directory-form instance: its own content comes from the
// highest-priority init file present; every other
// entry becomes a child snapshot.
func decodeDir(dir string) (*InstanceSnapshot, error) {
	entries, err := sortedEntries(dir)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		byName[e.Name()] = e
	}

	name := filepath.Base(dir)
	snap := newSnapshot("Folder", name, middleware.Dir, dir)

	var initFile string
	var initTag middleware.Tag
	for _, candidate := range middleware.InitFilePriority() {
		if _, ok := byName[candidate.File]; ok {
			initFile = candidate.File
			initTag = candidate.Tag
			break
		}
	}

	if initFile != "" {
		initPath := filepath.Join(dir, initFile)
		switch initTag {
		case middleware.Csv:
			inner, err := decodeCsvFile(initPath)
			if err != nil {
				return nil, err
			}
			snap.ClassName = inner.ClassName
			snap.Properties = inner.Properties
			snap.Middleware = middleware.CsvDir
		case middleware.JsonModel:
			// init.meta.json5: the directory stays a Folder unless the meta
			// file's className says otherwise.
			if err := applyMeta(snap, initPath); err != nil {
				return nil, err
			}
		default:
			inner, err := decodeScriptFile(initPath, initTag)
			if err != nil {
				return nil, err
			}
			snap.ClassName = inner.ClassName
			snap.Properties = inner.Properties
			snap.RelevantPaths = append(snap.RelevantPaths, inner.RelevantPaths...)
			snap.Middleware = dirVariantFor(initTag)
		}
		snap.RelevantPaths = append(snap.RelevantPaths, initPath)
	}

	for _, e := range entries {
		n := e.Name()
		if n == initFile {
			continue
		}
		if n == "init.meta.json5" {
			continue
		}
		if isMetaCompanion(n, byName) {
			continue
		}
		child, err := FromVFS(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		if child != nil {
			snap.Children = append(snap.Children, child)
		}
	}

	return snap, nil
}

func dirVariantFor(tag middleware.Tag) middleware.Tag {
	switch tag {
	case middleware.ModuleScript:
		return middleware.ModuleScriptDir
	case middleware.ServerScript:
		return middleware.ServerScriptDir
	case middleware.ClientScript:
		return middleware.ClientScriptDir
	case middleware.LocalScript:
		return middleware.LocalScriptDir
	case middleware.PluginScript:
		return middleware.PluginScriptDir
	case middleware.LegacyScript:
		return middleware.LegacyScriptDir
	default:
		return middleware.Dir
	}
}

// isMetaCompanion reports whether n is a "<stem>.meta.json5" file whose
// stem names another entry also present in byName — i.e. it's an adjacent
// meta file that decodeFile's caller (FromVFS on that sibling) will absorb,
// not a standalone instance of its own.
func isMetaCompanion(n string, byName map[string]os.DirEntry) bool {
	const suffix = ".meta.json5"
	if len(n) <= len(suffix) || n[len(n)-len(suffix):] != suffix {
		return false
	}
	stem := n[:len(n)-len(suffix)]
	for sibling := range byName {
		if sibling == n {
			continue
		}
		if stemOf(sibling) == stem {
			return true
		}
	}
	return false
}
