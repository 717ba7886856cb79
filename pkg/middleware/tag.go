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

// Package middleware is the tag-dispatched registry of file-kind codecs: one
// concrete reader/writer per sync rule, selected by GetBestMiddleware
// rather than by open-ended interface registration, so the dispatch switch
// stays exhaustive at compile time.
package middleware

import "fmt"

// Tag identifies one of the fixed set of middleware kinds this module
// understands. New middleware kinds are added here, never discovered at
// runtime.
type Tag uint8

const (
	Ignore Tag = iota
	Dir
	CsvDir
	ServerScriptDir
	ClientScriptDir
	ModuleScriptDir
	PluginScriptDir
	LocalScriptDir
	LegacyScriptDir
	Csv
	JsonModel
	Json
	ServerScript
	ClientScript
	ModuleScript
	PluginScript
	LocalScript
	LegacyScript
	Project
	Rbxm
	Rbxmx
	Toml
	Text
	Yaml
)

// IsDirectory reports whether t represents a directory-shaped middleware,
// which has no filesystem extension of its own (the dedup key IS the
// directory name) and is handled specially throughout the Name Codec and
// Syncback Planner.
func (t Tag) IsDirectory() bool {
	switch t {
	case Dir, CsvDir, ServerScriptDir, ClientScriptDir, ModuleScriptDir,
		PluginScriptDir, LocalScriptDir, LegacyScriptDir:
		return true
	default:
		return false
	}
}

// Extension returns the filesystem extension (without the leading dot) this
// middleware is supposed to use. It panics for Ignore and for directory
// middleware, both of which callers must special-case first — hard-failing
// rather than silently falling back guards against a future Tag addition
// missing an entry here.
func (t Tag) Extension() string {
	switch t {
	case Csv:
		return "csv"
	case JsonModel:
		return "model.json5"
	case Json:
		return "json5"
	case ServerScript:
		return "server.luau"
	case ClientScript:
		return "client.luau"
	case ModuleScript:
		return "luau"
	case PluginScript:
		return "plugin.luau"
	case LocalScript:
		return "local.luau"
	case LegacyScript:
		return "legacy.luau"
	case Project:
		return "project.json5"
	case Rbxm:
		return "rbxm"
	case Rbxmx:
		return "rbxmx"
	case Toml:
		return "toml"
	case Text:
		return "txt"
	case Yaml:
		return "yml"
	case Ignore:
		panic("middleware: syncback does not operate on Ignore middleware")
	default:
		if t.IsDirectory() {
			panic(fmt.Sprintf("middleware: %s requires special directory handling, has no plain extension", t))
		}
		panic(fmt.Sprintf("middleware: Extension is missing a case for %s", t))
	}
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", t)
}

var tagNames = [...]string{
	"Ignore", "Dir", "CsvDir", "ServerScriptDir", "ClientScriptDir",
	"ModuleScriptDir", "PluginScriptDir", "LocalScriptDir", "LegacyScriptDir",
	"Csv", "JsonModel", "Json", "ServerScript", "ClientScript", "ModuleScript",
	"PluginScript", "LocalScript", "LegacyScript", "Project", "Rbxm", "Rbxmx",
	"Toml", "Text", "Yaml",
}
