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

package middleware

import "strings"

// RunContext mirrors the Script.RunContext enum this module needs to pick
// a middleware for a bare "Script" instance.
type RunContext uint8

const (
	RunContextLegacy RunContext = iota
	RunContextServer
	RunContextClient
	RunContextPlugin
)

// dirUpgrade maps a non-directory middleware to its directory-form variant,
// used by resolution step 2's "upgrade to directory variant if the
// instance has children."
var dirUpgrade = map[Tag]Tag{
	ModuleScript: ModuleScriptDir,
	Csv:          CsvDir,
	JsonModel:    Dir,
	Text:         Dir,
	ServerScript: ServerScriptDir,
	ClientScript: ClientScriptDir,
	PluginScript: PluginScriptDir,
	LocalScript:  LocalScriptDir,
	LegacyScript: LegacyScriptDir,
}

// UpgradeForChildren returns t's directory-form variant if hasChildren is
// true and t has one, else t unchanged.
func UpgradeForChildren(t Tag, hasChildren bool) Tag {
	if !hasChildren {
		return t
	}
	if up, ok := dirUpgrade[t]; ok {
		return up
	}
	return t
}

// directoryClassNames are the classes that infer straight to Dir in
// resolution step 3.
var directoryClassNames = map[string]struct{}{
	"Folder":        {},
	"Configuration": {},
	"Tool":          {},
	"ScreenGui":     {},
	"SurfaceGui":    {},
	"BillboardGui":  {},
	"AdGui":         {},
}

// InferFromClass implements resolution step 3: given a class name (and, for
// the Script class, its RunContext), infer a middleware with no help from
// existing metadata or an override. hasChildren is applied afterward via
// UpgradeForChildren by the caller (GetBestMiddleware already does this).
func InferFromClass(className string, runContext RunContext) Tag {
	if _, ok := directoryClassNames[className]; ok {
		return Dir
	}
	switch className {
	case "StringValue":
		return Text
	case "Script":
		switch runContext {
		case RunContextServer:
			return ServerScript
		case RunContextClient:
			return ClientScript
		case RunContextPlugin:
			return PluginScript
		default:
			return LegacyScript
		}
	case "LocalScript":
		return LocalScript
	case "ModuleScript":
		return ModuleScript
	case "LocalizationTable":
		return Csv
	default:
		return JsonModel
	}
}

// GetBestMiddleware implements the full resolution order:
// an explicit override wins, then the instance's recorded middleware
// (upgraded to its directory form if it now has children), then inference
// from class name (also upgraded).
func GetBestMiddleware(override *Tag, existing *Tag, className string, runContext RunContext, hasChildren bool) Tag {
	if override != nil {
		return *override
	}
	if existing != nil {
		return UpgradeForChildren(*existing, hasChildren)
	}
	return UpgradeForChildren(InferFromClass(className, runContext), hasChildren)
}

// initFilePriority is the lookup order for a directory's own content file
// when the class is ambiguous.
var initFilePriority = []struct {
	File string
	Tag  Tag
}{
	{"init.luau", ModuleScript},
	{"init.server.luau", ServerScript},
	{"init.client.luau", ClientScript},
	{"init.local.luau", LocalScript},
	{"init.plugin.luau", PluginScript},
	{"init.legacy.luau", LegacyScript},
	{"init.lua", ModuleScript},
	{"init.server.lua", LegacyScript},
	{"init.client.lua", LocalScript},
	{"init.csv", Csv},
	{"init.meta.json5", JsonModel},
}

// InitFilePriority returns the ordered (filename, tag) candidates to probe
// for a directory's init file.
func InitFilePriority() []struct {
	File string
	Tag  Tag
} {
	return initFilePriority
}

// TagForScriptSuffix resolves a (possibly legacy) script file name's suffix
// to a middleware tag, implementing the backward-compatible reading rules
// *.server.lua -> legacy Script; *.client.lua -> LocalScript; modern
// .luau files map by suffix. Writes always use .luau (handled by
// Tag.Extension, never this function).
func TagForScriptSuffix(filename string) (Tag, bool) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".server.luau"):
		return ServerScript, true
	case strings.HasSuffix(lower, ".client.luau"):
		return ClientScript, true
	case strings.HasSuffix(lower, ".local.luau"):
		return LocalScript, true
	case strings.HasSuffix(lower, ".plugin.luau"):
		return PluginScript, true
	case strings.HasSuffix(lower, ".legacy.luau"):
		return LegacyScript, true
	case strings.HasSuffix(lower, ".luau"):
		return ModuleScript, true
	case strings.HasSuffix(lower, ".server.lua"):
		return LegacyScript, true
	case strings.HasSuffix(lower, ".client.lua"):
		return LocalScript, true
	case strings.HasSuffix(lower, ".lua"):
		return ModuleScript, true
	default:
		return Ignore, false
	}
}
