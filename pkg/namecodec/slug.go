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

// Package namecodec turns unrestricted instance names into filesystem-safe
// names and back: slugifying forbidden characters, deduplicating collisions
// with a gap-tolerant `~N` suffix, and validating the result against
// Windows/macOS/Linux filename rules.
package namecodec

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rojo-rbx/rojo/pkg/middleware"
)

// invalidWindowsNames lists file stems that Windows reserves regardless of
// extension.
var invalidWindowsNames = [...]string{
	"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4", "COM5", "COM6",
	"COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6",
	"LPT7", "LPT8", "LPT9",
}

// forbiddenChars can never appear in a file name on any of the three
// supported platforms.
var forbiddenChars = []rune{'<', '>', ':', '"', '/', '|', '?', '*', '\\'}

// slugifyChars extends forbiddenChars with '~', which this module reserves
// as the dedup-suffix separator.
var slugifyChars = []rune{'<', '>', ':', '"', '/', '|', '?', '*', '\\', '~'}

// dangerousSuffixes are name endings that would, once the middleware
// extension is appended, form one of Rojo's compound extensions
// (".server.luau", ".meta.json5", ...) and so silently change which
// middleware a name resolves to.
var dangerousSuffixes = [...]string{
	".server", ".client", ".plugin", ".local", ".legacy", ".meta", ".model", ".project",
}

func containsRune(set []rune, r rune) bool {
	for _, c := range set {
		if c == r {
			return true
		}
	}
	return false
}

func hasDangerousSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range dangerousSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// NeedsSlugify reports whether name contains characters or patterns that
// require slugification before it can be used as a filesystem name.
func NeedsSlugify(name string) bool {
	if name == "" {
		return true
	}
	if strings.HasPrefix(name, " ") || strings.HasSuffix(name, " ") || strings.HasSuffix(name, ".") {
		return true
	}
	for _, r := range name {
		if containsRune(slugifyChars, r) || unicode.IsControl(r) {
			return true
		}
	}
	if hasDangerousSuffix(name) {
		return true
	}
	lower := strings.ToLower(name)
	for _, forbidden := range invalidWindowsNames {
		if lower == strings.ToLower(forbidden) {
			return true
		}
	}
	return false
}

// Slugify replaces forbidden filesystem characters with underscores and
// neutralizes dangerous compound-extension suffixes. It is pure and
// stateless; call Deduplicate afterward to resolve sibling collisions.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if containsRune(slugifyChars, r) || unicode.IsControl(r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	result := strings.TrimLeft(b.String(), " ")

	for hasDangerousSuffix(result) {
		pos := strings.LastIndexByte(result, '.')
		if pos < 0 {
			break
		}
		result = result[:pos] + "_" + result[pos+1:]
	}

	result = strings.TrimRight(result, " .")

	lower := strings.ToLower(result)
	for _, forbidden := range invalidWindowsNames {
		if lower == strings.ToLower(forbidden) {
			result += "_"
			break
		}
	}

	if result == "" || strings.Trim(result, "_") == "" {
		result = "instance"
	}
	return result
}

// Deduplicate appends a gap-tolerant ~N suffix to base until the result
// isn't present (case-insensitively) in taken, which must contain only
// lowercased entries. base is returned unchanged if it isn't already taken.
func Deduplicate(base string, taken map[string]struct{}) string {
	baseLower := strings.ToLower(base)
	if _, ok := taken[baseLower]; !ok {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s~%d", base, i)
		if _, ok := taken[strings.ToLower(candidate)]; !ok {
			return candidate
		}
	}
}

// ValidateFileName returns an error describing why name cannot be used as a
// file name on Windows, macOS, or Linux, or nil if it's valid.
func ValidateFileName(name string) error {
	if strings.HasSuffix(name, " ") {
		return fmt.Errorf("file names cannot end with a space")
	}
	if strings.HasSuffix(name, ".") {
		return fmt.Errorf("file names cannot end with '.'")
	}
	for _, r := range name {
		if containsRune(forbiddenChars, r) {
			return fmt.Errorf(`file names cannot contain <, >, :, ", /, |, ?, *, or \`)
		}
		if unicode.IsControl(r) {
			return fmt.Errorf("file names cannot contain control characters")
		}
	}
	for _, forbidden := range invalidWindowsNames {
		if name == forbidden {
			return fmt.Errorf("files cannot be named %s", name)
		}
	}
	return nil
}

// knownScriptSuffixes appear between a script's base name and its
// extension, e.g. the ".server" in "MyScript.server.luau".
var knownScriptSuffixes = [...]string{".server", ".client", ".plugin", ".local", ".legacy"}

// StripScriptSuffix removes a known script suffix from a file stem, if
// present.
func StripScriptSuffix(stem string) string {
	for _, suffix := range knownScriptSuffixes {
		if base, ok := strings.CutSuffix(stem, suffix); ok {
			return base
		}
	}
	return stem
}

// AdjacentMetaPath returns the .meta.json5 path that sits beside a script
// file, e.g. "parent/Foo.server.luau" -> "parent/Foo.meta.json5".
func AdjacentMetaPath(scriptPath string) string {
	dir, file := splitPath(scriptPath)
	stem := stripAnyExtension(file)
	base := StripScriptSuffix(stem)
	return joinPath(dir, base+".meta.json5")
}

func splitPath(path string) (dir, file string) {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

func joinPath(dir, file string) string {
	if dir == "" {
		return file
	}
	return dir + "/" + file
}

func stripAnyExtension(file string) string {
	idx := strings.IndexByte(file, '.')
	if idx < 0 {
		return file
	}
	return file[:idx]
}

// StripMiddlewareExtension recovers the bare slug from filename by removing
// the extension tag implies. Directory middleware has no extension, so
// filename is returned unchanged.
func StripMiddlewareExtension(filename string, tag middleware.Tag) string {
	if tag.IsDirectory() {
		return filename
	}
	suffix := "." + tag.Extension()
	if base, ok := strings.CutSuffix(filename, suffix); ok {
		return base
	}
	return filename
}

// NameForInst computes the filesystem name for newName under tag, given the
// set of stems already claimed by siblings (see Deduplicate). It returns the
// full filename (including extension for file middleware), whether a
// .meta.json5 name override is now required because the filesystem name
// diverges from the instance name, and the dedup key callers must add to
// taken.
func NameForInst(tag middleware.Tag, newName string, taken map[string]struct{}) (filename string, needsMeta bool, dedupKey string) {
	needsSlugify := NeedsSlugify(newName)
	base := newName
	if needsSlugify {
		base = Slugify(newName)
	}

	deduped := Deduplicate(base, taken)
	needsMeta = needsSlugify || deduped != base

	if tag.IsDirectory() {
		return deduped, needsMeta, deduped
	}
	return deduped + "." + tag.Extension(), needsMeta, deduped
}
