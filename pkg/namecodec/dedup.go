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

package namecodec

import (
	"path"
	"sort"
	"strconv"
	"strings"
)

// CleanupKind distinguishes the three outcomes of CleanupAction.
type CleanupKind uint8

const (
	// CleanupNone means no rename is required.
	CleanupNone CleanupKind = iota
	// CleanupRemoveSuffix means the dedup group shrank to exactly one
	// survivor, whose suffix must now be dropped.
	CleanupRemoveSuffix
	// CleanupPromoteLowest means the base-name holder was deleted and the
	// lowest-numbered remaining sibling must be promoted to the base name.
	CleanupPromoteLowest
)

// CleanupAction describes the rename (if any) required on the filesystem
// after an instance is removed from a dedup group, mirroring the gap-
// tolerant, base-name-promoting lifecycle rules: deleting a suffixed sibling
// never renumbers the rest, and a group never carries a suffix once it's
// down to one member.
type CleanupAction struct {
	Kind CleanupKind
	From string
	To   string
}

// ParseDedupSuffix splits a "Foo~3" stem into ("Foo", 3). It returns
// ok=false for stems with no suffix, a non-numeric suffix, or a suffix of 0
// (0 is never a valid dedup number).
func ParseDedupSuffix(stem string) (base string, n uint32, ok bool) {
	tilde := strings.LastIndexByte(stem, '~')
	if tilde < 0 {
		return "", 0, false
	}
	suffixStr := stem[tilde+1:]
	parsed, err := strconv.ParseUint(suffixStr, 10, 32)
	if err != nil || parsed == 0 {
		return "", 0, false
	}
	return stem[:tilde], uint32(parsed), true
}

// StripDedupSuffix removes a "~N" dedup suffix from name, or returns name
// unchanged if it carries none.
func StripDedupSuffix(name string) string {
	if base, _, ok := ParseDedupSuffix(name); ok {
		return base
	}
	return name
}

// BuildDedupName assembles a filename from a base stem, an optional suffix
// number, and an optional extension (without the leading dot; empty means
// directory middleware).
func BuildDedupName(baseStem string, suffix *uint32, extension string) string {
	stem := baseStem
	if suffix != nil {
		stem = baseStem + "~" + strconv.FormatUint(uint64(*suffix), 10)
	}
	if extension == "" {
		return stem
	}
	return stem + "." + extension
}

// ComputeCleanupAction determines what rename, if any, is required after an
// instance has been removed from a dedup group. remainingStems lists the
// filesystem stems of siblings that still exist (not including the deleted
// one); deletedWasBase reports whether the deleted instance held the bare
// (unsuffixed) name.
func ComputeCleanupAction(baseStem, extension string, remainingStems []string, deletedWasBase bool, parentDir string) CleanupAction {
	switch len(remainingStems) {
	case 0:
		return CleanupAction{Kind: CleanupNone}

	case 1:
		survivor := remainingStems[0]
		var survivorSuffix *uint32
		if _, n, ok := ParseDedupSuffix(survivor); ok {
			survivorSuffix = &n
		}
		fromName := BuildDedupName(baseStem, survivorSuffix, extension)
		toName := BuildDedupName(baseStem, nil, extension)
		if fromName == toName {
			return CleanupAction{Kind: CleanupNone}
		}
		return CleanupAction{
			Kind: CleanupRemoveSuffix,
			From: path.Join(parentDir, fromName),
			To:   path.Join(parentDir, toName),
		}

	default:
		if !deletedWasBase {
			// A suffixed sibling was deleted; gaps are harmless.
			return CleanupAction{Kind: CleanupNone}
		}
		var suffixNumbers []uint32
		for _, s := range remainingStems {
			if _, n, ok := ParseDedupSuffix(s); ok {
				suffixNumbers = append(suffixNumbers, n)
			}
		}
		if len(suffixNumbers) == 0 {
			return CleanupAction{Kind: CleanupNone}
		}
		sort.Slice(suffixNumbers, func(i, j int) bool { return suffixNumbers[i] < suffixNumbers[j] })
		lowest := suffixNumbers[0]
		fromName := BuildDedupName(baseStem, &lowest, extension)
		toName := BuildDedupName(baseStem, nil, extension)
		return CleanupAction{
			Kind: CleanupPromoteLowest,
			From: path.Join(parentDir, fromName),
			To:   path.Join(parentDir, toName),
		}
	}
}
