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

package patch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/metafile"
	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/namecodec"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
	"github.com/rojo-rbx/rojo/pkg/suppression"
	"github.com/rojo-rbx/rojo/pkg/vfs"
)

// Engine applies PatchSets to a dom.Store, performing the filesystem-side
// work the Patch Engine itself is responsible for: renames, in-family
// class-name migrations, and Source property writes. Additions and
// removals are DOM-only here; their paired filesystem mutation is the API
// handler's job, done before the PatchSet reaches this Engine.
type Engine struct {
	Store   *dom.Store
	Suppress *suppression.Map
}

// New creates an Engine over store.
func New(store *dom.Store, suppress *suppression.Map) *Engine {
	return &Engine{Store: store, Suppress: suppress}
}

// suppressRename registers the credits a rename will generate before it
// runs: the old path gets a credit for every event kind (macOS may deliver
// a stale Create for the source side of a rename, not only the Remove),
// the new path for Create/Write. Failure paths must Unsuppress both.
func (e *Engine) suppressRename(oldPath, newPath string) {
	e.Suppress.Suppress(oldPath, vfs.Remove, 1)
	e.Suppress.Suppress(oldPath, vfs.Create, 1)
	e.Suppress.Suppress(newPath, vfs.Create, 1)
	e.Suppress.Suppress(newPath, vfs.Write, 1)
}

// scriptFamily groups the middleware tags that class-name changes are
// permitted to migrate between: ModuleScript, Script, and LocalScript
// only, never across to a non-script class. A bare "Script" with no run
// context to carry over migrates to its Legacy form, the same default the
// class-inference table uses.
var scriptFamilyTags = map[string]middleware.Tag{
	"ModuleScript": middleware.ModuleScript,
	"Script":       middleware.LegacyScript,
	"LocalScript":  middleware.LocalScript,
}

func inScriptFamily(className string) bool {
	_, ok := scriptFamilyTags[className]
	return ok
}

// Apply executes ps against e.Store, returning the subset that actually
// took effect.
func (e *Engine) Apply(ps PatchSet) AppliedPatchSet {
	var applied AppliedPatchSet

	for _, ref := range ps.Removals {
		if e.applyRemoval(ref) {
			applied.Removals = append(applied.Removals, ref)
		}
	}

	for _, upd := range ps.Updates {
		if au, ok := e.applyUpdate(upd); ok {
			applied.Updates = append(applied.Updates, au)
		}
	}

	for _, add := range ps.Additions {
		e.applyAdditionRecursive(add, &applied)
	}

	return applied
}

func (e *Engine) applyRemoval(ref dom.Ref) bool {
	meta, ok := e.Store.GetMetadata(ref)
	if !ok {
		return false
	}
	if meta.Source.Kind == dom.SourceProjectNode {
		log.Printf("[patch] refusing to remove %s: instigating source is a project node", ref)
		return false
	}
	inst, _ := e.Store.Get(ref)
	parent := inst.Parent

	if err := e.Store.Destroy(ref); err != nil {
		log.Printf("[patch] removing %s: %v", ref, err)
		return false
	}

	if meta.Source.Kind == dom.SourcePath && !parent.IsNone() {
		e.cleanupDedupGroup(parent, meta)
	}
	return true
}

// cleanupDedupGroup implements the dedup cleanup lifecycle of §4.1: after an
// instance backed by a filesystem path is removed, its surviving same-
// middleware siblings in the same parent directory may need a rename so the
// group never carries a stray "~n" suffix once it no longer disambiguates
// anything. See namecodec.ComputeCleanupAction for the pure decision;
// this only gathers the sibling stems and performs the resulting rename.
func (e *Engine) cleanupDedupGroup(parent dom.Ref, removedMeta dom.Metadata) {
	if removedMeta.Middleware == middleware.Ignore {
		// No middleware recorded: there is no extension to strip or re-add.
		return
	}
	isDir := removedMeta.Middleware.IsDirectory()
	parentDir := filepath.Dir(removedMeta.Source.Path)

	removedStem := filepath.Base(removedMeta.Source.Path)
	if !isDir {
		removedStem = namecodec.StripMiddlewareExtension(removedStem, removedMeta.Middleware)
	}
	baseStem, _, deletedWasSuffixed := namecodec.ParseDedupSuffix(removedStem)
	if !deletedWasSuffixed {
		baseStem = removedStem
	}
	deletedWasBase := !deletedWasSuffixed

	parentInst, ok := e.Store.Get(parent)
	if !ok {
		return
	}

	var remainingStems []string
	siblingByStem := make(map[string]dom.Ref)
	for _, child := range parentInst.Children {
		cm, ok := e.Store.GetMetadata(child)
		if !ok || cm.Source.Kind != dom.SourcePath || cm.Middleware != removedMeta.Middleware {
			continue
		}
		if filepath.Dir(cm.Source.Path) != parentDir {
			continue
		}
		stem := filepath.Base(cm.Source.Path)
		if !isDir {
			stem = namecodec.StripMiddlewareExtension(stem, cm.Middleware)
		}
		base, _, ok2 := namecodec.ParseDedupSuffix(stem)
		if !ok2 {
			base = stem
		}
		if base != baseStem {
			continue
		}
		remainingStems = append(remainingStems, stem)
		siblingByStem[stem] = child
	}

	extension := ""
	if !isDir {
		extension = removedMeta.Middleware.Extension()
	}
	action := namecodec.ComputeCleanupAction(baseStem, extension, remainingStems, deletedWasBase, parentDir)
	if action.Kind == namecodec.CleanupNone {
		return
	}

	fromStem := filepath.Base(action.From)
	if !isDir {
		fromStem = namecodec.StripMiddlewareExtension(fromStem, removedMeta.Middleware)
	}
	survivorRef, ok := siblingByStem[fromStem]
	if !ok {
		return
	}
	survivorMeta, ok := e.Store.GetMetadata(survivorRef)
	if !ok {
		return
	}
	survivor, ok := e.Store.Get(survivorRef)
	if !ok {
		return
	}

	e.suppressRename(action.From, action.To)
	if err := os.Rename(action.From, action.To); err != nil {
		e.Suppress.Unsuppress(action.From)
		e.Suppress.Unsuppress(action.To)
		log.Printf("[patch] dedup cleanup rename %s -> %s: %v", action.From, action.To, err)
		return
	}

	survivorMeta.Source.Path = action.To
	survivorMeta.RelevantPaths = replacePathPrefix(survivorMeta.RelevantPaths, action.From, action.To)
	if err := e.Store.UpdateMetadata(survivorRef, survivorMeta); err != nil {
		log.Printf("[patch] dedup cleanup metadata for %s: %v", survivorRef, err)
	}

	needsMeta := survivor.Name != baseStem
	if err := e.fixupMetaName(&survivorMeta, needsMeta, survivor.Name, baseStem, isDir); err != nil {
		log.Printf("[patch] dedup cleanup meta name for %s: %v", survivorRef, err)
	}
}

func (e *Engine) applyUpdate(upd Update) (AppliedUpdate, bool) {
	meta, ok := e.Store.GetMetadata(upd.ID)
	if !ok {
		return AppliedUpdate{}, false
	}
	if meta.Source.Kind == dom.SourceProjectNode && (upd.ChangedName != nil || upd.ChangedClassName != nil) {
		log.Printf("[patch] refusing to rename/reclass %s: instigating source is a project node", upd.ID)
		upd.ChangedName = nil
		upd.ChangedClassName = nil
	}

	out := AppliedUpdate{ID: upd.ID}
	any := false

	if upd.ChangedName != nil {
		if err := e.rename(upd.ID, &meta, *upd.ChangedName); err != nil {
			log.Printf("[patch] renaming %s: %v", upd.ID, err)
		} else {
			out.ChangedName = upd.ChangedName
			any = true
		}
	}

	if upd.ChangedClassName != nil {
		if err := e.reclass(upd.ID, &meta, *upd.ChangedClassName); err != nil {
			log.Printf("[patch] reclassing %s: %v", upd.ID, err)
		} else {
			out.ChangedClassName = upd.ChangedClassName
			any = true
		}
	}

	if len(upd.ChangedProperties) > 0 {
		applied := e.applyProperties(upd.ID, &meta, upd.ChangedProperties)
		if len(applied) > 0 {
			out.ChangedProperties = applied
			any = true
		}
	}

	if any {
		if err := e.Store.UpdateMetadata(upd.ID, meta); err != nil {
			log.Printf("[patch] persisting metadata for %s: %v", upd.ID, err)
		}
	}

	return out, any
}

// rename renames the file or directory backing ref to match newName,
// following the two-way-sync rename protocol: slugify, dedupe, suppress
// both paths, rename, update instigating source and relevant paths, then
// fix up the adjacent meta file's name override.
func (e *Engine) rename(ref dom.Ref, meta *dom.Metadata, newName string) error {
	if meta.Source.Kind != dom.SourcePath {
		return fmt.Errorf("no filesystem path backs this instance")
	}
	oldPath := meta.Source.Path
	parent := filepath.Dir(oldPath)
	base := filepath.Base(oldPath)

	isDir := meta.Middleware.IsDirectory()
	var oldStem string
	if isDir {
		oldStem = base
	} else {
		oldStem = namecodec.StripMiddlewareExtension(base, meta.Middleware)
	}

	taken := siblingStems(parent, base)
	filename, needsMeta, _ := namecodec.NameForInst(meta.Middleware, newName, taken)
	newPath := filepath.Join(parent, filename)

	if newPath == oldPath {
		// The new display name slugifies to the stem already on disk; only
		// the DOM name and the meta override change.
		if err := e.Store.SetName(ref, newName); err != nil {
			return err
		}
		return e.fixupMetaName(meta, needsMeta, newName, oldStem, isDir)
	}

	e.suppressRename(oldPath, newPath)

	if err := os.Rename(oldPath, newPath); err != nil {
		e.Suppress.Unsuppress(oldPath)
		e.Suppress.Unsuppress(newPath)
		return err
	}

	meta.Source.Path = newPath
	meta.RelevantPaths = replacePathPrefix(meta.RelevantPaths, oldPath, newPath)
	if err := e.Store.SetName(ref, newName); err != nil {
		return err
	}

	newStem := filename
	if !isDir {
		newStem = namecodec.StripMiddlewareExtension(filename, meta.Middleware)
	}
	return e.fixupMetaName(meta, needsMeta, newName, newStem, isDir)
}

func (e *Engine) fixupMetaName(meta *dom.Metadata, needsMeta bool, displayName, stem string, isDir bool) error {
	metaPath := metaPathFor(meta.Source.Path, isDir, meta.Middleware)
	e.Suppress.Suppress(metaPath, vfs.Create, 1)
	e.Suppress.Suppress(metaPath, vfs.Write, 1)
	if needsMeta {
		name := displayName
		return metafile.UpsertName(metaPath, &name)
	}
	return metafile.UpsertName(metaPath, nil)
}

func metaPathFor(path string, isDir bool, tag middleware.Tag) string {
	if isDir {
		return filepath.Join(path, "init.meta.json5")
	}
	return namecodec.AdjacentMetaPath(path)
}

// reclass migrates ref between ModuleScript, Script, and LocalScript by
// renaming the backing file/init file's suffix. Cross-family changes are
// rejected.
func (e *Engine) reclass(ref dom.Ref, meta *dom.Metadata, newClassName string) error {
	inst, ok := e.Store.Get(ref)
	if !ok {
		return fmt.Errorf("instance not found")
	}
	if !inScriptFamily(inst.ClassName) || !inScriptFamily(newClassName) {
		log.Printf("[patch] cross-family class change %s -> %s is not permitted; skipping", inst.ClassName, newClassName)
		return fmt.Errorf("cross-family class change not permitted")
	}
	if meta.Source.Kind != dom.SourcePath {
		return fmt.Errorf("no filesystem path backs this instance")
	}

	newTag := scriptFamilyTags[newClassName]

	if meta.Middleware.IsDirectory() {
		// Directory-form: the class lives in the init file's suffix, not
		// in the directory name. Rename whichever init variant is present.
		dir := meta.Source.Path
		var oldInit string
		for _, candidate := range middleware.InitFilePriority() {
			p := filepath.Join(dir, candidate.File)
			if _, err := os.Stat(p); err == nil {
				oldInit = p
				break
			}
		}
		if oldInit == "" {
			return fmt.Errorf("no init file found in %s", dir)
		}
		newInit := filepath.Join(dir, "init."+newTag.Extension())
		if newInit == oldInit {
			return e.Store.SetClassName(ref, newClassName)
		}

		e.suppressRename(oldInit, newInit)
		if err := os.Rename(oldInit, newInit); err != nil {
			e.Suppress.Unsuppress(oldInit)
			e.Suppress.Unsuppress(newInit)
			return err
		}

		meta.Middleware = middleware.UpgradeForChildren(newTag, true)
		meta.RelevantPaths = replacePathPrefix(meta.RelevantPaths, oldInit, newInit)
		return e.Store.SetClassName(ref, newClassName)
	}

	oldPath := meta.Source.Path
	dir := filepath.Dir(oldPath)
	base := filepath.Base(oldPath)
	stem := namecodec.StripMiddlewareExtension(base, meta.Middleware)
	newPath := filepath.Join(dir, stem+"."+newTag.Extension())

	e.suppressRename(oldPath, newPath)
	if err := os.Rename(oldPath, newPath); err != nil {
		e.Suppress.Unsuppress(oldPath)
		e.Suppress.Unsuppress(newPath)
		return err
	}

	meta.Source.Path = newPath
	meta.Middleware = newTag
	meta.RelevantPaths = replacePathPrefix(meta.RelevantPaths, oldPath, newPath)
	return e.Store.SetClassName(ref, newClassName)
}

// applyProperties writes the Source property through to disk (the only
// property the Patch Engine itself projects; all others are the Syncback
// Planner's job) and records every changed property that carries a value
// onto the DOM. Removals (nil value pointers) are skipped: they are neither
// cleared from the DOM nor included in the returned map.
func (e *Engine) applyProperties(ref dom.Ref, meta *dom.Metadata, changed map[string]*rbxval.Value) map[string]*rbxval.Value {
	applied := make(map[string]*rbxval.Value, len(changed))
	toSet := make(map[string]rbxval.Value)

	for name, v := range changed {
		if v == nil {
			continue // property removal: nothing to clear from a fixed-field map today.
		}
		toSet[name] = *v
		applied[name] = v

		if name == "Source" && meta.Source.Kind == dom.SourcePath {
			if s, ok := (*v).(rbxval.StringValue); ok {
				e.Suppress.Suppress(meta.Source.Path, vfs.Write, 1)
				if err := os.WriteFile(meta.Source.Path, []byte(s), 0o644); err != nil {
					log.Printf("[patch] writing Source for %s: %v", ref, err)
					e.Suppress.Unsuppress(meta.Source.Path)
				}
			}
		}
	}

	if len(toSet) > 0 {
		if err := e.Store.SetProperties(ref, toSet); err != nil {
			log.Printf("[patch] setting properties on %s: %v", ref, err)
		}
	}
	return applied
}

func (e *Engine) applyAdditionRecursive(add Addition, applied *AppliedPatchSet) {
	ref, err := e.Store.Insert(add.Parent, add.ClassName, add.Name)
	if err != nil {
		log.Printf("[patch] inserting %s: %v", add.Name, err)
		return
	}
	if len(add.Properties) > 0 {
		if err := e.Store.SetProperties(ref, add.Properties); err != nil {
			log.Printf("[patch] setting properties on new instance %s: %v", ref, err)
		}
	}
	if add.SourcePath != "" {
		meta := dom.Metadata{
			Source:        dom.InstigatingSource{Kind: dom.SourcePath, Path: add.SourcePath},
			Middleware:    add.Middleware,
			RelevantPaths: add.RelevantPaths,
		}
		if err := e.Store.UpdateMetadata(ref, meta); err != nil {
			log.Printf("[patch] stamping metadata on new instance %s: %v", ref, err)
		}
	}
	applied.Additions = append(applied.Additions, AppliedAddition{Ref: ref, Parent: add.Parent, Addition: add})

	for _, child := range add.Children {
		child.Parent = ref
		e.applyAdditionRecursive(child, applied)
	}
}

func replacePathPrefix(paths []string, oldPrefix, newPrefix string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if p == oldPrefix || strings.HasPrefix(p, oldPrefix+"/") {
			out[i] = newPrefix + strings.TrimPrefix(p, oldPrefix)
		} else {
			out[i] = p
		}
	}
	return out
}

// siblingStems lists the dedup-key stems of every directory entry other
// than exclude, stripping at most one extension the way namecodec's
// dedup key does, so cross-extension collisions land in the same
// namespace (an intentional generalization beyond a single-extension
// dedup key — see DESIGN.md).
func siblingStems(dir, exclude string) map[string]struct{} {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	taken := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if name == exclude {
			continue
		}
		stem := name
		if !entry.IsDir() {
			if idx := strings.IndexByte(name, '.'); idx >= 0 {
				stem = name[:idx]
			}
		}
		taken[strings.ToLower(stem)] = struct{}{}
	}
	return taken
}
