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
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/rojo-rbx/rojo/internal/reflection"
	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/metafile"
	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/namecodec"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// Options configures one Planner pass.
type Options struct {
	// Clean removes filesystem entries that have no matching DOM instance.
	// Off by default: a non-clean pass only adds and updates.
	Clean bool

	// Incremental hashes each subtree and skips re-encoding (but still
	// records a final path for) any whose hash matches Previous. Mutually
	// meaningful only when Previous is non-nil; with Previous nil every
	// subtree is treated as changed.
	Incremental bool

	// Previous carries the prior pass's hashes and final paths, consulted
	// only when Incremental is set.
	Previous *Previous

	// IgnoreProperties names properties, per class, the planner must never
	// write even if they differ from the class default.
	IgnoreProperties map[string][]string

	// IgnoreHiddenServices strips root children whose class is not in the
	// fixed set of default-visible DataModel services, when the root
	// instance's own class is DataModel.
	IgnoreHiddenServices bool

	// OldRootChildren is every (name, class) pair present at the root of
	// the DOM before this pass's edits, consulted only when the project
	// root is not itself backed by a single filesystem directory: a root
	// child absent from this set (by name+class) is pruned rather than
	// written, since nothing on disk should receive it in that shape. Leave
	// nil when the project root is a plain $path directory, where every
	// root child is written normally.
	OldRootChildren map[rootChildKey]struct{}

	// ProtectedPath reports whether a path must survive clean-mode orphan
	// removal regardless of whether any live instance claimed it — the
	// Syncback Planner's caller wires this to project.Project.IsProtectedPath
	// plus the project file's own path.
	ProtectedPath func(path string) bool
}

// rootChildKey identifies a root child by name and class for the
// OldRootChildren pruning comparison.
type rootChildKey struct {
	Name      string
	ClassName string
}

// Planner is the Syncback Planner: it walks a live dom.Store and produces
// an FsSnapshot describing the filesystem writes that would make a project
// directory match it.
type Planner struct {
	store   *dom.Store
	refl    *reflection.Database
	opts    Options
	linker  *Linker
	stats   Stats

	finalPaths      map[dom.Ref]string
	prePrune        map[dom.Ref]string
	knownPaths      map[string]struct{}
	hashes          map[dom.Ref]string
	existingEntries map[string][]ExistingEntry

	rootRef     dom.Ref
	prunedRoots map[dom.Ref]struct{}
}

// defaultVisibleServices is the fixed set of DataModel child classes
// ignoreHiddenServices treats as visible. Roblox ships many more services
// than this at runtime; this is the subset a project typically wants
// synced back, matching the common default a Rojo-shaped tool ships with.
var defaultVisibleServices = map[string]struct{}{
	"Workspace":            {},
	"ReplicatedStorage":    {},
	"ReplicatedFirst":      {},
	"ServerScriptService":  {},
	"ServerStorage":        {},
	"StarterGui":           {},
	"StarterPack":          {},
	"StarterPlayer":        {},
	"Lighting":             {},
	"SoundService":         {},
	"Chat":                 {},
	"TestService":          {},
}

// NewPlanner creates a Planner over store. prePrunePaths is every live
// instance's path computed before any pruning decision, so the Reference
// Linker can still resolve a reference into a subtree this pass will end up
// skipping.
func NewPlanner(store *dom.Store, opts Options, prePrunePaths map[dom.Ref]string) *Planner {
	return &Planner{
		store:      store,
		refl:       reflection.Default(),
		opts:       opts,
		prePrune:   prePrunePaths,
		finalPaths: make(map[dom.Ref]string),
		knownPaths: make(map[string]struct{}),
		hashes:     make(map[dom.Ref]string),
	}
}

// Plan walks root and rootDir, producing an FsSnapshot and Stats for the
// pass. existingEntries lists, per directory path already present on disk,
// the entries ScanExistingEntries found there — consulted only by
// clean-mode orphan removal (pruneOrphans), which needs real pre-existing
// paths to compare the pass's claims against.
func (p *Planner) Plan(root dom.Ref, rootDir string, existingEntries map[string][]ExistingEntry) (*FsSnapshot, Stats, error) {
	p.linker = NewLinker(p.store, p.prePrune)
	p.linker.ComputeDuplicateSiblings(root)
	p.prelinkReferences(root)

	p.rootRef = root
	p.prunedRoots = p.pruneRootChildren(root)

	if existingEntries == nil {
		existingEntries = make(map[string][]ExistingEntry)
	}
	p.existingEntries = existingEntries

	snap := NewFsSnapshot()
	// Dedup keys are claimed only by what this walk itself emits: the pass
	// owns the whole directory, so seeding from pre-existing entries would
	// make every re-run dodge its own previous output.
	stems := make(map[string]map[string]struct{})

	if err := p.walk(root, rootDir, stems, snap); err != nil {
		return nil, p.stats, err
	}

	if p.opts.Clean {
		p.pruneOrphans(snap)
	}

	return snap, p.stats, nil
}

// pruneRootChildren implements §4.8 phase 2: a root child absent from
// OldRootChildren (by name+class) is dropped when that comparison is in
// play, and — when ignoreHiddenServices is on and the root itself is a
// DataModel — any child whose class isn't a default-visible service is
// dropped too. Pruned children are skipped entirely: not walked, not
// written, not counted as orphans (pruning is not deletion; see §4.8's own
// framing of this as a pre-walk filter, distinct from clean-mode orphan
// removal).
func (p *Planner) pruneRootChildren(root dom.Ref) map[dom.Ref]struct{} {
	pruned := make(map[dom.Ref]struct{})
	rootInst, ok := p.store.Get(root)
	if !ok {
		return pruned
	}

	if p.opts.OldRootChildren != nil {
		for _, child := range rootInst.Children {
			ci, ok := p.store.Get(child)
			if !ok {
				continue
			}
			key := rootChildKey{Name: ci.Name, ClassName: ci.ClassName}
			if _, present := p.opts.OldRootChildren[key]; !present {
				pruned[child] = struct{}{}
			}
		}
	}

	if p.opts.IgnoreHiddenServices && rootInst.ClassName == "DataModel" {
		for _, child := range rootInst.Children {
			ci, ok := p.store.Get(child)
			if !ok {
				continue
			}
			if _, visible := defaultVisibleServices[ci.ClassName]; !visible {
				pruned[child] = struct{}{}
			}
		}
	}

	return pruned
}

// prelinkReferences assigns every Rojo_Id an id-based reference will need
// before the main encode walk starts, so an instance referenced by a later
// sibling or a deeper descendant already carries its Rojo_Id attribute by
// the time its own turn to be written comes up — LinkReference's decisions
// are otherwise made in tree-walk order, and a target's own file may already
// be serialized by the time something else gets around to referencing it.
func (p *Planner) prelinkReferences(root dom.Ref) {
	p.store.Walk(root, func(inst dom.Instance) {
		if attrs, ok := inst.Properties["Attributes"].(rbxval.AttributesValue); ok {
			if id, ok := attrs["Rojo_Id"].(rbxval.StringValue); ok {
				p.linker.NoteObservedID(inst.Ref, string(id))
			}
		}
		for name, val := range inst.Properties {
			if refVal, ok := val.(rbxval.RefValue); ok {
				p.linker.LinkReference(name, dom.FromValue(refVal))
			}
		}
	})
}

func (p *Planner) walk(ref dom.Ref, dirPath string, existingStems map[string]map[string]struct{}, snap *FsSnapshot) error {
	return p.walkNode(ref, dirPath, existingStems, snap, false)
}

// walkNode is walk's recursive implementation. skipWrite is true once an
// ancestor's subtree hash matched Previous.Hashes in incremental mode (or
// once a descendant of such a subtree is reached): the node's path is still
// computed and recorded, so a cross-reference into this subtree still
// resolves, but no directory/file/meta write is planned and the traversal
// never calls encodeFile.
func (p *Planner) walkNode(ref dom.Ref, dirPath string, existingStems map[string]map[string]struct{}, snap *FsSnapshot, skipWrite bool) error {
	inst, ok := p.store.Get(ref)
	if !ok {
		return fmt.Errorf("syncback: %s no longer exists", ref)
	}

	hash := p.hashSubtree(ref)
	p.hashes[ref] = hash
	unchanged := false
	if !skipWrite && p.opts.Incremental && p.opts.Previous != nil {
		if prevHash, ok := p.opts.Previous.Hashes[ref]; ok && prevHash == hash {
			unchanged = true
		}
	}

	meta, _ := p.store.GetMetadata(ref)
	var override *middleware.Tag
	existingTag := meta.Middleware
	hasExisting := existingTag != middleware.Ignore
	var existingPtr *middleware.Tag
	if hasExisting {
		existingPtr = &existingTag
	}
	tag := middleware.GetBestMiddleware(override, existingPtr, inst.ClassName, runContextOf(inst.Properties), len(inst.Children) > 0)
	if tag == middleware.Ignore {
		return nil
	}

	// The pass root is the $path directory (or file) the caller already
	// resolved on disk: its location is dirPath itself, not a sibling-named
	// entry inside some enclosing directory, so it never competes for a
	// dedup-key stem the way every descendant does.
	isRoot := ref == p.rootRef
	var entryPath string
	var needsMeta bool
	if isRoot {
		entryPath = dirPath
	} else {
		taken := existingStems[dirPath]
		if taken == nil {
			taken = make(map[string]struct{})
		}
		base := inst.Name
		if namecodec.NeedsSlugify(base) {
			base = namecodec.Slugify(base)
		}
		if _, collided := taken[strings.ToLower(base)]; collided {
			p.stats.NameConflicts++
		}

		var filename, dedupKey string
		filename, needsMeta, dedupKey = namecodec.NameForInst(tag, inst.Name, taken)
		taken[strings.ToLower(dedupKey)] = struct{}{}
		existingStems[dirPath] = taken
		entryPath = path.Join(dirPath, filename)
	}
	p.finalPaths[ref] = entryPath
	p.knownPaths[entryPath] = struct{}{}

	if skipWrite || unchanged {
		childDir := dirPath
		if tag.IsDirectory() {
			childDir = entryPath
			p.knownPaths[path.Join(entryPath, "init.meta.json5")] = struct{}{}
		} else {
			p.knownPaths[namecodec.AdjacentMetaPath(entryPath)] = struct{}{}
		}
		for _, child := range p.childrenToWalk(ref, inst.Children) {
			if err := p.walkNode(child, childDir, existingStems, snap, true); err != nil {
				return err
			}
		}
		return nil
	}

	props := p.filterProperties(ref, inst.ClassName, inst.Properties)

	if tag.IsDirectory() {
		snap.AddDir(entryPath)
		if needsMeta || len(props) > 0 || meta.IgnoreUnknownInstances {
			mf := p.buildMetaFile(inst.Name, needsMeta, props, meta)
			content, err := json.MarshalIndent(mf, "", "  ")
			if err != nil {
				return err
			}
			metaPath := path.Join(entryPath, "init.meta.json5")
			snap.AddFile(metaPath, content)
			p.knownPaths[metaPath] = struct{}{}
		}
		for _, child := range p.childrenToWalk(ref, inst.Children) {
			if err := p.walkNode(child, entryPath, existingStems, snap, false); err != nil {
				return err
			}
		}
		return nil
	}

	content, fallback, err := p.encodeFile(tag, inst.ClassName, inst.Name, props)
	if err != nil {
		return err
	}
	if fallback {
		p.stats.RbxmFallbacks++
	}
	snap.AddFile(entryPath, content)

	// The file's own content already carries whatever single property tag's
	// encoder consumed (e.g. Source for a script); only Attributes — which
	// includes every Rojo_Ref_*/Rojo_RefPointer_* entry the Reference Linker
	// produced — ever belongs in the adjacent meta file alongside it.
	metaProps := map[string]rbxval.Value{}
	if attrs, ok := props["Attributes"]; ok {
		metaProps["Attributes"] = attrs
	}
	if (needsMeta || len(metaProps) > 0 || meta.IgnoreUnknownInstances) && tag != middleware.JsonModel && tag != middleware.Project {
		mf := p.buildMetaFile(inst.Name, needsMeta, metaProps, meta)
		metaPath := namecodec.AdjacentMetaPath(entryPath)
		metaContent, err := json.MarshalIndent(mf, "", "  ")
		if err != nil {
			return err
		}
		snap.AddFile(metaPath, metaContent)
		p.knownPaths[metaPath] = struct{}{}
	}

	for _, child := range p.childrenToWalk(ref, inst.Children) {
		// Non-directory middleware has nowhere to put children; the resolver
		// would already have upgraded tag to its directory form if children
		// existed when hasChildren was computed above, so reaching here means
		// a child was added out-of-band after that decision. Treat it as an
		// orphan addition alongside the parent rather than losing it silently.
		if err := p.walkNode(child, dirPath, existingStems, snap, false); err != nil {
			return err
		}
	}
	return nil
}

// runContextOf reads an instance's RunContext enum so a bare Script class
// resolves to its real script-kind middleware; absent or non-enum values
// mean Legacy.
func runContextOf(props map[string]rbxval.Value) middleware.RunContext {
	if v, ok := props["RunContext"].(rbxval.EnumValue); ok {
		return middleware.RunContext(v)
	}
	return middleware.RunContextLegacy
}

// childrenToWalk filters children by §4.8 phase 2's root-pruning decision,
// relevant only when ref is the root itself (pruning never applies deeper
// than one level).
func (p *Planner) childrenToWalk(ref dom.Ref, children []dom.Ref) []dom.Ref {
	if ref != p.rootRef || len(p.prunedRoots) == 0 {
		return children
	}
	out := make([]dom.Ref, 0, len(children))
	for _, c := range children {
		if _, pruned := p.prunedRoots[c]; !pruned {
			out = append(out, c)
		}
	}
	return out
}

// filterProperties drops anything equal to its class default, any property
// the reflection stub marks as non-serializing, and anything the caller's
// IgnoreProperties list names. Ref-valued properties are instead handed
// to the Reference Linker and folded into the returned map as
// Rojo_Ref_*/Rojo_RefPointer_* attribute entries, since this module has
// no wire representation for a raw Ref.
func (p *Planner) filterProperties(owner dom.Ref, className string, props map[string]rbxval.Value) map[string]rbxval.Value {
	ignored := make(map[string]struct{})
	for _, name := range p.opts.IgnoreProperties[className] {
		ignored[name] = struct{}{}
	}

	out := make(map[string]rbxval.Value, len(props))
	var refAttrs rbxval.AttributesValue

	for name, val := range props {
		if _, skip := ignored[name]; skip {
			continue
		}
		if name != "Attributes" && !p.refl.Serializes(className, name) {
			continue
		}
		if refVal, isRef := val.(rbxval.RefValue); isRef {
			result, ok := p.linker.LinkReference(name, dom.FromValue(refVal))
			if ok {
				if refAttrs == nil {
					refAttrs = make(rbxval.AttributesValue)
				}
				refAttrs[result.AttrName] = rbxval.StringValue(result.Value)
			}
			continue
		}
		if p.refl.IsDefault(className, name, val) {
			continue
		}
		out[name] = val
	}

	if id, ok := p.linker.IDFor(owner); ok {
		if refAttrs == nil {
			refAttrs = make(rbxval.AttributesValue)
		}
		refAttrs["Rojo_Id"] = rbxval.StringValue(id)
	}

	if refAttrs != nil {
		attrs, _ := out["Attributes"].(rbxval.AttributesValue)
		if attrs == nil {
			attrs = make(rbxval.AttributesValue, len(refAttrs))
		}
		for k, v := range refAttrs {
			attrs[k] = v
		}
		out["Attributes"] = attrs
	}

	return out
}

func (p *Planner) buildMetaFile(name string, needsName bool, props map[string]rbxval.Value, meta dom.Metadata) metafile.File {
	mf := metafile.File{}
	if needsName {
		n := name
		mf.Name = &n
	}
	if meta.IgnoreUnknownInstances {
		v := true
		mf.IgnoreUnknownInstances = &v
	}
	if len(props) > 0 {
		mf.Properties = make(map[string]json.RawMessage, len(props))
		for k, v := range props {
			if k == "Attributes" {
				continue
			}
			raw, err := rbxval.EncodeJSON(v)
			if err == nil {
				mf.Properties[k] = raw
			}
		}
		if attrs, ok := props["Attributes"].(rbxval.AttributesValue); ok && len(attrs) > 0 {
			mf.Attributes = make(map[string]json.RawMessage, len(attrs))
			for k, v := range attrs {
				raw, err := rbxval.EncodeJSON(v)
				if err == nil {
					mf.Attributes[k] = raw
				}
			}
		}
	}
	return mf
}

// encodeFile renders one non-directory instance's content for tag. The
// Rbxm/Rbxmx middleware, not worth hand-rolling byte-for-byte, falls back
// to an opaque passthrough of whatever bytes were last read for this
// instance, reported via the fallback flag so Plan can tally it in Stats.
// A middleware with no encoder case here is an error, not a fallback.
func (p *Planner) encodeFile(tag middleware.Tag, className, name string, props map[string]rbxval.Value) (content []byte, fallback bool, err error) {
	switch tag {
	case middleware.Text:
		if v, ok := props["Value"].(rbxval.StringValue); ok {
			return []byte(v), false, nil
		}
		return nil, false, nil
	case middleware.ServerScript, middleware.ClientScript, middleware.ModuleScript,
		middleware.PluginScript, middleware.LocalScript, middleware.LegacyScript:
		if v, ok := props["Source"].(rbxval.StringValue); ok {
			return []byte(v), false, nil
		}
		return nil, false, nil
	case middleware.Json:
		out := make(map[string]json.RawMessage, len(props))
		for k, v := range props {
			raw, err := rbxval.EncodeJSON(v)
			if err != nil {
				return nil, false, err
			}
			out[k] = raw
		}
		b, err := json.MarshalIndent(out, "", "  ")
		return b, false, err
	case middleware.JsonModel:
		doc := map[string]any{
			"Name":      name,
			"ClassName": className,
		}
		if len(props) > 0 {
			propsOut := make(map[string]json.RawMessage, len(props))
			for k, v := range props {
				raw, err := rbxval.EncodeJSON(v)
				if err != nil {
					return nil, false, err
				}
				propsOut[k] = raw
			}
			doc["Properties"] = propsOut
		}
		b, err := json.MarshalIndent(doc, "", "  ")
		return b, false, err
	case middleware.Csv:
		if v, ok := props["Source"].(rbxval.StringValue); ok {
			return []byte(v), false, nil
		}
		return nil, false, nil
	case middleware.Rbxm, middleware.Rbxmx:
		if v, ok := props["RawModel"].(rbxval.BinaryStringValue); ok {
			return []byte(v), true, nil
		}
		return nil, true, nil
	case middleware.Toml:
		out := make(map[string]interface{}, len(props))
		if attrs, ok := props["Attributes"].(rbxval.AttributesValue); ok {
			for k, v := range attrs {
				out[k] = rbxval.ToPlain(v)
			}
		}
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(out); err != nil {
			return nil, false, err
		}
		return buf.Bytes(), false, nil
	case middleware.Yaml:
		out := make(map[string]interface{}, len(props))
		if attrs, ok := props["Attributes"].(rbxval.AttributesValue); ok {
			for k, v := range attrs {
				out[k] = rbxval.ToPlain(v)
			}
		}
		b, err := yaml.Marshal(out)
		return b, false, err
	default:
		return nil, false, fmt.Errorf("syncback: no encoder for middleware %s", tag)
	}
}

// pruneOrphans removes every pre-existing filesystem entry (file or
// directory, per ExistingEntry) that this pass did not claim, implementing
// §4.8 phase 8: a path survives clean-mode orphan removal only by being in
// the added set, an ancestor of one, or explicitly protected.
//
// Directories are visited ancestor-first (a lexicographic sort suffices,
// since path.Join always produces forward-slash paths where a parent is a
// strict string prefix of any descendant) so an orphaned directory is
// reported once, as a single RemoveDir, instead of once per descendant —
// Writer removes a RemoveDir recursively, so descendants need no entry of
// their own.
func (p *Planner) pruneOrphans(snap *FsSnapshot) {
	dirs := make([]string, 0, len(p.existingEntries))
	for dir := range p.existingEntries {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	removedDirs := make(map[string]struct{})
	underRemovedDir := func(candidate string) bool {
		for d := range removedDirs {
			if strings.HasPrefix(candidate, d+"/") {
				return true
			}
		}
		return false
	}

	for _, dirPath := range dirs {
		if _, gone := removedDirs[dirPath]; gone || underRemovedDir(dirPath) {
			continue
		}
		for _, entry := range p.existingEntries[dirPath] {
			entryPath := path.Join(dirPath, entry.Name)
			if _, claimed := p.knownPaths[entryPath]; claimed {
				continue
			}
			if entry.IsDir {
				if _, added := snap.AddedDirs[entryPath]; added {
					continue
				}
			}
			if p.opts.ProtectedPath != nil && p.opts.ProtectedPath(entryPath) {
				continue
			}
			if entry.IsDir {
				snap.RemoveDir(entryPath)
				removedDirs[entryPath] = struct{}{}
			} else {
				snap.RemoveFile(entryPath)
			}
			p.stats.OrphansRemoved++
		}
	}
}

// FinalPaths returns the path assigned to every Ref this Planner visited,
// for use by Linker.FixRefPaths once planning is complete.
func (p *Planner) FinalPaths() map[dom.Ref]string {
	return p.finalPaths
}

// Linker returns the Reference Linker this Planner built during Plan, so
// callers can run FixRefPaths against the encoded file contents afterward.
func (p *Planner) Linker() *Linker {
	return p.linker
}
