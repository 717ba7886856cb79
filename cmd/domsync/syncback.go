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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/project"
	"github.com/rojo-rbx/rojo/pkg/syncback"
)

var syncbackClean bool

var syncbackCmd = &cobra.Command{
	Use:   "syncback <project.project.json5>",
	Short: "Write a project's live DOM back to its $path directories",
	Long: `syncback loads a project file, builds its DOM the same way build does,
then runs the Syncback Planner against every $path root to plan the
filesystem writes that would make that directory match the DOM, resolves
cross-references through the Reference Linker, and commits the result with
the FS Snapshot Writer. With --clean, any pre-existing file or directory no
live instance claimed is removed too.`,
	Args: cobra.ExactArgs(1),
	RunE: runSyncback,
}

func init() {
	syncbackCmd.Flags().BoolVar(&syncbackClean, "clean", false, "remove pre-existing entries no live instance claims")
	rootCmd.AddCommand(syncbackCmd)
}

func runSyncback(cmd *cobra.Command, args []string) error {
	projectPath := args[0]
	p, err := project.Load(projectPath)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	store, pathRoots, err := loadProject(p)
	if err != nil {
		return fmt.Errorf("building DOM: %w", err)
	}

	prePrunePaths := livePaths(store)

	merged := syncback.NewFsSnapshot()
	var total syncback.Stats

	for _, rootRef := range pathRoots {
		meta, ok := store.GetMetadata(rootRef)
		if !ok || meta.Source.Kind != dom.SourcePath {
			continue
		}
		rootDir := meta.Source.Path

		existingEntries, err := syncback.ScanExistingEntries(rootDir)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", rootDir, err)
		}

		opts := syncback.Options{
			Clean:                syncbackClean,
			IgnoreProperties:     p.IgnoreProperties,
			IgnoreHiddenServices: p.IgnoreHiddenServices,
			ProtectedPath:        p.IsProtectedPath,
		}

		planner := syncback.NewPlanner(store, opts, prePrunePaths)
		snap, stats, err := planner.Plan(rootRef, rootDir, existingEntries)
		if err != nil {
			return fmt.Errorf("planning %s: %w", rootDir, err)
		}

		linker := planner.Linker()
		finalPaths := planner.FinalPaths()
		for path, content := range snap.AddedFiles {
			snap.AddedFiles[path] = linker.FixRefPaths(content, path, finalPaths)
		}

		merged.Merge(snap)
		total.NameConflicts += stats.NameConflicts
		total.RbxmFallbacks += stats.RbxmFallbacks
		total.OrphansRemoved += stats.OrphansRemoved
	}

	writer := syncback.NewWriter()
	if err := writer.Commit(cmd.Context(), merged); err != nil {
		return fmt.Errorf("committing syncback: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), total.Summary())
	return nil
}

// livePaths computes every live instance's path before any syncback pass
// prunes or removes anything, so the Reference Linker can still resolve a
// reference into a subtree a given root's own pass decides to skip.
func livePaths(store *dom.Store) map[dom.Ref]string {
	out := make(map[dom.Ref]string)
	store.Walk(store.Root(), func(inst dom.Instance) {
		out[inst.Ref] = store.Path(inst.Ref)
	})
	return out
}
