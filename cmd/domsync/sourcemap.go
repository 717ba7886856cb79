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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rojo-rbx/rojo/pkg/dom"
	"github.com/rojo-rbx/rojo/pkg/project"
)

var sourcemapCmd = &cobra.Command{
	Use:   "sourcemap <project.project.json5>",
	Short: "Print the instance path <-> class map for a project as JSON",
	Long: `sourcemap loads a project file and builds its DOM the same way serve
and build do, then prints the instance tree as nested JSON: each live
instance's display name, its class name, (if backed by one) its filesystem
source path, and its children. It never plans or writes a syncback pass.`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcemap,
}

func init() {
	rootCmd.AddCommand(sourcemapCmd)
}

// sourcemapNode is one entry of the JSON tree sourcemap prints, mirroring
// the name/className/filePaths/children shape a Rojo-style sourcemap
// consumer (e.g. an editor extension) expects.
type sourcemapNode struct {
	Name      string           `json:"name"`
	ClassName string           `json:"className"`
	FilePaths []string         `json:"filePaths,omitempty"`
	Children  []*sourcemapNode `json:"children,omitempty"`
}

func runSourcemap(cmd *cobra.Command, args []string) error {
	projectPath := args[0]
	p, err := project.Load(projectPath)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	store, _, err := loadProject(p)
	if err != nil {
		return fmt.Errorf("building DOM: %w", err)
	}

	root := buildSourcemapNode(store, store.Root())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(root)
}

func buildSourcemapNode(store *dom.Store, ref dom.Ref) *sourcemapNode {
	inst, ok := store.Get(ref)
	if !ok {
		return nil
	}

	node := &sourcemapNode{Name: inst.Name, ClassName: inst.ClassName}
	if meta, ok := store.GetMetadata(ref); ok && meta.Source.Kind == dom.SourcePath {
		node.FilePaths = []string{meta.Source.Path}
	}
	for _, child := range inst.Children {
		if childNode := buildSourcemapNode(store, child); childNode != nil {
			node.Children = append(node.Children, childNode)
		}
	}
	return node
}
