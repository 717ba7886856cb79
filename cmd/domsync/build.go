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
	"os"

	"github.com/spf13/cobra"

	"github.com/rojo-rbx/rojo/pkg/project"
	"github.com/rojo-rbx/rojo/pkg/syncback"
)

var buildOutput string

var buildCmd = &cobra.Command{
	Use:   "build <project.project.json5>",
	Short: "Build a project's DOM into a single model container file",
	Long: `build loads a project file, reads every $path subtree through the
Snapshot Engine to build a DOM, and writes the whole tree as a single
opaque model container. It never talks to a real rbxm/rbxmx binary or XML
codec (out of scope for this module); the container emitted is the stand-in
format pkg/syncback.EncodeModelContainer defines.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "path to write the model container (defaults to <project-name>.model.json5)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	projectPath := args[0]
	p, err := project.Load(projectPath)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	store, _, err := loadProject(p)
	if err != nil {
		return fmt.Errorf("building DOM: %w", err)
	}

	out := buildOutput
	if out == "" {
		out = p.Name + ".model.json5"
	}

	contents, err := syncback.EncodeModelContainer(store, store.Root())
	if err != nil {
		return fmt.Errorf("encoding model container: %w", err)
	}

	if err := os.WriteFile(out, contents, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "built %s -> %s\n", projectPath, out)
	return nil
}
