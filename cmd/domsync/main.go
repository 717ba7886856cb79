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

// Command domsync is the CLI front end for the reconciliation engine: it
// parses a *.project.json5 file, builds the DOM from the project tree, and
// hands off to one of its subcommands: `serve` (watch + two-way sync + API
// server), `build` (writes the whole tree to a single model container
// file), `syncback` (plans and writes a syncback pass), or `sourcemap`
// (prints the instance tree as JSON).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "domsync",
	Short: "Two-way sync between a project directory and a live instance tree",
	Long: `domsync reconciles a project directory, encoded with Rojo-style file
naming conventions, against a live in-memory instance tree: it watches the
filesystem and applies changes to the tree, accepts tree mutations from a
remote client and projects them back to disk, and serializes whole subtrees
to and from a set of middleware file formats.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
