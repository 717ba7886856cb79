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

// Package project is the Config/Project Loader: it parses
// *.project.json5 documents via HuJSON into ProjectNode trees and
// resolves the project-level settings the Syncback Planner consults
// ($path, ignoreHiddenServices, ignoreProperties, ignoreTrees,
// ignorePaths).
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Node is one node of a project tree: either a $path reference to a real
// filesystem subtree, a synthetic grouping instance with named children,
// or both (a $path node may still declare extra named children, which are
// layered on top of what's read from disk).
type Node struct {
	Path                   *string                    `json:"-"`
	ClassName              *string                    `json:"-"`
	Properties             map[string]json.RawMessage `json:"-"`
	Attributes             map[string]json.RawMessage `json:"-"`
	IgnoreUnknownInstances *bool                      `json:"-"`
	Children               map[string]Node            `json:"-"`
}

// UnmarshalJSON implements the project node shape, where most keys are
// named children and a handful of reserved "$"-prefixed keys carry the
// node's own settings.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.Children = make(map[string]Node)
	for key, value := range raw {
		switch key {
		case "$path":
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("project: $path: %w", err)
			}
			n.Path = &s
		case "$className":
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("project: $className: %w", err)
			}
			n.ClassName = &s
		case "$properties":
			var props map[string]json.RawMessage
			if err := json.Unmarshal(value, &props); err != nil {
				return fmt.Errorf("project: $properties: %w", err)
			}
			n.Properties = props
		case "$attributes":
			var attrs map[string]json.RawMessage
			if err := json.Unmarshal(value, &attrs); err != nil {
				return fmt.Errorf("project: $attributes: %w", err)
			}
			n.Attributes = attrs
		case "$ignoreUnknownInstances":
			var b bool
			if err := json.Unmarshal(value, &b); err != nil {
				return fmt.Errorf("project: $ignoreUnknownInstances: %w", err)
			}
			n.IgnoreUnknownInstances = &b
		default:
			if strings.HasPrefix(key, "$") {
				continue // forward-compatible: ignore unknown reserved keys
			}
			var child Node
			if err := json.Unmarshal(value, &child); err != nil {
				return fmt.Errorf("project: child %q: %w", key, err)
			}
			n.Children[key] = child
		}
	}
	return nil
}

// Project is a parsed *.project.json5 document plus the directory it was
// loaded from, which every $path is resolved relative to.
type Project struct {
	Name                 string          `json:"name"`
	Tree                 Node            `json:"tree"`
	ServePort            int             `json:"servePort,omitempty"`
	IgnoreHiddenServices bool            `json:"ignoreHiddenServices,omitempty"`
	IgnoreProperties     map[string][]string `json:"ignoreProperties,omitempty"`
	IgnoreTrees          []string        `json:"ignoreTrees,omitempty"`
	IgnorePaths          []string        `json:"ignorePaths,omitempty"`

	BaseDir string `json:"-"`
}

// Load reads and parses the project file at path.
func Load(path string) (*Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("project: parsing %s: %w", path, err)
	}

	var p Project
	if err := json.Unmarshal(standardized, &p); err != nil {
		return nil, fmt.Errorf("project: decoding %s: %w", path, err)
	}
	p.BaseDir = filepath.Dir(path)
	return &p, nil
}

// ResolvePath joins a $path value (as written in the project file) against
// the project's base directory.
func (p *Project) ResolvePath(relative string) string {
	if filepath.IsAbs(relative) {
		return relative
	}
	return filepath.Join(p.BaseDir, relative)
}

// IgnoredProperty reports whether propName is excluded for className by
// this project's ignoreProperties map, checked against className and every
// ancestor the caller supplies.
func (p *Project) IgnoredProperty(classChain []string, propName string) bool {
	for _, className := range classChain {
		for _, ignored := range p.IgnoreProperties[className] {
			if ignored == propName {
				return true
			}
		}
	}
	return false
}

// IsProtectedPath reports whether path falls under one of IgnoreTrees
// (itself or any descendant) or is named exactly in IgnorePaths — used by
// the Syncback Planner's orphan-removal scan.
func (p *Project) IsProtectedPath(path string) bool {
	for _, t := range p.IgnoreTrees {
		tree := p.ResolvePath(t)
		if path == tree || strings.HasPrefix(path, tree+string(filepath.Separator)) {
			return true
		}
	}
	for _, ig := range p.IgnorePaths {
		if path == p.ResolvePath(ig) {
			return true
		}
	}
	return false
}
