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

// Package reflection is the Reflection Stub: a minimal, embedded
// class-inheritance and default-property table standing in for a full
// reflection database, which this module never had access to but whose
// answers GetBestMiddleware's class lookups and the Syncback Planner's
// default-property filter both depend on.
package reflection

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

//go:embed classes.json
var classesJSON []byte

type rawPropertyInfo struct {
	Serializes *bool `json:"serializes"`
}

type rawClassInfo struct {
	Superclass        string                     `json:"superclass"`
	DefaultProperties map[string]json.RawMessage `json:"defaultProperties"`
	Properties        map[string]rawPropertyInfo `json:"properties"`
}

// PropertyInfo describes one property of a class.
type PropertyInfo struct {
	Serializes bool
}

// ClassInfo is one entry of the reflection table.
type ClassInfo struct {
	Superclass        string
	DefaultProperties map[string]rbxval.Value
	Properties        map[string]PropertyInfo
}

// Database is a loaded, queryable reflection table.
type Database struct {
	classes map[string]ClassInfo
}

var defaultDatabase *Database

func init() {
	db, err := parse(classesJSON)
	if err != nil {
		panic(fmt.Sprintf("reflection: embedded classes.json is invalid: %v", err))
	}
	defaultDatabase = db
}

// Default returns the process-wide Database loaded from the embedded
// classes.json at package init.
func Default() *Database { return defaultDatabase }

func parse(data []byte) (*Database, error) {
	var raw map[string]rawClassInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	classes := make(map[string]ClassInfo, len(raw))
	for name, rc := range raw {
		props := make(map[string]rbxval.Value, len(rc.DefaultProperties))
		for propName, rawVal := range rc.DefaultProperties {
			v, err := rbxval.DecodeAutoJSON(rawVal)
			if err != nil {
				return nil, fmt.Errorf("reflection: class %s property %s: %w", name, propName, err)
			}
			props[propName] = v
		}
		propInfos := make(map[string]PropertyInfo, len(rc.Properties))
		for propName, rp := range rc.Properties {
			serializes := true
			if rp.Serializes != nil {
				serializes = *rp.Serializes
			}
			propInfos[propName] = PropertyInfo{Serializes: serializes}
		}
		classes[name] = ClassInfo{
			Superclass:        rc.Superclass,
			DefaultProperties: props,
			Properties:        propInfos,
		}
	}
	return &Database{classes: classes}, nil
}

// ClassOf returns the ClassInfo for className, falling back to the generic
// "Instance" entry if className is unknown (a class this stub was never
// told about is assumed to behave like the base Instance: no meaningful
// defaults, every property serializes).
func (d *Database) ClassOf(className string) ClassInfo {
	if ci, ok := d.classes[className]; ok {
		return ci
	}
	return d.classes["Instance"]
}

// IsA reports whether className is or inherits from ancestor, walking the
// Superclass chain.
func (d *Database) IsA(className, ancestor string) bool {
	for className != "" {
		if className == ancestor {
			return true
		}
		ci, ok := d.classes[className]
		if !ok {
			return false
		}
		className = ci.Superclass
	}
	return false
}

// IsDefault reports whether value equals className's default for propName,
// searching up the superclass chain the way property inheritance works —
// used by the Syncback Planner's property filter.
func (d *Database) IsDefault(className, propName string, value rbxval.Value) bool {
	for className != "" {
		ci, ok := d.classes[className]
		if !ok {
			return false
		}
		if def, ok := ci.DefaultProperties[propName]; ok {
			return def.Equal(value)
		}
		className = ci.Superclass
	}
	return false
}

// Serializes reports whether propName is marked non-serializing on
// className or any ancestor. Unknown properties default to serializing.
func (d *Database) Serializes(className, propName string) bool {
	for className != "" {
		ci, ok := d.classes[className]
		if !ok {
			return true
		}
		if pi, ok := ci.Properties[propName]; ok {
			return pi.Serializes
		}
		className = ci.Superclass
	}
	return true
}
