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

package snapshot

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

// decodeTomlFile reads a *.toml document into a JsonModel-shaped instance
// whose top-level keys become
// Attributes: config-shaped instances have no fixed reflection-known
// property set, so attributes are the only place arbitrary key/value data
// can live on a live DOM instance.
func decodeTomlFile(path string) (*InstanceSnapshot, error) {
	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("snapshot: parsing %s: %w", path, err)
	}
	return configSnapshot(path, middleware.Toml, raw)
}

// decodeYamlFile reads a *.yml/*.yaml document, same attribute-bag shape
// as Toml.
func decodeYamlFile(path string) (*InstanceSnapshot, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return nil, fmt.Errorf("snapshot: parsing %s: %w", path, err)
	}
	return configSnapshot(path, middleware.Yaml, raw)
}

func configSnapshot(path string, tag middleware.Tag, raw map[string]interface{}) (*InstanceSnapshot, error) {
	name := stemOf(baseName(path))
	snap := newSnapshot("Configuration", name, tag, path)
	attrs := make(rbxval.AttributesValue, len(raw))
	for key, val := range raw {
		v, err := valueFromAny(val)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %s key %s: %w", path, key, err)
		}
		attrs[key] = v
	}
	snap.Properties["Attributes"] = attrs
	return snap, nil
}

// valueFromAny converts a generically-decoded TOML/YAML scalar, map, or
// slice into an rbxval.Value. Nested maps/slices are flattened to their
// Go fmt %v string form (e.g. "map[a:1]", "[1 2]") rather than modeled as a new nested Value kind,
// since Attributes values never recurse.
func valueFromAny(v interface{}) (rbxval.Value, error) {
	switch val := v.(type) {
	case nil:
		return rbxval.StringValue(""), nil
	case bool:
		return rbxval.BoolValue(val), nil
	case string:
		return rbxval.StringValue(val), nil
	case int:
		return rbxval.Int64Value(val), nil
	case int64:
		return rbxval.Int64Value(val), nil
	case float64:
		return rbxval.Float64Value(val), nil
	case map[string]interface{}, []interface{}:
		return rbxval.StringValue(fmt.Sprintf("%v", val)), nil
	default:
		return rbxval.StringValue(fmt.Sprintf("%v", val)), nil
	}
}
