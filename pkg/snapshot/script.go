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
	"os"
	"path/filepath"

	"github.com/rojo-rbx/rojo/pkg/middleware"
	"github.com/rojo-rbx/rojo/pkg/namecodec"
	"github.com/rojo-rbx/rojo/pkg/rbxval"
)

func classForScriptTag(tag middleware.Tag) string {
	switch tag {
	case middleware.ServerScript, middleware.ClientScript, middleware.PluginScript, middleware.LegacyScript:
		return "Script"
	case middleware.LocalScript:
		return "LocalScript"
	default:
		return "ModuleScript"
	}
}

func decodeScriptFile(path string, tag middleware.Tag) (*InstanceSnapshot, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	stem := namecodec.StripScriptSuffix(stemOf(base))
	snap := newSnapshot(classForScriptTag(tag), stem, tag, path)
	snap.Properties["Source"] = rbxval.StringValue(contents)
	// The run context lives in the file extension; restore it as a property
	// so the class round-trips. Legacy scripts carry no RunContext at all.
	switch tag {
	case middleware.ServerScript:
		snap.Properties["RunContext"] = rbxval.EnumValue(middleware.RunContextServer)
	case middleware.ClientScript:
		snap.Properties["RunContext"] = rbxval.EnumValue(middleware.RunContextClient)
	case middleware.PluginScript:
		snap.Properties["RunContext"] = rbxval.EnumValue(middleware.RunContextPlugin)
	}

	metaPath := namecodec.AdjacentMetaPath(path)
	if err := applyMeta(snap, metaPath); err != nil {
		return nil, err
	}
	return snap, nil
}
