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

import "fmt"

// Stats counts the noteworthy decisions a syncback pass made without
// failing outright.
type Stats struct {
	NameConflicts  int
	RbxmFallbacks  int
	OrphansRemoved int
}

// Summary renders a one-line report, surfaced by the CLI's `syncback`
// command.
func (s Stats) Summary() string {
	return fmt.Sprintf("syncback: %d name conflict(s), %d rbxm fallback(s), %d orphan(s) removed",
		s.NameConflicts, s.RbxmFallbacks, s.OrphansRemoved)
}
