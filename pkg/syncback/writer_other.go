//go:build !windows

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
	"errors"
	"os"
)

// isTransientWindowsError is only meaningful under the real Windows error
// codes; off Windows, Writer.RetryWindows defaults to false so this is
// never consulted outside of tests that force it on, in which case a plain
// permission-error check is the closest stand-in available.
func isTransientWindowsError(err error) bool {
	return errors.Is(err, os.ErrPermission)
}
