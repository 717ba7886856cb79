//go:build windows

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

	"golang.org/x/sys/windows"
)

// isTransientWindowsError reports whether err looks like the transient
// sharing-violation errors Windows raises for files still held open by
// another process (notably an antivirus scanner or an editor's own file
// watch), which are worth a short retry rather than an immediate failure.
// The underlying syscall errno is compared against the real Windows
// constants rather than matching message text, since FormatMessage output
// is locale-dependent and message-matching breaks on non-English systems.
func isTransientWindowsError(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var errno windows.Errno
	if errors.As(err, &errno) {
		return errno == windows.ERROR_ACCESS_DENIED || errno == windows.ERROR_SHARING_VIOLATION
	}
	return false
}
