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
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Writer commits an FsSnapshot to disk in four phases: directories are
// created sequentially first so later phases never race a
// missing parent, files are written and removed in parallel since neither
// touches shared state, and directories are removed recursively last, once
// nothing inside them is still being written.
type Writer struct {
	// RetryWindows gates the Access-denied/Sharing-violation retry loop.
	// It defaults to runtime.GOOS == "windows"; tests on any platform can
	// force it on to exercise the retry path.
	RetryWindows bool
}

// NewWriter creates a Writer with Windows retry behavior enabled only when
// actually running on Windows.
func NewWriter() *Writer {
	return &Writer{RetryWindows: runtime.GOOS == "windows"}
}

// Commit executes snap against disk. It returns the first non-retryable
// error encountered in phase 1 (directory creation blocks every later
// phase), but for phases 2 and 3 it keeps going after an error, logging each
// failure and an aggregate count; if anything failed it returns a single
// summary error (errFailedCommit) and skips phase 4.
func (w *Writer) Commit(ctx context.Context, snap *FsSnapshot) error {
	if err := w.createDirs(snap); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	var writeErrs, removeErrs atomic.Int64
	for p, content := range snap.AddedFiles {
		p, content := p, content
		g.Go(func() error {
			if err := w.writeFileRetrying(gctx, p, content); err != nil {
				log.Printf("[syncback] writing %s: %v", p, err)
				writeErrs.Add(1)
			}
			return nil
		})
	}
	for p := range snap.RemovedFiles {
		if w.insideRemovedDir(p, snap) {
			continue
		}
		p := p
		g.Go(func() error {
			if err := w.removeRetrying(gctx, p); err != nil {
				log.Printf("[syncback] removing %s: %v", p, err)
				removeErrs.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if writeErrs.Load() > 0 || removeErrs.Load() > 0 {
		log.Printf("[syncback] commit finished with %d write error(s) and %d remove error(s)", writeErrs.Load(), removeErrs.Load())
		return errFailedCommit
	}

	return w.removeDirs(snap)
}

var errFailedCommit = errors.New("syncback: one or more filesystem writes failed, see log for detail")

// createDirs runs phase 1 sequentially, in shallow-to-deep order so a
// parent always exists before its child is created, tolerating
// already-exists.
func (w *Writer) createDirs(snap *FsSnapshot) error {
	dirs := make([]string, 0, len(snap.AddedDirs))
	for d := range snap.AddedDirs {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) < strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// removeDirs runs phase 4 sequentially, deep-to-shallow so a parent is
// never removed while a nested removal for a sibling directory is still
// pending.
func (w *Writer) removeDirs(snap *FsSnapshot) error {
	dirs := make([]string, 0, len(snap.RemovedDirs))
	for d := range snap.RemovedDirs {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		if err := os.RemoveAll(d); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (w *Writer) insideRemovedDir(filePath string, snap *FsSnapshot) bool {
	for d := range snap.RemovedDirs {
		if strings.HasPrefix(filePath, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Writer) writeFileRetrying(ctx context.Context, path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return w.retry(ctx, func() error { return os.WriteFile(path, content, 0o644) })
}

func (w *Writer) removeRetrying(ctx context.Context, path string) error {
	return w.retry(ctx, func() error {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	})
}

// retry implements the Windows Access-denied/Sharing-violation retry
// rule: three attempts total, 10ms initial delay doubling each time. Off
// Windows (or with RetryWindows disabled) the operation runs exactly
// once.
func (w *Writer) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !w.RetryWindows || !isTransientWindowsError(err) {
		return err
	}

	delay := 10 * time.Millisecond
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		err = op()
		if err == nil || !isTransientWindowsError(err) {
			return err
		}
		delay *= 2
	}
	return err
}

