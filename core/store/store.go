// Copyright 2024 bbaa
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store keeps plugin state in single files that are always replaced whole.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/KarpelesLab/reflink"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// File is a persisted document. Write replaces the file through a temporary file and a
// rename, so readers never observe a half written document unless the process dies
// between the two.
type File struct {
	path   string
	backup bool
	lock   sync.Mutex
	sum    uint64
	known  bool

	// set while the file holds external content the watcher refused
	rejected bool
}

// New returns a File stored at path. With backup set, the previous content is kept next
// to the file with a .bak suffix on every write.
func New(path string, backup bool) *File {
	return &File{path: filepath.Clean(path), backup: backup}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) BackupPath() string {
	return f.path + ".bak"
}

// Read returns the current content of the file. A missing file is reported with an error
// matching fs.ErrNotExist.
func (f *File) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	f.observe(data)
	return data, nil
}

// Write stores data. Writing the content the file already holds on disk is a no-op.
func (f *File) Write(data []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	sum := xxhash.Sum64(data)
	if current, err := os.ReadFile(f.path); err == nil && xxhash.Sum64(current) == sum {
		f.sum = sum
		f.known = true
		f.rejected = false
		return nil
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	if f.backup && !f.rejected {
		if err := f.backupLocked(); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temporary store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace store: %w", err)
	}
	f.sum = sum
	f.known = true
	f.rejected = false
	return nil
}

func (f *File) backupLocked() error {
	if _, err := os.Stat(f.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat store: %w", err)
	}
	bak := f.BackupPath()
	if err := os.Remove(bak); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove old backup: %w", err)
	}
	if err := reflink.Auto(f.path, bak); err != nil {
		return fmt.Errorf("backup store: %w", err)
	}
	return nil
}

// observe records data as the known content and reports whether it differs from what
// was known before.
func (f *File) observe(data []byte) bool {
	sum := xxhash.Sum64(data)
	f.lock.Lock()
	defer f.lock.Unlock()
	changed := !f.known || f.sum != sum
	f.sum = sum
	f.known = true
	return changed
}

// Watch calls onChange with the new content whenever the file is changed by someone
// other than this File. When onChange rejects the content, the next Write leaves the
// backup alone so it keeps the last accepted document. Watching stops when ctx is
// cancelled.
func (f *File) Watch(ctx context.Context, onChange func([]byte) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		watcher.Close()
		return fmt.Errorf("create store directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != f.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				data, err := os.ReadFile(f.path)
				if err != nil {
					continue
				}
				if f.observe(data) {
					err := onChange(data)
					f.lock.Lock()
					f.rejected = err != nil
					f.lock.Unlock()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
