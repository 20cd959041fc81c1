// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fastline-hq/display/lib/codec"
)

// ViewCache persists the last accepted device view so a restarted
// process can put the previous state on screen before the first
// snapshot arrives.
type ViewCache struct {
	path string
}

// NewViewCache returns a cache backed by the given file path. The
// parent directory must already exist.
func NewViewCache(path string) *ViewCache {
	return &ViewCache{path: path}
}

// Load reads the cached view. The second return value is false when no
// cache file exists. A corrupt or unreadable cache is an error; the
// caller treats it the same as no cache and overwrites it on the next
// Store.
func (c *ViewCache) Load() (DeviceView, bool, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return DeviceView{}, false, nil
	}
	if err != nil {
		return DeviceView{}, false, fmt.Errorf("reading view cache: %w", err)
	}
	var view DeviceView
	if err := codec.Unmarshal(data, &view); err != nil {
		return DeviceView{}, false, fmt.Errorf("decoding view cache %s: %w", c.path, err)
	}
	return view, true, nil
}

// Store writes the view atomically: encode, write to a temp file in
// the same directory, fsync, rename over the old cache. A crash mid
// write leaves either the previous cache or the new one, never a
// truncated file.
func (c *ViewCache) Store(view DeviceView) error {
	data, err := codec.Marshal(view)
	if err != nil {
		return fmt.Errorf("encoding view cache: %w", err)
	}
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating view cache temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing view cache: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting view cache permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing view cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing view cache temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replacing view cache: %w", err)
	}
	return nil
}
