// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Marker records who requested a host reboot and when.
type Marker struct {
	// CallerID is the requesting user's id.
	CallerID string `json:"caller_id"`

	// CallerName is the requesting user's display name.
	CallerName string `json:"caller_name"`

	// Method is how the reboot was issued ("command", "syscall").
	Method string `json:"method"`

	// Timestamp is when the reboot was issued.
	Timestamp time.Time `json:"timestamp"`
}

// Write atomically replaces the marker at path with mode 0600. The
// parent directory is created if missing.
func Write(path string, marker Marker) error {
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling reboot marker: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating marker directory: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary marker: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary marker: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary marker: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary marker: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming marker into place: %w", err)
	}

	// The rename must reach disk before the reboot does.
	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}

// Read parses the marker at path. A missing file yields an error
// wrapping fs.ErrNotExist.
func Read(path string) (Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return Marker{}, fmt.Errorf("parsing reboot marker %s: %w", path, err)
	}
	return marker, nil
}

// Check returns the marker and true when one exists at path and is no
// older than maxAge at now. A missing or stale marker yields false with
// no error. Unreadable or corrupt markers return the error so callers
// can tell "no marker" from "broken marker".
func Check(path string, maxAge time.Duration, now time.Time) (Marker, bool, error) {
	marker, err := Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Marker{}, false, nil
		}
		return Marker{}, false, err
	}
	if now.Sub(marker.Timestamp) > maxAge {
		return Marker{}, false, nil
	}
	return marker, true, nil
}

// Clear removes the marker. Removing a missing marker is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing reboot marker: %w", err)
	}
	return nil
}
