// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Spool file names inside the spool directory.
const (
	spoolFile    = "audit.jsonl"
	rotatedSpool = "audit.jsonl.1.zst"
)

// SpoolSink appends records as JSON lines to a file. When the file
// would grow past MaxBytes it is compressed into a single rotated
// generation, replacing the previous one, and a new file is started.
type SpoolSink struct {
	directory string
	maxBytes  int64

	mu sync.Mutex
}

// NewSpoolSink returns a sink writing under directory, which is
// created if needed. A maxBytes of zero disables rotation.
func NewSpoolSink(directory string, maxBytes int64) (*SpoolSink, error) {
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("creating audit spool directory: %w", err)
	}
	return &SpoolSink{directory: directory, maxBytes: maxBytes}, nil
}

// Path returns the live spool file.
func (s *SpoolSink) Path() string {
	return filepath.Join(s.directory, spoolFile)
}

// RotatedPath returns the compressed previous generation.
func (s *SpoolSink) RotatedPath() string {
	return filepath.Join(s.directory, rotatedSpool)
}

// Deliver appends record to the spool.
func (s *SpoolSink) Deliver(ctx context.Context, record Record) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encoding record: %w", ErrDeliveryFailed, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes > 0 {
		info, err := os.Stat(s.Path())
		if err == nil && info.Size()+int64(len(line)) > s.maxBytes && info.Size() > 0 {
			if err := s.rotate(); err != nil {
				return fmt.Errorf("%w: rotating spool: %w", ErrDeliveryFailed, err)
			}
		}
	}

	file, err := os.OpenFile(s.Path(), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("%w: opening spool: %w", ErrDeliveryFailed, err)
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("%w: writing spool: %w", ErrDeliveryFailed, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: closing spool: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// rotate compresses the live file into the rotated generation through
// a temporary file and removes the live file.
func (s *SpoolSink) rotate() error {
	source, err := os.Open(s.Path())
	if err != nil {
		return err
	}
	defer source.Close()

	temporary, err := os.CreateTemp(s.directory, rotatedSpool+".tmp-*")
	if err != nil {
		return err
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	encoder, err := zstd.NewWriter(temporary, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		temporary.Close()
		return err
	}
	if _, err := io.Copy(encoder, source); err != nil {
		encoder.Close()
		temporary.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		temporary.Close()
		return err
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	if err := os.Rename(temporaryPath, s.RotatedPath()); err != nil {
		return err
	}
	return os.Remove(s.Path())
}

// ReadSpool returns the records in the rotated generation followed by
// the live file, oldest first. Missing files contribute nothing.
func ReadSpool(directory string) ([]Record, error) {
	var records []Record

	rotated, err := os.Open(filepath.Join(directory, rotatedSpool))
	switch {
	case err == nil:
		decoder, err := zstd.NewReader(rotated)
		if err != nil {
			rotated.Close()
			return nil, fmt.Errorf("opening rotated spool: %w", err)
		}
		records, err = decodeLines(decoder, records)
		decoder.Close()
		rotated.Close()
		if err != nil {
			return nil, fmt.Errorf("reading rotated spool: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	live, err := os.Open(filepath.Join(directory, spoolFile))
	switch {
	case err == nil:
		defer live.Close()
		records, err = decodeLines(live, records)
		if err != nil {
			return nil, fmt.Errorf("reading spool: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}
	return records, nil
}

func decodeLines(reader io.Reader, records []Record) ([]Record, error) {
	decoder := json.NewDecoder(reader)
	for {
		var record Record
		err := decoder.Decode(&record)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

// FallbackSink delivers to Primary and, when that fails, to Fallback.
type FallbackSink struct {
	Primary  Sink
	Fallback Sink
	Logger   *slog.Logger
}

// Deliver tries Primary then Fallback. It fails only when both do.
func (s FallbackSink) Deliver(ctx context.Context, record Record) error {
	primaryErr := s.Primary.Deliver(ctx, record)
	if primaryErr == nil {
		return nil
	}
	if s.Fallback == nil {
		return primaryErr
	}
	// The primary may have used up ctx; the spool is local and fast.
	fallbackErr := s.Fallback.Deliver(context.WithoutCancel(ctx), record)
	if fallbackErr != nil {
		return errors.Join(primaryErr, fallbackErr)
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("audit record spooled after primary sink failed",
		"error", primaryErr,
		"id", record.ID,
		"sequence", record.Sequence,
	)
	return nil
}
