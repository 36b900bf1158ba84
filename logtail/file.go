// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package logtail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/x/ansi"
)

// chunkSize is how much of the file is read per backwards step.
const chunkSize = 64 << 10

// FileSource reads a console log file. Terminal escape sequences are
// stripped from every line.
type FileSource struct {
	// Path is the live log file.
	Path string

	// Rotated, if set, is the file Path is rotated to (for example
	// "console.log.1"). It supplies older lines when Path is short.
	Rotated string

	// afterLiveRead runs between reading the live file and checking it
	// for replacement.
	afterLiveRead func()
}

// Lines returns the last maxLines lines across the rotated and live
// files. A missing live file yields no lines and no error.
func (s FileSource) Lines(ctx context.Context, maxLines int) ([]string, error) {
	lines, followed, err := s.readLive(ctx, maxLines)
	if err != nil {
		return clean(lines), err
	}
	// After following a replacement the old live file is the rotated
	// one, and its lines are already in hand.
	if len(lines) < maxLines && s.Rotated != "" && !followed {
		older, err := tailFile(ctx, s.Rotated, maxLines-len(lines))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return clean(lines), err
		}
		lines = append(older, lines...)
	}
	return clean(lines), nil
}

// readLive tails Path. If Path is replaced while it is being read, the
// replacement's lines are appended to what the old file yielded and
// followed is true.
func (s FileSource) readLive(ctx context.Context, maxLines int) (lines []string, followed bool, err error) {
	file, err := os.Open(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening log: %w", err)
	}
	defer file.Close()

	opened, err := file.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("stat log: %w", err)
	}
	lines, err = tailOpen(ctx, file, opened.Size(), maxLines)
	if err != nil {
		return lines, false, err
	}
	if s.afterLiveRead != nil {
		s.afterLiveRead()
	}

	current, err := os.Stat(s.Path)
	if err != nil || os.SameFile(opened, current) {
		// Deleted and not yet recreated, or not rotated: what we read
		// is everything there is.
		return lines, false, nil
	}
	replacement, err := tailFile(ctx, s.Path, maxLines)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return lines, true, err
	}
	lines = append(lines, replacement...)
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, true, nil
}

func tailFile(ctx context.Context, path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	return tailOpen(ctx, file, info.Size(), maxLines)
}

// tailOpen reads file backwards from size in chunks until it holds
// maxLines complete lines or reaches the start. On cancellation it
// returns the complete lines read so far.
func tailOpen(ctx context.Context, file io.ReaderAt, size int64, maxLines int) ([]string, error) {
	var buffer []byte
	offset := size
	for offset > 0 {
		if err := ctx.Err(); err != nil {
			return completeLines(buffer, false, maxLines), err
		}
		step := int64(chunkSize)
		if offset < step {
			step = offset
		}
		offset -= step
		chunk := make([]byte, step)
		n, err := file.ReadAt(chunk, offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return completeLines(buffer, false, maxLines), fmt.Errorf("reading log: %w", err)
		}
		if int64(n) < step {
			// Truncated underneath us (copytruncate rotation).
			return completeLines(append(chunk[:n], buffer...), false, maxLines), nil
		}
		buffer = append(chunk, buffer...)
		if bytes.Count(buffer, []byte{'\n'}) > maxLines {
			break
		}
	}
	return completeLines(buffer, offset == 0, maxLines), nil
}

// completeLines splits buffer into lines and returns the last
// maxLines. Unless atStart, the first line may be partial and is
// dropped.
func completeLines(buffer []byte, atStart bool, maxLines int) []string {
	lines := splitLines(string(buffer))
	if !atStart && len(lines) > 0 {
		lines = lines[1:]
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines
}

func clean(lines []string) []string {
	for i, line := range lines {
		lines[i] = ansi.Strip(line)
	}
	return lines
}
