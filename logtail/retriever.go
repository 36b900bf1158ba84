// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package logtail

import (
	"context"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/lib/clock"
)

// Source yields the last lines of console output, oldest first. When
// ctx ends mid-read a source returns the lines it has along with the
// context error.
type Source interface {
	Lines(ctx context.Context, maxLines int) ([]string, error)
}

// Result is the outcome of a tail.
type Result struct {
	// Lines are the most recent lines, oldest first.
	Lines []string

	// Incomplete is set when the read timed out or failed; Lines holds
	// whatever was read.
	Incomplete bool
}

// Retriever tails a Source under a read timeout.
type Retriever struct {
	source      Source
	readTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// RetrieverConfig configures a Retriever.
type RetrieverConfig struct {
	Source Source

	// ReadTimeout bounds a single Tail. Zero means 2 seconds.
	ReadTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// NewRetriever returns a Retriever over config.Source.
func NewRetriever(config RetrieverConfig) *Retriever {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 2 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Retriever{
		source:      config.Source,
		readTimeout: config.ReadTimeout,
		clock:       config.Clock,
		logger:      config.Logger,
	}
}

// Tail returns up to maxLines of the most recent output, oldest first.
// It never blocks longer than the read timeout.
func (r *Retriever) Tail(ctx context.Context, maxLines int) Result {
	if maxLines <= 0 {
		return Result{}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type read struct {
		lines []string
		err   error
	}
	done := make(chan read, 1)
	go func() {
		lines, err := r.source.Lines(ctx, maxLines)
		done <- read{lines, err}
	}()

	var got read
	select {
	case got = <-done:
	case <-r.clock.After(r.readTimeout):
		cancel()
		// Sources stop promptly on cancellation; give them a moment to
		// hand back what they read.
		select {
		case got = <-done:
		case <-r.clock.After(r.readTimeout / 4):
			r.logger.Warn("log read did not stop after timeout", "timeout", r.readTimeout)
			return Result{Incomplete: true}
		}
		if got.err == nil {
			got.err = context.DeadlineExceeded
		}
	}

	result := Result{Lines: got.lines}
	if len(result.Lines) > maxLines {
		result.Lines = result.Lines[len(result.Lines)-maxLines:]
	}
	if got.err != nil {
		r.logger.Warn("log read incomplete", "error", got.err, "lines", len(result.Lines))
		result.Incomplete = true
	}
	return result
}
