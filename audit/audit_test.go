// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wardenhq/warden/lib/testutil"
)

// recordingSink collects delivered records. If gate is set, each
// delivery waits for it.
type recordingSink struct {
	mu      sync.Mutex
	records []Record
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (s *recordingSink) Deliver(ctx context.Context, record Record) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) delivered() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// lockedBuffer is a bytes.Buffer safe for a logger's goroutines.
type lockedBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

func testLogger() (*slog.Logger, *lockedBuffer) {
	buffer := &lockedBuffer{}
	return slog.New(slog.NewTextHandler(buffer, nil)), buffer
}

func closeLogger(t *testing.T, logger *Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := logger.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLoggerDeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	logger := NewLogger(LoggerConfig{Sink: sink})

	for range 5 {
		logger.Record(Record{Sequence: logger.NextSequence(), CommandKey: "startserver"})
	}
	closeLogger(t, logger)

	records := sink.delivered()
	if len(records) != 5 {
		t.Fatalf("delivered %d records, want 5", len(records))
	}
	for i, record := range records {
		if record.Sequence != uint64(i+1) {
			t.Errorf("record %d has sequence %d", i, record.Sequence)
		}
		if record.ID == "" {
			t.Errorf("record %d has no id", i)
		}
	}
	if stats := logger.Stats(); stats.Delivered != 5 || stats.Dropped != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestLoggerRecordNeverBlocks(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{}), entered: make(chan struct{}, 16)}
	slogger, output := testLogger()
	logger := NewLogger(LoggerConfig{Sink: sink, QueueSize: 2, Logger: slogger})

	logger.Record(Record{Sequence: 1})
	testutil.RequireReceive(t, sink.entered, 5*time.Second, "worker did not pick up the first record")

	done := make(chan struct{})
	go func() {
		for i := 2; i <= 10; i++ {
			logger.Record(Record{Sequence: uint64(i)})
		}
		close(done)
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "Record blocked on a stalled sink")

	if stats := logger.Stats(); stats.Dropped != 7 {
		t.Fatalf("dropped %d records, want 7", stats.Dropped)
	}
	if !bytes.Contains([]byte(output.String()), []byte("queue full")) {
		t.Fatalf("drop not logged: %s", output.String())
	}

	close(sink.gate)
	closeLogger(t, logger)
}

func TestLoggerDeliveryFailureStaysLocal(t *testing.T) {
	sink := &recordingSink{err: errors.New("webhook unreachable")}
	slogger, output := testLogger()
	logger := NewLogger(LoggerConfig{Sink: sink, Logger: slogger})

	logger.Record(Record{Sequence: 1, CommandKey: "startserver"})
	closeLogger(t, logger)

	if stats := logger.Stats(); stats.Failed != 1 {
		t.Fatalf("stats = %+v, want one failure", stats)
	}
	if !bytes.Contains([]byte(output.String()), []byte(ErrDeliveryFailed.Error())) {
		t.Fatalf("failure not logged: %s", output.String())
	}
}

func TestLoggerAfterClose(t *testing.T) {
	sink := &recordingSink{}
	logger := NewLogger(LoggerConfig{Sink: sink})
	closeLogger(t, logger)

	logger.Record(Record{Sequence: 1})
	if stats := logger.Stats(); stats.Dropped != 1 {
		t.Fatalf("stats = %+v, want one drop", stats)
	}
	closeLogger(t, logger)
}

func TestFallbackSink(t *testing.T) {
	primary := &recordingSink{err: errors.New("down")}
	fallback := &recordingSink{}
	sink := FallbackSink{Primary: primary, Fallback: fallback}

	if err := sink.Deliver(context.Background(), Record{Sequence: 3}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := fallback.delivered(); len(got) != 1 || got[0].Sequence != 3 {
		t.Fatalf("fallback records = %+v", got)
	}

	fallback.err = errors.New("disk full")
	if err := sink.Deliver(context.Background(), Record{Sequence: 4}); err == nil {
		t.Fatal("Deliver succeeded with both sinks failing")
	}
}

func TestSummarizeArgs(t *testing.T) {
	if got := SummarizeArgs([2]string{"force", "true"}, [2]string{"state", "private"}); got != "force=true state=private" {
		t.Fatalf("SummarizeArgs = %q", got)
	}
	long := SummarizeArgs([2]string{"command", string(bytes.Repeat([]byte("x"), 500))})
	if len([]rune(long)) != maxArgsSummary {
		t.Fatalf("long summary has %d runes", len([]rune(long)))
	}
}

func TestLogSinkWritesRecord(t *testing.T) {
	logger, buffer := testLogger()
	record := Record{Sequence: 9, CallerID: "42", CommandKey: "startserver", Outcome: Outcome{Kind: Denied, Reason: "authorization denied"}}
	if err := (LogSink{Logger: logger}).Deliver(context.Background(), record); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	for _, want := range []string{"sequence=9", "command=startserver", "outcome=denied", `reason="authorization denied"`} {
		if !strings.Contains(buffer.String(), want) {
			t.Errorf("log %q lacks %q", buffer.String(), want)
		}
	}
}
