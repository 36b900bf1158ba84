// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDeliveryFailed marks a record that could not be delivered to a
// sink. It is logged, never returned from [Logger.Record].
var ErrDeliveryFailed = errors.New("audit delivery failed")

// Sink delivers records somewhere durable or visible.
type Sink interface {
	Deliver(ctx context.Context, record Record) error
}

// LoggerConfig configures a Logger.
type LoggerConfig struct {
	Sink Sink

	// QueueSize bounds records awaiting delivery. Zero means 256.
	QueueSize int

	// DeliveryTimeout bounds one delivery. Zero means 10 seconds.
	DeliveryTimeout time.Duration

	Logger *slog.Logger
}

// Logger queues records for asynchronous delivery.
type Logger struct {
	sink            Sink
	deliveryTimeout time.Duration
	logger          *slog.Logger

	sequence atomic.Uint64

	mu     sync.RWMutex
	closed bool
	queue  chan Record
	done   chan struct{}

	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewLogger starts a Logger's delivery worker. Call Close to stop it.
func NewLogger(config LoggerConfig) *Logger {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	l := &Logger{
		sink:            config.Sink,
		deliveryTimeout: config.DeliveryTimeout,
		logger:          config.Logger,
		queue:           make(chan Record, config.QueueSize),
		done:            make(chan struct{}),
	}
	go l.run()
	return l
}

// NextSequence returns the next invocation sequence number, starting
// at 1. Take it when the invocation arrives.
func (l *Logger) NextSequence() uint64 {
	return l.sequence.Add(1)
}

// Record queues record for delivery and returns immediately. When the
// queue is full or the logger is closed the record is dropped and the
// drop is logged.
func (l *Logger) Record(record Record) {
	if record.ID == "" {
		record.ID = NewID()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.drop(record, "logger closed")
		return
	}
	select {
	case l.queue <- record:
	default:
		l.drop(record, "queue full")
	}
}

func (l *Logger) drop(record Record, reason string) {
	l.dropped.Add(1)
	l.logger.Warn("audit record dropped",
		"reason", reason,
		"id", record.ID,
		"sequence", record.Sequence,
		"command", record.CommandKey,
		"outcome", record.Outcome.Kind.String(),
	)
}

func (l *Logger) run() {
	defer close(l.done)
	for record := range l.queue {
		l.deliver(record)
	}
}

func (l *Logger) deliver(record Record) {
	if l.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.deliveryTimeout)
	defer cancel()

	err := l.sink.Deliver(ctx, record)
	if err == nil {
		l.delivered.Add(1)
		return
	}
	l.failed.Add(1)
	if !errors.Is(err, ErrDeliveryFailed) {
		err = errors.Join(ErrDeliveryFailed, err)
	}
	l.logger.Error("audit delivery failed",
		"error", err,
		"id", record.ID,
		"sequence", record.Sequence,
		"command", record.CommandKey,
		"outcome", record.Outcome.Kind.String(),
	)
}

// Stats counts records by fate since the logger started.
type Stats struct {
	Delivered uint64
	Failed    uint64
	Dropped   uint64
}

// Stats returns delivery counters.
func (l *Logger) Stats() Stats {
	return Stats{
		Delivered: l.delivered.Load(),
		Failed:    l.failed.Load(),
		Dropped:   l.dropped.Load(),
	}
}

// Close stops accepting records and waits for queued ones to be
// delivered, or for ctx to end.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
