// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"runtime"
	"time"

	"github.com/wardenhq/warden/lib/clock"
)

// AdvanceUntil advances fake by step whenever a timer is pending,
// until ch delivers a value. Use it to drive a poll loop (readiness,
// graceful exit, marker waits) through its timeouts without real
// sleeps. Fails the test if ch stays silent for 10 wall-clock seconds.
//
//	done := make(chan error, 1)
//	go func() { done <- controller.Start(ctx) }()
//	err := testutil.AdvanceUntil(t, fake, time.Second, done)
func AdvanceUntil[T any](t TB, fake *clock.FakeClock, step time.Duration, ch <-chan T) T {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second) //nolint:realclock test hang prevention
	for {
		select {
		case v := <-ch:
			return v
		default:
		}
		if time.Now().After(deadline) { //nolint:realclock test hang prevention
			t.Fatalf("operation did not finish while advancing the fake clock")
		}
		if fake.PendingCount() > 0 {
			fake.Advance(step)
		} else {
			runtime.Gosched()
		}
	}
}
