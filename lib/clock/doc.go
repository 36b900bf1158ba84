// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every bounded wait in Warden.
//
// Readiness polls, graceful-exit polls, console settle delays, audit
// retry backoff and confirmation expiry all read time through a Clock
// rather than the time package. Production wiring passes Real(); tests
// pass Fake() and drive deadlines with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	controller := session.NewController(backend, probe, config, fake, logger)
//	go controller.Start(ctx)
//	fake.WaitForTimers(1)          // the poll loop is parked
//	fake.Advance(2 * time.Second) // release it deterministically
package clock
