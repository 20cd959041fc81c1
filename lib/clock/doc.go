// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that timer-driven
// behavior (token refresh intervals, periodic resync, stream reconnect
// backoff) can be tested without real sleeps.
//
// Production code takes a [Clock] parameter and is given [Real].
// Tests construct a [FakeClock] with [Fake] and call
// [FakeClock.Advance] to fire pending timers deterministically.
package clock
