// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

// Package display implements the device-side synchronization engine
// for FastLine queue panels: the pairing state machine that turns a
// short code into a persistent device credential, the reconciliation
// loop that keeps a local copy of the server's queue snapshot current,
// the announcement deduper that decides which newly called tickets are
// spoken aloud, and a small on-disk cache so a restarted panel shows
// the previous state before its first snapshot arrives.
//
// The engine treats server push events purely as refetch triggers.
// Event payloads are never applied to the view directly; every update
// path converges on fetching the full snapshot, which makes missed or
// reordered events harmless.
package display
