// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

// Package panelapi is the client for the FastLine server API as seen
// by a display device and the admin session machinery that shares its
// HTTP transport.
//
// [Client] is an explicit client object constructed once at process
// start and passed by reference, never as a package-level singleton.
// Device operations (PairDevice, Unpair, Snapshot) authenticate with
// the device key carried in the URL path; admin operations (Login,
// RefreshSession) use a bearer token or none.
//
// [EventStream] holds the one persistent server-sent-events connection
// per device key. It is an explicit state machine: Run drives
// connecting → connected → disconnected transitions through the
// OnState observer, redials with bounded exponential backoff, and
// feeds every typed ticket event through OnEvent, including ones whose
// payload failed to parse. Consumers react to every event and every
// reconnect identically, by refetching a full snapshot; nothing in
// this package merges event payloads into view state.
//
// All server errors surface as [*APIError] carrying the HTTP status,
// so 401-revocation detection works uniformly across operations via
// [IsUnauthorized].
package panelapi
