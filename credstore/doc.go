// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists the display device's credentials in a
// local SQLite database: the long-lived device API key, the admin
// session token triple (access, refresh, expiry), and the remembered
// admin email.
//
// The device key has one loading rule beyond plain storage: a value
// short enough to be a 6-character pairing code is reported as absent,
// because a pairing code mistaken for a key can only ever produce
// 401s. This package is the single writer of the persisted key; the
// pairing manager and the engine read through it and never touch the
// database directly.
package credstore
