// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

// Package session keeps a stored admin login alive on behalf of the
// admin views that share the display device. The display agent's own
// identity is the device key and never expires; only the optional
// operator session carries short-lived tokens that need refreshing.
package session
