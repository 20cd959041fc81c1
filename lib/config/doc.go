// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the display
// agent.
//
// Configuration is loaded from a single file specified by either the
// FASTLINE_DISPLAY_CONFIG environment variable (via [Load]) or a
// --config flag (via [LoadFile]). There are no fallbacks and no
// automatic file search; when nothing is specified, [Default] values
// apply. This keeps a kiosk's effective configuration deterministic
// and auditable.
//
// Durations are expressed as integer-second fields in the file and
// exposed as time.Duration through accessor methods.
package config
