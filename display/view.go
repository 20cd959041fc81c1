// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"sync"
	"time"

	"github.com/fastline-hq/display/panelapi"
)

// DeviceView is the reconciled state the screen renders: the queues of
// one device, replaced wholesale on every accepted snapshot.
type DeviceView struct {
	DeviceID string                   `json:"deviceId" cbor:"device_id"`
	ClinicID string                   `json:"clinicId" cbor:"clinic_id"`
	Queues   []panelapi.QueueSnapshot `json:"queues" cbor:"queues"`
	// UpdatedAt is when this view was accepted from the server (or
	// loaded from the on-disk cache after a restart).
	UpdatedAt time.Time `json:"updatedAt" cbor:"updated_at"`
}

// View is the single authoritative holder of the DeviceView. All
// snapshot results funnel through Apply; there is no partial-field
// reconciliation anywhere, by construction.
//
// Concurrent snapshot fetches can complete out of order, so Apply
// carries a generation number handed out by BeginFetch: a response
// whose fetch began before an already-accepted one is discarded, never
// letting older data clobber fresher state.
type View struct {
	mu           sync.Mutex
	view         DeviceView
	haveSnapshot bool
	nextGen      uint64
	lastAccepted uint64
}

// NewView returns an empty View.
func NewView() *View {
	return &View{}
}

// BeginFetch reserves a generation for a snapshot fetch that is about
// to start. Pass the returned value to Apply with the result.
func (v *View) BeginFetch() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextGen++
	return v.nextGen
}

// Apply replaces the held queues with a fetched snapshot. Returns
// false, leaving the view untouched, when a fetch of a later
// generation has already been accepted.
func (v *View) Apply(generation uint64, snapshot *panelapi.DeviceSnapshot, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if generation <= v.lastAccepted {
		return false
	}
	v.lastAccepted = generation

	v.view = DeviceView{
		DeviceID:  snapshot.DeviceID,
		ClinicID:  snapshot.ClinicID,
		Queues:    snapshot.Queues,
		UpdatedAt: now,
	}
	v.haveSnapshot = true
	return true
}

// Seed installs a cached view from a previous run without consuming a
// generation, so the very first live fetch always supersedes it. Does
// nothing once a live snapshot has been accepted.
func (v *View) Seed(cached DeviceView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.haveSnapshot {
		return
	}
	v.view = cached
	v.haveSnapshot = true
}

// Current returns a copy of the held view and whether any snapshot
// (live or cached) has ever been installed.
func (v *View) Current() (DeviceView, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view, v.haveSnapshot
}
