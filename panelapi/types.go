// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package panelapi

import "time"

// TicketStatus is the server-owned lifecycle state of a ticket. The
// client never transitions a ticket locally; it only reflects what the
// server reports.
type TicketStatus string

const (
	StatusWaiting   TicketStatus = "WAITING"
	StatusCalled    TicketStatus = "CALLED"
	StatusInService TicketStatus = "IN_SERVICE"
	StatusFinished  TicketStatus = "FINISHED"
	StatusCancelled TicketStatus = "CANCELLED"
	StatusNoShow    TicketStatus = "NO_SHOW"
)

// Ticket is one queued request for service. ID is immutable; Status
// and the timestamps are set exclusively by the server.
type Ticket struct {
	ID               string       `json:"id"`
	DisplayCode      string       `json:"displayCode"`
	Status           TicketStatus `json:"status"`
	ServicePointName string       `json:"servicePointName,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	CalledAt         *time.Time   `json:"calledAt,omitempty"`
}

// QueueStats carries the per-queue counters shown in the panel footer.
type QueueStats struct {
	WaitingCount   int `json:"waitingCount"`
	InServiceCount int `json:"inServiceCount"`
	EtaMinutes     int `json:"etaMinutes"`
}

// QueueSnapshot is one queue's slice of a device snapshot: the ticket
// currently being called, the head of the waiting line, and the most
// recently called tickets. Bounded by the waitingLimit/recentLimit
// query parameters of the snapshot fetch.
type QueueSnapshot struct {
	QueueID      string     `json:"queueId"`
	Current      *Ticket    `json:"current,omitempty"`
	WaitingTop   []Ticket   `json:"waitingTop"`
	RecentCalled []Ticket   `json:"recentCalled"`
	Stats        QueueStats `json:"stats"`
}

// DeviceSnapshot is a full, server-consistent point-in-time view of
// every queue assigned to a device. It is always consumed wholesale;
// there is no field-level merging anywhere in the client.
type DeviceSnapshot struct {
	DeviceID string          `json:"deviceId"`
	ClinicID string          `json:"clinicId"`
	Queues   []QueueSnapshot `json:"queues"`
}

// PairDeviceResponse is the result of exchanging a pairing code for a
// durable device key.
type PairDeviceResponse struct {
	DeviceID string `json:"deviceId"`
	APIKey   string `json:"apiKey"`
}

// LoginResponse is the result of an admin password login. The display
// agent itself never logs in; the admin views sharing this client do.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is the access token expiry in epoch seconds.
	ExpiresAt int64  `json:"expiresAt"`
	TenantID  string `json:"tenantId"`
	UserID    string `json:"userId"`
}

// RefreshResponse is the result of exchanging a refresh token for a
// new access token.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	// ExpiresAt is the new expiry in epoch seconds.
	ExpiresAt int64 `json:"expiresAt"`
}

// Event types the server pushes on the device event stream.
const (
	EventTicketCreated   = "ticket.created"
	EventTicketUpdate    = "ticket.update"
	EventTicketCalled    = "ticket.called"
	EventTicketStarted   = "ticket.started"
	EventTicketFinished  = "ticket.finished"
	EventTicketCancelled = "ticket.cancelled"
	EventTicketNoShow    = "ticket.no_show"
)

// StreamEvent is one typed event from the device event stream.
//
// When the server's payload fails to parse, Malformed is true and the
// Ticket and identifier fields are zero. The event still reaches the
// consumer: the engine's reaction to every event is a full snapshot
// refetch, so a malformed payload degrades nothing beyond logging.
type StreamEvent struct {
	Type      string `json:"-"`
	Ticket    Ticket `json:"ticket"`
	QueueID   string `json:"queueId"`
	ClinicID  string `json:"clinicId"`
	Malformed bool   `json:"-"`
}
