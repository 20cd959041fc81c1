// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"strings"
	"sync"
	"time"
)

// announcementHistorySize bounds the in-memory announcement history.
// The renderer polls with a sequence cursor; 64 entries is far more
// than it can fall behind between polls.
const announcementHistorySize = 64

// Announcement is one audible call-out: a ticket became current on a
// queue. Seq increases monotonically for the life of the process so
// the renderer can ask for "everything after N".
type Announcement struct {
	Seq              uint64    `json:"seq"`
	QueueID          string    `json:"queueId"`
	TicketID         string    `json:"ticketId"`
	DisplayCode      string    `json:"displayCode"`
	ServicePointName string    `json:"servicePointName,omitempty"`
	Text             string    `json:"text"`
	At               time.Time `json:"at"`
}

// Announcer decides, per queue, whether a view update warrants a new
// call-out, and guarantees at most one announcement per distinct
// (queue, ticket) becoming-current transition for the life of the
// device session.
type Announcer struct {
	mu sync.Mutex
	// lastAnnounced maps queue ID to the ticket ID most recently
	// announced on it. Entries are never cleared when a queue's
	// current goes empty: a ticket that disappears and reappears
	// unchanged must not re-announce.
	lastAnnounced map[string]string
	history       []Announcement
	nextSeq       uint64

	// onAnnounce fires for each new announcement. Optional. Called
	// under the announcer's lock; must not call back in.
	onAnnounce func(Announcement)
}

// NewAnnouncer creates an Announcer. observer may be nil.
func NewAnnouncer(observer func(Announcement)) *Announcer {
	return &Announcer{
		lastAnnounced: make(map[string]string),
		onAnnounce:    observer,
	}
}

// Observe inspects an accepted view update and fires an announcement
// for every queue whose current ticket is present and differs from the
// last one announced there. Returns the announcements fired, oldest
// first.
func (a *Announcer) Observe(view DeviceView, now time.Time) []Announcement {
	a.mu.Lock()
	defer a.mu.Unlock()

	var fired []Announcement
	for _, queue := range view.Queues {
		current := queue.Current
		if current == nil || current.ID == "" {
			continue
		}
		if a.lastAnnounced[queue.QueueID] == current.ID {
			continue
		}
		a.lastAnnounced[queue.QueueID] = current.ID

		a.nextSeq++
		announcement := Announcement{
			Seq:              a.nextSeq,
			QueueID:          queue.QueueID,
			TicketID:         current.ID,
			DisplayCode:      current.DisplayCode,
			ServicePointName: current.ServicePointName,
			Text:             SpeechText(current.DisplayCode, current.ServicePointName),
			At:               now,
		}
		a.history = append(a.history, announcement)
		if len(a.history) > announcementHistorySize {
			a.history = a.history[len(a.history)-announcementHistorySize:]
		}
		fired = append(fired, announcement)

		if a.onAnnounce != nil {
			a.onAnnounce(announcement)
		}
	}
	return fired
}

// Prime records a view's current tickets as already announced without
// firing anything. Used when restoring a cached view after a restart:
// the ticket on screen was called before the restart and must not be
// called again.
func (a *Announcer) Prime(view DeviceView) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, queue := range view.Queues {
		if queue.Current != nil && queue.Current.ID != "" {
			a.lastAnnounced[queue.QueueID] = queue.Current.ID
		}
	}
}

// Since returns the retained announcements with Seq greater than seq,
// oldest first. Pass 0 for everything retained.
func (a *Announcer) Since(seq uint64) []Announcement {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := len(a.history)
	for i, announcement := range a.history {
		if announcement.Seq > seq {
			start = i
			break
		}
	}
	out := make([]Announcement, len(a.history)-start)
	copy(out, a.history[start:])
	return out
}

// SpeechText builds the pt-BR sentence handed to the speech
// synthesizer: the display code spelled out character by character so
// "A042" is read as a call sign rather than a word, plus the
// destination service point when the ticket has one.
func SpeechText(displayCode, servicePointName string) string {
	var sentence strings.Builder
	sentence.WriteString("Senha ")
	sentence.WriteString(spellOut(displayCode))
	sentence.WriteString(".")
	if servicePointName != "" {
		sentence.WriteString(" Dirija-se a ")
		sentence.WriteString(servicePointName)
		sentence.WriteString(".")
	}
	return sentence.String()
}

// spellOut separates every character with a space: "A042" → "A 0 4 2".
func spellOut(code string) string {
	runes := []rune(code)
	parts := make([]string, len(runes))
	for i, r := range runes {
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}
