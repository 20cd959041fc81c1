// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"testing"
	"time"

	"github.com/fastline-hq/display/panelapi"
)

func viewWithCurrent(queueID, ticketID, displayCode, servicePoint string) DeviceView {
	var current *panelapi.Ticket
	if ticketID != "" {
		current = &panelapi.Ticket{
			ID:               ticketID,
			DisplayCode:      displayCode,
			Status:           panelapi.StatusCalled,
			ServicePointName: servicePoint,
		}
	}
	return DeviceView{
		DeviceID: "dev-1",
		Queues: []panelapi.QueueSnapshot{
			{QueueID: queueID, Current: current},
		},
	}
}

func TestAnnouncerFiresOncePerTicketChange(t *testing.T) {
	announcer := NewAnnouncer(nil)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Sequence of currents on one queue: T1, T1, T2, T1, T2.
	sequence := []string{"t1", "t1", "t2", "t1", "t2"}
	var total int
	for _, ticketID := range sequence {
		fired := announcer.Observe(viewWithCurrent("q1", ticketID, "A001", ""), now)
		total += len(fired)
	}
	if total != 5-1 {
		// t1 announced, t1 repeat suppressed, then every change fires.
		t.Fatalf("got %d announcements, want 4", total)
	}
}

func TestAnnouncerRepeatSuppressed(t *testing.T) {
	announcer := NewAnnouncer(nil)
	now := time.Now()

	first := announcer.Observe(viewWithCurrent("q1", "t1", "A042", "Consultório 3"), now)
	if len(first) != 1 {
		t.Fatalf("first observation fired %d announcements, want 1", len(first))
	}
	repeat := announcer.Observe(viewWithCurrent("q1", "t1", "A042", "Consultório 3"), now)
	if len(repeat) != 0 {
		t.Fatalf("unchanged current fired %d announcements, want 0", len(repeat))
	}
}

func TestAnnouncerAbsentCurrentDoesNotReset(t *testing.T) {
	announcer := NewAnnouncer(nil)
	now := time.Now()

	announcer.Observe(viewWithCurrent("q1", "t1", "A001", ""), now)
	// Current goes empty, then the same ticket reappears. The gap
	// must not cause a second announcement.
	announcer.Observe(viewWithCurrent("q1", "", "", ""), now)
	fired := announcer.Observe(viewWithCurrent("q1", "t1", "A001", ""), now)
	if len(fired) != 0 {
		t.Fatalf("reappearing ticket fired %d announcements, want 0", len(fired))
	}
}

func TestAnnouncerIndependentQueues(t *testing.T) {
	announcer := NewAnnouncer(nil)
	now := time.Now()

	view := DeviceView{
		Queues: []panelapi.QueueSnapshot{
			{QueueID: "q1", Current: &panelapi.Ticket{ID: "t1", DisplayCode: "A001"}},
			{QueueID: "q2", Current: &panelapi.Ticket{ID: "t1", DisplayCode: "B001"}},
		},
	}
	fired := announcer.Observe(view, now)
	if len(fired) != 2 {
		t.Fatalf("two queues fired %d announcements, want 2", len(fired))
	}
}

func TestAnnouncerPrimeSilencesCachedCurrent(t *testing.T) {
	announcer := NewAnnouncer(nil)
	now := time.Now()

	cached := viewWithCurrent("q1", "t1", "A001", "")
	announcer.Prime(cached)

	// The first live snapshot shows the same ticket: nothing fires.
	fired := announcer.Observe(cached, now)
	if len(fired) != 0 {
		t.Fatalf("primed ticket fired %d announcements, want 0", len(fired))
	}
	// A genuinely new ticket still fires.
	fired = announcer.Observe(viewWithCurrent("q1", "t2", "A002", ""), now)
	if len(fired) != 1 {
		t.Fatalf("new ticket after prime fired %d announcements, want 1", len(fired))
	}
}

func TestAnnouncerObserverCallback(t *testing.T) {
	var seen []Announcement
	announcer := NewAnnouncer(func(a Announcement) { seen = append(seen, a) })

	announcer.Observe(viewWithCurrent("q1", "t1", "A042", "Consultório 3"), time.Now())
	if len(seen) != 1 {
		t.Fatalf("observer saw %d announcements, want 1", len(seen))
	}
	if seen[0].DisplayCode != "A042" || seen[0].QueueID != "q1" {
		t.Fatalf("observer saw %+v", seen[0])
	}
}

func TestAnnouncerSince(t *testing.T) {
	announcer := NewAnnouncer(nil)
	now := time.Now()

	announcer.Observe(viewWithCurrent("q1", "t1", "A001", ""), now)
	announcer.Observe(viewWithCurrent("q1", "t2", "A002", ""), now)
	announcer.Observe(viewWithCurrent("q1", "t3", "A003", ""), now)

	all := announcer.Since(0)
	if len(all) != 3 {
		t.Fatalf("Since(0) returned %d, want 3", len(all))
	}
	if all[0].Seq != 1 || all[2].Seq != 3 {
		t.Fatalf("sequence numbers %d..%d, want 1..3", all[0].Seq, all[2].Seq)
	}

	tail := announcer.Since(all[1].Seq)
	if len(tail) != 1 || tail[0].TicketID != "t3" {
		t.Fatalf("Since(%d) returned %+v", all[1].Seq, tail)
	}
}

func TestAnnouncerHistoryBounded(t *testing.T) {
	announcer := NewAnnouncer(nil)
	now := time.Now()

	for i := 0; i < announcementHistorySize+10; i++ {
		ticketID := "t" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		announcer.Observe(viewWithCurrent("q1", ticketID, "A001", ""), now)
	}
	all := announcer.Since(0)
	if len(all) != announcementHistorySize {
		t.Fatalf("history holds %d entries, want %d", len(all), announcementHistorySize)
	}
	// Oldest retained entry is the 11th ever fired.
	if all[0].Seq != 11 {
		t.Fatalf("oldest retained seq %d, want 11", all[0].Seq)
	}
}

func TestSpeechText(t *testing.T) {
	got := SpeechText("A042", "Consultório 3")
	want := "Senha A 0 4 2. Dirija-se a Consultório 3."
	if got != want {
		t.Fatalf("SpeechText = %q, want %q", got, want)
	}
}

func TestSpeechTextNoServicePoint(t *testing.T) {
	got := SpeechText("B007", "")
	want := "Senha B 0 0 7."
	if got != want {
		t.Fatalf("SpeechText = %q, want %q", got, want)
	}
}
