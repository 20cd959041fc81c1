// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package panelapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fastline-hq/display/lib/clock"
)

// StreamState is the connection state of an EventStream. Transitions
// are strictly connecting → connected → disconnected → (backoff) →
// connecting; observers receive every transition in order.
type StreamState int

const (
	// StreamConnecting means a connection attempt is in flight.
	StreamConnecting StreamState = iota
	// StreamConnected means the server accepted the stream and events
	// may arrive at any moment.
	StreamConnected
	// StreamDisconnected means the stream is down and a reconnect is
	// pending. Events may have been missed; the consumer must treat
	// the next connect as a gap and resynchronize from a snapshot.
	StreamDisconnected
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// defaultStreamBackoff bounds the reconnect delay when StreamConfig
// leaves the backoff fields zero: 1 second doubling to 30 seconds.
// The transport's own retry behavior is deliberately not relied on —
// kiosk hardware runs unattended for days and needs an explicit,
// bounded policy.
const (
	defaultStreamBackoffInitial = time.Second
	defaultStreamBackoffMax     = 30 * time.Second
)

// maxStreamLineSize bounds a single SSE line: 1 MB. Event payloads are
// one ticket plus identifiers; the bound guards against a runaway
// server, not legitimate traffic.
const maxStreamLineSize = 1 << 20

// StreamConfig configures an EventStream.
type StreamConfig struct {
	// DeviceKey authenticates the stream via the URL path.
	DeviceKey string

	// InitialBackoff and MaxBackoff bound the exponential reconnect
	// delay. Zero values select the 1s/30s defaults.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Clock drives the backoff timer. If nil, clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. If nil, the parent
	// client's logger.
	Logger *slog.Logger

	// OnState observes every connection state transition. Optional.
	// Called from the stream's goroutine; must not block.
	OnState func(StreamState)

	// OnEvent receives every ticket event, including malformed ones
	// (Malformed set, payload fields zero). Optional. Called from the
	// stream's goroutine; must not block.
	OnEvent func(StreamEvent)
}

// EventStream maintains one persistent SSE connection to the device
// event endpoint and redials with bounded exponential backoff when it
// drops. The reconnect/resync policy lives entirely here and in the
// display engine's reaction to state transitions — individual event
// handlers carry no connection logic.
type EventStream struct {
	client *Client
	config StreamConfig
	clk    clock.Clock
	logger *slog.Logger
}

// NewEventStream creates an EventStream for the given device key. The
// stream does nothing until Run is called.
func (c *Client) NewEventStream(config StreamConfig) (*EventStream, error) {
	if config.DeviceKey == "" {
		return nil, fmt.Errorf("panelapi: stream DeviceKey is required")
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaultStreamBackoffInitial
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = defaultStreamBackoffMax
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = c.logger
	}

	return &EventStream{
		client: c,
		config: config,
		clk:    clk,
		logger: logger,
	}, nil
}

// Run connects and keeps reconnecting until ctx is cancelled. Each
// connection attempt announces connecting; a accepted stream announces
// connected; any termination announces disconnected. Run returns nil
// on cancellation — a dropped stream is never fatal by itself.
func (s *EventStream) Run(ctx context.Context) error {
	backoff := s.config.InitialBackoff

	for {
		s.setState(StreamConnecting)

		connected, err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StreamDisconnected)
			return nil
		}
		s.setState(StreamDisconnected)

		if connected {
			// The server had accepted the stream, so the network was
			// healthy until just now. Start the backoff ladder over.
			backoff = s.config.InitialBackoff
		}

		s.logger.Warn("event stream dropped, reconnecting",
			"error", err,
			"backoff", backoff.String(),
		)

		// A dropped stream often leaves a poisoned connection in the
		// HTTP pool. Force fresh sockets for the reconnect and for the
		// snapshot refetch the engine is about to issue.
		s.client.CloseIdleConnections()

		select {
		case <-ctx.Done():
			return nil
		case <-s.clk.After(backoff):
		}

		backoff *= 2
		if backoff > s.config.MaxBackoff {
			backoff = s.config.MaxBackoff
		}
	}
}

// connectOnce dials the stream and consumes events until the
// connection ends. Returns whether the server accepted the stream,
// and the error that ended it.
func (s *EventStream) connectOnce(ctx context.Context) (connected bool, err error) {
	streamURL := s.client.baseURL + "/v1/device/" + url.PathEscape(s.config.DeviceKey) + "/events"

	// Deliberately no request timeout: the stream stays open for as
	// long as the server holds it. Cancellation comes from ctx.
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return false, fmt.Errorf("panelapi: creating stream request: %w", err)
	}
	request.Header.Set("Accept", "text/event-stream")
	request.Header.Set("Cache-Control", "no-cache")

	response, err := s.client.httpClient.Do(request)
	if err != nil {
		return false, fmt.Errorf("panelapi: connecting event stream: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
		apiErr := &APIError{StatusCode: response.StatusCode}
		var parsed errorBody
		if jsonErr := json.Unmarshal(body, &parsed); jsonErr == nil {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.message()
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return false, fmt.Errorf("panelapi: event stream rejected: %w", apiErr)
	}

	s.setState(StreamConnected)
	return true, s.consume(response.Body)
}

// consume reads SSE frames off the wire and dispatches them. Returns
// when the connection ends; io.EOF is reported as an error because a
// server-closed stream is a disconnection like any other.
func (s *EventStream) consume(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)

	var eventType string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		// A blank line terminates the frame.
		if line == "" {
			if eventType != "" || data.Len() > 0 {
				s.dispatch(eventType, data.String())
			}
			eventType = ""
			data.Reset()
			continue
		}

		// Comment lines (heartbeats) keep the connection alive but
		// carry nothing.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		default:
			// "id" and "retry" fields are ignored: resync comes from
			// snapshots, not stream replay, and retry pacing is owned
			// by this client's explicit backoff.
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("panelapi: reading event stream: %w", err)
	}
	return fmt.Errorf("panelapi: event stream closed by server: %w", io.EOF)
}

// dispatch parses one frame and hands it to the consumer. Frames
// without an event name are server keep-alives and are dropped. A
// payload that fails to parse is passed through flagged as malformed:
// swallowed for display purposes, but still a resync trigger.
func (s *EventStream) dispatch(eventType, data string) {
	if eventType == "" {
		return
	}

	event := StreamEvent{Type: eventType}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		s.logger.Warn("malformed event payload",
			"event_type", eventType,
			"error", err,
		)
		event = StreamEvent{Type: eventType, Malformed: true}
	}

	if s.config.OnEvent != nil {
		s.config.OnEvent(event)
	}
}

func (s *EventStream) setState(state StreamState) {
	if s.config.OnState != nil {
		s.config.OnState(state)
	}
}
