package events

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType identifies the kind of event broadcast to monitoring clients.
type EventType string

const (
	// EventTypeScrubStage is emitted on every pipeline stage transition.
	EventTypeScrubStage EventType = "scrub_stage"
	// EventTypeScrubSummary is emitted once per completed scrub.
	EventTypeScrubSummary EventType = "scrub_summary"
	// EventTypeSystemStatus carries periodic health snapshots.
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection announces client connects and disconnects.
	EventTypeConnection EventType = "connection"
)

// Event is the wire format for all broadcast messages. Payloads carry
// counts, categories and timings only; entity text never leaves the
// pipeline.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ScrubStageEvent reports one state machine transition.
type ScrubStageEvent struct {
	Stage      string        `json:"stage"`
	Detections int           `json:"detections,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ms,omitempty"`
}

// ScrubSummaryEvent reports the outcome of a completed scrub.
type ScrubSummaryEvent struct {
	Count      int            `json:"count"`
	Confidence float64        `json:"confidence"`
	Warnings   int            `json:"warnings"`
	ByCategory map[string]int `json:"by_category,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// SystemStatusEvent carries a periodic health snapshot.
type SystemStatusEvent struct {
	Status        string  `json:"status"`
	ActiveClients int64   `json:"active_clients"`
	TotalScrubs   int64   `json:"total_scrubs"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ConnectionEvent announces a client connecting or disconnecting.
type ConnectionEvent struct {
	Action   string `json:"action"`
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// SubscriptionRequest lets a client restrict which event types it receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// ClientMessage is an inbound message from a monitoring client.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Client is one connected monitoring session.
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
