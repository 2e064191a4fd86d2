package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDetection reports regions found in a frame
	EventTypeDetection EventType = "detection"
	// EventTypeFrameStats reports throughput of the processing loop
	EventTypeFrameStats EventType = "frame_stats"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConfigChanged is sent when the live configuration changes
	EventTypeConfigChanged EventType = "config_changed"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// DetectionEvent carries one category count from a processed frame
type DetectionEvent struct {
	SessionID  int64   `json:"session_id,omitempty"`
	Category   string  `json:"category"`
	Method     string  `json:"method"`
	Count      int     `json:"count"`
	Confidence float64 `json:"confidence"`
	Frame      uint64  `json:"frame,omitempty"`
}

// FrameStatsEvent reports the processing loop's throughput
type FrameStatsEvent struct {
	FPS          float64        `json:"fps"`
	ProcessingMS float64        `json:"processing_ms"`
	TotalObjects int            `json:"total_objects"`
	FrameNumber  uint64         `json:"frame_number"`
	Counts       map[string]int `json:"counts,omitempty"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string  `json:"status"`
	Uptime           string  `json:"uptime"`
	FramesProcessed  uint64  `json:"frames_processed"`
	TotalDetections  int64   `json:"total_detections"`
	ConnectedClients int     `json:"connected_clients"`
	MemoryUsage      string  `json:"memory_usage"`
	MemoryPercent    float64 `json:"memory_percent"`
	CPUUsage         string  `json:"cpu_usage,omitempty"`
	ObjectDetector   bool    `json:"object_detector"`
	OCR              bool    `json:"ocr"`
}

// ConfigChangedEvent carries the new live configuration
type ConfigChangedEvent struct {
	Source string      `json:"source"`
	Config interface{} `json:"config"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows detection events for one client
type EventFilter struct {
	Categories []string `json:"categories,omitempty"`
	MinCount   int      `json:"min_count,omitempty"`
}

// Client represents a WebSocket client connection
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
