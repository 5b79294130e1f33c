// Package protocol defines the WebSocket messages exchanged with the
// inspection server: pose frames streamed to viewers and the control
// commands they may send back.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → viewer messages
	TypePose  MessageType = "pose"  // Per-tick pose frame
	TypeAck   MessageType = "ack"   // Command result
	TypeError MessageType = "error" // Unparseable or unknown command

	// Viewer → server messages
	TypeStart MessageType = "start" // Start a motion
	TypeStop  MessageType = "stop"  // Stop a motion
	TypeFlush MessageType = "flush" // Flush and restart every motion

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// IsCommand reports whether t is a viewer command.
func (t MessageType) IsCommand() bool {
	switch t {
	case TypeStart, TypeStop, TypeFlush:
		return true
	}
	return false
}

// =============================================================================
// Server → Viewer Message Types
// =============================================================================

// PoseFrame is one character's state after a tick
type PoseFrame struct {
	Character string        `json:"character"`
	Time      float32       `json:"time"`
	Tick      uint64        `json:"tick"`
	Motions   []MotionState `json:"motions"`
	Joints    []JointPose   `json:"joints"`
}

// MotionState summarises one active motion
type MotionState struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Phase    string  `json:"phase"`
	Priority string  `json:"priority"`
	Weight   float32 `json:"weight"`
}

// JointPose is a joint's local transform
type JointPose struct {
	Name     string     `json:"name"`
	Position [3]float32 `json:"pos"`
	Rotation [4]float32 `json:"rot"` // w, x, y, z
}

// AckData answers a command
type AckData struct {
	Command MessageType `json:"command"`
	OK      bool        `json:"ok"`
	Error   string      `json:"error,omitempty"`
}

// ErrorData reports a message the server could not handle
type ErrorData struct {
	Error string `json:"error"`
}

// =============================================================================
// Viewer → Server Message Types
// =============================================================================

// Command targets one character. Clip is a clip id or a manifest name.
type Command struct {
	Character string  `json:"character"`
	Clip      string  `json:"clip,omitempty"`
	Offset    float32 `json:"offset,omitempty"`    // start: seconds already elapsed
	Immediate bool    `json:"immediate,omitempty"` // stop: skip the ease out
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
