// Package mqtt carries controller batches to and from the physical units
// over MQTT, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/boiler-controller/internal/logic"
)

// TopicUnits is the topic the physical units publish their batches on.
const TopicUnits = "energy/boiler/units/batch"

// TopicCommands is the topic for the controller's outbound batches.
const TopicCommands = "energy/boiler/controller/commands"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "energy/boiler/controller/system"

var (
	// ErrUnknownKind is returned for a message kind outside the vocabulary.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrMalformedMessage is returned when a payload field is missing or invalid.
	ErrMalformedMessage = errors.New("malformed message")
)

// Transport exchanges batches with the physical units.
type Transport interface {
	// Drain returns every inbound message received since the previous call.
	Drain() []logic.Message

	// Publish sends one outbound batch.
	// Returns error if publishing fails (should not crash the process).
	Publish(batch Batch) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Batch is one cycle's worth of messages in one direction.
type Batch struct {
	Cycle     int
	Timestamp time.Time
	Messages  []logic.Message
}

// ModeOnly reports whether the batch carries nothing but MODE announcements.
// Such a batch is superseded by the next one; any other command must reach
// the units exactly once.
func (b Batch) ModeOnly() bool {
	for _, m := range b.Messages {
		if m.Kind != logic.KindMode {
			return false
		}
	}
	return true
}

type wireBatch struct {
	Cycle     int               `json:"cycle"`
	Timestamp string            `json:"timestamp,omitempty"`
	Messages  []json.RawMessage `json:"messages"`
}

// wireMessage is the JSON form of a logic.Message. Pointers distinguish a
// zero value from an absent field.
type wireMessage struct {
	Kind  string   `json:"kind"`
	Value *float64 `json:"value,omitempty"`
	Pump  *int     `json:"pump,omitempty"`
	Open  *bool    `json:"open,omitempty"`
	Mode  string   `json:"mode,omitempty"`
}

// EncodeMessage converts a message to its wire form, keeping only the
// fields its kind carries.
func EncodeMessage(m logic.Message) ([]byte, error) {
	p, ok := m.Kind.Payload()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	w := wireMessage{Kind: string(m.Kind)}
	switch p {
	case logic.PayloadDouble:
		v := m.Value
		w.Value = &v
	case logic.PayloadPump:
		n := m.Pump
		w.Pump = &n
	case logic.PayloadPumpBool:
		n, open := m.Pump, m.Open
		w.Pump = &n
		w.Open = &open
	case logic.PayloadMode:
		w.Mode = string(m.Mode)
	}
	return json.Marshal(w)
}

// DecodeMessage parses one wire message. Unknown kinds and missing or
// invalid payload fields are rejected.
func DecodeMessage(data []byte) (logic.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return logic.Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	kind := logic.Kind(w.Kind)
	p, ok := kind.Payload()
	if !ok {
		return logic.Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, w.Kind)
	}

	m := logic.Message{Kind: kind}
	switch p {
	case logic.PayloadDouble:
		if w.Value == nil {
			return logic.Message{}, fmt.Errorf("%w: %s needs a value", ErrMalformedMessage, kind)
		}
		m.Value = *w.Value
	case logic.PayloadPump, logic.PayloadPumpBool:
		if w.Pump == nil || *w.Pump < 0 {
			return logic.Message{}, fmt.Errorf("%w: %s needs a pump index", ErrMalformedMessage, kind)
		}
		m.Pump = *w.Pump
		if p == logic.PayloadPumpBool {
			if w.Open == nil {
				return logic.Message{}, fmt.Errorf("%w: %s needs an open flag", ErrMalformedMessage, kind)
			}
			m.Open = *w.Open
		}
	case logic.PayloadMode:
		a, ok := logic.ParseAnnouncement(w.Mode)
		if !ok {
			return logic.Message{}, fmt.Errorf("%w: mode %q", ErrMalformedMessage, w.Mode)
		}
		m.Mode = a
	}
	return m, nil
}

// FormatBatch creates the JSON payload for a batch.
func FormatBatch(b Batch) ([]byte, error) {
	w := wireBatch{
		Cycle:    b.Cycle,
		Messages: make([]json.RawMessage, 0, len(b.Messages)),
	}
	if !b.Timestamp.IsZero() {
		w.Timestamp = b.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, m := range b.Messages {
		raw, err := EncodeMessage(m)
		if err != nil {
			return nil, err
		}
		w.Messages = append(w.Messages, raw)
	}
	return json.Marshal(w)
}

// ParseBatch decodes a batch payload. An unreadable envelope is an error;
// individual bad messages are dropped and reported in rejected so the
// rest of the batch still reaches the transmission validator.
func ParseBatch(data []byte) (b Batch, rejected []error, err error) {
	var w wireBatch
	if err := json.Unmarshal(data, &w); err != nil {
		return Batch{}, nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	b.Cycle = w.Cycle
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, w.Timestamp)
		if err != nil {
			return Batch{}, nil, fmt.Errorf("%w: timestamp: %v", ErrMalformedMessage, err)
		}
		b.Timestamp = ts
	}
	for _, raw := range w.Messages {
		m, err := DecodeMessage(raw)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		b.Messages = append(b.Messages, m)
	}
	return b, rejected, nil
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
