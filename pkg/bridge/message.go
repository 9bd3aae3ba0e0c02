package bridge

import (
	"strings"
	"time"
)

// Network identifies which mesh a message was first observed on.
type Network int

const (
	NetMeshtastic Network = iota
	NetMeshCore
)

func (n Network) String() string {
	switch n {
	case NetMeshtastic:
		return "meshtastic"
	case NetMeshCore:
		return "meshcore"
	default:
		return "unknown"
	}
}

// Category classifies a relayed message.
type Category int

const (
	CategoryNormal Category = iota
	CategorySensorData
	CategoryPriority
)

func (c Category) String() string {
	switch c {
	case CategorySensorData:
		return "sensor_data"
	case CategoryPriority:
		return "priority"
	default:
		return "normal"
	}
}

// Message is the canonical, protocol-agnostic representation of one
// relayable application message. A Message is immutable once constructed;
// handlers build new values instead of mutating, so no synchronization is
// needed on message contents.
type Message struct {
	// Origin is the network the message was first observed on.
	Origin Network
	// OriginID is the sender's node identifier on the origin network.
	OriginID string
	// DestinationID is the target node identifier. Empty means broadcast.
	DestinationID string
	// Text is the textual payload view. May be empty for binary payloads.
	Text string
	// Binary is the raw payload view. May be nil for text payloads.
	Binary []byte
	// Category classifies the message for forwarding policy.
	Category Category
	// Timestamp is when the bridge first observed the message.
	Timestamp time.Time
	// Meta carries auxiliary codec fields, opaque to queues and the
	// orchestrator.
	Meta map[string]string
}

// Payload returns the binary view, falling back to the text view.
func (m Message) Payload() []byte {
	if m.Binary != nil {
		return m.Binary
	}
	return []byte(m.Text)
}

// PayloadText returns the text view, falling back to the binary view.
func (m Message) PayloadText() string {
	if m.Text != "" {
		return m.Text
	}
	return string(m.Binary)
}

// Classify returns CategoryPriority when the text contains one of the
// configured priority keywords, matched case-insensitively.
func Classify(text string, priorityWords []string) Category {
	lowered := strings.ToLower(text)
	for _, word := range priorityWords {
		if word == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(word)) {
			return CategoryPriority
		}
	}
	return CategoryNormal
}
