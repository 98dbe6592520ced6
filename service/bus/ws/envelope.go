package ws

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	envelopeHello   = "hello"
	envelopeWelcome = "welcome"
	envelopeMessage = "message"

	readBufferSize     = 1024
	writeBufferSize    = 1024
	defaultWriteWait   = 10 * time.Second
	defaultHelloWait   = 10 * time.Second
	defaultPeerBacklog = 256
)

// envelope frames every websocket payload.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newEnvelope(kind string, payload any) (*envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", kind, err)
	}
	return &envelope{Type: kind, Payload: data}, nil
}

func (e *envelope) decode(target any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}
