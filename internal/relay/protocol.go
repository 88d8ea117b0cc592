// Package relay carries element requests, responses and highlight commands between the page
// agent and its consumers over a WebSocket hub.
package relay

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MessageType names a relay event.
type MessageType string

// Relay events.
const (
	TypeRequestElementData  MessageType = "RequestElementData"
	TypeResponseElementData MessageType = "ResponseElementData"
	TypeHighlight           MessageType = "Highlight"
)

// ErrInvalidMessage is returned for frames that are not well-formed relay messages.
var ErrInvalidMessage = errors.New("invalid relay message")

//go:embed protocol.schema.json
var protocolSchemaSource string

var protocolSchema = jsonschema.MustCompileString("protocol.schema.json", protocolSchemaSource)

// Envelope is one frame on the wire.
type Envelope struct {
	Type          MessageType     `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ElementRequest asks the page agent for the cards currently on its page.
type ElementRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ElementResponse carries the cards of the agent's current page.
type ElementResponse struct {
	URL      string            `json:"url"`
	Elements []model.RawRecord `json:"elements"`
}

// HighlightCommand asks the agent to highlight a previously marked card.
type HighlightCommand struct {
	CardID int `json:"cardId"`
}

// Encode builds a validated frame.
func Encode(kind MessageType, correlationID string, payload any) ([]byte, error) {
	env := Envelope{Type: kind, CorrelationID: correlationID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", kind, err)
	}
	if err := validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode parses and validates a frame.
func Decode(data []byte) (Envelope, error) {
	if err := validate(data); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return env, nil
}

// Unmarshal decodes the payload into v. A missing payload leaves v untouched.
func (e Envelope) Unmarshal(v any) error {
	if len(bytes.TrimSpace(e.Payload)) == 0 || bytes.Equal(e.Payload, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidMessage, e.Type, err)
	}
	return nil
}

func validate(data []byte) error {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := protocolSchema.Validate(generic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}
