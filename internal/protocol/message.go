// Package protocol defines the JSON wire format exchanged between relay
// clients and the server: one typed object per WebSocket text frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Decode when a frame is not a JSON object with a
// string "type" field.
var ErrMalformed = errors.New("protocol: malformed message")

// Type is the message tag. Tags outside the known set are kept verbatim so
// the dispatcher can log them.
type Type string

// Known message types.
const (
	TypeHello      Type = "hello"
	TypeChat       Type = "chat"
	TypeUserJoined Type = "user_joined"
	TypeUserLeft   Type = "user_left"
	TypeUserExit   Type = "user_exit"
)

// Known reports whether t is one of the protocol's message types.
func (t Type) Known() bool {
	switch t {
	case TypeHello, TypeChat, TypeUserJoined, TypeUserLeft, TypeUserExit:
		return true
	default:
		return false
	}
}

// String returns the wire tag.
func (t Type) String() string {
	return string(t)
}

// Message is a decoded frame. An empty ID and a nil Text mean the field is
// absent and is omitted from the wire form.
type Message struct {
	Type Type    `json:"type"`
	ID   string  `json:"id,omitempty"`
	Text *string `json:"text,omitempty"`
}

// TextValue returns the text payload and whether it was present.
func (m Message) TextValue() (string, bool) {
	if m.Text == nil {
		return "", false
	}
	return *m.Text, true
}

// Hello builds the greeting sent to a newly connected client. An empty
// greeting leaves the text field out.
func Hello(id, greeting string) Message {
	m := Message{Type: TypeHello, ID: id}
	if greeting != "" {
		m.Text = &greeting
	}
	return m
}

// Chat builds a chat message stamped with the sender id.
func Chat(id, text string) Message {
	return Message{Type: TypeChat, ID: id, Text: &text}
}

// ChatRequest builds the client-side chat message, which carries only text.
func ChatRequest(text string) Message {
	return Message{Type: TypeChat, Text: &text}
}

// UserJoined announces a new peer.
func UserJoined(id string) Message {
	return Message{Type: TypeUserJoined, ID: id}
}

// UserLeft announces a departed peer.
func UserLeft(id string) Message {
	return Message{Type: TypeUserLeft, ID: id}
}

// UserExit asks the server to close the sender's connection.
func UserExit() Message {
	return Message{Type: TypeUserExit}
}

// Encode marshals m into its compact wire form.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", m.Type, err)
	}
	return data, nil
}

// wireMessage mirrors Message with a pointer type so a missing tag can be
// told apart from an empty one.
type wireMessage struct {
	Type *string `json:"type"`
	ID   string  `json:"id"`
	Text *string `json:"text"`
}

// Decode parses a single frame. Unknown type tags decode successfully.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == nil {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if *w.Type == "" {
		return Message{}, fmt.Errorf("%w: empty type", ErrMalformed)
	}
	return Message{Type: Type(*w.Type), ID: w.ID, Text: w.Text}, nil
}
