package server

import (
	"fmt"

	"github.com/Tyrowin/relay/internal/protocol"
)

// ActionKind tells the session what to do with an inbound message.
type ActionKind int

// Dispatch outcomes.
const (
	ActionIgnore ActionKind = iota
	ActionRelay
	ActionClose
)

// String returns the name of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionIgnore:
		return "ignore"
	case ActionRelay:
		return "relay"
	case ActionClose:
		return "close"
	default:
		return "unknown"
	}
}

// Action is the dispatcher's decision for one message. Outbound is set for
// ActionRelay; Reason explains an ActionIgnore.
type Action struct {
	Kind     ActionKind
	Outbound protocol.Message
	Reason   string
}

// Dispatch routes a decoded client message sent by sender.
func Dispatch(sender string, msg protocol.Message) Action {
	switch msg.Type {
	case protocol.TypeChat:
		text, ok := msg.TextValue()
		if !ok {
			return Action{Kind: ActionIgnore, Reason: "chat message without text"}
		}
		return Action{Kind: ActionRelay, Outbound: protocol.Chat(sender, text)}
	case protocol.TypeUserExit:
		return Action{Kind: ActionClose}
	case protocol.TypeHello, protocol.TypeUserJoined, protocol.TypeUserLeft:
		return Action{Kind: ActionIgnore, Reason: fmt.Sprintf("server-only message type %q", msg.Type)}
	default:
		return Action{Kind: ActionIgnore, Reason: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
}
