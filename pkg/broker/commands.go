package broker

import (
	"github.com/google/uuid"

	"github.com/parley-chat/parley/pkg/protocol"
)

// SessionID is an ephemeral, process-local connection identifier. It is
// generated at connect time and discarded on disconnect; it is never
// persisted and is distinct from the persistent user ID space.
type SessionID uuid.UUID

// NewSessionID generates a fresh session identifier
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

func (id SessionID) String() string {
	return uuid.UUID(id).String()
}

// Command is the closed set of commands flowing into the broker. Commands
// are produced by sessions and consumed only by the broker's single control
// loop, which processes them in arrival order.
type Command interface {
	isCommand()
}

// Connect registers a live session with the broker
type Connect struct {
	SessionID SessionID
	UserID    int64
	Outbound  chan SessionCommand
}

// ClientFrame carries one raw inbound frame from a session
type ClientFrame struct {
	SessionID SessionID
	Payload   []byte
}

// Disconnect removes a session from the registry
type Disconnect struct {
	SessionID SessionID
}

func (Connect) isCommand()     {}
func (ClientFrame) isCommand() {}
func (Disconnect) isCommand()  {}

// SessionCommand is the closed set of commands flowing from the broker to a
// single session. Produced only by the broker; consumed by exactly one
// session's loop.
type SessionCommand interface {
	isSessionCommand()
}

// Deliver pushes a notification to the session's client
type Deliver struct {
	Notification protocol.Notification
}

// ForceClose tells the session to terminate without notifying the broker
// back (the broker already dropped its handle)
type ForceClose struct{}

func (Deliver) isSessionCommand()    {}
func (ForceClose) isSessionCommand() {}
