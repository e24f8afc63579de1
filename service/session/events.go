package session

import "github.com/xexgm/chatlink/protocol"

// EventType keys dispatcher subscriptions. Lifecycle events describe the
// session itself; envelope events carry one decoded inbound frame each,
// routed by the canonical (namespace, type) table.
type EventType int

const (
	EventOpened EventType = iota
	EventClosed
	EventError
	EventReconnectExhausted

	EventLinkConnected
	EventLinkNotice
	EventHeartbeatAck

	EventRoomJoined
	EventRoomLeft
	EventRoomMessage
)

// Event is the tagged union delivered to handlers.
type Event interface {
	Type() EventType
}

// Opened fires once the socket is open and the logical-connect envelope has
// been written.
type Opened struct {
	SessionID string
}

// Closed fires whenever the connection goes away. Unexpected is true when
// the closure was not caused by an explicit Close call.
type Closed struct {
	Reason     string
	Unexpected bool
}

// ErrorEvent surfaces a transport-level failure that did not by itself end
// the session.
type ErrorEvent struct {
	Err error
}

// ReconnectExhausted fires exactly once when the backoff budget is spent.
// The session is Closed at that point; re-authenticating and reconnecting
// is the caller's decision.
type ReconnectExhausted struct {
	Attempts int
}

type LinkConnected struct{ Env *protocol.Envelope }

// LinkNotice is a server-sent disconnect notice.
type LinkNotice struct{ Env *protocol.Envelope }

type HeartbeatAck struct{ Env *protocol.Envelope }

type RoomJoined struct{ Env *protocol.Envelope }

type RoomLeft struct{ Env *protocol.Envelope }

type RoomMessage struct{ Env *protocol.Envelope }

func (Opened) Type() EventType             { return EventOpened }
func (Closed) Type() EventType             { return EventClosed }
func (ErrorEvent) Type() EventType         { return EventError }
func (ReconnectExhausted) Type() EventType { return EventReconnectExhausted }
func (LinkConnected) Type() EventType      { return EventLinkConnected }
func (LinkNotice) Type() EventType         { return EventLinkNotice }
func (HeartbeatAck) Type() EventType       { return EventHeartbeatAck }
func (RoomJoined) Type() EventType         { return EventRoomJoined }
func (RoomLeft) Type() EventType           { return EventRoomLeft }
func (RoomMessage) Type() EventType        { return EventRoomMessage }
