// Package protocol defines the wire envelope exchanged with the chat
// backend and the canonical (namespace, type) table. The table here is the
// single source of truth for both outbound construction and inbound
// dispatch; the legacy numbering that swapped room assignments is not
// supported.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/xexgm/chatlink/tools/errs"
)

// Namespace selects the sub-protocol an envelope belongs to.
type Namespace int

const (
	// NamespaceLink carries connection management: connect, disconnect,
	// heartbeat.
	NamespaceLink Namespace = 0
	// NamespaceRoom carries chat-room traffic: join, message, leave.
	NamespaceRoom Namespace = 1
)

// MsgType is interpreted relative to the envelope's namespace.
type MsgType int

// Link namespace types.
const (
	LinkConnect    MsgType = 0
	LinkDisconnect MsgType = 1
	LinkHeartbeat  MsgType = 2
)

// Room namespace types.
const (
	RoomJoin    MsgType = 0
	RoomMessage MsgType = 1
	RoomLeave   MsgType = 2
)

// HeartbeatPayload is the content of an outbound heartbeat envelope.
const HeartbeatPayload = "ping"

// Envelope is one wire-protocol unit. TargetID and Content are pointers so
// null round-trips: control messages carry null content, and only room
// envelopes address a target.
type Envelope struct {
	Namespace Namespace `json:"namespace"`
	UID       int64     `json:"uid"`
	Token     string    `json:"token"`
	Type      MsgType   `json:"type"`
	TargetID  *int64    `json:"targetId"`
	Content   *string   `json:"content"`
	Timestamp int64     `json:"timestamp"`
}

type tableKey struct {
	ns  Namespace
	typ MsgType
}

var eventNames = map[tableKey]string{
	{NamespaceLink, LinkConnect}:    "link.connect",
	{NamespaceLink, LinkDisconnect}: "link.disconnect",
	{NamespaceLink, LinkHeartbeat}:  "link.heartbeat",
	{NamespaceRoom, RoomJoin}:       "room.join",
	{NamespaceRoom, RoomMessage}:    "room.message",
	{NamespaceRoom, RoomLeave}:      "room.leave",
}

// EventName maps (namespace, type) to its semantic event name. ok is false
// for pairs outside the canonical table.
func EventName(ns Namespace, typ MsgType) (string, bool) {
	name, ok := eventNames[tableKey{ns, typ}]
	return name, ok
}

// Known reports whether the pair is part of the canonical table.
func Known(ns Namespace, typ MsgType) bool {
	_, ok := eventNames[tableKey{ns, typ}]
	return ok
}

// Encode serializes an envelope for the wire.
func Encode(e *Envelope) ([]byte, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errs.ErrProtocol.WithDetailf("marshal: %v", err)
	}
	return data, nil
}

// wireEnvelope mirrors Envelope with pointer scalars so Decode can tell a
// missing field from a zero value.
type wireEnvelope struct {
	Namespace *int    `json:"namespace"`
	UID       *int64  `json:"uid"`
	Token     *string `json:"token"`
	Type      *int    `json:"type"`
	TargetID  *int64  `json:"targetId"`
	Content   *string `json:"content"`
	Timestamp *int64  `json:"timestamp"`
}

// Decode parses and validates one inbound frame. Failures are ErrProtocol;
// the transport drops and logs such frames instead of dispatching them.
func Decode(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.ErrProtocol.WithDetailf("unmarshal: %v", err)
	}
	if w.Namespace == nil || w.Type == nil {
		return nil, errs.ErrProtocol.WithDetail("missing namespace or type")
	}
	if w.UID == nil || w.Token == nil || w.Timestamp == nil {
		return nil, errs.ErrProtocol.WithDetail("missing uid, token or timestamp")
	}
	e := &Envelope{
		Namespace: Namespace(*w.Namespace),
		UID:       *w.UID,
		Token:     *w.Token,
		Type:      MsgType(*w.Type),
		TargetID:  w.TargetID,
		Content:   w.Content,
		Timestamp: *w.Timestamp,
	}
	if err := validate(e); err != nil {
		return nil, err
	}
	return e, nil
}

func validate(e *Envelope) error {
	if !Known(e.Namespace, e.Type) {
		return errs.ErrProtocol.WithDetailf("unknown namespace/type pair (%d, %d)", e.Namespace, e.Type)
	}
	if e.UID <= 0 {
		return errs.ErrProtocol.WithDetailf("invalid uid %d", e.UID)
	}
	if e.Token == "" {
		return errs.ErrProtocol.WithDetail("empty token")
	}
	if e.Timestamp <= 0 {
		return errs.ErrProtocol.WithDetailf("invalid timestamp %d", e.Timestamp)
	}
	if e.Namespace == NamespaceRoom && e.TargetID == nil {
		return errs.ErrProtocol.WithDetail("room envelope without targetId")
	}
	if e.Namespace == NamespaceRoom && e.Type == RoomMessage && e.Content == nil {
		return errs.ErrProtocol.WithDetail("room message without content")
	}
	return nil
}

func (e *Envelope) String() string {
	name, _ := EventName(e.Namespace, e.Type)
	return fmt.Sprintf("envelope{%s uid=%d ts=%d}", name, e.UID, e.Timestamp)
}
