package chat

import (
	"time"

	"github.com/xexgm/chatlink/service/rest"
)

// RoomKind distinguishes one-to-one rooms from group rooms.
type RoomKind int

const (
	RoomGroup RoomKind = iota
	RoomPrivate
)

func (k RoomKind) String() string {
	if k == RoomPrivate {
		return "private"
	}
	return "group"
}

// MessageKind is the payload classification of a message.
type MessageKind int

const (
	KindText MessageKind = iota
	KindImage
	KindFile
	KindSystem
)

// Status is the delivery lifecycle of a message. A client-originated
// message starts at Sending and only ever moves forward; Failed is reached
// solely from Sending, on an explicit error.
type Status int

const (
	StatusSending Status = iota
	StatusSent
	StatusDelivered
	StatusRead
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is one entry in a room's log. ID is a locally minted temporary id
// for optimistic messages and a sender/timestamp-derived id for inbound
// ones.
type Message struct {
	ID        string
	SenderID  int64
	RoomID    int64
	Content   string
	Kind      MessageKind
	Timestamp time.Time
	Status    Status
}

// Room is one entry in the room directory.
type Room struct {
	ID           int64
	Name         string
	Kind         RoomKind
	Participants []User
	LastMessage  *Message
	UnreadCount  uint
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// User is a cached profile in the user directory.
type User struct {
	ID        int64
	Username  string
	Nickname  string
	AvatarURL string
	Signature string
	Status    int
}

func roomFromInfo(info rest.RoomInfo) *Room {
	kind := RoomGroup
	if info.RoomType == rest.RoomTypePrivate {
		kind = RoomPrivate
	}
	created := time.UnixMilli(info.CreateTimeStamp)
	return &Room{
		ID:        info.RoomID,
		Name:      info.RoomName,
		Kind:      kind,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func userFromInfo(info *rest.UserInfo) *User {
	return &User{
		ID:        info.UserID,
		Username:  info.Username,
		Nickname:  info.Nickname,
		AvatarURL: info.AvatarURL,
		Signature: info.Signature,
		Status:    info.Status,
	}
}

// advance moves a message's status forward, never backwards.
func (m *Message) advance(to Status) {
	if to == StatusFailed {
		if m.Status == StatusSending {
			m.Status = StatusFailed
		}
		return
	}
	if m.Status == StatusFailed {
		return
	}
	if to > m.Status {
		m.Status = to
	}
}
