// Package chat keeps the client-side chat session state: the room
// directory, per-room message logs, the single active-room pointer, unread
// counters and the optimistic-send lifecycle. It consumes session events
// and issues join/leave/send commands through a narrow Sender, so tests run
// against a fake transport.
package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/xexgm/chatlink/logger"
	"github.com/xexgm/chatlink/protocol"
	"github.com/xexgm/chatlink/service/rest"
	"github.com/xexgm/chatlink/service/session"
	"github.com/xexgm/chatlink/tools/ids"
)

// Sender is the command path into the transport session.
type Sender interface {
	Send(*protocol.Envelope) error
}

// API is the REST collaborator surface the store consumes.
type API interface {
	ListChatRooms(ctx context.Context) ([]rest.RoomInfo, error)
	CreateChatRoom(ctx context.Context, req rest.CreateRoomRequest) (*rest.RoomInfo, error)
	DeleteChatRoom(ctx context.Context, roomID int64) error
	OfflineChatRoom(ctx context.Context, roomID int64) error
	GetUserInfo(ctx context.Context, userID int64) (*rest.UserInfo, error)
}

// Config wires one Store to its collaborators.
type Config struct {
	UID    int64
	Token  string
	Sender Sender
	API    API
	Clock  func() time.Time // injectable for tests; nil => time.Now
}

func (c *Config) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Store is owned by exactly one authenticated session; it is not shared
// across users.
type Store struct {
	uid    int64
	token  string
	sender Sender
	api    API
	clock  func() time.Time

	mu        sync.Mutex
	rooms     map[int64]*Room
	logs      map[int64][]*Message
	active    int64 // 0 = no active room
	switching bool  // guards the leave-then-join sequence
	pending   map[int64][]string
	users     map[int64]*User
	inflight  map[int64]chan struct{}
}

func NewStore(cfg Config) *Store {
	cfg.norm()
	return &Store{
		uid:      cfg.UID,
		token:    cfg.Token,
		sender:   cfg.Sender,
		api:      cfg.API,
		clock:    cfg.Clock,
		rooms:    make(map[int64]*Room),
		logs:     make(map[int64][]*Message),
		pending:  make(map[int64][]string),
		users:    make(map[int64]*User),
		inflight: make(map[int64]chan struct{}),
	}
}

// Attach subscribes the store to a session's events. The returned func
// removes all subscriptions.
func (s *Store) Attach(sess *session.Session) func() {
	offs := []func(){
		sess.On(session.EventOpened, func(session.Event) {
			s.HandleReconnected()
		}),
		sess.On(session.EventRoomMessage, func(ev session.Event) {
			if e, ok := ev.(session.RoomMessage); ok {
				s.HandleRoomMessage(e.Env)
			}
		}),
		sess.On(session.EventRoomJoined, func(ev session.Event) {
			if e, ok := ev.(session.RoomJoined); ok && e.Env.TargetID != nil {
				logger.Debugf("joined room %d", *e.Env.TargetID)
			}
		}),
		sess.On(session.EventClosed, func(ev session.Event) {
			e, ok := ev.(session.Closed)
			if !ok {
				return
			}
			s.HandleDisconnected()
			if !e.Unexpected {
				s.Reset()
			}
		}),
		sess.On(session.EventReconnectExhausted, func(session.Event) {
			s.HandleDisconnected()
			s.Reset()
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// HandleDisconnected fails every pending optimistic send. Their echoes
// cannot be correlated once the connection that carried them is gone, and a
// stale pending entry would swallow the echo of a message sent after the
// reconnect.
func (s *Store) HandleDisconnected() {
	s.mu.Lock()
	for roomID, queue := range s.pending {
		for _, id := range queue {
			if msg := s.findLocked(roomID, id); msg != nil {
				msg.advance(StatusFailed)
			}
		}
		delete(s.pending, roomID)
	}
	s.mu.Unlock()
}

// HandleReconnected re-issues the join for the active room on a fresh
// connection; the server's membership did not survive the old one. A no-op
// when no room is active, including the very first open.
func (s *Store) HandleReconnected() {
	s.mu.Lock()
	roomID := s.active
	s.mu.Unlock()
	if roomID == 0 {
		return
	}
	if err := s.sender.Send(protocol.BuildJoin(s.uid, s.token, roomID)); err != nil {
		logger.Warnf("rejoin room %d: %v", roomID, err)
	}
}

// FetchRooms replaces the room directory wholesale with the backend's
// current listing.
func (s *Store) FetchRooms(ctx context.Context) ([]Room, error) {
	infos, err := s.api.ListChatRooms(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "list rooms")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make(map[int64]*Room, len(infos))
	for _, info := range infos {
		rooms[info.RoomID] = roomFromInfo(info)
	}
	s.rooms = rooms
	return s.roomsLocked(), nil
}

// SetActiveRoom switches the session's single subscribed room. A non-zero
// previous room is left before the new one is joined; the whole sequence is
// guarded against interleaving so the client never appears joined to two
// rooms, or to neither, under rapid switching. Re-activating the current
// room issues no commands. roomID 0 leaves the current room with no
// replacement.
func (s *Store) SetActiveRoom(roomID int64) error {
	s.mu.Lock()
	if s.switching {
		s.mu.Unlock()
		return errors.New("room switch already in progress")
	}
	if s.active == roomID {
		s.markReadLocked(roomID)
		s.mu.Unlock()
		return nil
	}
	s.switching = true
	prev := s.active
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.switching = false
		s.mu.Unlock()
	}()

	if prev != 0 {
		if err := s.sender.Send(protocol.BuildLeave(s.uid, s.token, prev)); err != nil {
			return errors.WithMessage(err, "leave previous room")
		}
		s.mu.Lock()
		s.active = 0
		s.mu.Unlock()
	}
	if roomID == 0 {
		return nil
	}
	if err := s.sender.Send(protocol.BuildJoin(s.uid, s.token, roomID)); err != nil {
		return errors.WithMessage(err, "join room")
	}

	s.mu.Lock()
	s.active = roomID
	s.markReadLocked(roomID)
	s.mu.Unlock()
	return nil
}

// ClearActiveRoom leaves the current room, if any.
func (s *Store) ClearActiveRoom() error { return s.SetActiveRoom(0) }

// SendMessage optimistically appends a Sending message to the active room's
// log, then issues the room-message command. A transport failure marks the
// message Failed immediately; there is no automatic retry.
func (s *Store) SendMessage(content string) (*Message, error) {
	s.mu.Lock()
	roomID := s.active
	if roomID == 0 {
		s.mu.Unlock()
		return nil, errors.New("no active room")
	}
	msg := &Message{
		ID:        ids.GenerateString(),
		SenderID:  s.uid,
		RoomID:    roomID,
		Content:   content,
		Kind:      KindText,
		Timestamp: s.clock(),
		Status:    StatusSending,
	}
	s.appendLocked(msg)
	s.pending[roomID] = append(s.pending[roomID], msg.ID)
	s.mu.Unlock()

	if err := s.sender.Send(protocol.BuildChatMessage(s.uid, s.token, roomID, content)); err != nil {
		s.mu.Lock()
		s.dropPendingLocked(roomID, msg.ID)
		msg.advance(StatusFailed)
		out := *msg
		s.mu.Unlock()
		return &out, errors.WithMessage(err, "send message")
	}

	s.mu.Lock()
	out := *msg
	s.mu.Unlock()
	return &out, nil
}

// HandleRoomMessage consumes one inbound room-message envelope. An echo of
// our own uid resolves the oldest pending optimistic send for that room
// (the backend defines no dedicated ack frame); anything else is appended
// to the room's log, and bumps the unread counter unless the room is
// active.
func (s *Store) HandleRoomMessage(env *protocol.Envelope) {
	if env == nil || env.TargetID == nil {
		return
	}
	roomID := *env.TargetID
	content := ""
	if env.Content != nil {
		content = *env.Content
	}

	s.mu.Lock()
	if env.UID == s.uid {
		if queue := s.pending[roomID]; len(queue) > 0 {
			tempID := queue[0]
			s.pending[roomID] = queue[1:]
			if msg := s.findLocked(roomID, tempID); msg != nil {
				msg.advance(StatusSent)
			}
			s.mu.Unlock()
			return
		}
		// Our uid but no pending send here: originated on another device.
	}

	msg := &Message{
		ID:        fmt.Sprintf("%d-%d", env.UID, env.Timestamp),
		SenderID:  env.UID,
		RoomID:    roomID,
		Content:   content,
		Kind:      KindText,
		Timestamp: time.UnixMilli(env.Timestamp),
		Status:    StatusDelivered,
	}
	s.appendLocked(msg)
	if room, ok := s.rooms[roomID]; ok && roomID != s.active {
		room.UnreadCount++
	}
	senderKnown := s.users[env.UID] != nil
	s.mu.Unlock()

	if !senderKnown && s.api != nil {
		uid := env.UID
		go func() {
			if _, err := s.EnsureUserLoaded(context.Background(), uid); err != nil {
				logger.Warnf("load sender %d: %v", uid, err)
			}
		}()
	}
}

// MarkRead zeroes a room's unread counter.
func (s *Store) MarkRead(roomID int64) {
	s.mu.Lock()
	s.markReadLocked(roomID)
	s.mu.Unlock()
}

// CreateRoom asks the backend for a new room and adds it to the directory.
func (s *Store) CreateRoom(ctx context.Context, name, description, roomType string) (*Room, error) {
	info, err := s.api.CreateChatRoom(ctx, rest.CreateRoomRequest{
		RoomName:    name,
		Description: description,
		RoomType:    roomType,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "create room")
	}

	s.mu.Lock()
	room := roomFromInfo(*info)
	s.rooms[room.ID] = room
	out := *room
	s.mu.Unlock()
	return &out, nil
}

// DeleteRoom removes a room through the administrative REST action and
// drops its local records. No leave command is issued: the room no longer
// exists server side.
func (s *Store) DeleteRoom(ctx context.Context, roomID int64) error {
	if err := s.api.DeleteChatRoom(ctx, roomID); err != nil {
		return errors.WithMessage(err, "delete room")
	}

	s.mu.Lock()
	delete(s.rooms, roomID)
	delete(s.logs, roomID)
	delete(s.pending, roomID)
	if s.active == roomID {
		s.active = 0
	}
	s.mu.Unlock()
	return nil
}

// OfflineRoom takes a room out of service through the administrative REST
// action. The directory entry is dropped like a deletion, but the local log
// is kept so history stays readable.
func (s *Store) OfflineRoom(ctx context.Context, roomID int64) error {
	if err := s.api.OfflineChatRoom(ctx, roomID); err != nil {
		return errors.WithMessage(err, "offline room")
	}

	s.mu.Lock()
	delete(s.rooms, roomID)
	delete(s.pending, roomID)
	if s.active == roomID {
		s.active = 0
	}
	s.mu.Unlock()
	return nil
}

// Reset clears the active-room pointer on session teardown. Room and
// message records survive so the UI keeps rendering while disconnected.
func (s *Store) Reset() {
	s.mu.Lock()
	s.active = 0
	s.switching = false
	s.mu.Unlock()
}

// Rooms returns the directory ordered by most recent activity.
func (s *Store) Rooms() []Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomsLocked()
}

// Room returns one directory entry by id.
func (s *Store) Room(roomID int64) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return *room, true
}

// MessagesFor returns a copy of one room's log in arrival order.
func (s *Store) MessagesFor(roomID int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[roomID]
	out := make([]Message, len(log))
	for i, m := range log {
		out[i] = *m
	}
	return out
}

// ActiveRoomID returns the currently active room, 0 when none.
func (s *Store) ActiveRoomID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// TotalUnread sums unread counters across all rooms.
func (s *Store) TotalUnread() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint
	for _, room := range s.rooms {
		total += room.UnreadCount
	}
	return total
}

func (s *Store) roomsLocked() []Room {
	out := make([]Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, *room)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) appendLocked(m *Message) {
	s.logs[m.RoomID] = append(s.logs[m.RoomID], m)
	if room, ok := s.rooms[m.RoomID]; ok {
		last := *m
		room.LastMessage = &last
		room.UpdatedAt = m.Timestamp
	}
}

func (s *Store) findLocked(roomID int64, id string) *Message {
	log := s.logs[roomID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].ID == id {
			return log[i]
		}
	}
	return nil
}

func (s *Store) dropPendingLocked(roomID int64, id string) {
	queue := s.pending[roomID]
	for i, pid := range queue {
		if pid == id {
			s.pending[roomID] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}

func (s *Store) markReadLocked(roomID int64) {
	if room, ok := s.rooms[roomID]; ok {
		room.UnreadCount = 0
	}
}
