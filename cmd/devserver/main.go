// devserver is a self-contained stand-in for the chat backend, speaking
// just enough of both surfaces (REST envelope + websocket protocol) to run
// chatcli locally: login issues signed tokens, rooms are in memory, and the
// hub fans room messages out to every member including the sender.
package main

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/xexgm/chatlink/logger"
	"github.com/xexgm/chatlink/protocol"
	"github.com/xexgm/chatlink/service/rest"
)

type serverConfig struct {
	Addr   string `env:"CHATLINK_DEV_ADDR" envDefault:":9999"`
	Secret string `env:"CHATLINK_DEV_SECRET" envDefault:"chatlink-dev-secret"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	defer logger.Sync()

	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Errorf("parse env: %v", err)
		os.Exit(1)
	}

	srv := newDevServer(cfg.Secret)

	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/user/login", srv.handleLogin)
	r.POST("/user/validate", srv.handleValidate)
	r.GET("/user/:id", srv.handleUserInfo)
	r.GET("/room/list", srv.handleListRooms)
	r.POST("/room/create", srv.handleCreateRoom)
	r.DELETE("/room/:id", srv.handleDeleteRoom)
	r.POST("/room/:id/offline", srv.handleOfflineRoom)
	r.GET("/ws", srv.handleWS)

	logger.Infof("[devserver] listening on %s", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		logger.Errorf("serve: %v", err)
		os.Exit(1)
	}
}

type member struct {
	conn  *websocket.Conn
	uid   int64
	rooms map[int64]bool
	wmu   sync.Mutex
}

func (m *member) write(env *protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	m.wmu.Lock()
	defer m.wmu.Unlock()
	_ = m.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

type devServer struct {
	secret []byte

	mu      sync.Mutex
	nextUID int64
	users   map[int64]rest.UserInfo
	byName  map[string]int64
	rooms   map[int64]rest.RoomInfo
	nextRID int64
	members map[*websocket.Conn]*member
}

func newDevServer(secret string) *devServer {
	s := &devServer{
		secret:  []byte(secret),
		nextUID: 1000,
		nextRID: 100,
		users:   make(map[int64]rest.UserInfo),
		byName:  make(map[string]int64),
		rooms:   make(map[int64]rest.RoomInfo),
		members: make(map[*websocket.Conn]*member),
	}
	s.rooms[42] = rest.RoomInfo{
		RoomID:          42,
		RoomName:        "lobby",
		OwnerID:         1,
		RoomType:        rest.RoomTypePublic,
		CreateTimeStamp: time.Now().UnixMilli(),
		Status:          rest.RoomStatusActive,
	}
	return s
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":      200,
		"message":   "ok",
		"data":      data,
		"timestamp": time.Now().UnixMilli(),
	})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(http.StatusOK, gin.H{
		"code":      code,
		"message":   msg,
		"data":      nil,
		"timestamp": time.Now().UnixMilli(),
	})
}

// handleLogin accepts any username/password pair and issues a signed token
// carrying the uid claim the client inspects on restore.
func (s *devServer) handleLogin(c *gin.Context) {
	var req rest.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		fail(c, 400, "username and password required")
		return
	}

	s.mu.Lock()
	uid, known := s.byName[req.Username]
	if !known {
		s.nextUID++
		uid = s.nextUID
		now := time.Now().UnixMilli()
		s.users[uid] = rest.UserInfo{
			UserID:     uid,
			Username:   req.Username,
			Nickname:   req.Username,
			Status:     1,
			CreateTime: now,
			UpdateTime: now,
		}
		s.byName[req.Username] = uid
	}
	user := s.users[uid]
	s.mu.Unlock()

	expiry := time.Now().Add(24 * time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": uid,
		"exp": expiry.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		fail(c, 500, "sign token")
		return
	}

	ok(c, rest.LoginResponse{User: user, Token: signed, TokenExpireTime: expiry.UnixMilli()})
}

// verify checks the signature and expiry and returns the uid claim.
func (s *devServer) verify(token string) (int64, error) {
	parsed, err := jwt.Parse(token,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return 0, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, jwt.ErrTokenInvalidClaims
	}
	uid, ok := claims["uid"].(float64)
	if !ok || uid <= 0 {
		return 0, jwt.ErrTokenInvalidClaims
	}
	return int64(uid), nil
}

func (s *devServer) handleValidate(c *gin.Context) {
	var req rest.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, "token required")
		return
	}
	uid, err := s.verify(req.Token)
	if err != nil {
		fail(c, 401, "invalid token")
		return
	}
	s.mu.Lock()
	user, known := s.users[uid]
	s.mu.Unlock()
	if !known {
		fail(c, 401, "unknown user")
		return
	}
	ok(c, user)
}

func (s *devServer) handleUserInfo(c *gin.Context) {
	uid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, 400, "bad user id")
		return
	}
	s.mu.Lock()
	user, known := s.users[uid]
	s.mu.Unlock()
	if !known {
		fail(c, 404, "user not found")
		return
	}
	ok(c, user)
}

func (s *devServer) handleListRooms(c *gin.Context) {
	s.mu.Lock()
	rooms := make([]rest.RoomInfo, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()
	ok(c, rooms)
}

func (s *devServer) handleCreateRoom(c *gin.Context) {
	var req rest.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomName == "" {
		fail(c, 400, "roomName required")
		return
	}
	roomType := req.RoomType
	if roomType == "" {
		roomType = rest.RoomTypePublic
	}

	s.mu.Lock()
	s.nextRID++
	room := rest.RoomInfo{
		RoomID:          s.nextRID,
		RoomName:        req.RoomName,
		Description:     req.Description,
		RoomType:        roomType,
		CreateTimeStamp: time.Now().UnixMilli(),
		Status:          rest.RoomStatusActive,
	}
	s.rooms[room.RoomID] = room
	s.mu.Unlock()
	ok(c, room)
}

func (s *devServer) handleDeleteRoom(c *gin.Context) {
	rid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, 400, "bad room id")
		return
	}
	s.mu.Lock()
	delete(s.rooms, rid)
	s.mu.Unlock()
	ok(c, "deleted")
}

func (s *devServer) handleOfflineRoom(c *gin.Context) {
	rid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, 400, "bad room id")
		return
	}
	s.mu.Lock()
	room, known := s.rooms[rid]
	if known {
		room.Status = rest.RoomStatusDisbanded
		s.rooms[rid] = room
	}
	s.mu.Unlock()
	if !known {
		fail(c, 404, "room not found")
		return
	}
	ok(c, room)
}

func (s *devServer) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[devserver] upgrade: %v", err)
		return
	}

	m := &member{conn: conn, rooms: make(map[int64]bool)}
	s.mu.Lock()
	s.members[conn] = m
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.members, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				logger.Infof("[devserver] read: %v", err)
			}
			return
		}
		env, derr := protocol.Decode(data)
		if derr != nil {
			logger.Warnf("[devserver] dropping frame: %v", derr)
			continue
		}
		if done := s.handleEnvelope(m, env); done {
			return
		}
	}
}

func (s *devServer) handleEnvelope(m *member, env *protocol.Envelope) (done bool) {
	switch env.Namespace {
	case protocol.NamespaceLink:
		switch env.Type {
		case protocol.LinkConnect:
			m.uid = env.UID
			ack := "connected"
			_ = m.write(&protocol.Envelope{
				Namespace: protocol.NamespaceLink,
				UID:       env.UID,
				Token:     env.Token,
				Type:      protocol.LinkConnect,
				Content:   &ack,
				Timestamp: time.Now().UnixMilli(),
			})
		case protocol.LinkHeartbeat:
			pong := "pong"
			_ = m.write(&protocol.Envelope{
				Namespace: protocol.NamespaceLink,
				UID:       env.UID,
				Token:     env.Token,
				Type:      protocol.LinkHeartbeat,
				Content:   &pong,
				Timestamp: time.Now().UnixMilli(),
			})
		case protocol.LinkDisconnect:
			return true
		}
	case protocol.NamespaceRoom:
		roomID := *env.TargetID
		switch env.Type {
		case protocol.RoomJoin:
			s.mu.Lock()
			m.rooms[roomID] = true
			s.mu.Unlock()
		case protocol.RoomLeave:
			s.mu.Lock()
			delete(m.rooms, roomID)
			s.mu.Unlock()
		case protocol.RoomMessage:
			s.fanOut(roomID, env)
		}
	}
	return false
}

// fanOut delivers a room message to every member of the room. The sender
// gets the echo too; the client correlates it with its optimistic insert.
func (s *devServer) fanOut(roomID int64, env *protocol.Envelope) {
	s.mu.Lock()
	targets := make([]*member, 0, len(s.members))
	for _, m := range s.members {
		if m.rooms[roomID] {
			targets = append(targets, m)
		}
	}
	s.mu.Unlock()

	for _, m := range targets {
		if err := m.write(env); err != nil {
			logger.Warnf("[devserver] fan-out to uid=%d: %v", m.uid, err)
		}
	}
}
