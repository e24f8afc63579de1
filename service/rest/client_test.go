package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xexgm/chatlink/tools/errs"
)

func respond(w http.ResponseWriter, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":      code,
		"message":   message,
		"data":      data,
		"timestamp": time.Now().UnixMilli(),
	})
}

func TestLoginInstallsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/login":
			var req LoginRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode login body: %v", err)
			}
			if req.Username != "alice" || req.Password != "s3cret" {
				t.Errorf("login body = %+v", req)
			}
			respond(w, 200, "ok", map[string]interface{}{
				"user":            map[string]interface{}{"userId": 1, "username": "alice", "nickname": "Alice"},
				"token":           "tok-123",
				"tokenExpireTime": 9999999999999,
			})
		case "/user/1":
			if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
				t.Errorf("Authorization = %q, want the login token", got)
			}
			respond(w, 200, "ok", map[string]interface{}{"userId": 1, "username": "alice"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	out, err := c.Login(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if out.Token != "tok-123" || out.User.UserID != 1 || out.User.Nickname != "Alice" {
		t.Fatalf("login response = %+v", out)
	}

	if _, err := c.GetUserInfo(context.Background(), 1); err != nil {
		t.Fatalf("GetUserInfo: %v", err)
	}
}

func TestListChatRoomsDecodesArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/room/list" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		respond(w, 200, "ok", []map[string]interface{}{
			{"roomId": 42, "roomName": "lobby", "roomType": "PUBLIC_ROOM", "createTimeStamp": 1700000000000},
			{"roomId": 7, "roomName": "ops", "roomType": "PRIVATE_ROOM", "createTimeStamp": 1700000001000},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	rooms, err := c.ListChatRooms(context.Background())
	if err != nil {
		t.Fatalf("ListChatRooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("rooms = %d, want 2", len(rooms))
	}
	if rooms[0].RoomID != 42 || rooms[0].RoomName != "lobby" || rooms[0].RoomType != RoomTypePublic {
		t.Errorf("rooms[0] = %+v", rooms[0])
	}
	if rooms[1].CreateTimeStamp != 1700000001000 {
		t.Errorf("rooms[1].CreateTimeStamp = %d", rooms[1].CreateTimeStamp)
	}
}

func TestEnvelope401ForcesLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, 401, "token expired", nil)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var fired int
	c.OnUnauthorized(func() { fired++ })

	_, err := c.GetUserInfo(context.Background(), 1)
	if !errors.Is(err, errs.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if fired != 1 {
		t.Errorf("onUnauthorized fired %d times, want 1", fired)
	}
}

func TestHTTP401ForcesLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var fired int
	c.OnUnauthorized(func() { fired++ })

	err := c.ChangePassword(context.Background(), ChangePasswordRequest{UserID: 1})
	if !errors.Is(err, errs.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if fired != 1 {
		t.Errorf("onUnauthorized fired %d times, want 1", fired)
	}
}

func TestBusinessErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, 500, "room name taken", nil)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.CreateChatRoom(context.Background(), CreateRoomRequest{RoomName: "lobby"})
	if err == nil {
		t.Fatal("expected business error")
	}
	if errors.Is(err, errs.ErrAuth) {
		t.Error("business failure must not read as an auth failure")
	}
	if want := "room name taken"; !strings.Contains(err.Error(), want) {
		t.Errorf("err = %q, want it to carry %q", err, want)
	}
}

func TestLogoutClearsTokenEvenOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, 500, "boom", nil)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	c.SetToken("tok-123")
	if err := c.Logout(context.Background(), 1); err == nil {
		t.Fatal("expected logout error")
	}
	if c.token != "" {
		t.Error("token survived logout")
	}
}

func TestConcurrentTokenSwap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, 200, "ok", map[string]interface{}{"userId": 1, "username": "alice"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.SetToken("tok")
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := c.GetUserInfo(context.Background(), 1); err != nil {
					t.Errorf("GetUserInfo: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestTransportErrorIsErrTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.ValidateToken(context.Background(), "tok")
	if !errors.Is(err, errs.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}
