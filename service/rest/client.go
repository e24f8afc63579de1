// Package rest is the client for the backend's request/response surface:
// authentication, user profiles and room administration. Every endpoint
// answers the uniform envelope {code, message, data, timestamp}; code 200
// is success and code 401 forces session termination at this boundary.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/xexgm/chatlink/tools/errs"
)

// Config holds the HTTP client parameters.
type Config struct {
	BaseURL    string
	Timeout    time.Duration // default 10s
	HTTPClient *http.Client  // nil => a fresh client with Timeout
}

func (c *Config) norm() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
}

// Client talks to one backend. Safe for concurrent use once constructed;
// the token is swapped under a lock because login and forced logout race
// with in-flight background requests.
type Client struct {
	base string
	http *http.Client

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

func New(cfg Config) *Client {
	cfg.norm()
	return &Client{base: cfg.BaseURL, http: cfg.HTTPClient}
}

// SetToken installs the bearer token attached to subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// OnUnauthorized registers the forced-logout callback invoked on any 401,
// before the ErrAuth is returned to the caller.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// apiResponse is the uniform backend envelope.
type apiResponse struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.ErrTransport.WithDetailf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return c.unauthorized(path)
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return errors.Wrapf(err, "decode response of %s", path)
	}
	if envelope.Code == http.StatusUnauthorized {
		return c.unauthorized(path)
	}
	if envelope.Code != http.StatusOK {
		return errors.Errorf("%s failed: code=%d message=%q", path, envelope.Code, envelope.Message)
	}
	if out == nil {
		return nil
	}
	if envelope.Data == nil {
		return errors.Errorf("%s: empty data in success response", path)
	}
	return decodeData(envelope.Data, out)
}

// decodeData maps the envelope's generic data payload onto a typed struct.
// JSON numbers arrive as float64, so decoding is weakly typed.
func decodeData(data, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "build decoder")
	}
	if err := dec.Decode(data); err != nil {
		return errors.Wrap(err, "decode data payload")
	}
	return nil
}

func (c *Client) unauthorized(path string) error {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
	return errs.ErrAuth.WithDetailf("%s returned 401", path)
}

// Login authenticates and installs the issued token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/user/login", LoginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodPost, "/user/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the token server side and clears it locally.
func (c *Client) Logout(ctx context.Context, userID int64) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	err := c.do(ctx, http.MethodPost, "/user/logout", LogoutRequest{UserID: userID, Token: token}, nil)
	c.SetToken("")
	return err
}

func (c *Client) GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/user/%d", userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateToken asks the backend whether a persisted token is still good,
// returning the profile it belongs to.
func (c *Client) ValidateToken(ctx context.Context, token string) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodPost, "/user/validate", TokenRequest{Token: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return c.do(ctx, http.MethodPost, "/user/password", req, nil)
}

func (c *Client) ListChatRooms(ctx context.Context) ([]RoomInfo, error) {
	var out []RoomInfo
	if err := c.do(ctx, http.MethodGet, "/room/list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateChatRoom(ctx context.Context, req CreateRoomRequest) (*RoomInfo, error) {
	var out RoomInfo
	if err := c.do(ctx, http.MethodPost, "/room/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteChatRoom(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/room/%d", roomID), nil, nil)
}

// OfflineChatRoom takes a room out of service without deleting its records.
func (c *Client) OfflineChatRoom(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/room/%d/offline", roomID), nil, nil)
}
