// Package wsclient talks to a gymhub server: JSON over HTTP with a session
// cookie, and websocket subscriptions to realtime topics.
package wsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"gymhub/internal/domain/broadcast"
	"gymhub/internal/domain/message"
	"gymhub/internal/domain/presence"
)

// Errors returned by Client.
var (
	ErrUnauthorized = errors.New("session missing or not allowed")
	ErrNotLoggedIn  = errors.New("not logged in")
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Unwrap maps auth failures to ErrUnauthorized.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// Session is the identity returned by login.
type Session struct {
	AccountID   string `json:"account_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Client is a gymhub API client. It keeps the session cookie in a jar.
type Client struct {
	base    *url.URL
	http    *http.Client
	dialer  websocket.Dialer
	session *Session
}

// New creates a client for the server at baseURL (http or https).
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL must be http or https, got %q", u.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: u,
		http: &http.Client{Jar: jar, Timeout: 60 * time.Second},
		dialer: websocket.Dialer{
			Jar:              jar,
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// Session returns the logged in identity.
func (c *Client) Session() (Session, error) {
	if c.session == nil {
		return Session{}, ErrNotLoggedIn
	}
	return *c.session, nil
}

func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return c.base.String() + ref
	}
	return c.base.ResolveReference(u).String()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

// Login authenticates and stores the session cookie.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/login", map[string]string{"email": email, "password": password}, &s)
	if err != nil {
		return Session{}, err
	}
	c.session = &s
	slog.Info("client_event", "event", "logged_in", "account_id", s.AccountID, "role", s.Role)
	return s, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	c.session = nil
	return c.do(ctx, http.MethodPost, "/logout", struct{}{}, nil)
}

// Messages returns up to limit recent chat messages, oldest first.
// limit <= 0 uses the server default.
func (c *Client) Messages(ctx context.Context, limit int) ([]message.Message, error) {
	path := "/api/chat/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []message.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage posts a staff chat message.
func (c *Client) SendMessage(ctx context.Context, content string) (message.Message, error) {
	var m message.Message
	err := c.do(ctx, http.MethodPost, "/api/chat/messages", map[string]string{"content": content}, &m)
	return m, err
}

// UploadBroadcast sends a recording; the server stores it and notifies listeners.
func (c *Client) UploadBroadcast(ctx context.Context, audio []byte) (broadcast.Broadcast, error) {
	var b broadcast.Broadcast
	err := c.do(ctx, http.MethodPost, "/api/broadcasts", map[string][]byte{"audio": audio}, &b)
	return b, err
}

// ActiveBroadcasts lists broadcasts that have not expired.
func (c *Client) ActiveBroadcasts(ctx context.Context) ([]broadcast.Broadcast, error) {
	var out []broadcast.Broadcast
	if err := c.do(ctx, http.MethodGet, "/api/broadcasts/active", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Presence returns the server's roster for topic.
func (c *Client) Presence(ctx context.Context, topic string) ([]presence.Record, error) {
	var out struct {
		Presences []presence.Record `json:"presences"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/presence/"+url.PathEscape(topic), nil, &out); err != nil {
		return nil, err
	}
	return out.Presences, nil
}

// FetchAudio downloads broadcast audio. Relative URLs resolve against the server.
// Payloads over broadcast.MaxAudioBytes fail with broadcast.ErrAudioTooLarge.
func (c *Client) FetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(audioURL), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, broadcast.MaxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	if len(data) > broadcast.MaxAudioBytes {
		return nil, broadcast.ErrAudioTooLarge
	}
	return data, nil
}
