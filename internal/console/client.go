// Package console is a terminal front end for the voxdesk server. It talks to
// the same HTTP and websocket endpoints as the browser UI.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxdesk/internal/ui"
)

// Client calls the assistant API of one server.
type Client struct {
	base string
	http *http.Client
}

// ClientOption is a functional option for [NewClient].
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// NewClient creates a Client for the server at baseURL (e.g.
// "http://localhost:8080").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Toggle starts or stops the session of surface and returns its new state.
// A failed start returns the state together with an error carrying the
// server's message.
func (c *Client) Toggle(ctx context.Context, surface string) (ui.SurfaceState, error) {
	return c.surfaceCall(ctx, http.MethodPost, "/api/assistant/"+url.PathEscape(surface)+"/toggle")
}

// Unmount closes the session of surface, if it owns one.
func (c *Client) Unmount(ctx context.Context, surface string) (ui.SurfaceState, error) {
	return c.surfaceCall(ctx, http.MethodDelete, "/api/assistant/"+url.PathEscape(surface))
}

// Status returns the current state of surface.
func (c *Client) Status(ctx context.Context, surface string) (ui.SurfaceState, error) {
	return c.surfaceCall(ctx, http.MethodGet, "/api/assistant/"+url.PathEscape(surface))
}

// Active returns the live session, if any.
func (c *Client) Active(ctx context.Context) (ui.ActiveState, error) {
	var st ui.ActiveState
	resp, err := c.do(ctx, http.MethodGet, "/api/assistant")
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("console: active: unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("console: active: decode: %w", err)
	}
	return st, nil
}

func (c *Client) surfaceCall(ctx context.Context, method, path string) (ui.SurfaceState, error) {
	var st ui.SurfaceState
	resp, err := c.do(ctx, method, path)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()

	decodeErr := json.NewDecoder(resp.Body).Decode(&st)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return st, fmt.Errorf("console: %s %s: unknown surface", method, path)
	case resp.StatusCode != http.StatusOK && st.Error != "":
		return st, errors.New(st.Error)
	case resp.StatusCode != http.StatusOK:
		return st, fmt.Errorf("console: %s %s: unexpected status %s", method, path, resp.Status)
	case decodeErr != nil:
		return st, fmt.Errorf("console: %s %s: decode: %w", method, path, decodeErr)
	}
	return st, nil
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("console: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("console: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// Subscribe opens the UI websocket and delivers its events on the returned
// channel. The channel is closed when ctx ends or the connection drops; the
// error that ended the stream is then available from the returned func.
func (c *Client) Subscribe(ctx context.Context) (<-chan ui.Event, func() error, error) {
	wsURL, err := websocketURL(c.base + "/api/ws")
	if err != nil {
		return nil, nil, err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: c.http})
	if err != nil {
		return nil, nil, fmt.Errorf("console: dial %s: %w", wsURL, err)
	}

	events := make(chan ui.Event, 16)
	var readErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(events)
		defer conn.CloseNow()
		for {
			var ev ui.Event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				if ctx.Err() == nil {
					readErr = fmt.Errorf("console: read event: %w", err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, func() error { <-done; return readErr }, nil
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("console: parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("console: unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
