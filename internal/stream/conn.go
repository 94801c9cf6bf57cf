package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// LivePath is where the backend broadcasts log entries.
	LivePath = "/ws/logs"

	writeWait = 5 * time.Second
)

// Conn is one live log connection.
type Conn interface {
	// ReadMessage blocks for the next frame.
	ReadMessage() ([]byte, error)
	WriteJSON(v interface{}) error
	// Close sends a close frame with code and reason, then drops the connection.
	Close(code int, reason string) error
}

// Dialer opens live connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the live endpoint with gorilla/websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewWebsocketDialer returns a Dialer sending header with every handshake.
func NewWebsocketDialer(header http.Header) *WebsocketDialer {
	d := *websocket.DefaultDialer
	return &WebsocketDialer{dialer: &d, header: header}
}

func (d *WebsocketDialer) Dial(ctx context.Context, u string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, u, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteJSON(v interface{}) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		// Best effort: the peer may already be gone.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// CloseStatus extracts the close code and reason from a read error.
// Errors without a close frame count as abnormal closure (1006).
func CloseStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// LiveURL derives the live endpoint from the API base location,
// upgrading http to ws and https to wss.
func LiveURL(apiBase string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("parse api base: %w", err)
	}

	var scheme string
	switch u.Scheme {
	case "http", "ws":
		scheme = "ws"
	case "https", "wss":
		scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported api base scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api base %q has no host", apiBase)
	}

	return scheme + "://" + u.Host + LivePath, nil
}
