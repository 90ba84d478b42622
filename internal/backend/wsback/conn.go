package wsback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bytehaul/bytehaul/pkg/protocol"
	"github.com/bytehaul/bytehaul/pkg/transfer"
)

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// wsConn wraps a WebSocket connection to a haul server for one upload.
// Writes are serialized with a mutex since the remove path may write
// concurrently with the chunk sender.
type wsConn struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	writeMu sync.Mutex
}

// buildUploadURL converts the server's HTTP base URL into the WebSocket
// upload endpoint for req.
func buildUploadURL(serverURL string, req *transfer.Request) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}

	scheme := strings.Replace(u.Scheme, "http", "ws", 1)
	if scheme == "ws" && u.Scheme == "https" {
		scheme = "wss"
	}

	query := url.Values{}
	query.Set("upload_id", req.ID)
	query.Set("name", req.Name)
	query.Set("size", strconv.FormatInt(req.Size, 10))

	wsURL := url.URL{
		Scheme:   scheme,
		Host:     u.Host,
		Path:     "/upload",
		RawQuery: query.Encode(),
	}

	return wsURL.String(), nil
}

// dialUpload establishes the upload connection for req.
func dialUpload(ctx context.Context, serverURL string, req *transfer.Request, logger *slog.Logger) (*wsConn, error) {
	wsURL, err := buildUploadURL(serverURL, req)
	if err != nil {
		return nil, err
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}

	return &wsConn{conn: conn, logger: logger}, nil
}

func (c *wsConn) writeJSON(env protocol.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(env)
}

func (c *wsConn) writeBinary(chunk []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// readLoop reads server envelopes and calls onEnv for each. Returns when the
// connection closes or ctx is canceled.
func (c *wsConn) readLoop(ctx context.Context, onEnv func(env protocol.Envelope)) error {
	go func() {
		<-ctx.Done()
		// Closing the connection forces ReadMessage() to unblock instantly
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return err
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("invalid JSON envelope", "error", err)
			continue
		}

		onEnv(env)
	}
}

func (c *wsConn) close() error {
	return c.conn.Close()
}
