package ws

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/websocket"
)

// Client is the live side of a relay connection, as used by chatctl and tests.
// Frames are read in the background; Frames is closed when the connection ends.
type Client struct {
	ws       *websocket.Conn
	welcome  AuthenticatedPayload
	frames   chan Frame
	mu       sync.Mutex
	requests atomic.Uint64
	err      atomic.Value
}

// Dial connects to a relay base URL (http or ws scheme) and authenticates with token.
func Dial(baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	origin := *u
	switch u.Scheme {
	case "http", "ws":
		u.Scheme, origin.Scheme = "ws", "http"
	case "https", "wss":
		u.Scheme, origin.Scheme = "wss", "https"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	cfg, err := websocket.NewConfig(u.String(), origin.String())
	if err != nil {
		return nil, err
	}
	cfg.Header = http.Header{"Authorization": []string{"Bearer " + token}}
	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}

	var first Frame
	if err := websocket.JSON.Receive(conn, &first); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c := &Client{ws: conn, frames: make(chan Frame, 256)}
	switch first.Type {
	case TypeAuthenticated:
		if err := json.Unmarshal(first.Payload, &c.welcome); err != nil {
			_ = conn.Close()
			return nil, err
		}
	case TypeError:
		_ = conn.Close()
		return nil, frameError(first)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("%w: unexpected %s frame", errors.ErrProtocol, first.Type)
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.frames)
	for {
		var frame Frame
		if err := websocket.JSON.Receive(c.ws, &frame); err != nil {
			c.err.Store(err)
			return
		}
		c.frames <- frame
	}
}

func (c *Client) Welcome() AuthenticatedPayload {
	return c.welcome
}

func (c *Client) Frames() <-chan Frame {
	return c.frames
}

// Err is the error that ended the read loop, if any.
func (c *Client) Err() error {
	if err, ok := c.err.Load().(error); ok {
		return err
	}
	return nil
}

// Send writes a frame and returns its generated request id.
func (c *Client) Send(frameType string, payload any) (string, error) {
	requestID := strconv.FormatUint(c.requests.Add(1), 10)
	frame := Frame{Type: frameType, RequestID: requestID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		frame.Payload = raw
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return requestID, websocket.JSON.Send(c.ws, frame)
}

func (c *Client) JoinRooms() (string, error) {
	return c.Send(TypeJoinRooms, nil)
}

func (c *Client) Join(roomID domain.RoomID) (string, error) {
	return c.Send(TypeJoinRoom, RoomPayload{RoomID: roomID})
}

func (c *Client) Leave(roomID domain.RoomID) (string, error) {
	return c.Send(TypeLeaveRoom, RoomPayload{RoomID: roomID})
}

func (c *Client) Post(roomID domain.RoomID, content string) (string, error) {
	return c.Send(TypeSendMessage, SendMessagePayload{RoomID: roomID, Content: content, ContentType: domain.ContentText})
}

func (c *Client) Typing(roomID domain.RoomID, started bool) error {
	frameType := TypeTypingStop
	if started {
		frameType = TypeTypingStart
	}
	_, err := c.Send(frameType, RoomPayload{RoomID: roomID})
	return err
}

func (c *Client) Close() error {
	return c.ws.Close()
}

// frameError rebuilds the error carried by an error frame.
func frameError(frame Frame) error {
	var p ErrorPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		return fmt.Errorf("%w: malformed error frame", errors.ErrProtocol)
	}
	return fmt.Errorf("%s: %s", p.Code, p.Message)
}

// FrameError returns the error of an error frame, nil for any other frame.
func FrameError(frame Frame) error {
	if frame.Type != TypeError {
		return nil
	}
	return frameError(frame)
}
