package ws

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type harness struct {
	server *httptest.Server
	tokens *auth.TokenIssuer
	rooms  *repositories.RoomRepository
	store  repositories.MessageRepository
	relay  *runtime.Orchestrator
	live   *Server
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.DiscardHandler)
	tokens, err := auth.NewTokenIssuer("a-test-secret-that-is-long-enough-123", time.Hour)
	require.NoError(t, err)
	h := &harness{
		tokens: tokens,
		rooms:  repositories.NewRoomRepository(db, log),
		store:  repositories.NewMessageRepository(db, log),
	}
	h.relay = runtime.NewOrchestrator(log, runtime.Dependencies{
		Verifier:  tokens,
		Directory: h.rooms,
		Store:     h.store,
	}, runtime.Config{AuthTimeout: time.Second, OutboxSize: 64})

	ctx, cancel := context.WithCancel(context.Background())
	go h.relay.Start(ctx)
	t.Cleanup(cancel)

	h.live = NewServer(log, h.relay, cfg)
	h.server = httptest.NewServer(h.live.Handler())
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) group(t *testing.T, name string, admin domain.UserID, members ...domain.UserID) domain.Room {
	t.Helper()
	room, err := domain.NewGroupRoom(name, admin, members, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.rooms.CreateRoom(context.Background(), room))
	return room
}

func (h *harness) token(t *testing.T, user domain.UserID) string {
	t.Helper()
	token, err := h.tokens.GenerateToken(string(user), strings.ToUpper(string(user)), []string{"user"})
	require.NoError(t, err)
	return token
}

func (h *harness) dial(t *testing.T, header string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, h.server.URL)
	require.NoError(t, err)
	if header != "" {
		cfg.Header = make(http.Header)
		cfg.Header.Set("Authorization", header)
	}
	conn, err := websocket.DialConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect dials with a bearer header and consumes the authenticated frame.
func (h *harness) connect(t *testing.T, user domain.UserID) (*websocket.Conn, AuthenticatedPayload) {
	t.Helper()
	conn := h.dial(t, "Bearer "+h.token(t, user))
	frame := readFrame(t, conn)
	require.Equal(t, TypeAuthenticated, frame.Type)
	var payload AuthenticatedPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	return conn, payload
}

func writeFrame(t *testing.T, conn *websocket.Conn, frameType, requestID string, payload any) {
	t.Helper()
	frame := Frame{Type: frameType, RequestID: requestID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		frame.Payload = raw
	}
	require.NoError(t, websocket.JSON.Send(conn, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	return frame
}

// readUntil skips frames of other types, presence broadcasts mostly.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) Frame {
	t.Helper()
	for range 20 {
		frame := readFrame(t, conn)
		if frame.Type == frameType {
			return frame
		}
	}
	t.Fatalf("no %s frame received", frameType)
	return Frame{}
}

func payloadOf[T any](t *testing.T, frame Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(frame.Payload, &v))
	return v
}

func TestServer_Two_Users_Exchange_Messages(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{})
	room := h.group(t, "general", "alice", "bob")

	// Given alice and bob connected and joined
	alice, _ := h.connect(t, "alice")
	bob, welcome := h.connect(t, "bob")
	req.Contains(welcome.OnlineUsers, domain.UserID("alice"))

	writeFrame(t, alice, TypeJoinRooms, "j1", nil)
	ack := payloadOf[AckPayload](t, readUntil(t, alice, TypeAck))
	req.Equal([]domain.RoomID{room.ID}, ack.Rooms)
	writeFrame(t, bob, TypeJoinRoom, "j2", RoomPayload{RoomID: room.ID})
	readUntil(t, bob, TypeAck)

	// When alice says hi
	writeFrame(t, alice, TypeSendMessage, "m1", SendMessagePayload{RoomID: room.ID, Content: "hi"})

	// Then alice gets an ack with sequence 1 and both receive the message
	ackFrame := readUntil(t, alice, TypeAck)
	req.Equal("m1", ackFrame.RequestID)
	req.Equal(int64(1), payloadOf[AckPayload](t, ackFrame).Sequence)
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := payloadOf[MessagePayload](t, readUntil(t, conn, TypeNewMessage))
		req.Equal("hi", msg.Content)
		req.Equal(int64(1), msg.Sequence)
		req.Equal(domain.UserID("alice"), msg.SenderID)
		req.Equal(domain.ContentText, msg.ContentType)
	}

	// And the message is persisted
	history, err := h.store.History(context.Background(), room.ID, 0, 0)
	req.NoError(err)
	req.Len(history, 1)
}

func TestServer_Authenticates_With_First_Frame(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{})
	conn := h.dial(t, "")

	writeFrame(t, conn, TypeAuthenticate, "a1", AuthenticatePayload{Token: h.token(t, "alice")})

	frame := readFrame(t, conn)
	req.Equal(TypeAuthenticated, frame.Type)
	req.Equal("a1", frame.RequestID)
	req.Equal(domain.UserID("alice"), payloadOf[AuthenticatedPayload](t, frame).UserID)
}

func TestServer_Closes_Silent_Connection_After_Auth_Timeout(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{AuthTimeout: 100 * time.Millisecond})
	conn := h.dial(t, "")

	// Given a client that never authenticates
	frame := readFrame(t, conn)

	// Then it is told why and disconnected without entering any registry
	req.Equal(TypeError, frame.Type)
	req.Equal(errors.CodeAuth, payloadOf[ErrorPayload](t, frame).Code)
	var next Frame
	req.ErrorIs(websocket.JSON.Receive(conn, &next), io.EOF)
	req.Zero(h.relay.Stats().Sessions)
}

func TestServer_Rejects_Bad_Token(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{})
	conn := h.dial(t, "Bearer forged")

	frame := readFrame(t, conn)

	req.Equal(TypeError, frame.Type)
	req.Equal(errors.CodeAuth, payloadOf[ErrorPayload](t, frame).Code)
	req.Empty(h.relay.Presence.OnlineUsers())
}

func TestServer_Rejects_Frames_Before_Authentication(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{})
	conn := h.dial(t, "")

	writeFrame(t, conn, TypeJoinRooms, "j1", nil)

	frame := readFrame(t, conn)
	req.Equal(TypeError, frame.Type)
	req.Equal(errors.CodeAuth, payloadOf[ErrorPayload](t, frame).Code)
}

func TestServer_Reports_Membership_And_Not_Joined(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{})
	room := h.group(t, "private-club", "alice")
	mallory, _ := h.connect(t, "mallory")

	// When mallory tries to join a room she is not part of
	writeFrame(t, mallory, TypeJoinRoom, "j1", RoomPayload{RoomID: room.ID})
	frame := readUntil(t, mallory, TypeError)
	req.Equal("j1", frame.RequestID)
	req.Equal(errors.CodeMembership, payloadOf[ErrorPayload](t, frame).Code)

	// And posts without joining
	writeFrame(t, mallory, TypeSendMessage, "m1", SendMessagePayload{RoomID: room.ID, Content: "let me in"})
	frame = readUntil(t, mallory, TypeError)
	req.Equal(errors.CodeNotJoined, payloadOf[ErrorPayload](t, frame).Code)
}

func TestServer_Protocol_Errors_Keep_Connection_Open(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{})
	room := h.group(t, "general", "alice")
	alice, _ := h.connect(t, "alice")

	// Unknown frame type and missing payload
	writeFrame(t, alice, "dance", "x1", nil)
	req.Equal(errors.CodeProtocol, payloadOf[ErrorPayload](t, readUntil(t, alice, TypeError)).Code)
	writeFrame(t, alice, TypeSendMessage, "x2", nil)
	req.Equal(errors.CodeProtocol, payloadOf[ErrorPayload](t, readUntil(t, alice, TypeError)).Code)

	// The connection still works
	writeFrame(t, alice, TypeJoinRoom, "j1", RoomPayload{RoomID: room.ID})
	req.Equal("j1", readUntil(t, alice, TypeAck).RequestID)
}

func TestServer_Closes_After_Decode_Error_Budget(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{MaxDecodeErrors: 2})
	alice, _ := h.connect(t, "alice")

	for range 2 {
		_, err := alice.Write([]byte("{not json"))
		req.NoError(err)
		req.Equal(errors.CodeProtocol, payloadOf[ErrorPayload](t, readUntil(t, alice, TypeError)).Code)
	}

	// Then the server hangs up and alice goes offline
	req.Eventually(func() bool {
		return !h.relay.Presence.IsOnline("alice")
	}, time.Second, 10*time.Millisecond)
}

func TestServer_Rate_Limit(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{MaxFramesPerSecond: 2})
	alice, _ := h.connect(t, "alice")

	for range 5 {
		writeFrame(t, alice, TypeJoinRooms, "", nil)
	}

	frame := readUntil(t, alice, TypeError)
	req.Equal(errors.CodeRateLimited, payloadOf[ErrorPayload](t, frame).Code)
	req.Eventually(func() bool {
		return !h.relay.Presence.IsOnline("alice")
	}, time.Second, 10*time.Millisecond)
}

func TestServer_Relays_Typing_And_Presence(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{})
	room := h.group(t, "general", "alice", "bob")
	alice, _ := h.connect(t, "alice")
	writeFrame(t, alice, TypeJoinRooms, "j1", nil)
	readUntil(t, alice, TypeAck)

	// When bob connects, joins and starts typing
	bob, _ := h.connect(t, "bob")
	online := payloadOf[PresencePayload](t, readUntil(t, alice, TypeUserOnline))
	req.Equal(domain.UserID("bob"), online.UserID)
	writeFrame(t, bob, TypeJoinRooms, "j2", nil)
	readUntil(t, bob, TypeAck)
	writeFrame(t, bob, TypeTypingStart, "", RoomPayload{RoomID: room.ID})

	// Then alice sees bob typing
	typing := payloadOf[TypingPayload](t, readUntil(t, alice, TypeTypingStart))
	req.Equal(domain.UserID("bob"), typing.UserID)
	req.Equal(room.ID, typing.RoomID)

	// When bob disconnects while typing
	req.NoError(bob.Close())

	// Then alice sees typing stop then bob offline
	req.Equal(domain.UserID("bob"), payloadOf[TypingPayload](t, readUntil(t, alice, TypeTypingStop)).UserID)
	req.Equal(domain.UserID("bob"), payloadOf[PresencePayload](t, readUntil(t, alice, TypeUserOffline)).UserID)
}

func TestServer_Shutdown_Closes_Live_Sessions(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Config{})
	room := h.group(t, "ops", "alice", "bob")
	alice, _ := h.connect(t, "alice")
	bob, _ := h.connect(t, "bob")
	for _, conn := range []*websocket.Conn{alice, bob} {
		writeFrame(t, conn, TypeJoinRoom, "j", RoomPayload{RoomID: room.ID})
		readUntil(t, conn, TypeAck)
	}
	writeFrame(t, alice, TypeTypingStart, "", RoomPayload{RoomID: room.ID})
	readUntil(t, bob, TypeTypingStart)

	// When the server shuts down
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(h.live.Shutdown(ctx))

	// Then every session has been closed and released
	stats := h.relay.Stats()
	req.Zero(stats.Sessions)
	req.Zero(stats.OnlineUsers)
	req.Zero(stats.ActiveRooms)
	req.False(h.relay.Presence.IsOnline("alice"))
	var frame Frame
	for {
		_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := websocket.JSON.Receive(alice, &frame); err != nil {
			req.ErrorIs(err, io.EOF)
			break
		}
	}

	// And new connections are turned away
	late := h.dial(t, "Bearer "+h.token(t, "bob"))
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	req.ErrorIs(websocket.JSON.Receive(late, &frame), io.EOF)
	req.Zero(h.relay.Stats().Sessions)
}
