// Package ws exposes the relay over websocket connections carrying JSON frames.
// One connection is one session.
package ws

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

type Config struct {
	AuthTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxPayloadBytes    int
	MaxFramesPerSecond int
	MaxDecodeErrors    int
}

func (c Config) withDefaults() Config {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = 16 << 10
	}
	if c.MaxFramesPerSecond <= 0 {
		c.MaxFramesPerSecond = 20
	}
	if c.MaxDecodeErrors <= 0 {
		c.MaxDecodeErrors = 3
	}
	return c
}

type Server struct {
	log      *slog.Logger
	sessions *runtime.SessionManager
	pipeline *runtime.Pipeline
	typing   *runtime.TypingRelay
	presence *runtime.PresenceRegistry
	cfg      Config

	mu       sync.Mutex
	closing  bool
	active   map[*websocket.Conn]struct{}
	handlers sync.WaitGroup
}

func NewServer(log *slog.Logger, o *runtime.Orchestrator, cfg Config) *Server {
	return &Server{
		log:      log,
		sessions: o.Sessions,
		pipeline: o.Pipeline,
		typing:   o.Typing,
		presence: o.Presence,
		cfg:      cfg.withDefaults(),
		active:   make(map[*websocket.Conn]struct{}),
	}
}

// CloseAll closes every live connection and refuses new ones. Each handler
// then closes its session, so presence and typing state are released.
// It fits http.Server.RegisterOnShutdown, which never closes hijacked connections.
func (s *Server) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for ws := range s.active {
		_ = ws.Close()
	}
}

// Shutdown closes every live connection and waits for their sessions to be
// closed, or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.CloseAll()
	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) track(ws *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.active[ws] = struct{}{}
	s.handlers.Add(1)
	return true
}

func (s *Server) untrack(ws *websocket.Conn) {
	s.mu.Lock()
	delete(s.active, ws)
	s.mu.Unlock()
	s.handlers.Done()
}

// Handler serves the live channel on /ws and a liveness check on /up.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Server{
		// Browsers and CLI clients connect from any origin; identity comes from the token.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   s.handleConn,
	}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

// conn serializes writes: the outbox writer and the request loop share it.
type conn struct {
	ws           *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

func (c *conn) write(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return websocket.JSON.Send(c.ws, frame)
}

func (s *Server) handleConn(ws *websocket.Conn) {
	defer func() { _ = ws.Close() }()
	if !s.track(ws) {
		return
	}
	defer s.untrack(ws)
	ws.MaxPayloadBytes = s.cfg.MaxPayloadBytes
	c := &conn{ws: ws, writeTimeout: s.cfg.WriteTimeout}

	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()

	session, err := s.authenticate(ctx, c)
	if err != nil {
		s.log.Debug("websocket authentication failed", "remote", ws.Request().RemoteAddr, "error", err)
		_ = c.write(errorFrame("", err))
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(c, session)
	}()

	s.readLoop(ctx, c, session)
	s.sessions.Close(session)
	_ = ws.Close()
	wg.Wait()
}

// authenticate takes the token from the upgrade request or, failing that,
// from an authenticate frame that must arrive within the auth timeout.
func (s *Server) authenticate(ctx context.Context, c *conn) (*runtime.Session, error) {
	token := c.ws.Request().Header.Get("Authorization")
	requestID := ""
	if token == "" {
		_ = c.ws.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
		var frame Frame
		if err := websocket.JSON.Receive(c.ws, &frame); err != nil {
			return nil, fmt.Errorf("%w: no authenticate frame: %w", errors.ErrAuth, err)
		}
		_ = c.ws.SetReadDeadline(time.Time{})
		if frame.Type != TypeAuthenticate {
			return nil, fmt.Errorf("%w: expected %s, got %q", errors.ErrAuth, TypeAuthenticate, frame.Type)
		}
		var payload AuthenticatePayload
		if err := decode(frame, &payload); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrAuth, err)
		}
		token, requestID = payload.Token, frame.RequestID
	}

	session, err := s.sessions.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	frame, err := newFrame(TypeAuthenticated, requestID, AuthenticatedPayload{
		UserID:      session.User,
		SessionID:   session.ID,
		OnlineUsers: s.presence.OnlineUsers(),
	})
	if err == nil {
		err = c.write(frame)
	}
	if err != nil {
		s.sessions.Close(session)
		return nil, err
	}
	return session, nil
}

// writeLoop drains the session outbox until the session ends.
func (s *Server) writeLoop(c *conn, session *runtime.Session) {
	for {
		select {
		case e := <-session.Outbox():
			frame, err := toFrame(e)
			if err != nil {
				s.log.Error("dropping unsupported event", "session_id", session.ID, "error", err)
				continue
			}
			if err := c.write(frame); err != nil {
				s.log.Debug("websocket write failed", "session_id", session.ID, "error", err)
				_ = c.ws.Close()
				return
			}
		case <-session.Done():
			if errors.Is(session.Err(), errors.ErrSlowConsumer) {
				s.log.Warn("closing slow consumer", "session_id", session.ID, "user_id", session.User)
				_ = c.write(errorFrame("", fmt.Errorf("%w: %w", errors.ErrUnavailable, errors.ErrSlowConsumer)))
			}
			_ = c.ws.Close()
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *conn, session *runtime.Session) {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.MaxFramesPerSecond), s.cfg.MaxFramesPerSecond)
	decodeErrors := 0

	for {
		var frame Frame
		if err := websocket.JSON.Receive(c.ws, &frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || session.Err() != nil {
				return
			}
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				_ = c.write(errorFrame("", fmt.Errorf("%w: payload too large", errors.ErrProtocol)))
				continue
			}
			if !isDecodeError(err) {
				return
			}
			decodeErrors++
			_ = c.write(errorFrame("", fmt.Errorf("%w: invalid frame", errors.ErrProtocol)))
			if decodeErrors >= s.cfg.MaxDecodeErrors {
				return
			}
			continue
		}
		decodeErrors = 0

		if !limiter.Allow() {
			_ = c.write(errorFrame(frame.RequestID, errors.ErrRateLimited))
			return
		}

		ack, err := s.dispatch(ctx, session, frame)
		if err != nil {
			_ = c.write(errorFrame(frame.RequestID, err))
			continue
		}
		if ack != nil {
			if reply, err := newFrame(TypeAck, frame.RequestID, ack); err == nil {
				_ = c.write(reply)
			}
		}
	}
}

// dispatch runs one client frame. A nil ack means nothing to acknowledge.
func (s *Server) dispatch(ctx context.Context, session *runtime.Session, frame Frame) (*AckPayload, error) {
	switch frame.Type {
	case TypeJoinRoom:
		var payload RoomPayload
		if err := decode(frame, &payload); err != nil {
			return nil, err
		}
		if err := s.sessions.Join(ctx, session, payload.RoomID); err != nil {
			return nil, err
		}
		return &AckPayload{Rooms: []domain.RoomID{payload.RoomID}}, nil

	case TypeJoinRooms:
		rooms, err := s.sessions.JoinAll(ctx, session)
		if err != nil {
			return nil, err
		}
		return &AckPayload{Rooms: rooms}, nil

	case TypeLeaveRoom:
		var payload RoomPayload
		if err := decode(frame, &payload); err != nil {
			return nil, err
		}
		return &AckPayload{Rooms: []domain.RoomID{payload.RoomID}}, s.sessions.Leave(ctx, session, payload.RoomID)

	case TypeSendMessage:
		var payload SendMessagePayload
		if err := decode(frame, &payload); err != nil {
			return nil, err
		}
		msg, err := s.pipeline.Submit(ctx, session, domain.PostMessageCommand{
			RoomID:      payload.RoomID,
			Content:     payload.Content,
			ContentType: payload.ContentType,
		})
		if err != nil {
			return nil, err
		}
		return &AckPayload{MessageID: msg.ID, Sequence: msg.Sequence}, nil

	case TypeTypingStart, TypeTypingStop:
		var payload RoomPayload
		if err := decode(frame, &payload); err != nil {
			return nil, err
		}
		if frame.Type == TypeTypingStart {
			return nil, s.typing.Start(ctx, session, payload.RoomID)
		}
		return nil, s.typing.Stop(ctx, session, payload.RoomID)

	case TypeAuthenticate:
		return nil, fmt.Errorf("%w: already authenticated", errors.ErrProtocol)

	default:
		return nil, fmt.Errorf("%w: unsupported frame type %q", errors.ErrProtocol, strings.TrimSpace(frame.Type))
	}
}
