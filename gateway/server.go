package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"room-sync/auth"
	"room-sync/contract"
	"room-sync/domain"
	"room-sync/domain/event"
	"room-sync/errors"
	"room-sync/observability"
	"room-sync/services"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	requestTimeout = 10 * time.Second
)

type ServerConfig struct {
	AllowedOrigins []string
	// SendBuffer bounds the frames queued for one connection. A session
	// whose queue overflows is closed; the client reloads on reconnect.
	SendBuffer int
}

// Server upgrades authenticated HTTP requests into sessions. Each session
// owns the subscriptions it opened on the notification channel.
type Server struct {
	service  services.IRoomService
	channel  contract.ISubscriber
	issuer   *auth.Issuer
	log      *slog.Logger
	stats    *observability.Stats
	validate *validator.Validate
	upgrader websocket.Upgrader
	buffer   int

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

func NewServer(
	service services.IRoomService,
	channel contract.ISubscriber,
	issuer *auth.Issuer,
	log *slog.Logger,
	stats *observability.Stats,
	config ServerConfig,
) *Server {
	policy := newOriginPolicy(config.AllowedOrigins, log)
	buffer := config.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Server{
		service:  service,
		channel:  channel,
		issuer:   issuer,
		log:      log,
		stats:    stats,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     policy.check,
		},
		buffer:   buffer,
		sessions: make(map[*session]struct{}),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	return mux
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.issuer.ValidateToken(auth.FromRequest(r))
	if err != nil {
		s.log.Warn("Rejected connection", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}

	sess := s.newSession(conn, identity)
	if !s.register(sess) {
		_ = conn.Close()
		return
	}
	s.log.Info("Session opened", "user_id", identity.UserID, "remote", r.RemoteAddr)

	go sess.writePump()
	sess.readPump()
}

// Shutdown closes every open session.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.stats.AddSessions(1)
	return true
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess]; ok {
		delete(s.sessions, sess)
		s.stats.AddSessions(-1)
	}
}

type session struct {
	server   *Server
	conn     *websocket.Conn
	identity auth.Identity
	log      *slog.Logger
	send     chan Frame
	ctx      context.Context
	cancel   context.CancelFunc

	mu   sync.Mutex
	subs map[string]contract.Subscription

	closeOnce sync.Once
}

func (s *Server) newSession(conn *websocket.Conn, identity auth.Identity) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		server:   s,
		conn:     conn,
		identity: identity,
		log:      s.log.With("user_id", identity.UserID),
		send:     make(chan Frame, s.buffer),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]contract.Subscription),
	}
}

func (c *session) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			c.handleReadError(err)
			return
		}
		c.enqueue(c.handle(req))
	}
}

func (c *session) handleReadError(err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.log.Debug("Session closed by peer")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.log.Warn("Session closed unexpectedly", "error", err)
	case c.ctx.Err() != nil:
	default:
		c.log.Debug("Session read failed", "error", err)
	}
}

func (c *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.log.Debug("Session write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// enqueue never blocks: it runs on channel delivery goroutines too.
func (c *session) enqueue(frame Frame) {
	if c.ctx.Err() != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.log.Warn("Dropped frame, closing slow session", "type", frame.Type, "subscription_id", frame.SubscriptionID)
		go c.close()
	}
}

func (c *session) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()

		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]contract.Subscription)
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		for _, sub := range subs {
			if err := c.server.channel.Unsubscribe(ctx, sub); err != nil {
				c.log.Warn("Unsubscribe on close failed", "topic", sub.Topic, "error", err)
			}
			c.server.stats.AddSubscriptions(-1)
		}
		c.server.unregister(c)
		c.log.Info("Session closed")
	})
}

func (c *session) handle(req Request) Frame {
	response := Frame{Type: FrameResponse, ID: req.ID}
	if err := c.server.validate.Struct(req); err != nil {
		response.Error = &ErrorBody{Code: CodeBadRequest, Message: err.Error()}
		return response
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	if err := c.dispatch(ctx, req, &response); err != nil {
		c.log.Debug("Request failed", "op", req.Op, "room_id", req.RoomID, "error", err)
		response.Error = NewErrorBody(err)
	}
	return response
}

func (c *session) dispatch(ctx context.Context, req Request, response *Frame) error {
	service := c.server.service
	userID := c.identity.UserID

	switch req.Op {
	case OpCreateRoom:
		room, err := service.CreateRoom(ctx, userID, domain.CreateRoomCommand{Name: req.Name, MemberIDs: req.MemberIDs})
		if err != nil {
			return err
		}
		response.Room = &room
	case OpGetRoom:
		room, err := service.GetRoom(ctx, userID, req.RoomID)
		if err != nil {
			return err
		}
		response.Room = &room
	case OpListRooms:
		if req.MemberID != "" && req.MemberID != userID {
			return fmt.Errorf("%s listing rooms of %s: %w", userID, req.MemberID, errors.ErrAccessDenied)
		}
		rooms, err := service.ListRooms(ctx, userID)
		if err != nil {
			return err
		}
		response.Rooms = rooms
	case OpPostMessage:
		message, err := service.PostMessage(ctx, domain.PostMessageCommand{
			Room:      req.RoomID,
			AuthorID:  userID,
			Text:      req.Text,
			ClientRef: req.ClientRef,
		})
		if err != nil {
			return err
		}
		response.Message = &message
	case OpSearch:
		hits, err := service.Search(ctx, userID, req.RoomID, req.Query)
		if err != nil {
			return err
		}
		response.Hits = hits
	case OpSubscribe:
		return c.subscribe(ctx, req.Topic, req.SubscriptionID)
	case OpUnsubscribe:
		return c.unsubscribe(ctx, req.SubscriptionID)
	}
	return nil
}

// authorize allows the caller's own user topic and the topics of rooms it
// belongs to.
func (c *session) authorize(ctx context.Context, topic string) error {
	switch {
	case strings.HasPrefix(topic, event.RoomTopic("")):
		roomID := domain.RoomID(strings.TrimPrefix(topic, event.RoomTopic("")))
		_, err := c.server.service.GetRoom(ctx, c.identity.UserID, roomID)
		return err
	case topic == event.UserTopic(c.identity.UserID):
		return nil
	default:
		return fmt.Errorf("%s subscribing to %s: %w", c.identity.UserID, topic, errors.ErrAccessDenied)
	}
}

func (c *session) subscribe(ctx context.Context, topic, subscriptionID string) error {
	if subscriptionID == "" {
		return fmt.Errorf("missing subscription id: %w", errors.ErrInvalidMessage)
	}
	if err := c.authorize(ctx, topic); err != nil {
		return err
	}

	c.mu.Lock()
	_, exists := c.subs[subscriptionID]
	c.mu.Unlock()
	if exists {
		return fmt.Errorf("subscription %s: %w", subscriptionID, errors.ErrConflict)
	}

	sub, err := c.server.channel.Subscribe(c.ctx, topic, func(e event.FanoutEvent) {
		c.enqueue(Frame{Type: FrameEvent, SubscriptionID: subscriptionID, Event: &e})
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		_ = c.server.channel.Unsubscribe(context.Background(), sub)
		return fmt.Errorf("session closed: %w", errors.ErrTransientNetwork)
	}
	c.subs[subscriptionID] = sub
	c.mu.Unlock()

	c.server.stats.AddSubscriptions(1)
	c.log.Debug("Subscribed", "topic", topic, "subscription_id", subscriptionID)
	return nil
}

func (c *session) unsubscribe(ctx context.Context, subscriptionID string) error {
	c.mu.Lock()
	sub, ok := c.subs[subscriptionID]
	delete(c.subs, subscriptionID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.server.stats.AddSubscriptions(-1)
	return c.server.channel.Unsubscribe(ctx, sub)
}
