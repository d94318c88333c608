package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"room-sync/contract"
	"room-sync/domain"
	"room-sync/errors"
	"room-sync/repositories"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	_ contract.IMessageStore = (*Client)(nil)
	_ contract.ISubscriber   = (*Client)(nil)
)

// Client is the remote side of a Server session. It serves as both the
// message store and the notification channel of a client.Controller.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan Frame
	handlers map[string]contract.Handler
	err      error
	done     chan struct{}
}

// Dial opens a session against a ws:// or wss:// address. The token is sent
// as a bearer header.
func Dial(ctx context.Context, address, token string, log *slog.Logger) (*Client, error) {
	target, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", address, err)
	}
	if target.Path == "" || target.Path == "/" {
		target.Path = "/ws"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", target, errors.ErrInvalidToken)
		}
		return nil, fmt.Errorf("dial %s: %v: %w", target, err, errors.ErrTransientNetwork)
	}

	c := &Client{
		conn:     conn,
		log:      log,
		pending:  make(map[string]chan Frame),
		handlers: make(map[string]contract.Handler),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed once the connection is lost or closed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) CreateRoom(ctx context.Context, name string, memberIDs []string) (domain.Room, error) {
	frame, err := c.roundTrip(ctx, Request{Op: OpCreateRoom, Name: name, MemberIDs: memberIDs})
	if err != nil {
		return domain.Room{}, err
	}
	return roomOf(frame)
}

func (c *Client) GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	frame, err := c.roundTrip(ctx, Request{Op: OpGetRoom, RoomID: roomID})
	if err != nil {
		return domain.Room{}, err
	}
	return roomOf(frame)
}

func (c *Client) ListRoomsForMember(ctx context.Context, memberID string) ([]domain.Room, error) {
	frame, err := c.roundTrip(ctx, Request{Op: OpListRooms, MemberID: memberID})
	if err != nil {
		return nil, err
	}
	return frame.Rooms, nil
}

// AppendMessage posts the text of a pending message. The author is taken
// from the session identity on the server side.
func (c *Client) AppendMessage(ctx context.Context, roomID domain.RoomID, message domain.Message) (domain.Message, error) {
	frame, err := c.roundTrip(ctx, Request{
		Op:        OpPostMessage,
		RoomID:    roomID,
		Text:      message.Text,
		ClientRef: message.ClientRef,
	})
	if err != nil {
		return domain.Message{}, err
	}
	if frame.Message == nil {
		return domain.Message{}, fmt.Errorf("empty post response: %w", errors.ErrTransientNetwork)
	}
	return *frame.Message, nil
}

func (c *Client) Search(ctx context.Context, roomID domain.RoomID, query string) ([]repositories.SearchHit, error) {
	frame, err := c.roundTrip(ctx, Request{Op: OpSearch, RoomID: roomID, Query: query})
	if err != nil {
		return nil, err
	}
	return frame.Hits, nil
}

// Subscribe registers the handler before asking the server, so no event
// sent right after the server-side registration can be missed.
func (c *Client) Subscribe(ctx context.Context, topic string, handler contract.Handler) (contract.Subscription, error) {
	if handler == nil {
		return contract.Subscription{}, fmt.Errorf("subscribe %s: nil handler", topic)
	}
	sub := contract.Subscription{ID: uuid.NewString(), Topic: topic}

	c.mu.Lock()
	c.handlers[sub.ID] = handler
	c.mu.Unlock()

	if _, err := c.roundTrip(ctx, Request{Op: OpSubscribe, Topic: topic, SubscriptionID: sub.ID}); err != nil {
		c.mu.Lock()
		delete(c.handlers, sub.ID)
		c.mu.Unlock()
		return contract.Subscription{}, err
	}
	return sub, nil
}

// Unsubscribe stops local delivery immediately, then releases the server side.
func (c *Client) Unsubscribe(ctx context.Context, sub contract.Subscription) error {
	c.mu.Lock()
	_, ok := c.handlers[sub.ID]
	delete(c.handlers, sub.ID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := c.roundTrip(ctx, Request{Op: OpUnsubscribe, SubscriptionID: sub.ID})
	return err
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Frame, error) {
	req.ID = uuid.NewString()
	reply := make(chan Frame, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return Frame{}, err
	}
	c.pending[req.ID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, req); err != nil {
		return Frame{}, err
	}

	select {
	case frame := <-reply:
		if frame.Error != nil {
			return Frame{}, frame.Error.Err()
		}
		return frame, nil
	case <-c.done:
		return Frame{}, c.failure()
	case <-ctx.Done():
		return Frame{}, fmt.Errorf("%s: %v: %w", req.Op, ctx.Err(), errors.ErrTransientNetwork)
	}
}

func (c *Client) write(ctx context.Context, req Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("%s: %v: %w", req.Op, err, errors.ErrTransientNetwork)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.mu.Lock()
			c.err = fmt.Errorf("connection lost: %v: %w", err, errors.ErrTransientNetwork)
			c.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.Debug("Gateway connection ended", "error", err)
			}
			return
		}

		switch frame.Type {
		case FrameResponse:
			c.mu.Lock()
			reply, ok := c.pending[frame.ID]
			c.mu.Unlock()
			if ok {
				reply <- frame
			}
		case FrameEvent:
			c.mu.Lock()
			handler, ok := c.handlers[frame.SubscriptionID]
			c.mu.Unlock()
			if ok && frame.Event != nil {
				handler(*frame.Event)
			}
		default:
			c.log.Warn("Unknown frame type", "type", frame.Type)
		}
	}
}

func (c *Client) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return errors.ErrTransientNetwork
}

func roomOf(frame Frame) (domain.Room, error) {
	if frame.Room == nil {
		return domain.Room{}, fmt.Errorf("empty room response: %w", errors.ErrTransientNetwork)
	}
	return *frame.Room, nil
}
