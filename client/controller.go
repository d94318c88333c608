// Package client holds the per-client synchronization state machine.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"room-sync/auth"
	"room-sync/contract"
	"room-sync/domain"
	"room-sync/domain/event"
	"room-sync/errors"
	"room-sync/projection"
	"sync"
	"time"

	"github.com/samber/lo"
)

type State int

const (
	Idle State = iota
	Loading
	Active
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Active:
		return "active"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// View is what a client renders: the open room and the room list.
type View struct {
	State    State
	RoomID   domain.RoomID
	Messages []domain.Message
	RoomList []projection.RoomIndexEntry
	Err      error
}

// Controller drives one client: entering and leaving rooms, sending
// messages and applying pushed events. Every state change is published as
// a View; slow readers only ever see the latest one.
//
// Room events are tagged with the navigation generation they were
// subscribed under, so callbacks arriving after a leave or a switch are
// dropped.
type Controller struct {
	identity auth.Identity
	store    contract.IMessageStore
	channel  contract.ISubscriber
	log      *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	state      State
	roomID     domain.RoomID
	generation uint64
	timeline   *projection.Timeline
	rooms      *projection.RoomIndex
	roomSub    *contract.Subscription
	userSub    *contract.Subscription
	buffer     []event.FanoutEvent
	err        error
	views      chan View
	closed     bool
}

// NewController binds a controller to one identity. Changing identity means
// building a new controller.
func NewController(identity auth.Identity, store contract.IMessageStore, channel contract.ISubscriber, log *slog.Logger) *Controller {
	return &Controller{
		identity: identity,
		store:    store,
		channel:  channel,
		log:      log.With("user_id", identity.UserID),
		now:      time.Now,
		rooms:    projection.NewRoomIndex(),
		views:    make(chan View, 1),
	}
}

func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

func (c *Controller) Identity() auth.Identity { return c.identity }

// Views streams the successive views, latest wins.
func (c *Controller) Views() <-chan View { return c.views }

// Current returns the view as of now.
func (c *Controller) Current() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Start subscribes to the user topic so the room list follows every room
// of the user, then loads the room list.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	subscribed := c.userSub != nil
	c.mu.Unlock()

	if !subscribed {
		sub, err := c.channel.Subscribe(ctx, event.UserTopic(c.identity.UserID), c.onUserEvent)
		if err != nil {
			return fmt.Errorf("subscribe user topic: %w", err)
		}
		c.mu.Lock()
		c.userSub = &sub
		c.mu.Unlock()
	}
	return c.RefreshRooms(ctx)
}

// RefreshRooms reloads the room list from the store.
func (c *Controller) RefreshRooms(ctx context.Context) error {
	rooms, err := c.store.ListRoomsForMember(ctx, c.identity.UserID)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	entries := lo.Map(rooms, func(room domain.Room, _ int) projection.RoomIndexEntry {
		return projection.EntryFromRoom(room, c.identity.UserID)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms.Load(entries)
	c.publishLocked()
	return nil
}

// AddRoom shows a room the client just created or joined.
func (c *Controller) AddRoom(room domain.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms.Upsert(projection.EntryFromRoom(room, c.identity.UserID))
	c.publishLocked()
}

// EnterRoom makes roomID the active room. The previous room subscription is
// torn down first. The room topic is subscribed before the history is
// fetched and events received meanwhile are replayed on top of it, so no
// append is missed between the two. On failure the controller is left in
// the Error state; calling EnterRoom again retries.
func (c *Controller) EnterRoom(ctx context.Context, roomID domain.RoomID) error {
	c.mu.Lock()
	previous := c.roomSub
	c.roomSub = nil
	c.generation++
	gen := c.generation
	c.state = Loading
	c.roomID = roomID
	c.timeline = nil
	c.buffer = nil
	c.err = nil
	c.publishLocked()
	c.mu.Unlock()

	c.unsubscribe(ctx, previous)

	sub, err := c.channel.Subscribe(ctx, event.RoomTopic(roomID), func(e event.FanoutEvent) {
		c.onRoomEvent(gen, e)
	})
	if err != nil {
		return c.fail(ctx, gen, fmt.Errorf("subscribe room %s: %w", roomID, err))
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.unsubscribe(ctx, &sub)
		return nil
	}
	c.roomSub = &sub
	c.mu.Unlock()

	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return c.fail(ctx, gen, fmt.Errorf("load room %s: %w", roomID, err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return nil
	}
	timeline := projection.NewTimeline(roomID).WithClock(c.now)
	timeline.Reset(room.Messages)
	c.rooms.Upsert(projection.EntryFromRoom(room, c.identity.UserID))
	for _, e := range c.buffer {
		timeline.OnConfirmed(e.Message)
		c.rooms.OnFanout(e)
	}
	c.buffer = nil
	c.timeline = timeline
	c.state = Active
	c.publishLocked()
	c.log.Debug("Room entered", "room_id", roomID, "messages", len(room.Messages))
	return nil
}

// LeaveRoom drops the room subscription and its local state, including
// sends still pending.
func (c *Controller) LeaveRoom(ctx context.Context) {
	c.mu.Lock()
	previous := c.roomSub
	c.roomSub = nil
	c.generation++
	c.state = Idle
	c.roomID = ""
	c.timeline = nil
	c.buffer = nil
	c.err = nil
	c.publishLocked()
	c.mu.Unlock()

	c.unsubscribe(ctx, previous)
}

// Send shows the message as Pending, appends it and reconciles the answer.
// Overlapping sends are allowed. A failed append removes the Pending entry;
// connectivity failures come back retryable, never retried here.
func (c *Controller) Send(ctx context.Context, text string) (domain.Message, error) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return domain.Message{}, errors.ErrNotActive
	}
	gen := c.generation
	roomID := c.roomID
	tempID := c.timeline.SendLocal(text, c.identity.UserID)
	c.publishLocked()
	c.mu.Unlock()

	confirmed, err := c.store.AppendMessage(ctx, roomID, domain.Message{
		ID:        tempID,
		RoomID:    roomID,
		AuthorID:  c.identity.UserID,
		Text:      text,
		CreatedAt: c.now().UTC(),
		State:     domain.Pending,
		ClientRef: tempID,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.timeline == nil {
		return confirmed, err
	}
	if err != nil {
		failure := c.timeline.OnSendFailed(tempID)
		c.publishLocked()
		c.log.Warn("Send failed", "room_id", roomID, "temp_id", tempID, "error", err)
		if errors.Terminal(err) || errors.Is(err, errors.ErrInvalidMessage) {
			return domain.Message{}, err
		}
		return domain.Message{}, fmt.Errorf("%w: %w", failure, err)
	}
	if c.timeline.OnConfirmed(confirmed) {
		c.publishLocked()
	}
	return confirmed, nil
}

// Close releases every subscription. The controller is unusable afterwards.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	subs := []*contract.Subscription{c.roomSub, c.userSub}
	c.roomSub, c.userSub = nil, nil
	c.generation++
	c.state = Idle
	c.timeline = nil
	c.closed = true
	close(c.views)
	c.mu.Unlock()

	for _, sub := range subs {
		c.unsubscribe(ctx, sub)
	}
}

func (c *Controller) onRoomEvent(gen uint64, e event.FanoutEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || e.RoomID != c.roomID {
		return
	}
	switch c.state {
	case Loading:
		c.buffer = append(c.buffer, e)
	case Active:
		changed := c.timeline.OnConfirmed(e.Message)
		if c.rooms.OnFanout(e) || changed {
			c.publishLocked()
		}
	}
}

func (c *Controller) onUserEvent(e event.FanoutEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.rooms.OnFanout(e) {
		c.publishLocked()
	}
}

func (c *Controller) fail(ctx context.Context, gen uint64, err error) error {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return err
	}
	previous := c.roomSub
	c.roomSub = nil
	c.state = Error
	c.err = err
	c.timeline = nil
	c.buffer = nil
	c.publishLocked()
	c.mu.Unlock()

	c.unsubscribe(ctx, previous)
	c.log.Warn("Room unavailable", "room_id", c.roomIDOf(gen), "error", err,
		"terminal", errors.Terminal(err), "retryable", errors.Retryable(err))
	return err
}

func (c *Controller) roomIDOf(gen uint64) domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return ""
	}
	return c.roomID
}

func (c *Controller) unsubscribe(ctx context.Context, sub *contract.Subscription) {
	if sub == nil {
		return
	}
	if err := c.channel.Unsubscribe(ctx, *sub); err != nil {
		c.log.Warn("Unsubscribe failed", "topic", sub.Topic, "error", err)
	}
}

func (c *Controller) viewLocked() View {
	view := View{
		State:    c.state,
		RoomID:   c.roomID,
		RoomList: c.rooms.Entries(),
		Err:      c.err,
	}
	if c.timeline != nil {
		view.Messages = c.timeline.Messages()
	}
	return view
}

func (c *Controller) publishLocked() {
	if c.closed {
		return
	}
	select {
	case <-c.views:
	default:
	}
	c.views <- c.viewLocked()
}
