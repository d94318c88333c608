//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"room-sync/domain"
	"room-sync/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.FanoutEvent) error
}

// IMessageStore is the durable room/message persistence.
// Appends to a single room are serialized by the implementation.
type IMessageStore interface {
	CreateRoom(ctx context.Context, name string, memberIDs []string) (domain.Room, error)
	GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	ListRoomsForMember(ctx context.Context, memberID string) ([]domain.Room, error)
	AppendMessage(ctx context.Context, roomID domain.RoomID, message domain.Message) (domain.Message, error)
}

// Handler receives events of one subscription, one at a time, in publish order.
type Handler func(e event.FanoutEvent)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID    string
	Topic string
}

type ISubscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)
	Unsubscribe(ctx context.Context, sub Subscription) error
}

type IPublisher interface {
	Publish(ctx context.Context, topic string, e event.FanoutEvent) error
}

// INotificationChannel delivers FanoutEvents at least once per subscriber,
// ordered within a topic.
type INotificationChannel interface {
	ISubscriber
	IPublisher
	Close() error
}
