// Package runtime wires the server side of the change feed: the watcher
// tailing the store, the fanout pipeline and the heartbeat, all supervised.
// It contains no business rule.
package runtime

import (
	"context"
	"log/slog"
	"room-sync/contract"
	"room-sync/domain/event"
	"room-sync/observability"
	"room-sync/runtime/workers"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const backlogWarnPercent = 80

type Orchestrator struct {
	mu                sync.Mutex
	log               *slog.Logger
	db                *badger.DB
	rooms             workers.RoomSource
	supervisor        contract.ISupervisor
	events            chan event.FanoutEvent
	sinks             []contract.EventSink
	stats             *observability.Stats
	sinkTimeout       time.Duration
	heartbeatInterval time.Duration
	status            func(serving bool)
}

func NewOrchestrator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	db *badger.DB,
	rooms workers.RoomSource,
	stats *observability.Stats,
	bufferSize int,
	sinkTimeout time.Duration,
	heartbeatInterval time.Duration,
) *Orchestrator {
	return &Orchestrator{
		log:               log,
		db:                db,
		rooms:             rooms,
		supervisor:        supervisor,
		events:            make(chan event.FanoutEvent, bufferSize),
		stats:             stats,
		sinkTimeout:       sinkTimeout,
		heartbeatInterval: heartbeatInterval,
	}
}

func (o *Orchestrator) AddSinks(sinks ...contract.EventSink) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks = append(o.sinks, sinks...)
	return o
}

// WithStatus forwards the watcher connectivity, typically to the health server.
func (o *Orchestrator) WithStatus(status func(serving bool)) *Orchestrator {
	o.status = status
	return o
}

// Start registers the workers and blocks until the supervisor stops.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	watcher := workers.NewChangeWatcher(o.db, o.rooms, o.log, o.events).WithStatus(o.status)
	fanout := workers.NewEventFanout(o.log, o.events, o.sinkTimeout, o.stats, o.sinks...)
	o.supervisor.Add(watcher, fanout)
	if o.heartbeatInterval > 0 {
		o.supervisor.Add(
			workers.NewHeartbeatWorker(o.log, o.stats, o.heartbeatInterval),
			workers.NewChannelCapacityWorker(o.log, o.events, o.stats, o.heartbeatInterval, backlogWarnPercent),
		)
	}
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "sinks", len(o.sinks))
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels the supervised context; Start returns once every worker has.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
