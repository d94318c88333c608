package observability

import (
	"runtime"
	"sync/atomic"
)

// StatsSnapshot is a point-in-time copy of the engine counters.
type StatsSnapshot struct {
	Appends        uint64 `json:"appends"`
	Fanouts        uint64 `json:"fanouts"`
	PublishErrors  uint64 `json:"publish_errors"`
	IndexErrors    uint64 `json:"index_errors"`
	WorkerRestarts uint64 `json:"worker_restarts"`
	Sessions       int64  `json:"sessions"`
	Subscriptions  int64  `json:"subscriptions"`
	FanoutBacklog  int64  `json:"fanout_backlog"`
	AllocMemMb     uint64 `json:"alloc_mem_mb"`
	NumGC          uint32 `json:"num_gc"`
}

// Stats aggregates the engine counters shared by the workers and the gateway.
// A nil *Stats is valid and ignores every update.
type Stats struct {
	appends        uint64
	fanouts        uint64
	publishErrors  uint64
	indexErrors    uint64
	workerRestarts uint64
	sessions       int64
	subscriptions  int64
	fanoutBacklog  int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncrAppends() {
	if s != nil {
		atomic.AddUint64(&s.appends, 1)
	}
}

func (s *Stats) IncrFanouts() {
	if s != nil {
		atomic.AddUint64(&s.fanouts, 1)
	}
}

func (s *Stats) IncrPublishErrors() {
	if s != nil {
		atomic.AddUint64(&s.publishErrors, 1)
	}
}

func (s *Stats) IncrIndexErrors() {
	if s != nil {
		atomic.AddUint64(&s.indexErrors, 1)
	}
}

func (s *Stats) IncrWorkerRestarts() {
	if s != nil {
		atomic.AddUint64(&s.workerRestarts, 1)
	}
}

// AddSessions moves the live WebSocket session gauge by delta.
func (s *Stats) AddSessions(delta int64) {
	if s != nil {
		atomic.AddInt64(&s.sessions, delta)
	}
}

// AddSubscriptions moves the live topic subscription gauge by delta.
func (s *Stats) AddSubscriptions(delta int64) {
	if s != nil {
		atomic.AddInt64(&s.subscriptions, delta)
	}
}

// SetFanoutBacklog records the last sampled length of the fanout queue.
func (s *Stats) SetFanoutBacklog(length int) {
	if s != nil {
		atomic.StoreInt64(&s.fanoutBacklog, int64(length))
	}
}

func (s *Stats) Snapshot() StatsSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	snapshot := StatsSnapshot{
		AllocMemMb: m.Alloc / 1024 / 1024,
		NumGC:      m.NumGC,
	}
	if s == nil {
		return snapshot
	}
	snapshot.Appends = atomic.LoadUint64(&s.appends)
	snapshot.Fanouts = atomic.LoadUint64(&s.fanouts)
	snapshot.PublishErrors = atomic.LoadUint64(&s.publishErrors)
	snapshot.IndexErrors = atomic.LoadUint64(&s.indexErrors)
	snapshot.WorkerRestarts = atomic.LoadUint64(&s.workerRestarts)
	snapshot.Sessions = atomic.LoadInt64(&s.sessions)
	snapshot.Subscriptions = atomic.LoadInt64(&s.subscriptions)
	snapshot.FanoutBacklog = atomic.LoadInt64(&s.fanoutBacklog)
	return snapshot
}
