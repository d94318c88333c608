package workers

import (
	"context"
	"log/slog"
	"os"
	"room-sync/observability"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker logs process health (RSS, CPU, status) along with the
// engine counters at a fixed interval.
type HeartbeatWorker struct {
	log      *slog.Logger
	stats    *observability.Stats
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, stats *observability.Stats, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, stats: stats, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.beat(p)
		}
	}
}

func (w *HeartbeatWorker) beat(p *process.Process) {
	rss, cpu, status, err := getSelfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "error", err)
		return
	}
	snapshot := w.stats.Snapshot()
	w.log.Info("Heartbeat",
		"pid", p.Pid,
		"status", status,
		"cpu_percent", cpu,
		"rss_bytes", rss,
		"alloc_mem_mb", snapshot.AllocMemMb,
		"appends", snapshot.Appends,
		"fanouts", snapshot.Fanouts,
		"publish_errors", snapshot.PublishErrors,
		"index_errors", snapshot.IndexErrors,
		"worker_restarts", snapshot.WorkerRestarts,
		"sessions", snapshot.Sessions,
		"subscriptions", snapshot.Subscriptions,
		"fanout_backlog", snapshot.FanoutBacklog,
	)
}

// getSelfStats retrieves memory, CPU and OS status for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
