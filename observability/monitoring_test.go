package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStats_Snapshot(t *testing.T) {
	req := require.New(t)
	stats := NewStats()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.IncrAppends()
			stats.IncrFanouts()
			stats.AddSessions(1)
		}()
	}
	wg.Wait()
	stats.AddSessions(-3)
	stats.IncrPublishErrors()
	stats.IncrWorkerRestarts()

	snapshot := stats.Snapshot()
	req.Equal(uint64(10), snapshot.Appends)
	req.Equal(uint64(10), snapshot.Fanouts)
	req.Equal(int64(7), snapshot.Sessions)
	req.Equal(uint64(1), snapshot.PublishErrors)
	req.Equal(uint64(1), snapshot.WorkerRestarts)
}

func TestStats_Nil_Is_Noop(t *testing.T) {
	var stats *Stats
	stats.IncrAppends()
	stats.AddSubscriptions(1)
	require.Zero(t, stats.Snapshot().Appends)
}
