package workers

import (
	"context"
	"fmt"
	"log/slog"
	"room-sync/contract"
	"room-sync/errors"
	"sync"
	"time"
)

// Supervisor Own a context and a Cancel function
// Run each worker in a goroutine
// Check panics and errors
// Restart workers with an exponential backoff
// Shutdown properly if parent context is canceled
// Wait for the end of all goroutines via WaitGroup
type Supervisor struct {
	Cancel             context.CancelFunc
	wg                 *sync.WaitGroup
	log                *slog.Logger
	workers            []contract.Worker
	restartInterval    time.Duration
	maxRestartInterval time.Duration
	onRestart          func(name string, err error)
}

func NewSupervisor(log *slog.Logger, restartInterval, maxRestartInterval time.Duration) *Supervisor {
	if maxRestartInterval < restartInterval {
		maxRestartInterval = restartInterval
	}
	return &Supervisor{
		wg:                 &sync.WaitGroup{},
		log:                log,
		restartInterval:    restartInterval,
		maxRestartInterval: maxRestartInterval,
	}
}

// OnRestart registers a hook called each time a worker is about to be restarted.
func (s *Supervisor) OnRestart(hook func(name string, err error)) *Supervisor {
	s.onRestart = hook
	return s
}

// Run blocks until every worker has returned.
// If the parent cancels, we cancel; if we call s.Cancel(), only our children cancel.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision in a dedicated goroutine.
// A panic or an error restarts it after a delay that doubles on every
// consecutive failure, capped at maxRestartInterval. A run that lasted longer
// than the cap resets the delay. A nil return ends supervision of the worker.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()
		delay := s.restartInterval

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			startedAt := time.Now()
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%v: %w", r, errors.ErrWorkerPanic)
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			if time.Since(startedAt) > s.maxRestartInterval {
				delay = s.restartInterval
			}
			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err, "delay", delay)
			if s.onRestart != nil {
				s.onRestart(workerName, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, s.maxRestartInterval)
		}
	}()
}

// Stop Cancel all goroutines listening channel for Ctx.Done
// Supervisor will wait for all goroutines to finish
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
