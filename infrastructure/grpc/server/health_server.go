package server

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// WatcherService is the health service name tracking the change watcher.
const WatcherService = "roomsync.ChangeWatcher"

// HealthServer reports NOT_SERVING while the change watcher is not attached
// to the store, since confirmed messages are not fanned out in that state.
type HealthServer struct {
	health *health.Server
	log    *slog.Logger
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	h := &HealthServer{health: health.NewServer(), log: log}
	h.SetWatcherConnected(false)
	return h
}

func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

func (h *HealthServer) SetWatcherConnected(connected bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(WatcherService, status)
	h.log.Debug("Health status updated", "service", WatcherService, "status", status.String())
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *HealthServer) Shutdown() {
	h.health.Shutdown()
}
