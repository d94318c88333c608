package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"room-sync/auth"
	"room-sync/contract"
	"room-sync/gateway"
	"room-sync/infrastructure/grpc/server"
	"room-sync/internal"
	"room-sync/moderation"
	"room-sync/observability"
	"room-sync/pubsub"
	"room-sync/repositories"
	"room-sync/runtime"
	"room-sync/runtime/workers"
	"room-sync/services"
	"room-sync/sink"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run keeps every defer reachable: os.Exit is only called by main.
func run() (int, error) {
	// 1. Configuration & Logger
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return exitConfig, fmt.Errorf("failed to load .env: %w", err)
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, repositories.InspectRow)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Moderation
	words, err := moderation.NewEmbeddedLoader().LoadAll("censored")
	if err != nil {
		return exitConfig, fmt.Errorf("censored words: %w", err)
	}
	moderator, err := moderation.NewModerator(words.Words, charReplacement, logger)
	if err != nil {
		return exitConfig, fmt.Errorf("moderator: %w", err)
	}
	logger.Info("Moderation ready", "words", len(words.Words), "languages", words.Languages)

	// 4. Notification channel
	channel, err := openChannel(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing notification channel...")
		_ = channel.Close()
	}()

	// 5. Engine: watcher, fanout and sinks under supervision
	stats := observability.NewStats()
	health := server.NewHealthServer(logger)
	supervisor := workers.NewSupervisor(logger, config.RestartInterval, config.MaxRestartInterval).
		OnRestart(func(string, error) { stats.IncrWorkerRestarts() })
	rooms := repositories.NewRoomRepository(db, logger)
	index := repositories.NewMessageIndex(blugeWriter, logger, config.SearchLimit)

	orchestrator := runtime.NewOrchestrator(
		logger, supervisor, db, rooms, stats,
		config.BufferSize, config.SinkTimeout, config.HeartbeatInterval,
	).
		AddSinks(sink.NewPublishSink(channel, logger, stats), sink.NewIndexSink(index, logger, stats)).
		WithStatus(health.SetWatcherConnected)

	errChan := make(chan error, 3)
	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 6. WebSocket gateway
	issuer, err := auth.NewIssuer(config.JWTSecret, config.AuthTokenDuration)
	if err != nil {
		return exitConfig, err
	}
	service := services.NewRoomService(rooms, index, &moderator, logger, stats, config.MaxContentLength)
	gw := gateway.NewServer(service, channel, issuer, logger, stats, gateway.ServerConfig{
		AllowedOrigins: config.Origins(),
		SendBuffer:     config.SendBuffer,
	})
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		Handler:           gw.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting gateway", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// 7. gRPC health
	healthAddress := net.JoinHostPort(config.Host, fmt.Sprint(config.HealthPort))
	listener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	health.Register(grpcServer)
	go func() {
		logger.Info("Starting gRPC health server", "address", healthAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful shutdown: stop accepting clients, then drain the engine.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	health.Shutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	gw.Shutdown()
	grpcServer.GracefulStop()
	orchestrator.Stop()
	logger.Info("Program stopped", "stats", stats.Snapshot())

	return code, runErr
}

func openChannel(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.INotificationChannel, error) {
	if config.ChannelBackend == internal.ChannelRedis {
		channel, err := pubsub.NewRedisChannel(ctx, pubsub.RedisConfig{
			Address:  config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("redis channel: %w", err)
		}
		return channel, nil
	}
	return pubsub.NewHub(logger, config.BufferSize), nil
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}
	return options
}
