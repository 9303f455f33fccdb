package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 5 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle and centralizes error reporting.
// Every deferred cleanup runs before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, _ := internal.CharacterRune(config.CharReplacement)
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB) and search (Bluge)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	var searchIndex contract.MessageIndex
	if config.BlugeFilepath != "" {
		blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
		}
		defer func() {
			logger.Info("Closing Bluge...")
			_ = blugeWriter.Close()
		}()
		searchIndex = repositories.NewSearchIndex(blugeWriter, logger, config.SearchLimit)
	} else {
		logger.Warn("BLUGE_FILEPATH is empty, message search is disabled")
	}

	messageRepository := repositories.NewMessageRepository(db, logger)
	roomRepository := repositories.NewRoomRepository(db, logger)
	userRepository := repositories.NewUserRepository(db)

	tokens, err := auth.NewTokenIssuer(config.AuthSecret, config.AuthTokenDuration)
	if err != nil {
		return exitConfig, err
	}

	// 3. Relay runtime
	telemetryChan := make(chan event.Event, config.TelemetryBufferSize)
	monitor := observability.NewMonitoringManager(logger)
	deps := runtime.Dependencies{
		Verifier:  tokens,
		Directory: roomRepository,
		Store:     messageRepository,
		Search:    searchIndex,
		Telemetry: telemetryChan,
		Handlers:  []event.Handler{monitor},
	}
	if config.ModerationEnabled {
		filter, err := buildFilter(config, charReplacement, logger, telemetryChan)
		if err != nil {
			return exitConfig, err
		}
		deps.Filter = filter
	}
	orchestrator := runtime.NewOrchestrator(logger, deps, runtime.Config{
		AuthTimeout:          config.AuthTimeout,
		OutboxSize:           config.OutboxSize,
		IndexQueueSize:       config.IndexQueueSize,
		IndexBatchSize:       config.IndexBatchSize,
		IndexFlushInterval:   config.IndexFlushInterval,
		MetricInterval:       config.MetricInterval,
		LowCapacityThreshold: config.LowCapacityThreshold,
		LatencyThreshold:     config.LatencyThreshold,
		LanePruneInterval:    config.LanePruneInterval,
	})

	errChan := make(chan error, 2)
	go orchestrator.Start(ctx)
	if config.MetricInterval > 0 {
		go monitor.Listen(ctx, config.MetricInterval)
	}

	// 4. gRPC services
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.Port)
	grpcListener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(logger),
			auth.AuthInterceptor(tokens, append(api.PublicMethods, healthpb.Health_Check_FullMethodName)...),
		))
	chatService := services.NewChatService(logger, roomRepository, userRepository, messageRepository, searchIndex)
	authService := services.NewAuthService(logger, userRepository, tokens)
	monitoringServer := server.NewMonitoringServer(orchestrator.Stats, monitor)
	api.RegisterAuthServiceServer(grpcServer, server.NewAuthServer(authService))
	api.RegisterChatServiceServer(grpcServer, server.NewChatServer(logger, chatService).WithPresence(orchestrator.Presence.IsOnline))
	api.RegisterMonitoringServiceServer(grpcServer, monitoringServer)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress, "at", time.Now().UTC())
		for serviceName := range grpcServer.GetServiceInfo() {
			logger.Debug("gRPC exposed service", "name", serviceName)
		}
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 5. Live channel
	wsAddress := fmt.Sprintf("%s:%d", config.Host, config.WebsocketPort)
	liveServer := ws.NewServer(logger, orchestrator, ws.Config{
		AuthTimeout:        config.AuthTimeout,
		WriteTimeout:       config.WriteTimeout,
		MaxPayloadBytes:    config.MaxPayloadBytes,
		MaxFramesPerSecond: config.MaxFramesPerSecond,
		MaxDecodeErrors:    config.MaxDecodeErrors,
	})
	wsServer := &http.Server{
		Addr:              wsAddress,
		Handler:           liveServer.Handler(),
		ReadHeaderTimeout: config.AuthTimeout,
	}
	// Shutdown does not close hijacked websocket connections.
	wsServer.RegisterOnShutdown(liveServer.CloseAll)
	go func() {
		logger.Info("Starting websocket server", "address", wsAddress)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("websocket server error: %w", err)
		}
	}()

	var debugServer *http.Server
	if config.DebugPort > 0 {
		logger.Info("Debug inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		debugServer = internal.StartDebugServer(logger, db, config.DebugPort, "/inspect", internal.RelayMapper,
			func() map[string]any {
				stats := orchestrator.Stats()
				return map[string]any{
					"sessions":     stats.Sessions,
					"online_users": stats.OnlineUsers,
					"active_rooms": stats.ActiveRooms,
					"counters":     stats.Counters,
				}
			},
			map[string]http.Handler{"/api/monitoring": monitoringServer})
	}
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 7. Graceful shutdown: stop accepting, close live connections, then drain workers.
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket shutdown incomplete", "error", err)
	}
	if err := liveServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("live sessions not closed in time", "error", err)
	}
	if debugServer != nil {
		_ = debugServer.Shutdown(shutdownCtx)
	}
	grpcServer.GracefulStop()
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

func buildFilter(config internal.Config, replacement rune, logger *slog.Logger, telemetry chan<- event.Event) (*moderation.Filter, error) {
	loader, path := moderation.NewEmbeddedLoader(), "censored"
	if config.ModerationDir != "" {
		loader, path = moderation.NewCensoredLoader(os.DirFS(config.ModerationDir)), "."
	}
	data, err := loader.LoadAll(path)
	if err != nil {
		return nil, fmt.Errorf("moderation dictionaries: %w", err)
	}
	moderator, err := moderation.NewModerator(data.Words, replacement, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Moderation enabled", "languages", data.Languages, "words", len(data.Words))
	return moderation.NewFilter(logger, moderator, telemetry), nil
}
