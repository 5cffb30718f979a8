package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/ludisdb/ludis/pkg/replpb"
	"github.com/ludisdb/ludis/server/internal/api"
	"github.com/ludisdb/ludis/server/internal/auth"
	"github.com/ludisdb/ludis/server/internal/config"
	"github.com/ludisdb/ludis/server/internal/metrics"
	"github.com/ludisdb/ludis/server/internal/receiver"
	"github.com/ludisdb/ludis/server/internal/shipper"
	"github.com/ludisdb/ludis/server/internal/store"
	"github.com/ludisdb/ludis/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("ludis-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.SlogLevel())

	slog.Info("config loaded",
		"node_id", cfg.Server.NodeID,
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"shards", cfg.Server.Store.Shards,
		"auth_mode", cfg.Server.Auth.Mode,
		"peers", len(cfg.Server.Replication.Peers),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Only the log level is applied on reload; Watch warns about the rest.
	go func() {
		if err := config.Watch(ctx, *configPath, cfg, func(r config.Reload) {
			if r.LogLevelChanged {
				level.Set(r.Config.Server.SlogLevel())
				slog.Info("log level updated", "level", r.Config.Server.SlogLevel())
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	st, err := store.New(cfg.Server.Store.Shards)
	if err != nil {
		slog.Error("failed to create store", "err", err)
		os.Exit(1)
	}

	// Outbound replication to peers.
	ship := shipper.New(cfg.Server)
	shipDone := make(chan struct{})
	go func() {
		ship.Run(ctx)
		close(shipDone)
	}()
	if peers := ship.Peers(); len(peers) > 0 {
		slog.Info("replicating writes", "peers", peers)
	}

	// gRPC replication receiver with optional API key authentication.
	authMode, authHeader, authKey := cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key()
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(auth.APIKeyInterceptor(authMode, authHeader, authKey)))
	replpb.RegisterReplicationServer(grpcSrv, receiver.New(st))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port",
			"port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC receiver listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// WebSocket hub for per-key subscriptions.
	hub := ws.New(st, cfg.Server.WebSocket.SendBuffer)
	go hub.Run(ctx)

	// Combined HTTP server: REST API, WebSocket stream and /metrics.
	requireKey := auth.HTTPMiddleware(authMode, authHeader, authKey)
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", requireKey(api.New(st, ship)))
	httpMux.Handle("/ws/subscribe", requireKey(hub))
	httpMux.Handle("/metrics", metrics.Handler(st.Stats))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("ludis-server shutting down")

	grpcSrv.GracefulStop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "err", err)
	}

	<-shipDone
	st.Close()
	slog.Info("ludis-server stopped", "keys", st.Len())
}
