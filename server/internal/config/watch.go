package config

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"slices"

	"github.com/fsnotify/fsnotify"
)

// Reload is a config change picked up by Watch.
type Reload struct {
	// Config is the newly loaded configuration.
	Config *Config

	// LogLevelChanged is set when server.log_level differs from the
	// previous config. It is the only setting applied without a restart.
	LogLevelChanged bool

	// Restart lists the settings that changed but only take effect once the
	// server restarts, e.g. "server.store.shards".
	Restart []string
}

// restartOnly are the settings fixed at startup: listeners, store layout,
// auth policy, replication peers and WebSocket buffers.
var restartOnly = []struct {
	name string
	same func(a, b ServerConfig) bool
}{
	{"server.node_id", func(a, b ServerConfig) bool { return a.NodeID == b.NodeID }},
	{"server.grpc_port", func(a, b ServerConfig) bool { return a.GRPCPort == b.GRPCPort }},
	{"server.http_port", func(a, b ServerConfig) bool { return a.HTTPPort == b.HTTPPort }},
	{"server.store.shards", func(a, b ServerConfig) bool { return a.Store.Shards == b.Store.Shards }},
	{"server.auth", func(a, b ServerConfig) bool { return a.Auth == b.Auth }},
	{"server.replication.peers", func(a, b ServerConfig) bool {
		return slices.Equal(a.Replication.Peers, b.Replication.Peers)
	}},
	{"server.replication.buffer_size", func(a, b ServerConfig) bool {
		return a.Replication.BufferSize == b.Replication.BufferSize
	}},
	{"server.replication.send_timeout", func(a, b ServerConfig) bool {
		return a.Replication.SendTimeout == b.Replication.SendTimeout
	}},
	{"server.replication.tls", func(a, b ServerConfig) bool { return a.Replication.TLS == b.Replication.TLS }},
	{"server.websocket.send_buffer", func(a, b ServerConfig) bool {
		return a.WebSocket.SendBuffer == b.WebSocket.SendBuffer
	}},
}

// Diff compares two server configs. The returned Reload carries next.
func Diff(prev, next *Config) Reload {
	r := Reload{
		Config:          next,
		LogLevelChanged: prev.Server.SlogLevel() != next.Server.SlogLevel(),
	}
	for _, f := range restartOnly {
		if !f.same(prev.Server, next.Server) {
			r.Restart = append(r.Restart, f.name)
		}
	}
	return r
}

// Watch monitors path and calls onChange each time the file is rewritten
// with a config that differs from the one in effect. current is the config
// the server started with. Watch runs until ctx is cancelled.
//
// A file that fails to load is logged and ignored, so the previous config
// stays in effect. Changes to restart-only settings are logged as warnings.
func Watch(ctx context.Context, path string, current *Config, onChange func(Reload)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves replace the file and arrive as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Re-arm after a rename; the inode may be new.
			_ = watcher.Add(path)

			// A truncate-then-write save is seen empty first; an empty file
			// would otherwise load as all defaults.
			if fi, err := os.Stat(path); err == nil && fi.Size() == 0 {
				continue
			}

			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			if reflect.DeepEqual(current, next) {
				continue
			}

			r := Diff(current, next)
			if len(r.Restart) > 0 {
				slog.Warn("config: settings changed that need a restart",
					"path", path, "settings", r.Restart)
			}
			slog.Info("config: reloaded", "path", path, "log_level_changed", r.LogLevelChanged)
			current = next
			onChange(r)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
