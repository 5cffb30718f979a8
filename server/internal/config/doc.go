// Package config loads the ludis server configuration from the `server:`
// section of config.yaml.
//
// Config fields:
//   - NodeID: origin name stamped on replicated writes (default hostname)
//   - GRPCPort: replication receiver port (default 50051)
//   - HTTPPort: REST API, WebSocket stream and /metrics (default 8080)
//   - LogLevel: debug | info | warn | error (default info)
//   - Store.Shards: number of store shards (default 16)
//   - Auth.Mode: "apikey" or "none"
//   - Auth.KeyEnv: environment variable holding the API key
//   - Auth.Header: gRPC metadata/HTTP header name (default "x-api-key")
//   - Replication.Peers: gRPC addresses local writes are forwarded to
//   - Replication.BufferSize, SendTimeout, TLS
//   - WebSocket.SendBuffer
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, current, onChange) reloads the file on change via
// fsnotify and hands the server a Reload diffed against the running config.
// Only the log level is applied live; Reload.Restart names the changed
// settings that wait for a restart.
package config
