// Package shipper forwards writes accepted by this server to its replication
// peers over gRPC (Replication.Replicate unary RPC).
//
// Shipper.Ship() is non-blocking: the write is placed on every peer's
// in-memory queue (replication.buffer_size). When a queue is full the oldest
// write is evicted; receivers order writes by deadline, so a lost
// intermediate write is overtaken by the next one for the same key.
//
// Shipper.Run() drains each queue in its own goroutine, reconnecting with
// truncated exponential backoff (0.5s→30s, ±25% jitter). A write whose send
// fails transiently is retried first after reconnect. Permanent gRPC errors
// (Unauthenticated, PermissionDenied, InvalidArgument) discard the write.
//
// Auth: optional mutual TLS (replication.tls) and the server's own API key
// sent in the configured metadata header.
package shipper
