// Package receiver implements the gRPC replication server.
//
// Replicate(ctx, WriteRequest) is called by the shipper of every peer that
// accepted a local write. The receiver:
//  1. Rejects writes with an empty key (codes.InvalidArgument).
//  2. Applies writes with a deadline via store.SetIfNewest, so that
//     out-of-order deliveries resolve by deadline rather than arrival.
//  3. Applies writes without a deadline via store.Set.
//  4. Returns WriteResponse{Applied: false} when the write was stale.
//
// Received writes are never shipped onwards, so peers do not echo writes
// back and forth.
//
// API key authentication is handled by the gRPC interceptor in
// server/internal/auth; the receiver itself performs no auth checks.
package receiver
