// Package api implements the HTTP REST API for the ludis server.
//
// New(store, replicator) returns an http.Handler that serves:
//
//	GET    /api/v1/health  status, shard count, key count
//	GET    /api/v1/keys?prefix=p  live keys starting with p
//	GET    /api/v1/kv/{key}  value and deadline; 404 if absent or expired
//	PUT    /api/v1/kv/{key}?ttl=30s  store the request body; shipped to peers
//	DELETE /api/v1/kv/{key}  remove the key
//	GET    /api/v1/scan?start=p&limit=n  ordered entries per shard, with shard index
//	POST   /api/v1/publish/{key}  publish the request body; returns receivers
//	GET    /api/v1/stats  per-shard counters and totals
//
// Keys and values travel as strings; the store itself is binary-safe.
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. JSON types are defined in types.go. No external
// HTTP framework is used.
package api
