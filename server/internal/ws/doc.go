// Package ws streams published values to WebSocket subscribers.
//
// GET /ws/subscribe?key=k upgrades the connection, subscribes to k on the
// store and forwards every value published on k. A request without a key is
// rejected with 400 before the upgrade.
//
// New(store, sendBuf) creates a Hub.
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all active
// connections.
// Hub.Count() reports connected clients.
//
// Message format sent to clients:
//
//	{"event": "subscribed", "key": "k"}                 // once, on connect
//	{"event": "message",    "key": "k", "data": "..."}  // per published value
//
// Slow clients are not disconnected; once their queue and the subscription
// buffer fill, further values are dropped and counted as lag.
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level.
package ws
