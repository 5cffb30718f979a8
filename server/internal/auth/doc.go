// Package auth provides API key authentication for the ludis server.
//
// APIKeyInterceptor(mode, header, key) returns a gRPC UnaryServerInterceptor
// that validates the API key from the named gRPC metadata header on the
// replication service. HTTPMiddleware(mode, header, key) applies the same
// policy to the REST API and the WebSocket stream.
//
// When mode != "apikey" or key == "", all calls pass through (useful for local
// development with auth disabled). When the key is incorrect or absent,
// gRPC calls fail with codes.Unauthenticated and HTTP requests with 401.
package auth
