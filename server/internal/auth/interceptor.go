package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// APIKeyInterceptor returns a gRPC UnaryServerInterceptor that enforces API key
// authentication on every incoming replication call.
//
// If mode != "apikey" or key == "", all calls are allowed. Otherwise the value
// of header in the incoming metadata must equal key; a missing, empty, or
// incorrect key returns codes.Unauthenticated naming the rejected method.
//
// header should be lowercase, since gRPC normalises metadata keys.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	p := newPolicy(mode, header, key)
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if p == nil {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		if err := p.check(md.Get(p.header)); err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "%v for %s", err, info.FullMethod)
		}
		return handler(ctx, req)
	}
}
