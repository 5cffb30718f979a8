package receiver

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ludisdb/ludis/pkg/replpb"
	"github.com/ludisdb/ludis/server/internal/store"
)

// Receiver implements replpb.ReplicationServer.
// It applies writes forwarded by peer servers to the local store.
type Receiver struct {
	store *store.Store
}

// New creates a Receiver that applies replicated writes to st.
func New(st *store.Store) *Receiver {
	return &Receiver{store: st}
}

// Replicate is the unary RPC handler called by peer shippers.
// Writes carrying a deadline go through SetIfNewest so that a delayed write
// never shortens a key's lifetime; writes without one are applied as-is.
// Authentication is enforced by the gRPC server interceptor before this is called.
func (r *Receiver) Replicate(ctx context.Context, w *replpb.WriteRequest) (*replpb.WriteResponse, error) {
	if len(w.Key) == 0 {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	applied := true
	if w.Deadline != nil {
		applied = r.store.SetIfNewest(w.Key, w.Value, *w.Deadline)
	} else {
		r.store.Set(w.Key, w.Value, 0)
	}

	slog.Debug("receiver: write replicated",
		"key", string(w.Key),
		"origin", w.Origin,
		"has_deadline", w.Deadline != nil,
		"applied", applied,
	)

	resp := &replpb.WriteResponse{Applied: applied}
	if !applied {
		resp.Message = "stale: a later deadline is already stored"
	}
	return resp, nil
}
