// Package replpb defines the gRPC replication service spoken between ludis
// servers. A server forwards each local write to its peers, which apply it
// with store.SetIfNewest so that out-of-order deliveries resolve by deadline.
//
// Messages are plain Go structs carried by a JSON codec registered under the
// "json" content-subtype; there is no protoc step.
package replpb

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "ludis.replication.v1.Replication"

	// ReplicateMethod is the full method name of the Replicate RPC.
	ReplicateMethod = "/" + ServiceName + "/Replicate"
)

// WriteRequest carries one replicated write.
type WriteRequest struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`

	// Deadline is the absolute expiration of the write. Nil means the value
	// does not expire.
	Deadline *time.Time `json:"deadline,omitempty"`

	// Origin identifies the server the write was first accepted by.
	Origin string `json:"origin,omitempty"`
}

// WriteResponse reports the outcome of a replicated write.
type WriteResponse struct {
	// Applied is false when the receiver already held a later deadline for
	// the key and dropped the write.
	Applied bool   `json:"applied"`
	Message string `json:"message,omitempty"`
}

// ReplicationServer is implemented by the receiving side.
type ReplicationServer interface {
	Replicate(context.Context, *WriteRequest) (*WriteResponse, error)
}

// ReplicationClient is the sending side.
type ReplicationClient interface {
	Replicate(ctx context.Context, in *WriteRequest, opts ...grpc.CallOption) (*WriteResponse, error)
}

type replicationClient struct {
	cc grpc.ClientConnInterface
}

// NewReplicationClient returns a client that issues calls over cc using the
// JSON codec.
func NewReplicationClient(cc grpc.ClientConnInterface) ReplicationClient {
	return &replicationClient{cc: cc}
}

func (c *replicationClient) Replicate(ctx context.Context, in *WriteRequest, opts ...grpc.CallOption) (*WriteResponse, error) {
	out := new(WriteResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, ReplicateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterReplicationServer registers srv with s.
func RegisterReplicationServer(s grpc.ServiceRegistrar, srv ReplicationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func replicateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WriteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicationServer).Replicate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ReplicateMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReplicationServer).Replicate(ctx, req.(*WriteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the replication service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReplicationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Replicate",
			Handler:    replicateHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "replpb/replication.go",
}
