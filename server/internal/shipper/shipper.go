package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ludisdb/ludis/pkg/replpb"
	"github.com/ludisdb/ludis/server/internal/config"
)

// Shipper forwards local writes to every configured replication peer.
// Ship() is non-blocking; each peer has its own buffer and when it is full
// the oldest write is evicted. Run() must be called in a goroutine to drain
// the buffers and handle reconnection.
type Shipper struct {
	cfg    config.ServerConfig
	peers  []*peer
	dialFn dialFunc // injectable for tests
}

// peer is the outbound queue of a single replication target.
type peer struct {
	addr string
	buf  chan *replpb.WriteRequest

	// pending holds a write whose send failed transiently; it is retried
	// before anything else once the peer is reachable again.
	pending *replpb.WriteRequest
}

// dialFunc is the function signature used to open a gRPC connection.
type dialFunc func(ctx context.Context, addr string, tlsCfg config.TLSConfig) (*grpc.ClientConn, error)

// New creates a Shipper with one queue per peer in cfg.Replication.Peers.
func New(cfg config.ServerConfig) *Shipper {
	s := &Shipper{cfg: cfg, dialFn: defaultDial}
	for _, addr := range cfg.Replication.Peers {
		s.peers = append(s.peers, &peer{
			addr: addr,
			buf:  make(chan *replpb.WriteRequest, cfg.Replication.BufferSize),
		})
	}
	return s
}

// Peers returns the addresses writes are shipped to.
func (s *Shipper) Peers() []string {
	out := make([]string, len(s.peers))
	for i, p := range s.peers {
		out[i] = p.addr
	}
	return out
}

// Ship enqueues w for every peer. Origin defaults to this node's ID.
// If a peer's buffer is full its oldest write is evicted to make room.
func (s *Shipper) Ship(w replpb.WriteRequest) {
	if w.Origin == "" {
		w.Origin = s.cfg.NodeID
	}
	for _, p := range s.peers {
		// Peers share the request; it is never mutated after this point.
		p.enqueue(&w)
	}
}

func (p *peer) enqueue(w *replpb.WriteRequest) {
	for {
		select {
		case p.buf <- w:
			return
		default:
		}
		select {
		case <-p.buf:
			slog.Warn("shipper: buffer full, evicted oldest write",
				"peer", p.addr, "buffer_cap", cap(p.buf))
		default:
		}
	}
}

// Run drains every peer's buffer until ctx is cancelled. Each peer is served
// by its own goroutine that reconnects with exponential backoff.
func (s *Shipper) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range s.peers {
		wg.Add(1)
		go func(p *peer) {
			defer wg.Done()
			s.runPeer(ctx, p)
		}(p)
	}
	wg.Wait()
}

func (s *Shipper) runPeer(ctx context.Context, p *peer) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, p.addr, s.cfg.Replication.TLS)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"peer", p.addr,
				"err", err,
				"retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("shipper: connected", "peer", p.addr)

		err = s.drain(ctx, p, conn, bo)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"peer", p.addr,
			"err", err,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain sends writes to p until a transient send error or ctx is cancelled.
func (s *Shipper) drain(ctx context.Context, p *peer, conn *grpc.ClientConn, bo *backoff) error {
	client := replpb.NewReplicationClient(conn)

	for {
		w := p.pending
		if w == nil {
			select {
			case <-ctx.Done():
				return nil
			case w = <-p.buf:
			}
		}
		p.pending = nil

		resp, err := s.send(ctx, client, w)
		if err != nil {
			if isPermanentError(err) {
				slog.Error("shipper: permanent send error, discarding write",
					"peer", p.addr, "key", string(w.Key), "err", err)
				continue
			}
			p.pending = w
			return fmt.Errorf("send: %w", err)
		}
		bo.reset()

		if !resp.Applied {
			slog.Debug("shipper: peer kept a later write",
				"peer", p.addr, "key", string(w.Key), "message", resp.Message)
		} else {
			slog.Debug("shipper: write delivered", "peer", p.addr, "key", string(w.Key))
		}
	}
}

func (s *Shipper) send(ctx context.Context, client replpb.ReplicationClient, w *replpb.WriteRequest) (*replpb.WriteResponse, error) {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.Replication.SendTimeout)
	defer cancel()

	if s.cfg.Auth.Mode == "apikey" {
		if key := s.cfg.Auth.Key(); key != "" {
			sendCtx = metadata.AppendToOutgoingContext(sendCtx, s.cfg.Auth.EffectiveHeader(), key)
		}
	}
	return client.Replicate(sendCtx, w)
}

// isPermanentError returns true for gRPC errors that indicate the write
// itself will never be accepted and should not be retried.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to addr, using mutual TLS when configured.
func defaultDial(ctx context.Context, addr string, tlsCfg config.TLSConfig) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if tlsCfg.Enabled() {
		c, err := buildMTLSCreds(tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		creds = c
	}
	return grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(creds)) //nolint:staticcheck // deprecated in 1.63
}

// buildMTLSCreds loads the client certificate and optional CA bundle.
func buildMTLSCreds(cfg config.TLSConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tc := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", cfg.CAFile)
		}
		tc.RootCAs = pool
	}

	return credentials.NewTLS(tc), nil
}
