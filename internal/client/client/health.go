package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthProber checks the server's gRPC health service.
type HealthProber struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

var _ Prober = (*HealthProber)(nil)

// NewHealthProber prepares a lazy connection to addr. Extra dial options are
// appended after the insecure transport credentials.
func NewHealthProber(addr string, opts ...grpc.DialOption) (*HealthProber, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &HealthProber{
		conn:    conn,
		client:  healthpb.NewHealthClient(conn),
		service: api.HealthService,
	}, nil
}

// Ping succeeds only when the ingest service reports SERVING.
func (p *HealthProber) Ping(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return p.mapError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: status %s", ErrUnavailable, resp.GetStatus())
	}
	return nil
}

func (p *HealthProber) Close() error {
	return p.conn.Close()
}

func (p *HealthProber) mapError(err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
