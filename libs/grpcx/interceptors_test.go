package grpcx

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/apptcore/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestRequestIDPropagation(t *testing.T) {
	ctx := httpx.ContextWithRequestID(context.Background(), "req-1")

	var outgoing metadata.MD
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		outgoing, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	if err := UnaryClientRequestIDInterceptor()(ctx, "/svc/M", nil, nil, nil, invoker); err != nil {
		t.Fatalf("client interceptor: %v", err)
	}
	if got := outgoing.Get(RequestIDMetadataKey); len(got) != 1 || got[0] != "req-1" {
		t.Fatalf("expected outgoing request id, got %v", got)
	}

	serverCtx := metadata.NewIncomingContext(context.Background(), outgoing)
	var seen string
	_, err := UnaryServerRequestIDInterceptor()(serverCtx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/M"},
		func(ctx context.Context, _ any) (any, error) {
			seen = httpx.RequestIDFromContext(ctx)
			return nil, nil
		})
	if err != nil {
		t.Fatalf("server interceptor: %v", err)
	}
	if seen != "req-1" {
		t.Fatalf("expected request id on server context, got %q", seen)
	}
}
