package grpc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func TestWaitServingSuccess(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitServing(ctx, addr, "", t.Logf); err != nil {
		t.Fatalf("wait serving: %v", err)
	}
}

func TestWaitServingReportsHealthStage(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := WaitServing(ctx, addr, "", nil)
	var dialErr *DialError
	if !errors.As(err, &dialErr) {
		t.Fatalf("error = %v, want *DialError", err)
	}
	if dialErr.Stage != DialStageHealth {
		t.Fatalf("stage = %q, want %q", dialErr.Stage, DialStageHealth)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestWaitServingUnreachableAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := WaitServing(ctx, "127.0.0.1:1", "", nil); err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("wait took %v, want bounded by context", elapsed)
	}
}

func TestDialErrorFormatting(t *testing.T) {
	inner := errors.New("boom")
	err := &DialError{Stage: DialStageConnect, Err: inner}
	if !strings.Contains(err.Error(), "connect") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Fatal("expected unwrap to expose inner error")
	}

	var nilErr *DialError
	if nilErr.Error() == "" || nilErr.Unwrap() != nil {
		t.Fatal("nil DialError should be safe")
	}
}
