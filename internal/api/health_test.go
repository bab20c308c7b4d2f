package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (f *fakePinger) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakePinger) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
		wantStore  string
	}{
		{"healthy", nil, http.StatusOK, "healthy", "ok"},
		{"degraded", errors.New("session store degraded"), http.StatusServiceUnavailable, "degraded", "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := chi.NewRouter()
			NewHealthHandler(&fakePinger{err: tt.pingErr}, time.Second, quietLogger()).RegisterHealth(r)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus || body.Checks["session_store"] != tt.wantStore {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestGRPCHealthOverBufconn(t *testing.T) {
	t.Parallel()

	pinger := &fakePinger{}
	gh := NewGRPCHealth(pinger, time.Hour, quietLogger())

	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = gh.Server().Serve(lis)
	}()
	t.Cleanup(gh.Server().Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if got := gh.Check(ctx); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("Check() = %v, want SERVING", got)
	}
	status, err := ProbeHealth(ctx, "passthrough:///bufnet", HealthServiceName, dialer)
	if err != nil {
		t.Fatalf("ProbeHealth() error = %v", err)
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", status)
	}

	pinger.setErr(errors.New("redis down"))
	if got := gh.Check(ctx); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("Check() = %v, want NOT_SERVING", got)
	}
	status, err = ProbeHealth(ctx, "passthrough:///bufnet", HealthServiceName, dialer)
	if err != nil {
		t.Fatalf("ProbeHealth() error = %v", err)
	}
	if status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", status)
	}
}

func TestProbeHealthUnreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := ProbeHealth(ctx, "127.0.0.1:1", HealthServiceName); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}
