package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/api/middleware"
	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/config"
	"github.com/matheus3301/freightdesk/internal/instance"
	"github.com/matheus3301/freightdesk/internal/lock"
	"github.com/matheus3301/freightdesk/internal/status"
	"github.com/matheus3301/freightdesk/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// shortTempDir keeps Unix socket paths under the 104-char macOS limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "fd-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func healthClient(t *testing.T, socketPath string) healthpb.HealthClient {
	t.Helper()
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func waitServing(t *testing.T, client healthpb.HealthClient, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err == nil && resp.Status == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("health never reached %v (last: %v, %v)", want, resp, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServingStatus(t *testing.T) {
	tests := []struct {
		state status.State
		want  healthpb.HealthCheckResponse_ServingStatus
	}{
		{status.Booting, healthpb.HealthCheckResponse_NOT_SERVING},
		{status.Migrating, healthpb.HealthCheckResponse_NOT_SERVING},
		{status.Connecting, healthpb.HealthCheckResponse_NOT_SERVING},
		{status.Ready, healthpb.HealthCheckResponse_SERVING},
		{status.Reconnecting, healthpb.HealthCheckResponse_NOT_SERVING},
		{status.Degraded, healthpb.HealthCheckResponse_NOT_SERVING},
		{status.Error, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		if got := ServingStatus(tt.state); got != tt.want {
			t.Errorf("ServingStatus(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

// TestControlSocketMirrorsStatus verifies that the health service follows
// the status machine, including a feed reconnect.
func TestControlSocketMirrorsStatus(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "d.sock")
	b := bus.New()
	machine := status.NewMachine(b)

	srv, err := NewServer(Params{InstanceName: "test", SocketPath: socketPath}, nil, machine, b, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	client := healthClient(t, socketPath)
	waitServing(t, client, healthpb.HealthCheckResponse_NOT_SERVING)

	for _, s := range []status.State{status.Migrating, status.Connecting, status.Ready} {
		if err := machine.Transition(s); err != nil {
			t.Fatal(err)
		}
	}
	waitServing(t, client, healthpb.HealthCheckResponse_SERVING)

	_ = machine.Transition(status.Reconnecting)
	waitServing(t, client, healthpb.HealthCheckResponse_NOT_SERVING)
}

// TestFxModuleWiring boots the whole daemon graph on SQLite with the
// in-process feed and exercises it over HTTP and the control socket.
func TestFxModuleWiring(t *testing.T) {
	tmpDir := shortTempDir(t)
	t.Setenv("FREIGHT_HOME", tmpDir)
	socketPath := filepath.Join(tmpDir, "d.sock")

	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.HTTP.TrustUserHeader = true
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"

	var (
		httpSrv *HTTPServer
		st      store.Store
	)
	app := fxtest.New(t,
		Module(Params{InstanceName: "fxtest", SocketPath: socketPath, Config: cfg, Logger: zap.NewNop()}),
		fx.Populate(&httpSrv, &st),
	)
	app.RequireStart()
	defer app.RequireStop()

	// The instance lock advertises the configured address.
	info, err := lock.Read(instance.Dir("fxtest"))
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("lock PID = %d, want %d", info.PID, os.Getpid())
	}

	waitServing(t, healthClient(t, socketPath), healthpb.HealthCheckResponse_SERVING)

	ctx := context.Background()
	_ = st.UpsertProfile(ctx, &store.Profile{ID: "X", Role: store.RoleClient})
	_ = st.UpsertProfile(ctx, &store.Profile{ID: "Y", Role: store.RoleTransporter})
	if err := st.CreateShipment(ctx, &store.Shipment{ID: "SHP-1", ClientID: "X", TransporterID: "Y", OriginCity: "Lyon", DestinationCity: "Lille"}); err != nil {
		t.Fatal(err)
	}

	base := "http://" + httpSrv.Addr()
	req, _ := http.NewRequest(http.MethodPost, base+"/api/conversations/SHP-1/messages", strings.NewReader(`{"content":"hello"}`))
	req.Header.Set(middleware.UserHeader, "Y")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d, want 201", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, base+"/api/unread", nil)
	req.Header.Set(middleware.UserHeader, "X")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var unread apiv1.UnreadResponse
	if err := json.NewDecoder(resp.Body).Decode(&unread); err != nil {
		t.Fatal(err)
	}
	if unread.Count != 1 {
		t.Errorf("unread = %d, want 1", unread.Count)
	}

	resp, err = http.Get(base + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var h apiv1.Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if h.State != string(status.Ready) {
		t.Errorf("health state = %q, want READY", h.State)
	}
}

func TestSecondDaemonRefused(t *testing.T) {
	tmpDir := shortTempDir(t)
	t.Setenv("FREIGHT_HOME", tmpDir)

	held, err := lock.Acquire(instance.Dir("busy"), "127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = held.Release() }()

	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	app := fx.New(
		Module(Params{InstanceName: "busy", SocketPath: filepath.Join(tmpDir, "d.sock"), Config: cfg, Logger: zap.NewNop()}),
		fx.NopLogger,
	)
	if app.Err() == nil {
		t.Fatal("second daemon on a locked instance should fail to build")
	}
}
