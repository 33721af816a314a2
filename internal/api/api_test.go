package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/api/middleware"
	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/feed"
	"github.com/matheus3301/freightdesk/internal/messaging"
	"github.com/matheus3301/freightdesk/internal/store"
	"github.com/matheus3301/freightdesk/internal/unread"
)

type testEnv struct {
	srv      *httptest.Server
	svc      *messaging.Service
	registry *unread.Registry
	bus      *bus.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	db.SetNotifier(feed.NewPublisher(b))

	ctx := context.Background()
	for _, p := range []*store.Profile{
		{ID: "X", Role: store.RoleClient, FullName: "Xavier"},
		{ID: "Y", Role: store.RoleTransporter, CompanyName: "Yellow Haulage"},
		{ID: "Z", Role: store.RoleTransporter, FullName: "Zoe"},
	} {
		if err := db.UpsertProfile(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.CreateShipment(ctx, &store.Shipment{ID: "SHP-1", ClientID: "X", TransporterID: "Y", OriginCity: "Lyon", DestinationCity: "Lille"}); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateShipment(ctx, &store.Shipment{ID: "SHP-OPEN", ClientID: "X", OriginCity: "Pau", DestinationCity: "Caen"}); err != nil {
		t.Fatal(err)
	}

	reg := unread.NewRegistry()
	svc := messaging.NewService(db, zap.NewNop())
	router := NewRouter(Deps{
		Service:        svc,
		Registry:       reg,
		Bus:            b,
		Identity:       middleware.NewIdentity([]byte("0123456789abcdef0123456789abcdef"), "freightdesk", true),
		Logger:         zap.NewNop(),
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, svc: svc, registry: reg, bus: b}
}

// do sends a request as userID via the trusted header.
func (e *testEnv) do(t *testing.T, userID, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserHeader, userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, "", http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var h apiv1.Health
	decodeBody(t, resp, &h)
	if h.Status != "ok" {
		t.Errorf("health = %+v", h)
	}
}

func TestSessionCookie(t *testing.T) {
	e := newTestEnv(t)
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	resp, err := client.Post(e.srv.URL+"/api/session", "application/json", strings.NewReader(`{"user_id":"X"}`))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	resp, err = client.Get(e.srv.URL + "/api/session")
	if err != nil {
		t.Fatal(err)
	}
	var s apiv1.Session
	decodeBody(t, resp, &s)
	_ = resp.Body.Close()
	if s.UserID != "X" {
		t.Errorf("session user = %q, want X", s.UserID)
	}

	req, _ := http.NewRequest(http.MethodDelete, e.srv.URL+"/api/session", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	resp, err = client.Get(e.srv.URL + "/api/session")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	e := newTestEnv(t)
	tests := []struct {
		name   string
		user   string
		method string
		path   string
		body   any
		want   int
	}{
		{"anonymous", "", http.MethodGet, "/api/conversations", nil, http.StatusUnauthorized},
		{"outsider", "Z", http.MethodGet, "/api/conversations/SHP-1/messages", nil, http.StatusForbidden},
		{"unknown", "X", http.MethodGet, "/api/conversations/SHP-404/messages", nil, http.StatusNotFound},
		{"unassigned", "X", http.MethodPost, "/api/conversations/SHP-OPEN/read", nil, http.StatusConflict},
		{"empty", "X", http.MethodPost, "/api/conversations/SHP-1/messages", apiv1.SendMessageRequest{Content: "   "}, http.StatusUnprocessableEntity},
		{"bad role", "N", http.MethodPut, "/api/profile", apiv1.Profile{Role: "pilot"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.do(t, tt.user, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestBadJSON(t *testing.T) {
	e := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/api/conversations/SHP-1/messages", strings.NewReader("{"))
	req.Header.Set(middleware.UserHeader, "X")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSendFetchAndRead(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, "Y", http.MethodPost, "/api/conversations/SHP-1/messages", apiv1.SendMessageRequest{Content: "loaded"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	var sent apiv1.Message
	decodeBody(t, resp, &sent)

	var unreadResp apiv1.UnreadResponse
	decodeBody(t, e.do(t, "X", http.MethodGet, "/api/unread", nil), &unreadResp)
	if unreadResp.Count != 1 {
		t.Errorf("X unread = %d, want 1", unreadResp.Count)
	}

	var msgs []apiv1.Message
	decodeBody(t, e.do(t, "X", http.MethodGet, "/api/conversations/SHP-1/messages", nil), &msgs)
	if len(msgs) != 1 || msgs[0].ID != sent.ID || msgs[0].Content != "loaded" {
		t.Errorf("messages = %+v", msgs)
	}

	var convs []apiv1.Conversation
	decodeBody(t, e.do(t, "X", http.MethodGet, "/api/conversations", nil), &convs)
	if len(convs) != 1 || convs[0].UnreadCount != 1 || convs[0].OtherPartyName != "Yellow Haulage" || convs[0].LastMessageAt == nil {
		t.Errorf("conversations = %+v", convs)
	}

	refreshed := 0
	unregister := e.registry.Register("X", func() { refreshed++ })
	defer unregister()

	var marked apiv1.MarkReadResponse
	decodeBody(t, e.do(t, "X", http.MethodPost, "/api/conversations/SHP-1/read", nil), &marked)
	if marked.Marked != 1 {
		t.Errorf("marked = %d, want 1", marked.Marked)
	}
	if refreshed != 1 {
		t.Errorf("registry refreshes = %d, want 1", refreshed)
	}
	decodeBody(t, e.do(t, "X", http.MethodPost, "/api/conversations/SHP-1/read", nil), &marked)
	if marked.Marked != 0 {
		t.Errorf("second mark = %d, want 0", marked.Marked)
	}

	var header apiv1.ChatShipment
	decodeBody(t, e.do(t, "Y", http.MethodGet, "/api/conversations/SHP-1/shipment", nil), &header)
	if header.OtherPartyName != "Xavier" || header.OtherPartyRole != "client" {
		t.Errorf("chat header = %+v", header)
	}
}

func TestShipmentLifecycle(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, "X", http.MethodPost, "/api/shipments", apiv1.CreateShipmentRequest{OriginCity: "Brest", DestinationCity: "Dijon"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var sh apiv1.Shipment
	decodeBody(t, resp, &sh)

	resp = e.do(t, "X", http.MethodPut, "/api/shipments/"+sh.ID+"/transporter", apiv1.AssignTransporterRequest{TransporterID: "Z"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("assign status = %d", resp.StatusCode)
	}
	resp = e.do(t, "Z", http.MethodGet, "/api/conversations/"+sh.ID+"/messages", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("transporter read status = %d, want 200", resp.StatusCode)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) apiv1.UnreadFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var f apiv1.UnreadFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestUnreadWebsocket(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, "Y", http.MethodPost, "/api/conversations/SHP-1/messages", apiv1.SendMessageRequest{Content: "one"})

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/unread"
	header := http.Header{}
	header.Set(middleware.UserHeader, "X")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	if f := readFrame(t, conn); f.Type != apiv1.FrameUnread || f.Count != 1 {
		t.Fatalf("seed frame = %+v, want unread 1", f)
	}

	e.do(t, "Y", http.MethodPost, "/api/conversations/SHP-1/messages", apiv1.SendMessageRequest{Content: "two"})
	if f := readFrame(t, conn); f.Count != 2 {
		t.Fatalf("frame after send = %+v, want 2", f)
	}

	e.do(t, "X", http.MethodPost, "/api/conversations/SHP-1/read", nil)
	if f := readFrame(t, conn); f.Count != 0 {
		t.Fatalf("frame after read = %+v, want 0", f)
	}
}

// TestUnreadCounterCatchesUpStaleSeed starts a counter from a seed read
// before the latest message was written. No feed event follows, so only the
// initial recompute can correct it.
func TestUnreadCounterCatchesUpStaleSeed(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, "Y", http.MethodPost, "/api/conversations/SHP-1/messages", apiv1.SendMessageRequest{Content: "one"})

	h := newHandler(Deps{Service: e.svc, Registry: e.registry, Bus: e.bus, Logger: zap.NewNop()})
	got := make(chan int, 4)
	counter := h.startUnreadCounter(context.Background(), "X", 0, func(n int) { got <- n })
	defer counter.Close()

	select {
	case n := <-got:
		if n != 1 {
			t.Errorf("OnChange = %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale seed was never corrected")
	}
	if counter.Count() != 1 {
		t.Errorf("Count() = %d, want 1", counter.Count())
	}
}

func TestUnreadWebsocketRequiresIdentity(t *testing.T) {
	e := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/unread"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial should fail without identity")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestUnreadWebsocketRejectsForeignOrigin(t *testing.T) {
	e := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/unread"
	header := http.Header{}
	header.Set(middleware.UserHeader, "X")
	header.Set("Origin", "https://evil.example")
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("Dial from a foreign origin should fail")
	}
}
