package messaging

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/feed"
	"github.com/matheus3301/freightdesk/internal/store"
	"github.com/matheus3301/freightdesk/internal/unread"
	"go.uber.org/zap"
)

// countingStore records how often the aggregate and write paths hit the store.
type countingStore struct {
	store.Store
	countUnread atomic.Int32
	inserts     atomic.Int32
}

func (c *countingStore) CountUnread(ctx context.Context, userID string, ids []string) (int, error) {
	c.countUnread.Add(1)
	return c.Store.CountUnread(ctx, userID, ids)
}

func (c *countingStore) InsertMessage(ctx context.Context, m *store.Message) error {
	c.inserts.Add(1)
	return c.Store.InsertMessage(ctx, m)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fixture creates client X, transporter Y, outsider Z, admin A and
// shipment SHP-1 between X and Y.
func fixture(t *testing.T) (*Service, *countingStore, *store.DB) {
	t.Helper()
	db := testDB(t)
	ctx := context.Background()
	for _, p := range []*store.Profile{
		{ID: "X", Role: store.RoleClient, FullName: "Xavier"},
		{ID: "Y", Role: store.RoleTransporter, CompanyName: "Yellow Haulage"},
		{ID: "Z", Role: store.RoleTransporter, FullName: "Zoe"},
		{ID: "A", Role: store.RoleAdmin, FullName: "Ada"},
	} {
		if err := db.UpsertProfile(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.CreateShipment(ctx, &store.Shipment{ID: "SHP-1", ClientID: "X", TransporterID: "Y", OriginCity: "Lyon", DestinationCity: "Lille"}); err != nil {
		t.Fatal(err)
	}
	cs := &countingStore{Store: db}
	return NewService(cs, zap.NewNop()), cs, db
}

func mustSend(t *testing.T, svc *Service, from, conv, text string) *store.Message {
	t.Helper()
	m, err := svc.SendMessage(context.Background(), from, conv, text, "")
	if err != nil {
		t.Fatalf("SendMessage(%s, %s): %v", from, conv, err)
	}
	return m
}

func unreadOf(t *testing.T, svc *Service, userID string) int {
	t.Helper()
	n, err := svc.GetUnreadMessagesCount(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUnreadMessagesCount(%s): %v", userID, err)
	}
	return n
}

func TestUnreadWithoutConversationsSkipsCount(t *testing.T) {
	svc, cs, db := fixture(t)
	ctx := context.Background()
	if err := db.UpsertProfile(ctx, &store.Profile{ID: "C2", Role: store.RoleClient}); err != nil {
		t.Fatal(err)
	}
	// An unassigned shipment is not a conversation.
	if err := db.CreateShipment(ctx, &store.Shipment{ID: "SHP-2", ClientID: "C2", OriginCity: "Nice", DestinationCity: "Metz"}); err != nil {
		t.Fatal(err)
	}

	for _, user := range []string{"C2", "Z", "A", "nobody"} {
		n, ids, err := svc.Recompute(ctx, user)
		if err != nil {
			t.Fatalf("Recompute(%s): %v", user, err)
		}
		if n != 0 || len(ids) != 0 {
			t.Errorf("Recompute(%s) = %d, %v; want 0, []", user, n, ids)
		}
	}
	if got := cs.countUnread.Load(); got != 0 {
		t.Errorf("CountUnread calls = %d, want 0", got)
	}
}

func TestSendIncrementsRecipientOnly(t *testing.T) {
	svc, _, _ := fixture(t)

	beforeX, beforeY := unreadOf(t, svc, "X"), unreadOf(t, svc, "Y")
	mustSend(t, svc, "Y", "SHP-1", "pickup confirmed")

	if got := unreadOf(t, svc, "X"); got != beforeX+1 {
		t.Errorf("X unread = %d, want %d", got, beforeX+1)
	}
	if got := unreadOf(t, svc, "Y"); got != beforeY {
		t.Errorf("Y unread = %d, want %d", got, beforeY)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()
	mustSend(t, svc, "Y", "SHP-1", "one")
	mustSend(t, svc, "Y", "SHP-1", "two")
	mustSend(t, svc, "X", "SHP-1", "three")

	n, err := svc.MarkMessagesAsRead(ctx, "X", "SHP-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("first mark = %d, want 2", n)
	}
	n, err = svc.MarkMessagesAsRead(ctx, "X", "SHP-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second mark = %d, want 0", n)
	}
	if got := unreadOf(t, svc, "X"); got != 0 {
		t.Errorf("X unread = %d, want 0", got)
	}
	// X's own message is still unread for Y.
	if got := unreadOf(t, svc, "Y"); got != 1 {
		t.Errorf("Y unread = %d, want 1", got)
	}
}

func TestSendThenFetchRoundTrip(t *testing.T) {
	svc, _, _ := fixture(t)
	mustSend(t, svc, "X", "SHP-1", "first")
	sent := mustSend(t, svc, "Y", "SHP-1", "  on my way  ")

	msgs, err := svc.GetMessages(context.Background(), "X", "SHP-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.ID != sent.ID || last.Content != "  on my way  " || last.SenderID != "Y" {
		t.Errorf("last = %+v, want id %s content %q sender Y", last, sent.ID, "  on my way  ")
	}
	if last.Content != sent.Content {
		t.Errorf("fetched content %q differs from sent %q", last.Content, sent.Content)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Errorf("messages out of order at %d", i)
		}
	}
}

func TestEmptyMessageRejectedWithoutStore(t *testing.T) {
	svc, cs, _ := fixture(t)
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.SendMessage(context.Background(), "X", "SHP-1", text, "")
		if !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("SendMessage(%q) error = %v, want ErrEmptyMessage", text, err)
		}
	}
	if got := cs.inserts.Load(); got != 0 {
		t.Errorf("InsertMessage calls = %d, want 0", got)
	}
}

func TestConversationAccess(t *testing.T) {
	svc, _, db := fixture(t)
	ctx := context.Background()
	if err := db.CreateShipment(ctx, &store.Shipment{ID: "SHP-OPEN", ClientID: "X", OriginCity: "Pau", DestinationCity: "Caen"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		userID string
		conv   string
		want   error
	}{
		{"anonymous", "", "SHP-1", ErrNotAuthenticated},
		{"outsider", "Z", "SHP-1", ErrForbidden},
		{"admin", "A", "SHP-1", ErrForbidden},
		{"unknown", "X", "SHP-404", ErrNotFound},
		{"unassigned", "X", "SHP-OPEN", ErrNoConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.GetMessages(ctx, tt.userID, tt.conv); !errors.Is(err, tt.want) {
				t.Errorf("GetMessages error = %v, want %v", err, tt.want)
			}
			if _, err := svc.SendMessage(ctx, tt.userID, tt.conv, "hi", ""); !errors.Is(err, tt.want) {
				t.Errorf("SendMessage error = %v, want %v", err, tt.want)
			}
			if _, err := svc.MarkMessagesAsRead(ctx, tt.userID, tt.conv); !errors.Is(err, tt.want) {
				t.Errorf("MarkMessagesAsRead error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetConversations(t *testing.T) {
	svc, _, db := fixture(t)
	ctx := context.Background()
	if err := db.CreateShipment(ctx, &store.Shipment{ID: "SHP-2", ClientID: "X", TransporterID: "Z", OriginCity: "Pau", DestinationCity: "Caen"}); err != nil {
		t.Fatal(err)
	}
	mustSend(t, svc, "Y", "SHP-1", "loaded")

	convs, err := svc.GetConversations(ctx, "X")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].ID != "SHP-1" || convs[0].OtherPartyName != "Yellow Haulage" || convs[0].UnreadCount != 1 {
		t.Errorf("first = %+v, want SHP-1 with Yellow Haulage and 1 unread", convs[0])
	}
	if convs[1].ID != "SHP-2" || !convs[1].LastMessageAt.IsZero() {
		t.Errorf("second = %+v, want SHP-2 without messages", convs[1])
	}

	convs, err = svc.GetConversations(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 0 {
		t.Errorf("admin conversations = %d, want 0", len(convs))
	}
	if _, err := svc.GetConversations(ctx, ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("anonymous error = %v, want ErrNotAuthenticated", err)
	}
}

func TestGetShipmentForChat(t *testing.T) {
	svc, _, _ := fixture(t)
	got, err := svc.GetShipmentForChat(context.Background(), "Y", "SHP-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.OtherPartyName != "Xavier" || got.OtherPartyRole != store.RoleClient || got.OriginCity != "Lyon" {
		t.Errorf("GetShipmentForChat = %+v", got)
	}
}

func TestPostAndAssignShipment(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()

	sh := &store.Shipment{OriginCity: "Brest", DestinationCity: "Dijon"}
	if err := svc.PostShipment(ctx, "Y", sh); !errors.Is(err, ErrForbidden) {
		t.Errorf("transporter PostShipment error = %v, want ErrForbidden", err)
	}
	if err := svc.PostShipment(ctx, "X", &store.Shipment{OriginCity: " "}); !errors.Is(err, ErrInvalid) {
		t.Errorf("PostShipment without cities error = %v, want ErrInvalid", err)
	}
	if err := svc.PostShipment(ctx, "X", sh); err != nil {
		t.Fatal(err)
	}
	if sh.ID == "" || sh.ClientID != "X" {
		t.Errorf("posted shipment = %+v", sh)
	}

	if err := svc.AssignTransporter(ctx, "Z", sh.ID, "Z"); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider assign error = %v, want ErrForbidden", err)
	}
	if err := svc.AssignTransporter(ctx, "X", sh.ID, "A"); !errors.Is(err, ErrInvalid) {
		t.Errorf("assign admin error = %v, want ErrInvalid", err)
	}
	if err := svc.AssignTransporter(ctx, "X", "SHP-404", "Z"); !errors.Is(err, ErrNotFound) {
		t.Errorf("assign unknown error = %v, want ErrNotFound", err)
	}
	if err := svc.AssignTransporter(ctx, "X", sh.ID, "Z"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetMessages(ctx, "Z", sh.ID); err != nil {
		t.Errorf("assigned transporter GetMessages error = %v", err)
	}
}

func TestUpsertProfile(t *testing.T) {
	svc, _, db := fixture(t)
	ctx := context.Background()
	if err := svc.UpsertProfile(ctx, "N", &store.Profile{ID: "spoofed", Role: "pilot"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad role error = %v, want ErrInvalid", err)
	}
	if err := svc.UpsertProfile(ctx, "N", &store.Profile{ID: "spoofed", Role: store.RoleClient, FullName: "Nora"}); err != nil {
		t.Fatal(err)
	}
	p, err := db.GetProfile(ctx, "N")
	if err != nil || p == nil || p.FullName != "Nora" {
		t.Errorf("GetProfile(N) = %+v, %v", p, err)
	}
}

// liveCounter wires a synchronizer for userID to the service through the
// in-process change feed.
func liveCounter(t *testing.T, svc *Service, db *store.DB, b *bus.Bus, reg *unread.Registry, userID string) (*unread.Synchronizer, <-chan int) {
	t.Helper()
	db.SetNotifier(feed.NewPublisher(b))
	seed := unreadOf(t, svc, userID)
	counts := make(chan int, 16)
	s := unread.NewSynchronizer(unread.Options{
		UserID:   userID,
		Seed:     seed,
		Counter:  svc,
		Bus:      b,
		Registry: reg,
		OnChange: func(n int) { counts <- n },
	})
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s, counts
}

func waitCount(t *testing.T, counts <-chan int, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-counts:
			if n == want {
				return
			}
		case <-deadline:
			t.Fatalf("unread count never reached %d", want)
		}
	}
}

// Opening a chat marks its messages read and the counter drops to zero.
func TestOpenChatClearsCounter(t *testing.T) {
	svc, _, db := fixture(t)
	mustSend(t, svc, "Y", "SHP-1", "one")
	mustSend(t, svc, "Y", "SHP-1", "two")

	b := bus.New()
	reg := unread.NewRegistry()
	s, counts := liveCounter(t, svc, db, b, reg, "X")
	if s.Count() != 2 {
		t.Fatalf("seed = %d, want 2", s.Count())
	}

	if _, err := svc.MarkMessagesAsRead(context.Background(), "X", "SHP-1"); err != nil {
		t.Fatal(err)
	}
	reg.Refresh("X")
	waitCount(t, counts, 0)
}

// A message from the other party raises a mounted counter without a reload.
func TestIncomingMessageRaisesCounter(t *testing.T) {
	svc, _, db := fixture(t)
	b := bus.New()
	_, counts := liveCounter(t, svc, db, b, unread.NewRegistry(), "X")

	mustSend(t, svc, "Y", "SHP-1", "arrived")
	waitCount(t, counts, 1)
}

// A transporter assigned after their counter mounted still sees messages in
// the new conversation.
func TestNewlyAssignedConversationCounted(t *testing.T) {
	svc, _, db := fixture(t)
	ctx := context.Background()
	b := bus.New()
	s, counts := liveCounter(t, svc, db, b, unread.NewRegistry(), "Z")

	// Learn Z's (empty) conversation set first.
	mustSend(t, svc, "Y", "SHP-1", "unrelated")
	if s.Count() != 0 {
		t.Fatalf("Z count = %d, want 0", s.Count())
	}

	sh := &store.Shipment{OriginCity: "Brest", DestinationCity: "Dijon"}
	if err := svc.PostShipment(ctx, "X", sh); err != nil {
		t.Fatal(err)
	}
	if err := svc.AssignTransporter(ctx, "X", sh.ID, "Z"); err != nil {
		t.Fatal(err)
	}
	mustSend(t, svc, "X", sh.ID, "can you take this?")
	waitCount(t, counts, 1)
}
