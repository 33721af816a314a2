package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) Notify(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

// seed creates client X, transporter Y and shipment SHP-1 assigned to Y.
func seed(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []*Profile{
		{ID: "X", Role: RoleClient, FullName: "Xavier"},
		{ID: "Y", Role: RoleTransporter, CompanyName: "Yellow Haulage"},
	} {
		if err := db.UpsertProfile(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.CreateShipment(ctx, &Shipment{ID: "SHP-1", ClientID: "X", TransporterID: "Y", OriginCity: "Lyon", DestinationCity: "Lille"}); err != nil {
		t.Fatal(err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + messages)", result.Version)
	}
}

func TestProfileUpsertAndGet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertProfile(ctx, &Profile{ID: "u1", Role: RoleClient, FullName: "Ana"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertProfile(ctx, &Profile{ID: "u1", Role: RoleClient, FullName: "Ana Updated"}); err != nil {
		t.Fatal(err)
	}

	p, err := db.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.FullName != "Ana Updated" || p.Role != RoleClient {
		t.Errorf("got %+v, want Ana Updated/client", p)
	}

	p, err = db.GetProfile(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Errorf("expected nil for missing profile")
	}
}

func TestShipmentAssign(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seed(t, db)

	if err := db.CreateShipment(ctx, &Shipment{ClientID: "X", OriginCity: "Paris", DestinationCity: "Nice"}); err != nil {
		t.Fatal(err)
	}

	ids, err := db.ConversationIDs(ctx, ConversationFilterFor(RoleClient, "X"))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "SHP-1" {
		t.Errorf("ids = %v, want [SHP-1] (unassigned shipment has no conversation)", ids)
	}

	if err := db.AssignTransporter(ctx, "nope", "Y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AssignTransporter(missing) error = %v, want ErrNotFound", err)
	}

	sh, err := db.GetShipment(ctx, "SHP-1")
	if err != nil {
		t.Fatal(err)
	}
	if sh == nil || sh.TransporterID != "Y" || !sh.HasConversation() {
		t.Errorf("got %+v, want transporter Y", sh)
	}
}

func TestListMessagesAscending(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seed(t, db)

	base := time.UnixMilli(1_700_000_000_000)
	for i, body := range []string{"third", "first", "second"} {
		offset := []time.Duration{3, 1, 2}[i] * time.Minute
		if err := db.InsertMessage(ctx, &Message{ConversationID: "SHP-1", SenderID: "Y", Content: body, CreatedAt: base.Add(offset)}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages(ctx, "SHP-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Errorf("message %d out of order: %v before %v", i, msgs[i].CreatedAt, msgs[i-1].CreatedAt)
		}
	}
	if msgs[0].Content != "first" {
		t.Errorf("first message = %q, want first", msgs[0].Content)
	}
}

func TestMarkReadOnlyRecipient(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seed(t, db)
	rec := &recorder{}
	db.SetNotifier(rec)

	_ = db.InsertMessage(ctx, &Message{ConversationID: "SHP-1", SenderID: "Y", Content: "hello"})
	_ = db.InsertMessage(ctx, &Message{ConversationID: "SHP-1", SenderID: "X", Content: "hi"})

	n, err := db.MarkRead(ctx, "SHP-1", "X")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("marked = %d, want 1 (only Y's message)", n)
	}

	// Second call changes nothing and emits nothing.
	n, err = db.MarkRead(ctx, "SHP-1", "X")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second MarkRead marked = %d, want 0", n)
	}

	unreadY, err := db.CountUnread(ctx, "Y", []string{"SHP-1"})
	if err != nil {
		t.Fatal(err)
	}
	if unreadY != 1 {
		t.Errorf("Y unread = %d, want 1 (X's read action must not touch Y's inbox)", unreadY)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	ops := make([]ChangeOp, 0, len(rec.changes))
	for _, c := range rec.changes {
		ops = append(ops, c.Op)
	}
	want := []ChangeOp{OpInsert, OpInsert, OpUpdate}
	if len(ops) != len(want) {
		t.Fatalf("changes = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("change[%d] = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestCountUnreadEmptySet(t *testing.T) {
	db := testDB(t)
	n, err := db.CountUnread(context.Background(), "X", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestListConversations(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seed(t, db)

	if err := db.CreateShipment(ctx, &Shipment{ID: "SHP-2", ClientID: "X", TransporterID: "Y", CreatedAt: time.UnixMilli(1)}); err != nil {
		t.Fatal(err)
	}
	_ = db.InsertMessage(ctx, &Message{ConversationID: "SHP-1", SenderID: "Y", Content: "on my way"})
	_ = db.InsertMessage(ctx, &Message{ConversationID: "SHP-1", SenderID: "Y", Content: "arrived"})

	convs, err := db.ListConversations(ctx, "X", ConversationFilterFor(RoleClient, "X"))
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	first := convs[0]
	if first.ID != "SHP-1" {
		t.Errorf("first = %s, want SHP-1 (has activity)", first.ID)
	}
	if first.OtherPartyName != "Yellow Haulage" {
		t.Errorf("other party = %q, want Yellow Haulage", first.OtherPartyName)
	}
	if first.LastMessagePreview != "arrived" {
		t.Errorf("preview = %q, want arrived", first.LastMessagePreview)
	}
	if first.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", first.UnreadCount)
	}
	if !convs[1].LastMessageAt.IsZero() {
		t.Errorf("SHP-2 has no messages, LastMessageAt = %v", convs[1].LastMessageAt)
	}

	convs, err = db.ListConversations(ctx, "Y", ConversationFilterFor(RoleTransporter, "Y"))
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 || convs[0].OtherPartyName != "Xavier" || convs[0].UnreadCount != 0 {
		t.Errorf("transporter view = %+v", convs)
	}
}
