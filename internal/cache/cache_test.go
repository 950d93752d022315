package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/matheus3301/pmsync/internal/store"
)

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

func messages(from, to int64) []store.Message {
	var out []store.Message
	for i := from; i <= to; i++ {
		out = append(out, store.Message{ID: i, SenderID: 7, ReceiverID: 42, CreatedAt: i * 1000, Text: fmt.Sprintf("m%d", i)})
	}
	return out
}

func TestPreloadReturnsMostRecentAscending(t *testing.T) {
	c := New(testDB(t), zap.NewNop(), 1000)
	ctx := context.Background()

	c.CacheMessages(ctx, 42, 7, messages(1, 50))

	got := c.Preload(ctx, 42, 7, 20)
	if len(got) != 20 {
		t.Fatalf("len = %d, want 20", len(got))
	}
	if got[0].ID != 31 || got[19].ID != 50 {
		t.Errorf("window = [%d..%d], want [31..50]", got[0].ID, got[19].ID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt < got[i-1].CreatedAt {
			t.Fatalf("not ascending at %d", i)
		}
	}
	if got[0].ConversationKey != "42:7" {
		t.Errorf("conversation key = %q, want 42:7", got[0].ConversationKey)
	}
}

func TestPreloadIsScopedToConversation(t *testing.T) {
	c := New(testDB(t), zap.NewNop(), 1000)
	ctx := context.Background()
	c.CacheMessages(ctx, 42, 7, messages(1, 3))
	c.CacheMessages(ctx, 42, 9, messages(10, 11))

	if got := c.Preload(ctx, 42, 9, 100); len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestCacheMessagesTrimsToCapacity(t *testing.T) {
	db := testDB(t)
	c := New(db, zap.NewNop(), 1000)
	ctx := context.Background()

	c.CacheMessages(ctx, 42, 7, messages(1, 600))
	c.CacheMessages(ctx, 42, 7, messages(601, 1200))

	got := c.Preload(ctx, 42, 7, 5000)
	if len(got) != 1000 {
		t.Fatalf("len = %d, want 1000", len(got))
	}
	if got[0].ID != 201 {
		t.Errorf("oldest kept = %d, want 201", got[0].ID)
	}
}

func TestCacheMessagesSkipsOptimistic(t *testing.T) {
	c := New(testDB(t), zap.NewNop(), 10)
	ctx := context.Background()

	c.CacheMessages(ctx, 42, 7, []store.Message{
		{ClientID: "tmp", Pending: true, Text: "hi", CreatedAt: 5},
		{ID: 555, Text: "hi", CreatedAt: 6},
	})
	got := c.Preload(ctx, 42, 7, 10)
	if len(got) != 1 || got[0].ID != 555 {
		t.Errorf("cached = %+v, want only id 555", got)
	}
}

func TestCacheMessagesEmptyIsNoop(t *testing.T) {
	db := testDB(t)
	c := New(db, zap.NewNop(), 10)
	c.CacheMessages(context.Background(), 42, 7, nil)

	meta, err := db.GetMeta(context.Background(), store.ConversationKey(42, 7))
	if err != nil {
		t.Fatal(err)
	}
	if meta != nil {
		t.Errorf("meta = %+v, want none for empty write", meta)
	}
}

// TestUnavailableStoreDegradesToMiss covers a store that could not be opened:
// reads miss, writes are skipped, nothing panics.
func TestUnavailableStoreDegradesToMiss(t *testing.T) {
	c := New(nil, zap.NewNop(), 10)
	ctx := context.Background()

	if c.Available() {
		t.Error("Available() = true for nil store")
	}
	c.CacheMessages(ctx, 42, 7, messages(1, 3))
	if got := c.Preload(ctx, 42, 7, 10); len(got) != 0 {
		t.Errorf("Preload = %d rows, want 0", len(got))
	}
	c.UpsertSummary(ctx, store.ConversationSummary{ConversationKey: "42:7"})
	if got := c.ListSummaries(ctx, 42); len(got) != 0 {
		t.Errorf("ListSummaries = %d rows, want 0", len(got))
	}
	if st := c.Stats(ctx); st.Available {
		t.Error("Stats reported available")
	}
}

func TestClosedStoreDegradesToMiss(t *testing.T) {
	db := testDB(t)
	c := New(db, zap.NewNop(), 10)
	ctx := context.Background()
	c.CacheMessages(ctx, 42, 7, messages(1, 3))
	_ = db.Close()

	if got := c.Preload(ctx, 42, 7, 10); len(got) != 0 {
		t.Errorf("Preload after close = %d rows, want 0", len(got))
	}
}

func TestSummariesForOwner(t *testing.T) {
	c := New(testDB(t), zap.NewNop(), 10)
	ctx := context.Background()

	c.UpsertSummaries(ctx, 42, []store.ConversationSummary{
		{OtherID: 7, LastAt: 10},
		{OtherID: 9, LastAt: 20},
	})
	c.UpsertSummary(ctx, store.ConversationSummary{ConversationKey: "43:1", OtherID: 1, LastAt: 99})

	list := c.ListSummaries(ctx, 42)
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].OtherID != 9 {
		t.Errorf("first = %d, want 9 (most recent)", list[0].OtherID)
	}
	if list[1].ConversationKey != "42:7" {
		t.Errorf("key = %q, want 42:7", list[1].ConversationKey)
	}
}

func TestSearchScopedToOwner(t *testing.T) {
	c := New(testDB(t), zap.NewNop(), 10)
	ctx := context.Background()
	c.CacheMessages(ctx, 42, 7, []store.Message{{ID: 1, Text: "pizza tonight", CreatedAt: 1}})
	c.CacheMessages(ctx, 43, 7, []store.Message{{ID: 2, Text: "pizza again", CreatedAt: 2}})

	results, err := c.Search(ctx, 42, 0, "pizza", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.ID != 1 {
		t.Errorf("results = %+v, want only id 1", results)
	}
}

// Regression: newer matches of another owner must not use up the limit.
func TestSearchLimitAppliesToOwnedRows(t *testing.T) {
	c := New(testDB(t), zap.NewNop(), 10)
	ctx := context.Background()
	c.CacheMessages(ctx, 42, 7, []store.Message{{ID: 1, Text: "pizza tonight", CreatedAt: 1}})
	c.CacheMessages(ctx, 420, 7, []store.Message{
		{ID: 2, Text: "pizza again", CreatedAt: 2},
		{ID: 3, Text: "more pizza", CreatedAt: 3},
	})

	results, err := c.Search(ctx, 42, 0, "pizza", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.ID != 1 {
		t.Errorf("results = %+v, want id 1", results)
	}
}

func TestClearConversation(t *testing.T) {
	c := New(testDB(t), zap.NewNop(), 10)
	ctx := context.Background()
	c.CacheMessages(ctx, 42, 7, messages(1, 3))

	if err := c.ClearConversation(ctx, 42, 7); err != nil {
		t.Fatal(err)
	}
	if got := c.Preload(ctx, 42, 7, 10); len(got) != 0 {
		t.Errorf("Preload after clear = %d rows, want 0", len(got))
	}
}
