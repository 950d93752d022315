package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/pmsync/internal/blog"
	"github.com/matheus3301/pmsync/internal/bus"
	"github.com/matheus3301/pmsync/internal/cache"
	"github.com/matheus3301/pmsync/internal/history"
	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/push"
	"github.com/matheus3301/pmsync/internal/store"
)

const owner = 42

var testNow = time.UnixMilli(10_000_000)

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

func testEngine(t *testing.T, api *fakeAPI) (*Engine, *cache.Cache, *bus.Bus) {
	t.Helper()
	c := cache.New(testDB(t), zap.NewNop(), 1000)
	b := bus.New()
	e := NewEngine(Options{
		OwnerID:      owner,
		API:          api,
		Cache:        c,
		Bus:          b,
		Logger:       zap.NewNop(),
		PageSize:     20,
		PollInterval: time.Hour,
		Now:          func() time.Time { return testNow },
	})
	t.Cleanup(e.Stop)
	return e, c, b
}

// msgs returns messages from other to the owner with ids from..to.
func msgs(other, from, to int64) []store.Message {
	var out []store.Message
	for i := from; i <= to; i++ {
		out = append(out, store.Message{
			ID:         i,
			SenderID:   other,
			ReceiverID: owner,
			CreatedAt:  i * 1000,
			Text:       fmt.Sprintf("m%d", i),
			Type:       store.TypeText,
		})
	}
	return out
}

func waitKind(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}

func ids(items []overlay.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.Message.ID
	}
	return out
}

func TestOpenColdStartWithCache(t *testing.T) {
	api := newFakeAPI()
	api.setPages(7, msgs(7, 41, 60))
	e, c, b := testEngine(t, api)
	ctx := context.Background()
	c.CacheMessages(ctx, owner, 7, msgs(7, 1, 50))

	events, sub := b.Subscribe("conversation.", 16)
	defer sub.Close()

	snap, err := e.Open(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}

	opened := waitKind(t, events, bus.KindConversationOpened).Payload.(ConversationEvent)
	if opened.Count != 50 {
		t.Errorf("painted from cache = %d, want 50", opened.Count)
	}
	if len(snap.Items) != 60 {
		t.Fatalf("items = %d, want 60 (50 cached + 10 new)", len(snap.Items))
	}
	for i, id := range ids(snap.Items) {
		if id != int64(i+1) {
			t.Fatalf("items[%d].ID = %d, want %d", i, id, i+1)
		}
	}
	if !snap.HasMore {
		t.Error("full first page should leave HasMore set")
	}
	if got := len(c.Preload(ctx, owner, 7, 1000)); got != 60 {
		t.Errorf("cached rows = %d, want 60", got)
	}
	if api.markReadCount() != 1 {
		t.Errorf("mark read calls = %d, want 1", api.markReadCount())
	}
}

func TestOpenFetchFailureKeepsCachedView(t *testing.T) {
	api := newFakeAPI()
	api.pageGates[pageCall{7, 0}] = make(chan struct{})
	e, c, _ := testEngine(t, api)
	c.CacheMessages(context.Background(), owner, 7, msgs(7, 1, 5))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	snap, err := e.Open(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Items) != 5 {
		t.Errorf("items = %d, want the 5 cached", len(snap.Items))
	}
	if !snap.HasMore {
		t.Error("failed first page must not exhaust history")
	}
}

func TestOpenMarksReadWhenFetchFails(t *testing.T) {
	api := newFakeAPI()
	api.pageErr = errOffline
	e, _, _ := testEngine(t, api)

	snap, err := e.Open(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.HasMore {
		t.Error("failed first page must not exhaust history")
	}
	if api.markReadCount() != 1 {
		t.Errorf("mark read calls = %d, want 1", api.markReadCount())
	}
}

func TestShortFirstPageStopsOlderFetches(t *testing.T) {
	api := newFakeAPI()
	api.setPages(7, msgs(7, 1, 5))
	e, _, _ := testEngine(t, api)
	ctx := context.Background()

	snap, err := e.Open(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if snap.HasMore {
		t.Error("HasMore = true after a 5-row page of 20")
	}
	if _, err := e.LoadOlder(ctx); !errors.Is(err, history.ErrExhausted) {
		t.Errorf("LoadOlder = %v, want ErrExhausted", err)
	}
	if n := api.callsFor(7); n != 1 {
		t.Errorf("page fetches = %d, want 1", n)
	}
}

func TestLoadOlderMergesAndCaches(t *testing.T) {
	api := newFakeAPI()
	api.setPages(7, msgs(7, 41, 60), msgs(7, 21, 40), msgs(7, 18, 20))
	e, c, b := testEngine(t, api)
	ctx := context.Background()

	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}
	events, sub := b.Subscribe("history.", 4)
	defer sub.Close()

	added, err := e.LoadOlder(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if added != 20 {
		t.Errorf("added = %d, want 20", added)
	}
	loaded := waitKind(t, events, bus.KindHistoryLoaded).Payload.(HistoryEvent)
	if !loaded.HasMore {
		t.Error("HasMore cleared after a full page")
	}

	if added, err = e.LoadOlder(ctx); err != nil || added != 3 {
		t.Fatalf("LoadOlder = %d, %v; want 3, nil", added, err)
	}
	snap, err := e.Messages()
	if err != nil {
		t.Fatal(err)
	}
	if snap.HasMore {
		t.Error("HasMore still set after a short page")
	}
	if got := ids(snap.Items); len(got) != 43 || got[0] != 18 || got[42] != 60 {
		t.Errorf("ids span %v..%v (%d), want 18..60 (43)", got[0], got[len(got)-1], len(got))
	}
	if got := len(c.Preload(ctx, owner, 7, 1000)); got != 43 {
		t.Errorf("cached rows = %d, want 43", got)
	}
}

func TestLoadOlderDiscardedAfterSwitch(t *testing.T) {
	api := newFakeAPI()
	api.setPages(7, msgs(7, 41, 60), msgs(7, 21, 40))
	api.setPages(9, msgs(9, 100, 101))
	api.pageGates[pageCall{7, 1}] = make(chan struct{})
	e, _, _ := testEngine(t, api)
	ctx := context.Background()

	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}

	api.mu.Lock()
	api.started = make(chan pageCall, 4)
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := e.LoadOlder(ctx)
		done <- err
	}()
	select {
	case call := <-api.started:
		if call != (pageCall{7, 1}) {
			t.Fatalf("first call = %+v, want page 1 of 7", call)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("older page fetch never started")
	}

	if _, err := e.Open(ctx, 9); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrStale) {
			t.Errorf("LoadOlder = %v, want ErrStale", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale fetch never returned")
	}

	snap, err := e.Messages()
	if err != nil {
		t.Fatal(err)
	}
	if snap.OtherID != 9 {
		t.Errorf("open = %d, want 9", snap.OtherID)
	}
	for _, it := range snap.Items {
		if it.Message.SenderID == 7 {
			t.Fatalf("message %d of conversation 7 leaked into 9", it.Message.ID)
		}
	}
}

func TestSendOptimisticThenEcho(t *testing.T) {
	api := newFakeAPI()
	api.sendGate = make(chan struct{})
	api.sendStarted = make(chan struct{}, 1)
	api.nextID = 554
	e, c, _ := testEngine(t, api)
	ctx := context.Background()

	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}

	type result struct {
		m   store.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := e.Send(ctx, "hi")
		done <- result{m, err}
	}()
	select {
	case <-api.sendStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("send never reached the server")
	}

	snap, _ := e.Messages()
	if len(snap.Items) != 1 {
		t.Fatalf("items before echo = %d, want 1", len(snap.Items))
	}
	if m := snap.Items[0].Message; !m.Pending || m.ID != 0 || m.Text != "hi" {
		t.Errorf("optimistic entry = %+v", m)
	}

	close(api.sendGate)
	res := <-done
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.m.ID != 555 {
		t.Errorf("sent id = %d, want 555", res.m.ID)
	}

	snap, _ = e.Messages()
	if len(snap.Items) != 1 {
		t.Fatalf("items after echo = %d, want exactly one hi", len(snap.Items))
	}
	if m := snap.Items[0].Message; m.ID != 555 || m.Pending || m.SenderID != owner {
		t.Errorf("confirmed entry = %+v", m)
	}
	cached := c.Preload(ctx, owner, 7, 10)
	if len(cached) != 1 || cached[0].ID != 555 {
		t.Errorf("cached = %+v, want message 555", cached)
	}
}

func TestSendFailureKeepsPendingUntilNextPage(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = errOffline
	e, _, b := testEngine(t, api)
	ctx := context.Background()

	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}
	failures, sub := b.Subscribe("action.", 4)
	defer sub.Close()

	if _, err := e.Send(ctx, "lost"); !errors.Is(err, errOffline) {
		t.Fatalf("Send = %v, want errOffline", err)
	}
	failure := waitKind(t, failures, bus.KindActionFailed).Payload.(ActionFailure)
	if failure.Action != "send" || failure.OtherID != 7 {
		t.Errorf("failure = %+v", failure)
	}

	snap, _ := e.Messages()
	if len(snap.Items) != 1 || !snap.Items[0].Message.Pending {
		t.Fatalf("items = %+v, want the pending entry", snap.Items)
	}

	api.setPages(7, msgs(7, 1, 2))
	e.handleConversationSignal(ctx, e.current(), push.Event{Name: "message"})

	snap, _ = e.Messages()
	if got := ids(snap.Items); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("ids = %v, want [1 2] with the failed entry dropped", got)
	}
}

func TestSendRequiresOpenConversation(t *testing.T) {
	e, _, _ := testEngine(t, newFakeAPI())
	if _, err := e.Send(context.Background(), "hi"); !errors.Is(err, ErrNoConversation) {
		t.Errorf("Send = %v, want ErrNoConversation", err)
	}
}

func TestSendMediaRejectsText(t *testing.T) {
	api := newFakeAPI()
	e, _, _ := testEngine(t, api)
	ctx := context.Background()
	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SendMedia(ctx, store.TypeText, "http://x/y.png", ""); err == nil {
		t.Error("SendMedia accepted a TEXT type")
	}
	m, err := e.SendMedia(ctx, store.TypeImage, "http://x/y.png", "look")
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != store.TypeImage || m.MediaURL != "http://x/y.png" {
		t.Errorf("sent = %+v", m)
	}
}

// Regression: a global signal for another conversation must not fetch the
// open conversation's messages.
func TestGlobalSignalForBackgroundConversation(t *testing.T) {
	api := newFakeAPI()
	e, _, _ := testEngine(t, api)
	ctx := context.Background()

	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}
	pages := api.callsFor(7)
	reads := api.markReadCount()
	views := api.viewCount()
	api.mu.Lock()
	unreadBefore := api.unreadCalls
	api.mu.Unlock()

	e.handleGlobalSignal(ctx, push.Event{Name: "message", Data: `{"type":"PRIVATE_MESSAGE","senderId":9}`})

	if n := api.callsFor(7); n != pages {
		t.Errorf("page fetches for 7 = %d, want %d", n, pages)
	}
	if n := api.callsFor(9); n != 0 {
		t.Errorf("page fetches for 9 = %d, want 0", n)
	}
	if api.markReadCount() != reads {
		t.Error("background signal marked the open conversation read")
	}
	if api.viewCount() != views {
		t.Error("background signal refreshed the open overlay")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.friendsCalls != 1 {
		t.Errorf("reconciliations = %d, want 1", api.friendsCalls)
	}
	if api.unreadCalls <= unreadBefore {
		t.Error("unread total not refreshed")
	}
}

func TestGlobalSignalForOpenConversation(t *testing.T) {
	api := newFakeAPI()
	e, _, _ := testEngine(t, api)
	ctx := context.Background()
	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}
	signal := push.Event{Name: "message", Data: `{"type":"PRIVATE_MESSAGE","senderId":"7"}`}

	reads := api.markReadCount()
	views := api.viewCount()
	e.handleGlobalSignal(ctx, signal)
	if api.markReadCount() != reads+1 {
		t.Error("viewed conversation not marked read")
	}
	if api.viewCount() != views {
		t.Error("viewed conversation refreshed overlay instead of marking read")
	}

	if err := e.SetViewing(false); err != nil {
		t.Fatal(err)
	}
	e.handleGlobalSignal(ctx, signal)
	if api.markReadCount() != reads+1 {
		t.Error("unviewed conversation marked read")
	}
	if api.viewCount() != views+1 {
		t.Errorf("overlay refreshes = %d, want %d", api.viewCount(), views+1)
	}
}

func TestGlobalSignalIgnoresOtherTypes(t *testing.T) {
	api := newFakeAPI()
	e, _, _ := testEngine(t, api)
	e.handleGlobalSignal(context.Background(), push.Event{Name: "message", Data: `{"type":"FRIEND_REQUEST"}`})
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.friendsCalls != 0 || api.unreadCalls != 0 {
		t.Errorf("friends=%d unread=%d, want no calls", api.friendsCalls, api.unreadCalls)
	}
}

func TestConversationSignalRefreshesAndFetches(t *testing.T) {
	api := newFakeAPI()
	api.setPages(7, msgs(7, 1, 3))
	e, _, _ := testEngine(t, api)
	ctx := context.Background()
	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}
	views := api.viewCount()

	api.setPages(7, msgs(7, 2, 4))
	e.handleConversationSignal(ctx, e.current(), push.Event{Name: push.PollEvent})

	if api.viewCount() != views+1 {
		t.Error("overlay not refreshed")
	}
	snap, _ := e.Messages()
	if got := ids(snap.Items); len(got) != 4 || got[3] != 4 {
		t.Errorf("ids = %v, want [1 2 3 4]", got)
	}
}

func TestSignalsAfterCloseAreIgnored(t *testing.T) {
	api := newFakeAPI()
	e, _, _ := testEngine(t, api)
	ctx := context.Background()
	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}
	c := e.current()
	e.Close()

	pages := api.callsFor(7)
	views := api.viewCount()
	e.handleConversationSignal(ctx, c, push.Event{Name: "message"})
	if api.callsFor(7) != pages || api.viewCount() != views {
		t.Error("torn-down conversation reacted to a signal")
	}
	if _, err := e.Messages(); !errors.Is(err, ErrNoConversation) {
		t.Errorf("Messages = %v, want ErrNoConversation", err)
	}
}

func TestRecallWindow(t *testing.T) {
	api := newFakeAPI()
	now := testNow.UnixMilli()
	api.setPages(7, []store.Message{
		{ID: 1, SenderID: owner, ReceiverID: 7, CreatedAt: now - 3*60_000, Text: "old"},
		{ID: 2, SenderID: owner, ReceiverID: 7, CreatedAt: now - 30_000, Text: "fresh"},
	})
	e, _, _ := testEngine(t, api)
	ctx := context.Background()
	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}

	if e.CanRecall(1) {
		t.Error("recall offered for a 3 minute old message")
	}
	if !e.CanRecall(2) {
		t.Error("recall not offered for a 30 second old message")
	}
	if err := e.Recall(ctx, 1); !errors.Is(err, overlay.ErrRecallNotAllowed) {
		t.Errorf("Recall(1) = %v, want ErrRecallNotAllowed", err)
	}
	if err := e.Recall(ctx, 2); err != nil {
		t.Fatal(err)
	}

	snap, _ := e.Messages()
	recalled := snap.Items[1]
	if !recalled.Recalled || recalled.DisplayText != overlay.RecalledText {
		t.Errorf("item = %+v, want recalled placeholder", recalled)
	}
	text, err := e.ReEdit(2)
	if err != nil || text != "fresh" {
		t.Errorf("ReEdit = %q, %v; want fresh", text, err)
	}
	if _, err := e.ReEdit(1); err == nil {
		t.Error("ReEdit allowed on a message that was not recalled")
	}
}

func TestDelete(t *testing.T) {
	api := newFakeAPI()
	api.setPages(7, msgs(7, 1, 3))
	e, _, _ := testEngine(t, api)
	ctx := context.Background()
	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}

	if err := e.Delete(ctx, 2); err != nil {
		t.Fatal(err)
	}
	snap, _ := e.Messages()
	if got := ids(snap.Items); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("ids = %v, want [1 3]", got)
	}

	api.mu.Lock()
	api.deleteErr = errOffline
	api.mu.Unlock()
	if err := e.Delete(ctx, 3); !errors.Is(err, errOffline) {
		t.Errorf("Delete = %v, want errOffline", err)
	}
	snap, _ = e.Messages()
	if len(snap.Items) != 2 {
		t.Error("failed delete changed the list")
	}
}

func TestReconcileIncludesOpenPartner(t *testing.T) {
	api := newFakeAPI()
	api.profiles[7] = blog.Profile{UserID: 7, Nickname: "seven"}
	e, _, _ := testEngine(t, api)
	ctx := context.Background()
	if _, err := e.Open(ctx, 7); err != nil {
		t.Fatal(err)
	}

	list, err := e.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].OtherID != 7 || list[0].Nickname != "seven" {
		t.Errorf("summaries = %+v", list)
	}
	if cached := e.Summaries(ctx); len(cached) != 1 {
		t.Errorf("cached summaries = %d, want 1", len(cached))
	}
}

func TestSearchAndClear(t *testing.T) {
	api := newFakeAPI()
	e, c, _ := testEngine(t, api)
	ctx := context.Background()
	c.CacheMessages(ctx, owner, 7, []store.Message{{ID: 1, SenderID: 7, ReceiverID: owner, CreatedAt: 1, Text: "dinner at eight"}})

	results, err := e.Search(ctx, 0, "dinner", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if err := e.Clear(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if results, _ := e.Search(ctx, 7, "dinner", 10); len(results) != 0 {
		t.Errorf("results after clear = %d, want 0", len(results))
	}
}

func TestGlobalStreamDrivesReconcile(t *testing.T) {
	api := newFakeAPI()
	pr, pw := io.Pipe()
	api.global = func(ctx context.Context) (io.ReadCloser, error) { return pr, nil }
	api.friends = []blog.Friend{{ID: 3, Nickname: "three"}}
	e, _, b := testEngine(t, api)

	events, sub := b.Subscribe("summaries.", 8)
	defer sub.Close()

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitKind(t, events, bus.KindSummariesUpdated)

	if _, err := io.WriteString(pw, "data: {\"type\":\"PRIVATE_MESSAGE\",\"senderId\":3}\n\n"); err != nil {
		t.Fatal(err)
	}
	waitKind(t, events, bus.KindSummariesUpdated)

	api.mu.Lock()
	defer api.mu.Unlock()
	if api.friendsCalls < 2 {
		t.Errorf("reconciliations = %d, want at least 2", api.friendsCalls)
	}
}

func TestParseGlobal(t *testing.T) {
	tests := []struct {
		data   string
		sender int64
		ok     bool
	}{
		{`{"type":"PRIVATE_MESSAGE","senderId":9}`, 9, true},
		{`{"type":"PRIVATE_MESSAGE","senderId":"12"}`, 12, true},
		{`{"type":"PRIVATE_MESSAGE"}`, 0, true},
		{`{"type":"LIKE","senderId":9}`, 0, false},
		{`not json`, 0, false},
		{``, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			sender, ok := parseGlobal(tt.data)
			if sender != tt.sender || ok != tt.ok {
				t.Errorf("parseGlobal = %d, %v; want %d, %v", sender, ok, tt.sender, tt.ok)
			}
		})
	}
}
