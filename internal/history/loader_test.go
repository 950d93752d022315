package history

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/pmsync/internal/store"
)

func page(n int) []store.Message {
	out := make([]store.Message, n)
	for i := range out {
		out[i] = store.Message{ID: int64(i + 1)}
	}
	return out
}

func TestLoadOlderAdvancesPages(t *testing.T) {
	l := NewLoader(20)
	var pages []int
	fetch := func(_ context.Context, p, size int) ([]store.Message, error) {
		if size != 20 {
			t.Errorf("size = %d, want 20", size)
		}
		pages = append(pages, p)
		return page(20), nil
	}

	for range 3 {
		if _, err := l.LoadOlder(context.Background(), 20, fetch); err != nil {
			t.Fatal(err)
		}
	}
	if len(pages) != 3 || pages[0] != 1 || pages[2] != 3 {
		t.Errorf("pages = %v, want [1 2 3]", pages)
	}
	if !l.HasMore() {
		t.Error("HasMore() = false after full pages")
	}
}

// TestShortPageExhausts checks that a page of 5 out of 20 ends pagination and
// that a later top-scroll does not fetch again.
func TestShortPageExhausts(t *testing.T) {
	l := NewLoader(20)
	var calls atomic.Int32
	fetch := func(context.Context, int, int) ([]store.Message, error) {
		calls.Add(1)
		return page(5), nil
	}

	got, err := l.LoadOlder(context.Background(), 20, fetch)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Errorf("got %d messages, want 5", len(got))
	}
	if l.HasMore() {
		t.Fatal("HasMore() = true after short page")
	}

	if _, err := l.LoadOlder(context.Background(), 25, fetch); !errors.Is(err, ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", err)
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
}

func TestShortFirstPageExhausts(t *testing.T) {
	l := NewLoader(20)
	l.ObserveFirstPage(7)
	if l.HasMore() {
		t.Error("HasMore() = true after 7-row first page")
	}

	l2 := NewLoader(20)
	l2.ObserveFirstPage(20)
	if !l2.HasMore() {
		t.Error("HasMore() = false after full first page")
	}
}

func TestNoFetchWhenNothingLoaded(t *testing.T) {
	l := NewLoader(20)
	_, err := l.LoadOlder(context.Background(), 0, func(context.Context, int, int) ([]store.Message, error) {
		t.Fatal("fetch called on empty view")
		return nil, nil
	})
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestFailureLeavesStateRetryable(t *testing.T) {
	l := NewLoader(20)
	boom := errors.New("network down")
	var pages []int

	_, err := l.LoadOlder(context.Background(), 20, func(_ context.Context, p, _ int) ([]store.Message, error) {
		pages = append(pages, p)
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if !l.HasMore() || l.Fetching() {
		t.Fatalf("state changed after failure: hasMore=%v fetching=%v", l.HasMore(), l.Fetching())
	}

	if _, err := l.LoadOlder(context.Background(), 20, func(_ context.Context, p, _ int) ([]store.Message, error) {
		pages = append(pages, p)
		return page(20), nil
	}); err != nil {
		t.Fatal(err)
	}
	if pages[0] != 1 || pages[1] != 1 {
		t.Errorf("pages = %v, want retry of page 1", pages)
	}
}

func TestConcurrentLoadIsBusy(t *testing.T) {
	l := NewLoader(20)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := l.LoadOlder(context.Background(), 20, func(context.Context, int, int) ([]store.Message, error) {
			close(started)
			<-release
			return page(20), nil
		})
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}
	if _, err := l.LoadOlder(context.Background(), 20, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	if err := l.CanLoadOlder(20); !errors.Is(err, ErrBusy) {
		t.Errorf("CanLoadOlder = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if l.Fetching() {
		t.Error("still fetching after completion")
	}
}

type fakeViewport struct {
	extent, offset int
}

func (f *fakeViewport) ContentExtent() int    { return f.extent }
func (f *fakeViewport) ScrollOffset() int     { return f.offset }
func (f *fakeViewport) SetScrollOffset(o int) { f.offset = o }

func TestAnchorRestoresByAddedExtent(t *testing.T) {
	v := &fakeViewport{extent: 100, offset: 0}
	a := Capture(v)

	v.extent = 160
	a.Restore()
	if v.offset != 60 {
		t.Errorf("offset = %d, want 60", v.offset)
	}
}

func TestAnchorNoGrowthKeepsOffset(t *testing.T) {
	v := &fakeViewport{extent: 100, offset: 3}
	a := Capture(v)
	a.Restore()
	if v.offset != 3 {
		t.Errorf("offset = %d, want 3", v.offset)
	}
}

func TestAtTop(t *testing.T) {
	if !AtTop(0) || AtTop(5) {
		t.Error("AtTop mismatch")
	}
}
