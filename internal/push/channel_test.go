package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/pmsync/internal/bus"
	"github.com/matheus3301/pmsync/internal/status"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 100)}
}

func (r *recorder) handle(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for r.count() < n {
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timeout waiting for %d events, got %d", n, r.count())
		}
	}
}

func httpDialer(url string) Dialer {
	return func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
}

func waitState(t *testing.T, c *Channel, want status.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", c.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, ": hi\n\ndata: one\n\ndata: two\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := newRecorder()
	c, err := Start(context.Background(), Config{Name: "conversation", Dial: httpDialer(srv.URL), Handle: rec.handle, PollInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	rec.waitFor(t, 2)
	if c.State() != status.Live {
		t.Errorf("state = %s, want LIVE", c.State())
	}
	rec.mu.Lock()
	if rec.events[0].Data != "one" || rec.events[1].Data != "two" {
		t.Errorf("events = %+v", rec.events)
	}
	rec.mu.Unlock()
}

func TestDialFailureFallsBackToPolling(t *testing.T) {
	rec := newRecorder()
	dial := func(context.Context) (io.ReadCloser, error) { return nil, errors.New("refused") }

	c, err := Start(context.Background(), Config{Name: "conversation", Dial: dial, Handle: rec.handle, PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	rec.waitFor(t, 3)
	if c.State() != status.Polling {
		t.Errorf("state = %s, want POLLING", c.State())
	}
	rec.mu.Lock()
	for _, ev := range rec.events {
		if ev.Name != PollEvent {
			t.Errorf("event = %+v, want poll", ev)
		}
	}
	rec.mu.Unlock()
}

func TestStreamEndFallsBackToPolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: only\n\n")
	}))
	defer srv.Close()

	rec := newRecorder()
	c, err := Start(context.Background(), Config{Name: "global", Dial: httpDialer(srv.URL), Handle: rec.handle, PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	rec.waitFor(t, 3)
	waitState(t, c, status.Polling)
}

func TestServerErrorFallsBackToPolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := newRecorder()
	c, err := Start(context.Background(), Config{Name: "conversation", Dial: httpDialer(srv.URL), Handle: rec.handle, PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	rec.waitFor(t, 1)
	waitState(t, c, status.Polling)
}

// TestNoEventsAfterClose verifies that once Close returns the handler is
// never invoked again, even with a fast poll timer.
func TestNoEventsAfterClose(t *testing.T) {
	rec := newRecorder()
	dial := func(context.Context) (io.ReadCloser, error) { return nil, errors.New("refused") }

	c, err := Start(context.Background(), Config{Name: "conversation", Dial: dial, Handle: rec.handle, PollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, 2)
	c.Close()

	n := rec.count()
	time.Sleep(30 * time.Millisecond)
	if rec.count() != n {
		t.Errorf("handler called %d times after Close", rec.count()-n)
	}
	if c.State() != status.Closed {
		t.Errorf("state = %s, want CLOSED", c.State())
	}
	c.Close()
}

func TestCloseInterruptsBlockedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := newRecorder()
	c, err := Start(context.Background(), Config{Name: "conversation", Dial: httpDialer(srv.URL), Handle: rec.handle})
	if err != nil {
		t.Fatal(err)
	}
	waitState(t, c, status.Live)

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on an idle stream")
	}
}

func TestSignalsPublishedOnBus(t *testing.T) {
	b := bus.New()
	ch, sub := b.Subscribe("push.", 64)
	defer sub.Close()

	dial := func(context.Context) (io.ReadCloser, error) { return nil, errors.New("refused") }
	rec := newRecorder()
	c, err := Start(context.Background(), Config{Name: "global", Dial: dial, Handle: rec.handle, PollInterval: 5 * time.Millisecond, Bus: b})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var sawStatus, sawSignal bool
	deadline := time.After(2 * time.Second)
	for !sawStatus || !sawSignal {
		select {
		case evt := <-ch:
			switch evt.Kind {
			case bus.KindPushStatus:
				sawStatus = true
			case bus.KindPushSignal:
				if sig, ok := evt.Payload.(Signal); ok && sig.Channel == "global" {
					sawSignal = true
				}
			}
		case <-deadline:
			t.Fatalf("status=%v signal=%v", sawStatus, sawSignal)
		}
	}
}

func TestStartRequiresDialAndHandle(t *testing.T) {
	if _, err := Start(context.Background(), Config{Name: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
