// Package history drives backward pagination for one open conversation.
package history

import (
	"context"
	"errors"
	"sync"

	"github.com/matheus3301/pmsync/internal/store"
)

var (
	ErrBusy      = errors.New("history: older page already in flight")
	ErrExhausted = errors.New("history: no older messages")
	ErrEmpty     = errors.New("history: nothing loaded yet")
)

// FetchFunc fetches one page of history, newest page first (page 0).
type FetchFunc func(ctx context.Context, page, size int) ([]store.Message, error)

// Loader is the Idle/FetchingOlder state machine with its exhaustion flag.
// Page 0 is loaded when the conversation opens; LoadOlder continues from
// page 1.
type Loader struct {
	mu       sync.Mutex
	pageSize int
	hasMore  bool
	fetching bool
	nextPage int
}

// NewLoader returns a loader with hasMore set.
func NewLoader(pageSize int) *Loader {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Loader{pageSize: pageSize, hasMore: true, nextPage: 1}
}

// PageSize returns the configured page size.
func (l *Loader) PageSize() int { return l.pageSize }

// HasMore reports whether older pages may remain.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// Fetching reports whether an older-page fetch is in flight.
func (l *Loader) Fetching() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetching
}

// ObserveFirstPage records the size of the page-0 result. A short first page
// means the whole history is already loaded.
func (l *Loader) ObserveFirstPage(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < l.pageSize {
		l.hasMore = false
	}
}

// CanLoadOlder reports whether a top-of-viewport event should start a fetch,
// and if not, why.
func (l *Loader) CanLoadOlder(loaded int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(loaded)
}

func (l *Loader) checkLocked(loaded int) error {
	switch {
	case l.fetching:
		return ErrBusy
	case !l.hasMore:
		return ErrExhausted
	case loaded == 0:
		return ErrEmpty
	}
	return nil
}

// LoadOlder fetches the next older page. loaded is the number of messages
// currently displayed. On failure the loader state is left untouched so the
// next top-scroll retries the same page.
func (l *Loader) LoadOlder(ctx context.Context, loaded int, fetch FetchFunc) ([]store.Message, error) {
	l.mu.Lock()
	if err := l.checkLocked(loaded); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.fetching = true
	page := l.nextPage
	l.mu.Unlock()

	msgs, err := fetch(ctx, page, l.pageSize)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetching = false
	if err != nil {
		return nil, err
	}
	l.nextPage = page + 1
	if len(msgs) < l.pageSize {
		l.hasMore = false
	}
	return msgs, nil
}
