package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	gosync "sync"

	"github.com/matheus3301/pmsync/internal/blog"
	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/store"
)

var errOffline = errors.New("offline")

type pageCall struct {
	other int64
	page  int
}

// fakeAPI is an in-memory backend. Pages are newest first: pages[other][0]
// is page 0.
type fakeAPI struct {
	mu gosync.Mutex

	pages     map[int64][][]store.Message
	pageGates map[pageCall]chan struct{}
	pageCalls []pageCall
	pageErr   error
	started   chan pageCall

	sendGate    chan struct{}
	sendStarted chan struct{}
	sendErr     error
	nextID      int64
	sent        []string

	markReads   []int64
	unreadCalls int
	unread      int64

	views     map[int64][]overlay.ViewRecord
	viewCalls int
	deleteErr error
	recalled  []int64
	deleted   []int64

	friends      []blog.Friend
	convs        []blog.ConversationEntry
	friendsErr   error
	friendsCalls int
	profiles     map[int64]blog.Profile
	profileCalls int

	global func(ctx context.Context) (io.ReadCloser, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:     make(map[int64][][]store.Message),
		pageGates: make(map[pageCall]chan struct{}),
		views:     make(map[int64][]overlay.ViewRecord),
		profiles:  make(map[int64]blog.Profile),
		nextID:    1000,
	}
}

func (f *fakeAPI) setPages(other int64, pages ...[]store.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[other] = pages
}

func (f *fakeAPI) callsFor(other int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.pageCalls {
		if c.other == other {
			n++
		}
	}
	return n
}

func (f *fakeAPI) ConversationPage(ctx context.Context, otherID int64, page, size int) ([]store.Message, error) {
	call := pageCall{otherID, page}
	f.mu.Lock()
	f.pageCalls = append(f.pageCalls, call)
	gate := f.pageGates[call]
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- call
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	pages := f.pages[otherID]
	if page >= len(pages) {
		return nil, nil
	}
	out := make([]store.Message, len(pages[page]))
	copy(out, pages[page])
	return out, nil
}

func (f *fakeAPI) SendText(ctx context.Context, otherID int64, text string) (store.Message, error) {
	f.mu.Lock()
	gate, started := f.sendGate, f.sendStarted
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return store.Message{}, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, text)
	return store.Message{ID: f.nextID, ReceiverID: otherID, Text: text, Type: store.TypeText}, nil
}

func (f *fakeAPI) SendMedia(ctx context.Context, otherID int64, typ store.MessageType, mediaURL, text string) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return store.Message{}, f.sendErr
	}
	f.nextID++
	return store.Message{ID: f.nextID, ReceiverID: otherID, Text: text, MediaURL: mediaURL, Type: typ}, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, otherID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, otherID)
	return nil
}

func (f *fakeAPI) markReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markReads)
}

func (f *fakeAPI) UnreadTotal(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreadCalls++
	return f.unread, nil
}

func (f *fakeAPI) ViewRecords(ctx context.Context, otherID int64) ([]overlay.ViewRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewCalls++
	return append([]overlay.ViewRecord(nil), f.views[otherID]...), nil
}

func (f *fakeAPI) viewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewCalls
}

func (f *fakeAPI) Recall(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recalled = append(f.recalled, id)
	return nil
}

func (f *fakeAPI) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) Friends(ctx context.Context) ([]blog.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friendsCalls++
	if f.friendsErr != nil {
		return nil, f.friendsErr
	}
	return append([]blog.Friend(nil), f.friends...), nil
}

func (f *fakeAPI) Conversations(ctx context.Context) ([]blog.ConversationEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]blog.ConversationEntry(nil), f.convs...), nil
}

func (f *fakeAPI) Profile(ctx context.Context, userID int64) (blog.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	p, ok := f.profiles[userID]
	if !ok {
		return blog.Profile{}, fmt.Errorf("user %d: %w", userID, errOffline)
	}
	return p, nil
}

func (f *fakeAPI) ConversationStream(ctx context.Context, otherID int64) (io.ReadCloser, error) {
	return nil, errOffline
}

func (f *fakeAPI) GlobalStream(ctx context.Context) (io.ReadCloser, error) {
	if f.global != nil {
		return f.global(ctx)
	}
	return nil, errOffline
}
