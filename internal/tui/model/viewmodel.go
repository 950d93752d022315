package model

import (
	"context"
	"errors"
	"sync"

	"github.com/matheus3301/pmsync/internal/api"
)

// SearchLimit caps search results shown at once.
const SearchLimit = 50

// ErrNoConversation is returned by actions that need an open conversation.
var ErrNoConversation = errors.New("no conversation open")

// Backend is the daemon surface the terminal UI uses. *api.Client satisfies it.
type Backend interface {
	Status(ctx context.Context) (api.Status, error)
	ListSummaries(ctx context.Context) ([]api.Summary, error)
	Reconcile(ctx context.Context) ([]api.Summary, error)
	Open(ctx context.Context, otherID int64) (api.Snapshot, error)
	CloseConversation(ctx context.Context) error
	Messages(ctx context.Context) (api.Snapshot, error)
	LoadOlder(ctx context.Context) (api.LoadOlderResult, error)
	Send(ctx context.Context, text string) (api.Message, error)
	SendMedia(ctx context.Context, typ, mediaURL, text string) (api.Message, error)
	Recall(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	ReEdit(ctx context.Context, id int64) (string, error)
	MarkRead(ctx context.Context) error
	SetViewing(ctx context.Context, viewing bool) error
	Search(ctx context.Context, otherID int64, query string, limit int) ([]api.SearchHit, error)
	Clear(ctx context.Context, otherID int64) error
	Watch(ctx context.Context, prefix string, fn func(api.Event) error) error
}

var _ Backend = (*api.Client)(nil)

// ViewModel caches what the daemon last reported and funnels user actions
// back to it. Views read it only from the UI goroutine's callbacks.
type ViewModel struct {
	mu sync.RWMutex

	backend   Backend
	status    api.Status
	summaries []api.Summary
	snapshot  api.Snapshot
	openID    int64
	Flash     Flash
}

// NewViewModel creates a view model over backend.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{backend: b}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.backend.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	return nil
}

// LoadSummaries reads the cached sidebar.
func (vm *ViewModel) LoadSummaries(ctx context.Context) error {
	list, err := vm.backend.ListSummaries(ctx)
	if err != nil {
		return err
	}
	vm.setSummaries(list)
	return nil
}

// Reconcile asks the daemon to rebuild the sidebar from the backend.
func (vm *ViewModel) Reconcile(ctx context.Context) error {
	list, err := vm.backend.Reconcile(ctx)
	if err != nil {
		return err
	}
	vm.setSummaries(list)
	return nil
}

func (vm *ViewModel) setSummaries(list []api.Summary) {
	vm.mu.Lock()
	vm.summaries = list
	vm.mu.Unlock()
}

// Open switches to the conversation with otherID.
func (vm *ViewModel) Open(ctx context.Context, otherID int64) error {
	vm.mu.Lock()
	vm.openID = otherID
	vm.mu.Unlock()

	snap, err := vm.backend.Open(ctx, otherID)
	if err != nil {
		return err
	}
	vm.setSnapshot(snap)
	return nil
}

// Close closes the open conversation.
func (vm *ViewModel) Close(ctx context.Context) error {
	vm.mu.Lock()
	vm.openID = 0
	vm.snapshot = api.Snapshot{}
	vm.mu.Unlock()
	return vm.backend.CloseConversation(ctx)
}

// Refresh re-reads the open conversation. A snapshot for another
// conversation than the one last opened here is ignored.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	if vm.OpenID() == 0 {
		return nil
	}
	snap, err := vm.backend.Messages(ctx)
	if err != nil {
		return err
	}
	vm.setSnapshot(snap)
	return nil
}

func (vm *ViewModel) setSnapshot(snap api.Snapshot) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if snap.OtherID != vm.openID {
		return
	}
	vm.snapshot = snap
}

// LoadOlder fetches one older page and refreshes the snapshot.
func (vm *ViewModel) LoadOlder(ctx context.Context) (api.LoadOlderResult, error) {
	if vm.OpenID() == 0 {
		return api.LoadOlderResult{}, ErrNoConversation
	}
	res, err := vm.backend.LoadOlder(ctx)
	if err != nil {
		return res, err
	}
	return res, vm.Refresh(ctx)
}

// Send sends text to the open conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	if vm.OpenID() == 0 {
		return ErrNoConversation
	}
	if _, err := vm.backend.Send(ctx, text); err != nil {
		return err
	}
	return vm.Refresh(ctx)
}

// SendMedia sends an image or video by URL to the open conversation.
func (vm *ViewModel) SendMedia(ctx context.Context, typ, mediaURL, text string) error {
	if vm.OpenID() == 0 {
		return ErrNoConversation
	}
	if _, err := vm.backend.SendMedia(ctx, typ, mediaURL, text); err != nil {
		return err
	}
	return vm.Refresh(ctx)
}

// Recall recalls message id.
func (vm *ViewModel) Recall(ctx context.Context, id int64) error {
	if err := vm.backend.Recall(ctx, id); err != nil {
		return err
	}
	return vm.Refresh(ctx)
}

// Delete deletes message id.
func (vm *ViewModel) Delete(ctx context.Context, id int64) error {
	if err := vm.backend.Delete(ctx, id); err != nil {
		return err
	}
	return vm.Refresh(ctx)
}

// ReEdit returns the original text of recalled message id.
func (vm *ViewModel) ReEdit(ctx context.Context, id int64) (string, error) {
	return vm.backend.ReEdit(ctx, id)
}

// MarkRead marks the open conversation read.
func (vm *ViewModel) MarkRead(ctx context.Context) error {
	if vm.OpenID() == 0 {
		return ErrNoConversation
	}
	return vm.backend.MarkRead(ctx)
}

// SetViewing reports whether the thread is on screen.
func (vm *ViewModel) SetViewing(ctx context.Context, viewing bool) error {
	if vm.OpenID() == 0 {
		return nil
	}
	return vm.backend.SetViewing(ctx, viewing)
}

// Search queries cached messages of every conversation.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]api.SearchHit, error) {
	return vm.backend.Search(ctx, 0, query, SearchLimit)
}

// ClearOpen drops the cached rows of the open conversation.
func (vm *ViewModel) ClearOpen(ctx context.Context) error {
	id := vm.OpenID()
	if id == 0 {
		return ErrNoConversation
	}
	return vm.backend.Clear(ctx, id)
}

// Watch forwards daemon events to fn until ctx is done.
func (vm *ViewModel) Watch(ctx context.Context, fn func(api.Event) error) error {
	return vm.backend.Watch(ctx, "", fn)
}

// Status returns the last daemon status.
func (vm *ViewModel) Status() api.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Summaries returns the last sidebar.
func (vm *ViewModel) Summaries() []api.Summary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.summaries
}

// Snapshot returns the last snapshot of the open conversation.
func (vm *ViewModel) Snapshot() api.Snapshot {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.snapshot
}

// OpenID returns the conversation partner the UI last opened, or 0.
func (vm *ViewModel) OpenID() int64 {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.openID
}

// OwnerID returns the signed-in user.
func (vm *ViewModel) OwnerID() int64 {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status.OwnerID
}

// DisplayName returns the sidebar nickname of otherID.
func (vm *ViewModel) DisplayName(otherID int64) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, s := range vm.summaries {
		if s.OtherID == otherID && s.Nickname != "" {
			return s.Nickname
		}
	}
	return ""
}

// Message looks up a message of the open conversation by server id.
func (vm *ViewModel) Message(id int64) (api.Message, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, m := range vm.snapshot.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return api.Message{}, false
}
