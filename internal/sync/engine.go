// Package sync runs the open conversation: it paints from the local cache,
// merges live pages and push updates into one ordered list, and keeps the
// sidebar summaries reconciled.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/pmsync/internal/bus"
	"github.com/matheus3301/pmsync/internal/cache"
	"github.com/matheus3301/pmsync/internal/history"
	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/push"
	"github.com/matheus3301/pmsync/internal/status"
	"github.com/matheus3301/pmsync/internal/store"
)

var (
	ErrNoConversation = errors.New("sync: no open conversation")
	// ErrStale is returned when a result arrived after its conversation was
	// switched away or closed. The result was discarded.
	ErrStale = errors.New("sync: conversation switched")
)

// Push channel names, as reported in push status events.
const (
	ChannelGlobal       = "global"
	ChannelConversation = "conversation"
)

// Options configures an Engine. Zero sizes and durations take the defaults.
type Options struct {
	OwnerID      int64
	API          API
	Cache        *cache.Cache
	Bus          *bus.Bus
	Logger       *zap.Logger
	PageSize     int
	PreloadLimit int
	PollInterval time.Duration
	RecallWindow time.Duration
	// Now overrides the clock for optimistic timestamps and the recall window.
	Now func() time.Time
}

// Engine owns one user's open conversation and sidebar.
type Engine struct {
	opts   Options
	api    API
	cache  *cache.Cache
	bus    *bus.Bus
	logger *zap.Logger
	recon  *Reconciler

	mu     gosync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	cur    *conversation
	global *push.Channel
	unread int64
}

// NewEngine creates a new sync engine.
func NewEngine(opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.PreloadLimit <= 0 {
		opts.PreloadLimit = cache.DefaultPreloadLimit
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = push.DefaultPollInterval
	}
	if opts.RecallWindow <= 0 {
		opts.RecallWindow = overlay.DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		opts:   opts,
		api:    opts.API,
		cache:  opts.Cache,
		bus:    opts.Bus,
		logger: logger,
		recon:  NewReconciler(opts.API, opts.Cache, opts.OwnerID, logger),
		ctx:    context.Background(),
	}
}

// OwnerID returns the id of the local user.
func (e *Engine) OwnerID() int64 { return e.opts.OwnerID }

// Start opens the global push subscription and runs a first reconciliation
// in the background.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ch, err := push.Start(ctx, push.Config{
		Name:         ChannelGlobal,
		Dial:         e.api.GlobalStream,
		Handle:       e.handleGlobalSignal,
		PollInterval: e.opts.PollInterval,
		Bus:          e.bus,
		Logger:       e.logger,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start global push: %w", err)
	}

	e.mu.Lock()
	e.ctx = ctx
	e.cancel = cancel
	e.global = ch
	e.mu.Unlock()

	go func() {
		e.reconcile(ctx)
		e.refreshUnread(ctx)
	}()
	e.logger.Info("sync engine started", zap.Int64("owner", e.opts.OwnerID))
	return nil
}

// Stop closes the open conversation and the global subscription.
func (e *Engine) Stop() {
	e.mu.Lock()
	cur := e.cur
	e.cur = nil
	global := e.global
	e.global = nil
	cancel := e.cancel
	e.mu.Unlock()

	if cur != nil {
		cur.close()
	}
	if global != nil {
		global.Close()
	}
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) current() *conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur
}

func (e *Engine) active() (*conversation, error) {
	c := e.current()
	if c == nil {
		return nil, ErrNoConversation
	}
	return c, nil
}

// stale reports whether c is no longer the open conversation.
func (e *Engine) stale(c *conversation) bool {
	return c.closed() || e.current() != c
}

// Snapshot is the renderable state of the open conversation.
type Snapshot struct {
	OtherID int64
	Items   []overlay.Item
	HasMore bool
	Loading bool
	Viewing bool
	Push    status.State
}

func (e *Engine) snapshot(c *conversation) Snapshot {
	s := Snapshot{
		OtherID: c.otherID,
		Items:   c.overlay.Join(c.snapshot()),
		HasMore: c.loader.HasMore(),
		Loading: c.loader.Fetching(),
		Viewing: c.isViewing(),
		Push:    status.Idle,
	}
	if ch := c.pushChannel(); ch != nil {
		s.Push = ch.State()
	}
	return s
}

// Messages returns the ordered, overlay-joined list of the open conversation.
func (e *Engine) Messages() (Snapshot, error) {
	c, err := e.active()
	if err != nil {
		return Snapshot{}, err
	}
	return e.snapshot(c), nil
}

// ConversationEvent is the payload of conversation.* events.
type ConversationEvent struct {
	OtherID int64  `json:"otherId"`
	Reason  string `json:"reason"`
	Count   int    `json:"count"`
}

func (e *Engine) emitUpdated(c *conversation, reason string) {
	e.bus.Emit(bus.KindConversationUpdated, ConversationEvent{OtherID: c.otherID, Reason: reason, Count: c.loaded()})
}

// Open switches to the conversation with otherID. The previous conversation
// is torn down first. Cached rows are painted before page 0 is fetched; a
// failed fetch leaves the cached view in place.
func (e *Engine) Open(ctx context.Context, otherID int64) (Snapshot, error) {
	if otherID == 0 {
		return Snapshot{}, fmt.Errorf("open conversation: invalid user id")
	}

	e.mu.Lock()
	base := e.ctx
	prev := e.cur
	cctx, cancel := context.WithCancel(base)
	c := &conversation{
		otherID: otherID,
		key:     store.ConversationKey(e.opts.OwnerID, otherID),
		ctx:     cctx,
		cancel:  cancel,
		loader:  history.NewLoader(e.opts.PageSize),
		overlay: overlay.New(e.api, e.opts.OwnerID, otherID,
			overlay.WithWindow(e.opts.RecallWindow),
			overlay.WithClock(e.opts.Now),
			overlay.WithLogger(e.logger),
		),
		failed:  make(map[string]struct{}),
		viewing: true,
	}
	e.cur = c
	e.mu.Unlock()

	if prev != nil {
		prev.close()
		e.bus.Emit(bus.KindConversationClosed, ConversationEvent{OtherID: prev.otherID, Reason: "switch"})
	}

	log := e.logger.With(zap.Int64("other", otherID))
	fctx, done := c.bind(ctx)
	defer done()

	cached := e.cache.Preload(fctx, e.opts.OwnerID, otherID, e.opts.PreloadLimit)
	c.mergeIn(cached)
	e.bus.Emit(bus.KindConversationOpened, ConversationEvent{OtherID: otherID, Reason: "cache", Count: len(cached)})
	log.Debug("conversation opened", zap.Int("cached", len(cached)))

	ch, err := push.Start(c.ctx, push.Config{
		Name:         ChannelConversation,
		Dial:         func(ctx context.Context) (io.ReadCloser, error) { return e.api.ConversationStream(ctx, otherID) },
		Handle:       func(ctx context.Context, ev push.Event) { e.handleConversationSignal(ctx, c, ev) },
		PollInterval: e.opts.PollInterval,
		Bus:          e.bus,
		Logger:       log,
	})
	if err != nil {
		log.Warn("conversation push unavailable", zap.Error(err))
	} else {
		c.setChannel(ch)
		if c.closed() {
			ch.Close()
		}
	}

	n, err := e.fetchLatest(fctx, c)
	if errors.Is(err, ErrStale) {
		return Snapshot{}, ErrStale
	}
	if err == nil {
		c.loader.ObserveFirstPage(n)
	}
	// Opening marks read even when page 0 could not be fetched.
	e.markRead(fctx, c)
	e.refreshOverlay(fctx, c)

	if e.stale(c) {
		return Snapshot{}, ErrStale
	}
	return e.snapshot(c), nil
}

// Close tears the open conversation down.
func (e *Engine) Close() {
	e.mu.Lock()
	c := e.cur
	e.cur = nil
	e.mu.Unlock()
	if c == nil {
		return
	}
	c.close()
	e.bus.Emit(bus.KindConversationClosed, ConversationEvent{OtherID: c.otherID, Reason: "close"})
}

// fetchLatest loads page 0 and merges it. Transport failures are logged and
// returned; the cached view stays as is.
func (e *Engine) fetchLatest(ctx context.Context, c *conversation) (int, error) {
	page, err := e.api.ConversationPage(ctx, c.otherID, 0, e.opts.PageSize)
	if e.stale(c) {
		return 0, ErrStale
	}
	if err != nil {
		e.logger.Warn("fetch latest page failed", zap.Int64("other", c.otherID), zap.Error(err))
		return 0, err
	}
	c.dropFailed()
	added := c.mergeIn(page)
	e.cache.CacheMessages(ctx, e.opts.OwnerID, c.otherID, page)
	if added > 0 {
		e.emitUpdated(c, "latest")
	}
	return len(page), nil
}

// LoadOlder fetches the next older page of the open conversation and returns
// how many messages were added. history errors report why no fetch happened.
func (e *Engine) LoadOlder(ctx context.Context) (int, error) {
	c, err := e.active()
	if err != nil {
		return 0, err
	}
	fctx, done := c.bind(ctx)
	defer done()

	page, err := c.loader.LoadOlder(fctx, c.loaded(), func(ctx context.Context, page, size int) ([]store.Message, error) {
		return e.api.ConversationPage(ctx, c.otherID, page, size)
	})
	if e.stale(c) {
		return 0, ErrStale
	}
	if err != nil {
		if !isLoaderGate(err) {
			e.logger.Warn("load older failed", zap.Int64("other", c.otherID), zap.Error(err))
		}
		return 0, err
	}

	added := c.mergeIn(page)
	e.cache.CacheMessages(fctx, e.opts.OwnerID, c.otherID, page)
	e.bus.Emit(bus.KindHistoryLoaded, HistoryEvent{OtherID: c.otherID, Added: added, HasMore: c.loader.HasMore()})
	return added, nil
}

func isLoaderGate(err error) bool {
	return errors.Is(err, history.ErrBusy) || errors.Is(err, history.ErrExhausted) || errors.Is(err, history.ErrEmpty)
}

// HistoryEvent is the payload of history.loaded.
type HistoryEvent struct {
	OtherID int64 `json:"otherId"`
	Added   int   `json:"added"`
	HasMore bool  `json:"hasMore"`
}

func (e *Engine) refreshOverlay(ctx context.Context, c *conversation) {
	if err := c.overlay.Refresh(ctx); err != nil {
		if !e.stale(c) {
			e.logger.Warn("overlay refresh failed", zap.Int64("other", c.otherID), zap.Error(err))
		}
		return
	}
	if e.stale(c) {
		return
	}
	e.bus.Emit(bus.KindOverlayRefreshed, ConversationEvent{OtherID: c.otherID, Reason: "overlay"})
}

// SetViewing records whether the user is looking at the open conversation.
// Push signals for a viewed conversation mark it read instead of raising
// the unread badge.
func (e *Engine) SetViewing(viewing bool) error {
	c, err := e.active()
	if err != nil {
		return err
	}
	c.setViewing(viewing)
	return nil
}

// UnreadTotal returns the last known unread badge count.
func (e *Engine) UnreadTotal() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread
}

func (e *Engine) refreshUnread(ctx context.Context) {
	n, err := e.api.UnreadTotal(ctx)
	if err != nil {
		e.logger.Warn("unread total failed", zap.Error(err))
		return
	}
	e.mu.Lock()
	changed := e.unread != n
	e.unread = n
	e.mu.Unlock()
	if changed {
		e.bus.Emit(bus.KindUnreadChanged, n)
	}
}

// Summaries returns the cached sidebar, most recent first.
func (e *Engine) Summaries(ctx context.Context) []store.ConversationSummary {
	return e.cache.ListSummaries(ctx, e.opts.OwnerID)
}

// Reconcile rebuilds the sidebar from the backend and persists it.
func (e *Engine) Reconcile(ctx context.Context) ([]store.ConversationSummary, error) {
	var open int64
	if c := e.current(); c != nil {
		open = c.otherID
	}
	list, err := e.recon.Run(ctx, open)
	if err != nil {
		return nil, err
	}
	e.bus.Emit(bus.KindSummariesUpdated, list)
	return list, nil
}

func (e *Engine) reconcile(ctx context.Context) {
	if _, err := e.Reconcile(ctx); err != nil && ctx.Err() == nil {
		e.logger.Warn("reconcile failed", zap.Error(err))
	}
}

// Search runs a full-text query over cached messages. otherID 0 searches
// every conversation of the owner.
func (e *Engine) Search(ctx context.Context, otherID int64, query string, limit int) ([]store.SearchResult, error) {
	return e.cache.Search(ctx, e.opts.OwnerID, otherID, query, limit)
}

// Clear drops the cached rows of one conversation. The open conversation's
// in-memory list is left as is.
func (e *Engine) Clear(ctx context.Context, otherID int64) error {
	return e.cache.ClearConversation(ctx, e.opts.OwnerID, otherID)
}

// Status summarizes the engine for status output.
type Status struct {
	OwnerID          int64
	OpenOtherID      int64
	GlobalPush       status.State
	ConversationPush status.State
	Unread           int64
	Cache            cache.Stats
}

// Status returns the current engine status.
func (e *Engine) Status(ctx context.Context) Status {
	e.mu.Lock()
	s := Status{
		OwnerID:          e.opts.OwnerID,
		GlobalPush:       status.Idle,
		ConversationPush: status.Idle,
		Unread:           e.unread,
	}
	global := e.global
	cur := e.cur
	e.mu.Unlock()

	if global != nil {
		s.GlobalPush = global.State()
	}
	if cur != nil {
		s.OpenOtherID = cur.otherID
		if ch := cur.pushChannel(); ch != nil {
			s.ConversationPush = ch.State()
		}
	}
	s.Cache = e.cache.Stats(ctx)
	return s
}
