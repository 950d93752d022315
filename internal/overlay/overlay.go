// Package overlay joins server view records (recall and delete state) onto
// raw messages at read time without touching the stored rows.
package overlay

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/matheus3301/pmsync/internal/store"
)

// ErrRecallNotAllowed is returned when a message fails the local recall
// precondition: sent by the current user, not already recalled, and inside
// the recall window.
var ErrRecallNotAllowed = errors.New("overlay: recall not allowed for this message")

// RecalledText replaces the body of a recalled message.
const RecalledText = "message recalled"

// DefaultWindow is how long after sending a message may be recalled.
const DefaultWindow = 2 * time.Minute

// ViewRecord is the server's view of one message's visibility.
type ViewRecord struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	CreatedAt   int64
	Recalled    bool
	DisplayText string
}

// Item is a message as rendered: raw content with the overlay applied.
type Item struct {
	Message     store.Message
	Recalled    bool
	DisplayText string
	// Stub is set when only a view record exists for the id.
	Stub bool
}

// Source is the remote side of the overlay.
type Source interface {
	ViewRecords(ctx context.Context, otherID int64) ([]ViewRecord, error)
	Recall(ctx context.Context, messageID int64) error
	Delete(ctx context.Context, messageID int64) error
}

// Overlay holds the view records and local recall/delete sets of one
// conversation.
type Overlay struct {
	src     Source
	ownerID int64
	otherID int64
	window  time.Duration
	now     func() time.Time
	log     *zap.Logger
	group   singleflight.Group

	mu       sync.RWMutex
	records  map[int64]ViewRecord
	recalled map[int64]struct{}
	hidden   map[int64]struct{}
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithWindow overrides the recall window.
func WithWindow(d time.Duration) Option {
	return func(o *Overlay) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Overlay) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Overlay) {
		if l != nil {
			o.log = l
		}
	}
}

// New creates an empty overlay for the conversation between ownerID and otherID.
func New(src Source, ownerID, otherID int64, opts ...Option) *Overlay {
	o := &Overlay{
		src:      src,
		ownerID:  ownerID,
		otherID:  otherID,
		window:   DefaultWindow,
		now:      time.Now,
		log:      zap.NewNop(),
		records:  make(map[int64]ViewRecord),
		recalled: make(map[int64]struct{}),
		hidden:   make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Refresh fetches the current view records and re-applies the locally known
// recalls and deletes. Concurrent calls share one fetch.
func (o *Overlay) Refresh(ctx context.Context) error {
	_, err, _ := o.group.Do(strconv.FormatInt(o.otherID, 10), func() (any, error) {
		list, err := o.src.ViewRecords(ctx, o.otherID)
		if err != nil {
			return nil, err
		}
		next := make(map[int64]ViewRecord, len(list))
		for _, r := range list {
			if r.ID == 0 {
				continue
			}
			next[r.ID] = r
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		for id := range o.hidden {
			delete(next, id)
		}
		for id := range o.recalled {
			if r, ok := next[id]; ok && !r.Recalled {
				r.Recalled = true
				next[id] = r
			}
		}
		o.records = next
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("refresh view records: %w", err)
	}
	return nil
}

// Records returns a snapshot of the current view records ordered by time.
func (o *Overlay) Records() []ViewRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ViewRecord, 0, len(o.records))
	for _, r := range o.records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b ViewRecord) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (o *Overlay) recalledLocked(id int64) bool {
	if _, ok := o.recalled[id]; ok {
		return true
	}
	return o.records[id].Recalled
}

// IsRecalled reports whether either the server or this session has recalled id.
func (o *Overlay) IsRecalled(id int64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.recalledLocked(id)
}

// CanRecall reports whether the recall action should be offered for m.
func (o *Overlay) CanRecall(m store.Message) bool {
	if m.ID == 0 || m.Pending || m.SenderID != o.ownerID {
		return false
	}
	if o.IsRecalled(m.ID) {
		return false
	}
	age := o.now().Sub(time.UnixMilli(m.CreatedAt))
	return age <= o.window
}

// Recall asks the server to recall m. The local recall set only changes once
// the server has accepted the request.
func (o *Overlay) Recall(ctx context.Context, m store.Message) error {
	if !o.CanRecall(m) {
		return ErrRecallNotAllowed
	}
	if err := o.src.Recall(ctx, m.ID); err != nil {
		return fmt.Errorf("recall message %d: %w", m.ID, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.recalled[m.ID] = struct{}{}
	if r, ok := o.records[m.ID]; ok {
		r.Recalled = true
		o.records[m.ID] = r
	}
	o.log.Debug("message recalled", zap.Int64("id", m.ID))
	return nil
}

// Delete asks the server to delete a message and, on success, drops its view
// record and hides the raw message.
func (o *Overlay) Delete(ctx context.Context, id int64) error {
	if id == 0 {
		return fmt.Errorf("delete message: no server id")
	}
	if err := o.src.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.records, id)
	o.hidden[id] = struct{}{}
	o.log.Debug("message deleted", zap.Int64("id", id))
	return nil
}

// ReEditText returns the original text of a recalled message the current user
// sent, so it can be put back into the composer.
func (o *Overlay) ReEditText(m store.Message) (string, bool) {
	if m.SenderID != o.ownerID || m.ID == 0 {
		return "", false
	}
	if !o.IsRecalled(m.ID) {
		return "", false
	}
	return m.Text, true
}

// Join applies the overlay to msgs. Messages without a record render from raw
// data. Records without a message render as stubs unless they predate the
// oldest loaded message. Hidden ids are dropped.
// The result is ordered by CreatedAt, stable with respect to msgs.
func (o *Overlay) Join(msgs []store.Message) []Item {
	o.mu.RLock()
	defer o.mu.RUnlock()

	items := make([]Item, 0, len(msgs)+len(o.records))
	seen := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if m.ID != 0 {
			if _, ok := o.hidden[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		rec, hasRec := o.records[m.ID]
		item := Item{Message: m, DisplayText: displayText(m)}
		if m.ID != 0 && o.recalledLocked(m.ID) {
			item.Recalled = true
			item.DisplayText = RecalledText
		} else if hasRec && item.DisplayText == "" {
			item.DisplayText = rec.DisplayText
		}
		items = append(items, item)
	}

	// Records older than the loaded window belong to pages not fetched yet.
	floor := int64(math.MinInt64)
	for _, m := range msgs {
		if m.ID != 0 && (floor == math.MinInt64 || m.CreatedAt < floor) {
			floor = m.CreatedAt
		}
	}

	var stubs []Item
	for id, rec := range o.records {
		if _, ok := seen[id]; ok {
			continue
		}
		if rec.CreatedAt < floor {
			continue
		}
		item := Item{
			Message: store.Message{
				ID:              rec.ID,
				ConversationKey: store.ConversationKey(o.ownerID, o.otherID),
				SenderID:        rec.SenderID,
				ReceiverID:      rec.ReceiverID,
				CreatedAt:       rec.CreatedAt,
				Text:            rec.DisplayText,
				Type:            store.TypeText,
			},
			Recalled:    rec.Recalled || o.recalledLocked(id),
			DisplayText: rec.DisplayText,
			Stub:        true,
		}
		if item.Recalled {
			item.DisplayText = RecalledText
		}
		stubs = append(stubs, item)
	}
	slices.SortFunc(stubs, func(a, b Item) int {
		return cmp.Or(cmp.Compare(a.Message.CreatedAt, b.Message.CreatedAt), cmp.Compare(a.Message.ID, b.Message.ID))
	})
	items = append(items, stubs...)

	slices.SortStableFunc(items, func(a, b Item) int {
		return cmp.Compare(a.Message.CreatedAt, b.Message.CreatedAt)
	})
	return items
}

func displayText(m store.Message) string {
	if m.Text != "" {
		return m.Text
	}
	switch m.Type {
	case store.TypeImage:
		return "[image] " + m.MediaURL
	case store.TypeVideo:
		return "[video] " + m.MediaURL
	}
	return ""
}
