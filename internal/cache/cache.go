// Package cache is the only entry point the sync engine uses to reach the
// local store. Every failure is logged and turned into a cache miss or a
// skipped write, so the engine keeps working fetch-only when storage is gone.
package cache

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/matheus3301/pmsync/internal/store"
)

// DefaultPreloadLimit bounds how many cached rows are painted on open.
const DefaultPreloadLimit = 1000

// Cache wraps a store with conversation-scoped helpers.
type Cache struct {
	db       *store.DB
	log      *zap.Logger
	capacity int
}

// New returns a Cache over db. A nil db yields a cache where every read
// misses and every write is skipped.
func New(db *store.DB, log *zap.Logger, capacity int) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = store.DefaultCap
	}
	return &Cache{db: db, log: log.Named("cache"), capacity: capacity}
}

// Available reports whether a storage engine is attached.
func (c *Cache) Available() bool {
	return c.db != nil
}

// Capacity returns the per-conversation retention bound.
func (c *Cache) Capacity() int {
	return c.capacity
}

func ownerPrefix(ownerID int64) string {
	return strconv.FormatInt(ownerID, 10) + ":"
}

func (c *Cache) warn(op string, err error, fields ...zap.Field) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.log.Warn(op+" failed", append(fields, zap.Error(err))...)
}

// Preload returns up to limit most recent cached messages of a conversation,
// oldest first. Any storage error yields an empty result.
func (c *Cache) Preload(ctx context.Context, ownerID, otherID int64, limit int) []store.Message {
	if limit <= 0 {
		return nil
	}
	key := store.ConversationKey(ownerID, otherID)

	// Rows are bounded by the trim policy, so the full ascending scan is small.
	var all []store.Message
	for m, err := range c.db.ScanByConversationTimeRange(ctx, key, 0, store.MaxTimestamp) {
		if err != nil {
			c.warn("preload", err, zap.String("conversation", key))
			return nil
		}
		all = append(all, m)
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// CacheMessages persists messages into a conversation, marks it initialized
// and trims it to capacity in one store transaction. Timestamps are
// normalized and id-less entries are skipped. Empty input is a no-op.
func (c *Cache) CacheMessages(ctx context.Context, ownerID, otherID int64, msgs []store.Message) {
	if len(msgs) == 0 {
		return
	}
	key := store.ConversationKey(ownerID, otherID)
	rows := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == 0 {
			continue
		}
		m.ConversationKey = key
		m.CreatedAt = store.NormalizeTimestamp(m.CreatedAt)
		rows = append(rows, m)
	}
	if len(rows) == 0 {
		return
	}

	res, err := c.db.SaveConversationBatch(ctx, key, rows, c.capacity)
	if err != nil {
		c.warn("cache messages", err, zap.String("conversation", key), zap.Int("count", len(rows)))
		return
	}
	if res.Trimmed > 0 {
		c.log.Debug("trimmed conversation",
			zap.String("conversation", key),
			zap.Int("trimmed", res.Trimmed),
		)
	}
}

// UpsertSummary persists one sidebar entry.
func (c *Cache) UpsertSummary(ctx context.Context, s store.ConversationSummary) {
	if err := c.db.UpsertSummary(ctx, &s); err != nil {
		c.warn("upsert summary", err, zap.String("conversation", s.ConversationKey))
	}
}

// UpsertSummaries persists a reconciliation result for the owner. Entries
// missing from list stay cached.
func (c *Cache) UpsertSummaries(ctx context.Context, ownerID int64, list []store.ConversationSummary) {
	if len(list) == 0 {
		return
	}
	rows := make([]store.ConversationSummary, len(list))
	for i, s := range list {
		s.ConversationKey = store.ConversationKey(ownerID, s.OtherID)
		rows[i] = s
	}
	if err := c.db.UpsertSummaries(ctx, rows); err != nil {
		c.warn("upsert summaries", err, zap.Int("count", len(rows)))
	}
}

// ListSummaries returns the owner's cached sidebar, most recent first.
func (c *Cache) ListSummaries(ctx context.Context, ownerID int64) []store.ConversationSummary {
	list, err := c.db.ListSummaries(ctx, ownerPrefix(ownerID), 0)
	if err != nil {
		c.warn("list summaries", err)
		return nil
	}
	return list
}

// ClearConversation drops every cached row of one conversation.
func (c *Cache) ClearConversation(ctx context.Context, ownerID, otherID int64) error {
	key := store.ConversationKey(ownerID, otherID)
	if err := c.db.ClearConversation(ctx, key); err != nil {
		c.warn("clear conversation", err, zap.String("conversation", key))
		return err
	}
	return nil
}

// Search runs a full-text query over the owner's cached messages. otherID 0
// searches every conversation. Unlike the other helpers it reports errors,
// since the caller asked for a result the cache alone can provide.
func (c *Cache) Search(ctx context.Context, ownerID, otherID int64, query string, limit int) ([]store.SearchResult, error) {
	scope := store.SearchScope{KeyPrefix: ownerPrefix(ownerID)}
	if otherID != 0 {
		scope = store.SearchScope{ConversationKey: store.ConversationKey(ownerID, otherID)}
	}
	return c.db.SearchMessages(ctx, query, scope, limit)
}

// Stats describes cache contents for status output.
type Stats struct {
	Available bool
	Messages  int64
}

// Stats returns best-effort counters.
func (c *Cache) Stats(ctx context.Context) Stats {
	n, err := c.db.MessageCount(ctx)
	if err != nil {
		return Stats{Available: false}
	}
	return Stats{Available: true, Messages: n}
}
