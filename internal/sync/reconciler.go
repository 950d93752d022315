package sync

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/pmsync/internal/blog"
	"github.com/matheus3301/pmsync/internal/cache"
	"github.com/matheus3301/pmsync/internal/store"
)

// Reconciler builds the sidebar from the friends list and the
// conversations list and persists it as conversation summaries.
type Reconciler struct {
	dir     DirectoryAPI
	cache   *cache.Cache
	ownerID int64
	logger  *zap.Logger
}

// NewReconciler creates a reconciler for ownerID.
func NewReconciler(dir DirectoryAPI, c *cache.Cache, ownerID int64, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{dir: dir, cache: c, ownerID: ownerID, logger: logger}
}

// Run fetches both lists concurrently and merges them: every friend appears
// once, in friends-list order before sorting, enriched with the matching
// conversation entry. openOtherID, when non-zero, is guaranteed an entry,
// backfilled from the profile endpoint if neither list knows it. The result
// is ordered by last message time, most recent first, and upserted into the
// cache. On a fetch failure nothing is persisted.
func (r *Reconciler) Run(ctx context.Context, openOtherID int64) ([]store.ConversationSummary, error) {
	var (
		friends []blog.Friend
		convs   []blog.ConversationEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		friends, err = r.dir.Friends(gctx)
		if err != nil {
			return fmt.Errorf("fetch friends: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		convs, err = r.dir.Conversations(gctx)
		if err != nil {
			return fmt.Errorf("fetch conversations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	list := Reconcile(friends, convs)
	if openOtherID != 0 && !slices.ContainsFunc(list, func(s store.ConversationSummary) bool { return s.OtherID == openOtherID }) {
		list = append(list, r.synthesize(ctx, openOtherID, convs))
		sortSummaries(list)
	}
	for i := range list {
		list[i].ConversationKey = store.ConversationKey(r.ownerID, list[i].OtherID)
	}

	r.cache.UpsertSummaries(ctx, r.ownerID, list)
	r.logger.Debug("summaries reconciled",
		zap.Int("friends", len(friends)),
		zap.Int("conversations", len(convs)),
		zap.Int("summaries", len(list)),
	)
	return list, nil
}

// synthesize builds the entry of an open partner missing from the friends
// list, from its conversation entry if one exists, then from its profile.
func (r *Reconciler) synthesize(ctx context.Context, otherID int64, convs []blog.ConversationEntry) store.ConversationSummary {
	s := store.ConversationSummary{OtherID: otherID}
	if i := slices.IndexFunc(convs, func(c blog.ConversationEntry) bool { return c.OtherID == otherID }); i >= 0 {
		s = fromEntry(convs[i])
	}
	if s.Nickname != "" && s.AvatarURL != "" {
		return s
	}
	p, err := r.dir.Profile(ctx, otherID)
	if err != nil {
		r.logger.Warn("profile backfill failed", zap.Int64("user", otherID), zap.Error(err))
		return s
	}
	s.Nickname = cmp.Or(s.Nickname, p.Nickname)
	s.AvatarURL = cmp.Or(s.AvatarURL, p.AvatarURL)
	return s
}

// Reconcile left-joins friends with conversation entries by partner id.
// Duplicate friends keep their first occurrence. Conversations with users
// who are not friends are left out.
func Reconcile(friends []blog.Friend, convs []blog.ConversationEntry) []store.ConversationSummary {
	byID := make(map[int64]blog.ConversationEntry, len(convs))
	for _, c := range convs {
		if _, ok := byID[c.OtherID]; !ok {
			byID[c.OtherID] = c
		}
	}

	seen := make(map[int64]struct{}, len(friends))
	out := make([]store.ConversationSummary, 0, len(friends))
	for _, f := range friends {
		if f.ID == 0 {
			continue
		}
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}

		s := store.ConversationSummary{OtherID: f.ID, Nickname: f.Nickname, AvatarURL: f.AvatarURL}
		if c, ok := byID[f.ID]; ok {
			s.Nickname = cmp.Or(s.Nickname, c.Nickname)
			s.AvatarURL = cmp.Or(s.AvatarURL, c.AvatarURL)
			s.LastMessage = c.LastMessage
			s.LastAt = c.LastAt
			s.UnreadCount = c.UnreadCount
		}
		out = append(out, s)
	}
	sortSummaries(out)
	return out
}

func fromEntry(c blog.ConversationEntry) store.ConversationSummary {
	return store.ConversationSummary{
		OtherID:     c.OtherID,
		Nickname:    c.Nickname,
		AvatarURL:   c.AvatarURL,
		LastMessage: c.LastMessage,
		LastAt:      c.LastAt,
		UnreadCount: c.UnreadCount,
	}
}

func sortSummaries(list []store.ConversationSummary) {
	slices.SortStableFunc(list, func(a, b store.ConversationSummary) int {
		return cmp.Compare(b.LastAt, a.LastAt)
	})
}
