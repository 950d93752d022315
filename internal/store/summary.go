package store

import (
	"context"
	"time"
)

// UpsertSummary inserts or replaces a conversation summary.
func (db *DB) UpsertSummary(ctx context.Context, s *ConversationSummary) error {
	if err := db.ready(); err != nil {
		return err
	}
	return upsertSummaryTx(ctx, db.DB, s, time.Now().UnixMilli())
}

func upsertSummaryTx(ctx context.Context, tx txExecer, s *ConversationSummary, now int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_summaries
			(conversation_key, other_id, nickname, avatar_url, last_message, last_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET
			other_id = excluded.other_id,
			nickname = excluded.nickname,
			avatar_url = excluded.avatar_url,
			last_message = excluded.last_message,
			last_at = excluded.last_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		s.ConversationKey, s.OtherID, s.Nickname, s.AvatarURL, s.LastMessage, s.LastAt, s.UnreadCount, now)
	return err
}

// UpsertSummaries upserts a batch of summaries in one transaction. Rows not
// in the batch are left alone.
func (db *DB) UpsertSummaries(ctx context.Context, list []ConversationSummary) error {
	if err := db.ready(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for i := range list {
		if err := upsertSummaryTx(ctx, tx, &list[i], now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSummaries returns summaries most recent first.
func (db *DB) ListSummaries(ctx context.Context, keyPrefix string, limit int) ([]ConversationSummary, error) {
	if err := db.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT conversation_key, other_id, nickname, avatar_url, last_message, last_at, unread_count
		FROM conversation_summaries
		WHERE conversation_key LIKE ? || '%'
		ORDER BY last_at DESC, other_id ASC
		LIMIT ?`, keyPrefix, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(&s.ConversationKey, &s.OtherID, &s.Nickname, &s.AvatarURL, &s.LastMessage, &s.LastAt, &s.UnreadCount); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
