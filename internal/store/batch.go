package store

import (
	"context"
	"fmt"
	"time"
)

// DefaultCap is the per-conversation retention bound.
const DefaultCap = 1000

// BatchResult reports what SaveConversationBatch did.
type BatchResult struct {
	Written int
	Trimmed int
}

// SaveConversationBatch writes msgs into one conversation, marks the
// conversation initialized and trims it down to capacity, all in a single
// transaction. Messages without a server id are skipped.
func (db *DB) SaveConversationBatch(ctx context.Context, conversationKey string, msgs []Message, capacity int) (BatchResult, error) {
	var res BatchResult
	if err := db.ready(); err != nil {
		return res, err
	}
	if conversationKey == "" {
		return res, fmt.Errorf("save batch: conversation key is required")
	}

	rows := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == 0 {
			continue
		}
		m.ConversationKey = conversationKey
		rows = append(rows, m)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := putMessagesTx(ctx, tx, rows); err != nil {
		return res, err
	}
	if err := markInitializedTx(ctx, tx, conversationKey); err != nil {
		return res, err
	}
	trimmed, err := trimTx(ctx, tx, conversationKey, capacity)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit batch: %w", err)
	}
	res.Written = len(rows)
	res.Trimmed = trimmed
	return res, nil
}

// Trim deletes the oldest messages of a conversation until at most capacity
// remain. It returns how many rows were removed.
func (db *DB) Trim(ctx context.Context, conversationKey string, capacity int) (int, error) {
	if err := db.ready(); err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := trimTx(ctx, tx, conversationKey, capacity)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func trimTx(ctx context.Context, tx txExecer, conversationKey string, capacity int) (int, error) {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_key = ?`, conversationKey).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	excess := count - capacity
	if excess <= 0 {
		return 0, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM messages
		WHERE conversation_key = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, conversationKey, excess)
	if err != nil {
		return 0, fmt.Errorf("select oldest: %w", err)
	}
	ids := make([]int64, 0, excess)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	if err := deleteByKeysTx(ctx, tx, conversationKey, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ClearConversation removes every cached message, the summary and the meta
// row of one conversation.
func (db *DB) ClearConversation(ctx context.Context, conversationKey string) error {
	if err := db.ready(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM messages WHERE conversation_key = ?`,
		`DELETE FROM conversation_summaries WHERE conversation_key = ?`,
		`DELETE FROM conversation_meta WHERE conversation_key = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, conversationKey); err != nil {
			return fmt.Errorf("clear conversation: %w", err)
		}
	}
	return tx.Commit()
}

func markInitializedTx(ctx context.Context, tx txExecer, conversationKey string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_meta (conversation_key, initialized, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET
			initialized = 1,
			updated_at = excluded.updated_at`,
		conversationKey, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark initialized: %w", err)
	}
	return nil
}
