package store

import (
	"context"
	"database/sql"
	"errors"
)

// GetMeta returns the meta row for a conversation, or nil if none exists.
func (db *DB) GetMeta(ctx context.Context, conversationKey string) (*ConversationMeta, error) {
	if err := db.ready(); err != nil {
		return nil, err
	}
	var m ConversationMeta
	var initialized int
	err := db.QueryRowContext(ctx, `
		SELECT conversation_key, initialized, updated_at
		FROM conversation_meta WHERE conversation_key = ?`, conversationKey,
	).Scan(&m.ConversationKey, &initialized, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Initialized = initialized != 0
	return &m, nil
}

// MarkInitialized records that a conversation has been written at least once.
func (db *DB) MarkInitialized(ctx context.Context, conversationKey string) error {
	if err := db.ready(); err != nil {
		return err
	}
	return markInitializedTx(ctx, db.DB, conversationKey)
}
