package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"
)

// MaxTimestamp is the upper bound used for open-ended time range scans.
const MaxTimestamp int64 = 8_640_000_000_000_000

const messageColumns = `conversation_key, id, sender_id, receiver_id, created_at, text, media_url, type,
	sender_nickname, sender_avatar_url, receiver_nickname, receiver_avatar_url`

const upsertMessageSQL = `
	INSERT INTO messages (` + messageColumns + `, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(conversation_key, id) DO UPDATE SET
		sender_id = excluded.sender_id,
		receiver_id = excluded.receiver_id,
		created_at = excluded.created_at,
		text = COALESCE(NULLIF(excluded.text, ''), messages.text),
		media_url = excluded.media_url,
		type = excluded.type,
		sender_nickname = excluded.sender_nickname,
		sender_avatar_url = excluded.sender_avatar_url,
		receiver_nickname = excluded.receiver_nickname,
		receiver_avatar_url = excluded.receiver_avatar_url,
		cached_at = excluded.cached_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type txExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanMessage(r rowScanner) (Message, error) {
	var m Message
	var typ string
	err := r.Scan(&m.ConversationKey, &m.ID, &m.SenderID, &m.ReceiverID, &m.CreatedAt, &m.Text, &m.MediaURL, &typ,
		&m.SenderNickname, &m.SenderAvatarURL, &m.ReceiverNickname, &m.ReceiverAvatarURL)
	m.Type = ParseMessageType(typ)
	return m, err
}

func messageArgs(m *Message, now int64) []any {
	typ := m.Type
	if typ == "" {
		typ = TypeText
	}
	return []any{m.ConversationKey, m.ID, m.SenderID, m.ReceiverID, m.CreatedAt, m.Text, m.MediaURL, string(typ),
		m.SenderNickname, m.SenderAvatarURL, m.ReceiverNickname, m.ReceiverAvatarURL, now}
}

// PutMessage upserts a single message by (conversation_key, id).
func (db *DB) PutMessage(ctx context.Context, m *Message) error {
	if err := db.ready(); err != nil {
		return err
	}
	if m.ID == 0 || m.ConversationKey == "" {
		return fmt.Errorf("put message: id and conversation key are required")
	}
	_, err := db.ExecContext(ctx, upsertMessageSQL, messageArgs(m, time.Now().UnixMilli())...)
	return err
}

// PutMessages upserts all messages in one transaction. Either every row is
// written or none is.
func (db *DB) PutMessages(ctx context.Context, msgs []Message) error {
	if err := db.ready(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := putMessagesTx(ctx, tx, msgs); err != nil {
		return err
	}
	return tx.Commit()
}

func putMessagesTx(ctx context.Context, tx txExecer, msgs []Message) error {
	now := time.Now().UnixMilli()
	for i := range msgs {
		m := &msgs[i]
		if m.ID == 0 || m.ConversationKey == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsertMessageSQL, messageArgs(m, now)...); err != nil {
			return fmt.Errorf("upsert message %d: %w", m.ID, err)
		}
	}
	return nil
}

// ScanByConversationTimeRange lazily yields the conversation's rows with
// fromTs <= created_at <= toTs, lowest timestamp first, using the compound
// (conversation_key, created_at) index.
func (db *DB) ScanByConversationTimeRange(ctx context.Context, conversationKey string, fromTs, toTs int64) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		if err := db.ready(); err != nil {
			yield(Message{}, err)
			return
		}
		rows, err := db.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages INDEXED BY idx_messages_conversation_created
			WHERE conversation_key = ? AND created_at BETWEEN ? AND ?
			ORDER BY created_at ASC, id ASC`, conversationKey, fromTs, toTs)
		if err != nil {
			yield(Message{}, err)
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				yield(Message{}, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Message{}, err)
		}
	}
}

// ScanByConversation returns every stored message id of a conversation in no
// particular order.
func (db *DB) ScanByConversation(ctx context.Context, conversationKey string) ([]int64, error) {
	if err := db.ready(); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id FROM messages WHERE conversation_key = ?`, conversationKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByKeys removes the given message ids of a conversation in one transaction.
func (db *DB) DeleteByKeys(ctx context.Context, conversationKey string, ids []int64) error {
	if err := db.ready(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteByKeysTx(ctx, tx, conversationKey, ids); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteChunk stays under SQLite's default host parameter limit.
const deleteChunk = 500

func deleteByKeysTx(ctx context.Context, tx txExecer, conversationKey string, ids []int64) error {
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		chunk := ids[start:end]
		query := `DELETE FROM messages WHERE conversation_key = ? AND id IN (?` + strings.Repeat(",?", len(chunk)-1) + `)`
		args := make([]any, 0, len(chunk)+1)
		args = append(args, conversationKey)
		for _, id := range chunk {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
	}
	return nil
}

// CountMessages returns the number of stored rows for a conversation.
func (db *DB) CountMessages(ctx context.Context, conversationKey string) (int, error) {
	if err := db.ready(); err != nil {
		return 0, err
	}
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_key = ?`, conversationKey).Scan(&n)
	return n, err
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	if err := db.ready(); err != nil {
		return 0, err
	}
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
