package store

import "context"

// SearchScope narrows a search. ConversationKey selects one conversation;
// otherwise KeyPrefix, when set, selects every conversation whose key starts
// with it. The zero value searches everything.
type SearchScope struct {
	ConversationKey string
	KeyPrefix       string
}

// SearchMessages runs a full-text query over cached message text within
// scope. Newest matches come first.
func (db *DB) SearchMessages(ctx context.Context, query string, scope SearchScope, limit int) ([]SearchResult, error) {
	if err := db.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.conversation_key, m.id, m.sender_id, m.receiver_id, m.created_at, m.text, m.media_url, m.type,
		       m.sender_nickname, m.sender_avatar_url, m.receiver_nickname, m.receiver_avatar_url,
		       snippet(messages_fts, '<<', '>>', '...', -1, 12)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.docid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	switch {
	case scope.ConversationKey != "":
		q += " AND m.conversation_key = ?"
		args = append(args, scope.ConversationKey)
	case scope.KeyPrefix != "":
		q += " AND m.conversation_key LIKE ? || '%'"
		args = append(args, scope.KeyPrefix)
	}
	q += " ORDER BY m.created_at DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var typ string
		if err := rows.Scan(
			&r.Message.ConversationKey, &r.Message.ID, &r.Message.SenderID, &r.Message.ReceiverID,
			&r.Message.CreatedAt, &r.Message.Text, &r.Message.MediaURL, &typ,
			&r.Message.SenderNickname, &r.Message.SenderAvatarURL,
			&r.Message.ReceiverNickname, &r.Message.ReceiverAvatarURL,
			&r.Snippet,
		); err != nil {
			return nil, err
		}
		r.Message.Type = ParseMessageType(typ)
		results = append(results, r)
	}
	return results, rows.Err()
}
