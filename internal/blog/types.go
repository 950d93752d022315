package blog

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/store"
)

// Friend is one entry of the friends list.
type Friend struct {
	ID        int64
	Nickname  string
	AvatarURL string
}

// ConversationEntry is one entry of the conversations-with-last-message list.
type ConversationEntry struct {
	OtherID     int64
	Nickname    string
	AvatarURL   string
	LastMessage string
	LastAt      int64
	UnreadCount int
}

// Profile is the public profile of a user.
type Profile struct {
	UserID    int64
	Nickname  string
	AvatarURL string
}

// flexInt accepts a JSON number, a numeric string or null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil {
			// Malformed ids and counters decode as zero rather than failing the page.
			*f = 0
			return nil
		}
		n = int64(fl)
	}
	*f = flexInt(n)
	return nil
}

// flexTime accepts any createdAt shape and normalizes it to milliseconds.
type flexTime int64

func (t *flexTime) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		*t = 0
		return nil
	}
	*t = flexTime(store.NormalizeTimestamp(v))
	return nil
}

type wireMessage struct {
	ID                flexInt  `json:"id"`
	SenderID          flexInt  `json:"senderId"`
	ReceiverID        flexInt  `json:"receiverId"`
	CreatedAt         flexTime `json:"createdAt"`
	Text              *string  `json:"text"`
	MediaURL          *string  `json:"mediaUrl"`
	Type              string   `json:"type"`
	SenderNickname    string   `json:"senderNickname"`
	SenderAvatarURL   string   `json:"senderAvatarUrl"`
	ReceiverNickname  string   `json:"receiverNickname"`
	ReceiverAvatarURL string   `json:"receiverAvatarUrl"`
}

func (w wireMessage) message() store.Message {
	m := store.Message{
		ID:                int64(w.ID),
		SenderID:          int64(w.SenderID),
		ReceiverID:        int64(w.ReceiverID),
		CreatedAt:         int64(w.CreatedAt),
		Type:              store.ParseMessageType(w.Type),
		SenderNickname:    w.SenderNickname,
		SenderAvatarURL:   w.SenderAvatarURL,
		ReceiverNickname:  w.ReceiverNickname,
		ReceiverAvatarURL: w.ReceiverAvatarURL,
	}
	if w.Text != nil {
		m.Text = *w.Text
	}
	if w.MediaURL != nil {
		m.MediaURL = *w.MediaURL
	}
	return m
}

type wireViewRecord struct {
	ID          flexInt  `json:"id"`
	SenderID    flexInt  `json:"senderId"`
	ReceiverID  flexInt  `json:"receiverId"`
	CreatedAt   flexTime `json:"createdAt"`
	Recalled    bool     `json:"recalled"`
	DisplayText *string  `json:"displayText"`
	Text        *string  `json:"text"`
}

func (w wireViewRecord) record() overlay.ViewRecord {
	r := overlay.ViewRecord{
		ID:         int64(w.ID),
		SenderID:   int64(w.SenderID),
		ReceiverID: int64(w.ReceiverID),
		CreatedAt:  int64(w.CreatedAt),
		Recalled:   w.Recalled,
	}
	switch {
	case w.DisplayText != nil:
		r.DisplayText = *w.DisplayText
	case w.Text != nil:
		r.DisplayText = *w.Text
	}
	return r
}

type wireFriend struct {
	ID        flexInt `json:"id"`
	UserID    flexInt `json:"userId"`
	Nickname  string  `json:"nickname"`
	Username  string  `json:"username"`
	AvatarURL string  `json:"avatarUrl"`
}

func (w wireFriend) friend() Friend {
	f := Friend{ID: int64(w.ID), Nickname: w.Nickname, AvatarURL: w.AvatarURL}
	if f.ID == 0 {
		f.ID = int64(w.UserID)
	}
	if f.Nickname == "" {
		f.Nickname = w.Username
	}
	return f
}

type wireConversation struct {
	OtherID     flexInt  `json:"otherId"`
	ID          flexInt  `json:"id"`
	Nickname    string   `json:"nickname"`
	AvatarURL   string   `json:"avatarUrl"`
	LastMessage string   `json:"lastMessage"`
	LastAt      flexTime `json:"lastAt"`
	UnreadCount flexInt  `json:"unreadCount"`
}

func (w wireConversation) entry() ConversationEntry {
	e := ConversationEntry{
		OtherID:     int64(w.OtherID),
		Nickname:    w.Nickname,
		AvatarURL:   w.AvatarURL,
		LastMessage: w.LastMessage,
		LastAt:      int64(w.LastAt),
		UnreadCount: int(w.UnreadCount),
	}
	if e.OtherID == 0 {
		e.OtherID = int64(w.ID)
	}
	return e
}

// listOf decodes either a bare JSON array or an object carrying the array
// under one of the common pagination keys.
func listOf[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []T
		err := json.Unmarshal(raw, &out)
		return out, err
	}
	var page struct {
		List    []T `json:"list"`
		Records []T `json:"records"`
		Rows    []T `json:"rows"`
		Content []T `json:"content"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, err
	}
	switch {
	case page.List != nil:
		return page.List, nil
	case page.Records != nil:
		return page.Records, nil
	case page.Rows != nil:
		return page.Rows, nil
	default:
		return page.Content, nil
	}
}
