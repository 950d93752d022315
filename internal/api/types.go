package api

import (
	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/store"
	intsync "github.com/matheus3301/pmsync/internal/sync"
)

// Message is one rendered message.
type Message struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"senderId"`
	ReceiverID  int64  `json:"receiverId"`
	CreatedAt   int64  `json:"createdAt"`
	Text        string `json:"text"`
	MediaURL    string `json:"mediaUrl,omitempty"`
	Type        string `json:"type"`
	ClientID    string `json:"clientId,omitempty"`
	Pending     bool   `json:"pending,omitempty"`
	Recalled    bool   `json:"recalled,omitempty"`
	DisplayText string `json:"displayText"`
	Stub        bool   `json:"stub,omitempty"`
	CanRecall   bool   `json:"canRecall,omitempty"`
}

// Snapshot is the open conversation as the UI renders it.
type Snapshot struct {
	OtherID  int64     `json:"otherId"`
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
	Loading  bool      `json:"loading"`
	Viewing  bool      `json:"viewing"`
	Push     string    `json:"push"`
}

// Summary is one sidebar entry.
type Summary struct {
	OtherID     int64  `json:"otherId"`
	Nickname    string `json:"nickname"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	LastMessage string `json:"lastMessage,omitempty"`
	LastAt      int64  `json:"lastAt"`
	UnreadCount int    `json:"unreadCount"`
}

// Status describes the daemon.
type Status struct {
	Profile          string `json:"profile"`
	OwnerID          int64  `json:"ownerId"`
	OpenOtherID      int64  `json:"openOtherId,omitempty"`
	GlobalPush       string `json:"globalPush"`
	ConversationPush string `json:"conversationPush"`
	Unread           int64  `json:"unread"`
	CacheAvailable   bool   `json:"cacheAvailable"`
	CachedMessages   int64  `json:"cachedMessages"`
}

// SearchHit is one full-text match over cached messages.
type SearchHit struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}

// Event is one bus event forwarded to watchers.
type Event struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

type otherRequest struct {
	OtherID int64 `json:"otherId"`
}

type idRequest struct {
	ID int64 `json:"id"`
}

type sendRequest struct {
	Text string `json:"text"`
}

type sendMediaRequest struct {
	Type     string `json:"type"`
	MediaURL string `json:"mediaUrl"`
	Text     string `json:"text"`
}

type viewingRequest struct {
	Viewing bool `json:"viewing"`
}

type searchRequest struct {
	OtherID int64  `json:"otherId"`
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
}

type watchRequest struct {
	Prefix string `json:"prefix"`
}

type summariesResponse struct {
	Summaries []Summary `json:"summaries"`
}

type searchResponse struct {
	Results []SearchHit `json:"results"`
}

// LoadOlderResult reports one older-page fetch.
type LoadOlderResult struct {
	Added   int  `json:"added"`
	HasMore bool `json:"hasMore"`
}

type reEditResponse struct {
	Text string `json:"text"`
}

func messageFromStore(m store.Message) Message {
	return Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		CreatedAt:   m.CreatedAt,
		Text:        m.Text,
		MediaURL:    m.MediaURL,
		Type:        string(m.Type),
		ClientID:    m.ClientID,
		Pending:     m.Pending,
		DisplayText: m.Text,
	}
}

func messageFromItem(it overlay.Item, canRecall func(int64) bool) Message {
	m := messageFromStore(it.Message)
	m.Recalled = it.Recalled
	m.DisplayText = it.DisplayText
	m.Stub = it.Stub
	if m.ID != 0 && !it.Stub && canRecall != nil {
		m.CanRecall = canRecall(m.ID)
	}
	return m
}

func snapshotFromEngine(s intsync.Snapshot, canRecall func(int64) bool) Snapshot {
	out := Snapshot{
		OtherID:  s.OtherID,
		Messages: make([]Message, 0, len(s.Items)),
		HasMore:  s.HasMore,
		Loading:  s.Loading,
		Viewing:  s.Viewing,
		Push:     string(s.Push),
	}
	for _, it := range s.Items {
		out.Messages = append(out.Messages, messageFromItem(it, canRecall))
	}
	return out
}

func summariesFromStore(list []store.ConversationSummary) []Summary {
	out := make([]Summary, 0, len(list))
	for _, s := range list {
		out = append(out, Summary{
			OtherID:     s.OtherID,
			Nickname:    s.Nickname,
			AvatarURL:   s.AvatarURL,
			LastMessage: s.LastMessage,
			LastAt:      s.LastAt,
			UnreadCount: s.UnreadCount,
		})
	}
	return out
}
