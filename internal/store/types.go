package store

import "strconv"

// MessageType is the payload kind of a private message.
type MessageType string

const (
	TypeText  MessageType = "TEXT"
	TypeImage MessageType = "IMAGE"
	TypeVideo MessageType = "VIDEO"
)

// ParseMessageType maps a wire value onto a MessageType, defaulting to TEXT.
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case TypeImage:
		return TypeImage
	case TypeVideo:
		return TypeVideo
	default:
		return TypeText
	}
}

// ConversationKey partitions every per-conversation row: "ownerId:otherId".
func ConversationKey(ownerID, otherID int64) string {
	return strconv.FormatInt(ownerID, 10) + ":" + strconv.FormatInt(otherID, 10)
}

// Message is one private message. ID is zero until the server assigns one.
type Message struct {
	ID                int64
	ConversationKey   string
	SenderID          int64
	ReceiverID        int64
	CreatedAt         int64 // unix milliseconds
	Text              string
	MediaURL          string
	Type              MessageType
	SenderNickname    string
	SenderAvatarURL   string
	ReceiverNickname  string
	ReceiverAvatarURL string

	// ClientID and Pending are only set on optimistic entries and are never persisted.
	ClientID string
	Pending  bool
}

// ConversationSummary is one sidebar entry.
type ConversationSummary struct {
	ConversationKey string
	OtherID         int64
	Nickname        string
	AvatarURL       string
	LastMessage     string
	LastAt          int64
	UnreadCount     int
}

// ConversationMeta is per-conversation bookkeeping.
type ConversationMeta struct {
	ConversationKey string
	Initialized     bool
	UpdatedAt       int64
}

// SearchResult holds a cached message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
