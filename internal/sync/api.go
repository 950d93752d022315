package sync

import (
	"context"
	"io"

	"github.com/matheus3301/pmsync/internal/blog"
	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/store"
)

// MessageAPI is the message side of the blog backend.
type MessageAPI interface {
	overlay.Source
	ConversationPage(ctx context.Context, otherID int64, page, size int) ([]store.Message, error)
	SendText(ctx context.Context, otherID int64, text string) (store.Message, error)
	SendMedia(ctx context.Context, otherID int64, typ store.MessageType, mediaURL, text string) (store.Message, error)
	MarkRead(ctx context.Context, otherID int64) error
	UnreadTotal(ctx context.Context) (int64, error)
}

// DirectoryAPI provides the identities the sidebar is built from.
type DirectoryAPI interface {
	Friends(ctx context.Context) ([]blog.Friend, error)
	Conversations(ctx context.Context) ([]blog.ConversationEntry, error)
	Profile(ctx context.Context, userID int64) (blog.Profile, error)
}

// StreamAPI opens the server-push event streams.
type StreamAPI interface {
	ConversationStream(ctx context.Context, otherID int64) (io.ReadCloser, error)
	GlobalStream(ctx context.Context) (io.ReadCloser, error)
}

// API is everything the engine consumes. *blog.Client implements it.
type API interface {
	MessageAPI
	DirectoryAPI
	StreamAPI
}

var _ API = (*blog.Client)(nil)
