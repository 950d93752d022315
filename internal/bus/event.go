package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds. Subscribers filter by the namespace before the first dot.
const (
	KindPushStatus          = "push.status_changed"
	KindPushSignal          = "push.signal"
	KindConversationOpened  = "conversation.opened"
	KindConversationUpdated = "conversation.updated"
	KindConversationClosed  = "conversation.closed"
	KindHistoryLoaded       = "history.loaded"
	KindOverlayRefreshed    = "overlay.refreshed"
	KindSummariesUpdated    = "summaries.updated"
	KindUnreadChanged       = "unread.changed"
	KindActionFailed        = "action.failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps a fresh id and the current time.
func NewEvent(kind string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
