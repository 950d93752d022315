package sync

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/pmsync/internal/push"
)

// MessageSignalType marks a global event announcing a new private message.
const MessageSignalType = "PRIVATE_MESSAGE"

type globalPayload struct {
	Type     string          `json:"type"`
	SenderID json.RawMessage `json:"senderId"`
}

// parseGlobal extracts the sender of a private-message event. ok is false
// for other event types and for heartbeats.
func parseGlobal(data string) (senderID int64, ok bool) {
	if data == "" {
		return 0, false
	}
	var p globalPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return 0, false
	}
	if p.Type != MessageSignalType {
		return 0, false
	}
	n, err := json.Number(strings.Trim(string(p.SenderID), `"`)).Int64()
	if err != nil {
		return 0, true
	}
	return n, true
}

// handleConversationSignal runs for every event on the open conversation's
// channel, including fallback polls. The channel is scoped to c, so every
// signal concerns it: refresh the overlay and fetch what is new.
func (e *Engine) handleConversationSignal(ctx context.Context, c *conversation, ev push.Event) {
	if e.stale(c) {
		return
	}
	e.refreshOverlay(ctx, c)
	if _, err := e.fetchLatest(ctx, c); err != nil {
		return
	}
	if c.isViewing() && ev.Name != push.PollEvent {
		e.markRead(ctx, c)
	}
}

// handleGlobalSignal runs for every event on the global channel. It never
// fetches messages; the open conversation has its own channel for that.
func (e *Engine) handleGlobalSignal(ctx context.Context, ev push.Event) {
	sender, isMessage := parseGlobal(ev.Data)
	if !isMessage && ev.Name != push.PollEvent {
		return
	}
	e.reconcile(ctx)

	c := e.current()
	if c != nil && sender != 0 && sender == c.otherID {
		if c.isViewing() {
			e.markRead(ctx, c)
			return
		}
		e.refreshOverlay(ctx, c)
	}
	e.refreshUnread(ctx)
	e.logger.Debug("global signal handled", zap.Int64("sender", sender), zap.String("event", ev.Name))
}
