package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/pmsync/internal/bus"
	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/store"
)

// ActionFailure is the payload of action.failed. It is meant to be shown to
// the user and dismissed.
type ActionFailure struct {
	OtherID int64  `json:"otherId"`
	Action  string `json:"action"`
	Error   string `json:"error"`
}

func (e *Engine) actionFailed(c *conversation, action string, err error) error {
	e.logger.Error("action failed",
		zap.String("action", action),
		zap.Int64("other", c.otherID),
		zap.Error(err),
	)
	e.bus.Emit(bus.KindActionFailed, ActionFailure{OtherID: c.otherID, Action: action, Error: err.Error()})
	return err
}

// Send sends a text message. The message is listed immediately as pending
// and replaced by the server's copy once accepted. On failure the pending
// entry stays until the next authoritative page replaces it.
func (e *Engine) Send(ctx context.Context, text string) (store.Message, error) {
	if text == "" {
		return store.Message{}, errors.New("send: empty message")
	}
	return e.send(ctx, "send", store.TypeText, "", text,
		func(ctx context.Context, c *conversation) (store.Message, error) {
			return e.api.SendText(ctx, c.otherID, text)
		})
}

// SendMedia sends an image or video by URL with an optional caption.
func (e *Engine) SendMedia(ctx context.Context, typ store.MessageType, mediaURL, text string) (store.Message, error) {
	if typ != store.TypeImage && typ != store.TypeVideo {
		return store.Message{}, fmt.Errorf("send media: unsupported type %q", typ)
	}
	if mediaURL == "" {
		return store.Message{}, errors.New("send media: missing url")
	}
	return e.send(ctx, "send_media", typ, mediaURL, text,
		func(ctx context.Context, c *conversation) (store.Message, error) {
			return e.api.SendMedia(ctx, c.otherID, typ, mediaURL, text)
		})
}

func (e *Engine) send(ctx context.Context, action string, typ store.MessageType, mediaURL, text string,
	call func(context.Context, *conversation) (store.Message, error)) (store.Message, error) {
	c, err := e.active()
	if err != nil {
		return store.Message{}, err
	}

	pending := store.Message{
		ConversationKey: c.key,
		SenderID:        e.opts.OwnerID,
		ReceiverID:      c.otherID,
		CreatedAt:       e.opts.Now().UnixMilli(),
		Text:            text,
		MediaURL:        mediaURL,
		Type:            typ,
		ClientID:        uuid.NewString(),
		Pending:         true,
	}
	c.mergeIn([]store.Message{pending})
	e.emitUpdated(c, "pending")

	sent, err := call(ctx, c)
	if err != nil {
		c.markFailed(pending.ClientID)
		return store.Message{}, e.actionFailed(c, action, err)
	}
	if sent.SenderID == 0 {
		sent.SenderID = e.opts.OwnerID
	}
	if sent.ReceiverID == 0 {
		sent.ReceiverID = c.otherID
	}
	if sent.CreatedAt == 0 {
		sent.CreatedAt = pending.CreatedAt
	}
	if sent.Type == "" {
		sent.Type = typ
	}
	sent.ConversationKey = c.key

	// The server copy belongs to c's conversation even after a switch.
	e.cache.CacheMessages(ctx, e.opts.OwnerID, c.otherID, []store.Message{sent})
	if e.stale(c) {
		return sent, nil
	}
	c.confirm(pending.ClientID, sent)
	e.emitUpdated(c, "sent")
	e.refreshOverlay(ctx, c)
	return sent, nil
}

// MarkRead marks the open conversation read on the server.
func (e *Engine) MarkRead(ctx context.Context) error {
	c, err := e.active()
	if err != nil {
		return err
	}
	if err := e.api.MarkRead(ctx, c.otherID); err != nil {
		return e.actionFailed(c, "mark_read", err)
	}
	e.refreshUnread(ctx)
	return nil
}

// markRead is the implicit variant run on open and on push; failures are
// transport noise, not user actions.
func (e *Engine) markRead(ctx context.Context, c *conversation) {
	if err := e.api.MarkRead(ctx, c.otherID); err != nil {
		e.logger.Warn("mark read failed", zap.Int64("other", c.otherID), zap.Error(err))
		return
	}
	e.refreshUnread(ctx)
}

func (e *Engine) loadedMessage(c *conversation, id int64) (store.Message, error) {
	m, ok := c.find(id)
	if !ok {
		return store.Message{}, fmt.Errorf("message %d is not loaded", id)
	}
	return m, nil
}

// CanRecall reports whether the recall action should be offered for id.
func (e *Engine) CanRecall(id int64) bool {
	c := e.current()
	if c == nil {
		return false
	}
	m, ok := c.find(id)
	return ok && c.overlay.CanRecall(m)
}

// Recall recalls one of the user's own recent messages.
func (e *Engine) Recall(ctx context.Context, id int64) error {
	c, err := e.active()
	if err != nil {
		return err
	}
	m, err := e.loadedMessage(c, id)
	if err != nil {
		return err
	}
	if err := c.overlay.Recall(ctx, m); err != nil {
		if errors.Is(err, overlay.ErrRecallNotAllowed) {
			return err
		}
		return e.actionFailed(c, "recall", err)
	}
	e.emitUpdated(c, "recalled")
	return nil
}

// Delete deletes a message; it disappears from the list once the server
// accepts the request.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	c, err := e.active()
	if err != nil {
		return err
	}
	if err := c.overlay.Delete(ctx, id); err != nil {
		return e.actionFailed(c, "delete", err)
	}
	e.emitUpdated(c, "deleted")
	return nil
}

// ReEdit returns the original text of a recalled own message.
func (e *Engine) ReEdit(id int64) (string, error) {
	c, err := e.active()
	if err != nil {
		return "", err
	}
	m, err := e.loadedMessage(c, id)
	if err != nil {
		return "", err
	}
	text, ok := c.overlay.ReEditText(m)
	if !ok {
		return "", fmt.Errorf("message %d cannot be re-edited", id)
	}
	return text, nil
}
