package blog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/store"
)

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, strconv.FormatInt(id, 10))
}

// ConversationPage fetches one page of the conversation with otherID. Page 0
// holds the newest messages. The result is in server order.
func (c *Client) ConversationPage(ctx context.Context, otherID int64, page, size int) ([]store.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var raw json.RawMessage
	if err := c.do(ctx, "GET", idPath("/messages/conversation/%s", otherID), q, nil, &raw); err != nil {
		return nil, err
	}
	wire, err := listOf[wireMessage](raw)
	if err != nil {
		return nil, fmt.Errorf("decode conversation page: %w", err)
	}
	out := make([]store.Message, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.message())
	}
	return out, nil
}

// SendText sends a text message and returns the created message.
func (c *Client) SendText(ctx context.Context, otherID int64, text string) (store.Message, error) {
	body := map[string]any{"receiverId": otherID, "content": text}
	var w wireMessage
	if err := c.do(ctx, "POST", "/messages", nil, body, &w); err != nil {
		return store.Message{}, err
	}
	return w.message(), nil
}

// SendMedia sends an image or video message by URL.
func (c *Client) SendMedia(ctx context.Context, otherID int64, typ store.MessageType, mediaURL, text string) (store.Message, error) {
	body := map[string]any{"type": string(typ), "mediaUrl": mediaURL, "text": text}
	var w wireMessage
	if err := c.do(ctx, "POST", idPath("/messages/media/%s", otherID), nil, body, &w); err != nil {
		return store.Message{}, err
	}
	return w.message(), nil
}

// MarkRead marks every message from otherID as read. It is idempotent.
func (c *Client) MarkRead(ctx context.Context, otherID int64) error {
	return c.do(ctx, "POST", idPath("/messages/conversation/%s/read", otherID), nil, nil, nil)
}

// ViewPageSize is how many of the newest rows one view refresh reads.
const ViewPageSize = 500

// ViewRecords fetches the recall/visibility view of a conversation: the
// newest ViewPageSize rows of the conversation endpoint, read as view
// records. Both {records: [...]} and {list: [...]} shapes are accepted.
func (c *Client) ViewRecords(ctx context.Context, otherID int64) ([]overlay.ViewRecord, error) {
	q := url.Values{}
	q.Set("page", "0")
	q.Set("size", strconv.Itoa(ViewPageSize))

	var raw json.RawMessage
	if err := c.do(ctx, "GET", idPath("/messages/conversation/%s", otherID), q, nil, &raw); err != nil {
		return nil, err
	}
	wire, err := listOf[wireViewRecord](raw)
	if err != nil {
		return nil, fmt.Errorf("decode view records: %w", err)
	}
	out := make([]overlay.ViewRecord, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.record())
	}
	return out, nil
}

// Recall recalls a message the current user sent.
func (c *Client) Recall(ctx context.Context, messageID int64) error {
	return c.do(ctx, "POST", "/messages/recall", nil, map[string]any{"id": messageID}, nil)
}

// Delete deletes a message from the current user's view.
func (c *Client) Delete(ctx context.Context, messageID int64) error {
	return c.do(ctx, "POST", "/messages/delete", nil, map[string]any{"id": messageID}, nil)
}

// UnreadTotal returns the number of unread private messages across all
// conversations.
func (c *Client) UnreadTotal(ctx context.Context) (int64, error) {
	var n flexInt
	if err := c.do(ctx, "GET", "/messages/unread/total", nil, nil, &n); err != nil {
		return 0, err
	}
	return int64(n), nil
}
