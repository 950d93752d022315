package blog

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"
)

// ConversationStream opens the server-sent event stream of one conversation.
func (c *Client) ConversationStream(ctx context.Context, otherID int64) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(c.userID, 10))
	q.Set("_", strconv.FormatInt(time.Now().UnixMilli(), 10))
	return c.openStream(ctx, idPath("/messages/subscribe/%s", otherID), q)
}

// GlobalStream opens the per-user notification stream.
func (c *Client) GlobalStream(ctx context.Context) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("token", c.token)
	return c.openStream(ctx, "/friends/subscribe", q)
}

func (c *Client) openStream(ctx context.Context, path string, query url.Values) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, "GET", path, query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		_ = resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Message: "stream rejected"}
	}
	return resp.Body, nil
}
