package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the daemon's Conversations service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	req, err := encode(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp); err != nil {
		return err
	}
	return decode(resp, out)
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.invoke(ctx, "Status", nil, &out)
	return out, err
}

// ListSummaries returns the cached sidebar.
func (c *Client) ListSummaries(ctx context.Context) ([]Summary, error) {
	var out summariesResponse
	err := c.invoke(ctx, "ListSummaries", nil, &out)
	return out.Summaries, err
}

// Reconcile rebuilds the sidebar from the backend.
func (c *Client) Reconcile(ctx context.Context) ([]Summary, error) {
	var out summariesResponse
	err := c.invoke(ctx, "Reconcile", nil, &out)
	return out.Summaries, err
}

// Open switches the daemon to the conversation with otherID.
func (c *Client) Open(ctx context.Context, otherID int64) (Snapshot, error) {
	var out Snapshot
	err := c.invoke(ctx, "Open", otherRequest{OtherID: otherID}, &out)
	return out, err
}

// CloseConversation closes the open conversation.
func (c *Client) CloseConversation(ctx context.Context) error {
	return c.invoke(ctx, "Close", nil, nil)
}

// Messages returns the open conversation.
func (c *Client) Messages(ctx context.Context) (Snapshot, error) {
	var out Snapshot
	err := c.invoke(ctx, "Messages", nil, &out)
	return out, err
}

// LoadOlder fetches the next older page.
func (c *Client) LoadOlder(ctx context.Context) (LoadOlderResult, error) {
	var out LoadOlderResult
	err := c.invoke(ctx, "LoadOlder", nil, &out)
	return out, err
}

// Send sends a text message to the open conversation.
func (c *Client) Send(ctx context.Context, text string) (Message, error) {
	var out Message
	err := c.invoke(ctx, "Send", sendRequest{Text: text}, &out)
	return out, err
}

// SendMedia sends an image or video by URL.
func (c *Client) SendMedia(ctx context.Context, typ, mediaURL, text string) (Message, error) {
	var out Message
	err := c.invoke(ctx, "SendMedia", sendMediaRequest{Type: typ, MediaURL: mediaURL, Text: text}, &out)
	return out, err
}

// Recall recalls a message of the open conversation.
func (c *Client) Recall(ctx context.Context, id int64) error {
	return c.invoke(ctx, "Recall", idRequest{ID: id}, nil)
}

// Delete deletes a message of the open conversation.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.invoke(ctx, "Delete", idRequest{ID: id}, nil)
}

// ReEdit returns the original text of a recalled message.
func (c *Client) ReEdit(ctx context.Context, id int64) (string, error) {
	var out reEditResponse
	err := c.invoke(ctx, "ReEdit", idRequest{ID: id}, &out)
	return out.Text, err
}

// MarkRead marks the open conversation read.
func (c *Client) MarkRead(ctx context.Context) error {
	return c.invoke(ctx, "MarkRead", nil, nil)
}

// SetViewing tells the daemon whether the user is looking at the open
// conversation.
func (c *Client) SetViewing(ctx context.Context, viewing bool) error {
	return c.invoke(ctx, "SetViewing", viewingRequest{Viewing: viewing}, nil)
}

// Search runs a full-text query over cached messages. otherID 0 searches
// every conversation.
func (c *Client) Search(ctx context.Context, otherID int64, query string, limit int) ([]SearchHit, error) {
	var out searchResponse
	err := c.invoke(ctx, "Search", searchRequest{OtherID: otherID, Query: query, Limit: limit}, &out)
	return out.Results, err
}

// Clear drops the cached rows of one conversation.
func (c *Client) Clear(ctx context.Context, otherID int64) error {
	return c.invoke(ctx, "Clear", otherRequest{OtherID: otherID}, nil)
}

// Watch streams bus events whose kind starts with prefix to fn until ctx is
// done, the stream ends, or fn returns an error.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(Event) error) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/Watch")
	if err != nil {
		return err
	}
	req, err := encode(watchRequest{Prefix: prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var ev Event
		if err := decode(msg, &ev); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
