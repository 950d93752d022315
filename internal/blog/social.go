package blog

import (
	"context"
	"encoding/json"
	"fmt"
)

// Friends returns the current user's friends.
func (c *Client) Friends(ctx context.Context) ([]Friend, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "GET", "/friends/list", nil, nil, &raw); err != nil {
		return nil, err
	}
	wire, err := listOf[wireFriend](raw)
	if err != nil {
		return nil, fmt.Errorf("decode friends: %w", err)
	}
	out := make([]Friend, 0, len(wire))
	for _, w := range wire {
		if f := w.friend(); f.ID != 0 {
			out = append(out, f)
		}
	}
	return out, nil
}

// Conversations returns the current user's conversations with their last
// message and unread count.
func (c *Client) Conversations(ctx context.Context) ([]ConversationEntry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "GET", "/messages/conversation/list", nil, nil, &raw); err != nil {
		return nil, err
	}
	wire, err := listOf[wireConversation](raw)
	if err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	out := make([]ConversationEntry, 0, len(wire))
	for _, w := range wire {
		if e := w.entry(); e.OtherID != 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

// Profile looks up a user's public profile.
func (c *Client) Profile(ctx context.Context, userID int64) (Profile, error) {
	var w struct {
		Nickname  string `json:"nickname"`
		Username  string `json:"username"`
		AvatarURL string `json:"avatarUrl"`
	}
	if err := c.do(ctx, "GET", idPath("/user/profile/%s", userID), nil, nil, &w); err != nil {
		return Profile{}, err
	}
	p := Profile{UserID: userID, Nickname: w.Nickname, AvatarURL: w.AvatarURL}
	if p.Nickname == "" {
		p.Nickname = w.Username
	}
	return p, nil
}
