package sync

import (
	"context"
	gosync "sync"

	"github.com/matheus3301/pmsync/internal/history"
	"github.com/matheus3301/pmsync/internal/merge"
	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/push"
	"github.com/matheus3301/pmsync/internal/store"
)

// conversation is the in-memory session of the open conversation. It is
// rebuilt from the cache and live fetches on every switch and never reused.
type conversation struct {
	otherID int64
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	loader  *history.Loader
	overlay *overlay.Overlay

	mu       gosync.Mutex
	messages []store.Message
	failed   map[string]struct{}
	viewing  bool
	channel  *push.Channel
}

// bind derives a context that ends with either parent or the conversation.
func (c *conversation) bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *conversation) closed() bool {
	return c.ctx.Err() != nil
}

func (c *conversation) snapshot() []store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *conversation) loaded() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// mergeIn folds msgs into the list and returns how many entries were new.
func (c *conversation) mergeIn(msgs []store.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.messages)
	c.messages = merge.Merge(c.messages, msgs)
	return len(c.messages) - before
}

func (c *conversation) confirm(clientID string, m store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = merge.Confirm(c.messages, clientID, m)
	delete(c.failed, clientID)
}

func (c *conversation) markFailed(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[clientID] = struct{}{}
}

// dropFailed removes optimistic entries whose send failed. Called right before
// an authoritative page is merged, which carries the message if the server
// stored it after all.
func (c *conversation) dropFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.failed) == 0 {
		return
	}
	kept := c.messages[:0]
	for _, m := range c.messages {
		if _, ok := c.failed[m.ClientID]; m.Pending && ok {
			continue
		}
		kept = append(kept, m)
	}
	c.messages = kept
	clear(c.failed)
}

func (c *conversation) find(id int64) (store.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return store.Message{}, false
}

func (c *conversation) setViewing(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewing = v
}

func (c *conversation) isViewing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewing
}

func (c *conversation) setChannel(ch *push.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channel = ch
}

func (c *conversation) pushChannel() *push.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// close cancels every fetch bound to the conversation and tears its push
// channel down. Once it returns no handler of this conversation runs again.
func (c *conversation) close() {
	c.cancel()
	if ch := c.pushChannel(); ch != nil {
		ch.Close()
	}
}
