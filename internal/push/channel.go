// Package push keeps a server-push subscription open and falls back to
// fixed-interval polling when the stream cannot be opened or breaks.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/pmsync/internal/bus"
	"github.com/matheus3301/pmsync/internal/status"
)

// DefaultPollInterval is the fallback polling period.
const DefaultPollInterval = 5 * time.Second

// Dialer opens the event stream.
type Dialer func(ctx context.Context) (io.ReadCloser, error)

// Handler receives every event, stream or poll. ctx is cancelled when the
// channel closes.
type Handler func(ctx context.Context, ev Event)

// Config describes one channel.
type Config struct {
	// Name identifies the channel in logs and status events.
	Name         string
	Dial         Dialer
	Handle       Handler
	PollInterval time.Duration
	Bus          *bus.Bus
	Logger       *zap.Logger
}

// Channel is a running subscription. Once Close returns, Handle is never
// called again.
type Channel struct {
	cfg     Config
	machine *status.Machine
	log     *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Start opens the subscription in the background.
func Start(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.Dial == nil || cfg.Handle == nil {
		return nil, fmt.Errorf("push channel %q: dial and handle are required", cfg.Name)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		cfg:     cfg,
		machine: status.NewMachine(cfg.Bus, cfg.Name),
		log:     log.With(zap.String("channel", cfg.Name)),
		cancel:  cancel,
	}
	c.wg.Add(1)
	go c.run(ctx)
	return c, nil
}

// State returns the channel's current state.
func (c *Channel) State() status.State {
	return c.machine.Current()
}

// Close tears the subscription and any poll timer down and waits for an
// in-flight handler to return. It must not be called from inside Handle.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.transition(status.Closed)
	})
}

func (c *Channel) transition(to status.State) {
	if err := c.machine.Transition(to); err != nil {
		c.log.Debug("push state unchanged", zap.Error(err))
	}
}

func (c *Channel) deliver(ctx context.Context, ev Event) {
	if ctx.Err() != nil {
		return
	}
	c.cfg.Bus.Emit(bus.KindPushSignal, Signal{Channel: c.cfg.Name, Event: ev})
	c.cfg.Handle(ctx, ev)
}

// Signal is the bus payload for every delivered event.
type Signal struct {
	Channel string
	Event   Event
}

func (c *Channel) run(ctx context.Context) {
	defer c.wg.Done()

	c.transition(status.Connecting)
	body, err := c.cfg.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("push stream unavailable, polling", zap.Error(err))
		c.poll(ctx)
		return
	}

	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	c.transition(status.Live)
	c.log.Info("push stream connected")

	err = readEvents(body, func(ev Event) { c.deliver(ctx, ev) })
	stop()
	_ = body.Close()
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("stream ended")
	}
	c.log.Warn("push stream lost, polling", zap.Error(err))
	c.poll(ctx)
}

func (c *Channel) poll(ctx context.Context) {
	c.transition(status.Polling)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.deliver(ctx, Event{Name: PollEvent})
		}
	}
}
