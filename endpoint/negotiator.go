package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/eagleray-sideband/events"
	"github.com/zhubert/eagleray-sideband/logger"
	"github.com/zhubert/eagleray-sideband/metrics"
	"github.com/zhubert/eagleray-sideband/vdp"
)

// DefaultRetryInterval is the pause between connect attempts.
const DefaultRetryInterval = time.Second

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NegotiatorOptions configures a Negotiator.
type NegotiatorOptions struct {
	PluginName    string
	RetryInterval time.Duration
	Sleep         SleepFunc
	Metrics       *metrics.Metrics
}

// Negotiator brings the channel to the connected state. It owns the
// capability lookup and serializes every use of it.
type Negotiator struct {
	binding vdp.Binding
	opts    NegotiatorOptions
	events  events.Sink
	log     *slog.Logger

	mu    sync.Mutex // guards query and every call made through it
	query vdp.Query
}

// NewNegotiator creates a Negotiator.
func NewNegotiator(binding vdp.Binding, opts NegotiatorOptions, sink events.Sink, log *slog.Logger) *Negotiator {
	if opts.PluginName == "" {
		opts.PluginName = vdp.PluginName
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if sink == nil {
		sink = events.Discard
	}
	return &Negotiator{
		binding: binding,
		opts:    opts,
		events:  sink,
		log:     log,
	}
}

// Negotiate runs one negotiation epoch. It initializes the service on the
// first attempt, then connects, checks the channel state, polls and sleeps
// until the channel is connected. There is no attempt limit: it returns only
// once connected, when ctx is done, or when a capability is missing, which is
// reported as vdp.ErrInterfaceUnavailable and must not be retried.
//
// The capability lock is held for the whole negotiation and released on
// return, so invocation callbacks are never blocked behind it afterwards.
func (n *Negotiator) Negotiate(ctx context.Context) (*Session, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	session := &Session{ID: uuid.New()}
	epoch := session.EpochID()
	log := n.log.With(logger.EpochKey, epoch)

	var channel vdp.ChannelInterface
	for attempt := 0; ; attempt++ {
		if channel == nil {
			query, handle, err := n.binding.Init(n.opts.PluginName)
			if err != nil {
				log.Warn("service init failed", "error", err)
				events.Emitf(n.events, events.KindError, epoch, "Init failed: %v", err)
			} else {
				n.query = query
				session.Handle = handle
				if channel, err = vdp.ResolveChannel(query); err != nil {
					return nil, err
				}
			}
		}

		if channel != nil {
			err := channel.Connect()
			n.opts.Metrics.ConnectAttempt(err == nil)
			if err != nil {
				log.Debug("connect failed", "attempt", attempt, "error", err)
			}
			events.Emitf(n.events, events.KindConnect, epoch, "Connect (%d) = %d", attempt, boolInt(err == nil))

			state := channel.ChannelState()
			n.opts.Metrics.ChannelState(int32(state))
			events.Emitf(n.events, events.KindChannelState, epoch, "Channel state = %s", state)
			if state == vdp.ChannelConnected {
				break
			}

			events.Emitf(n.events, events.KindPolling, epoch, "Polling...")
			channel.Poll()
		}

		if err := n.opts.Sleep(ctx, n.opts.RetryInterval); err != nil {
			return nil, err
		}
	}

	session.Channel = channel
	var err error
	if session.Objects, err = vdp.ResolveObjects(n.query); err != nil {
		return nil, err
	}
	if session.Contexts, err = vdp.ResolveContexts(n.query); err != nil {
		return nil, err
	}
	if session.Variants, err = vdp.ResolveVariants(n.query); err != nil {
		return nil, err
	}

	n.opts.Metrics.EpochConnected()
	log.Info("channel connected")
	return session, nil
}

// Resolve looks up a capability table while holding the capability lock.
// It is for code running outside Negotiate, such as a notification callback,
// that needs a table after the lock has been released. Negotiate holds the
// lock for its whole run, so Resolve blocks until negotiation finishes. It
// fails until the service has been initialized.
func (n *Negotiator) Resolve(iid uuid.UUID) (any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.query == nil {
		return nil, fmt.Errorf("%w: %s: service not initialized", vdp.ErrInterfaceUnavailable, vdp.InterfaceName(iid))
	}
	return n.query.QueryInterface(iid)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
