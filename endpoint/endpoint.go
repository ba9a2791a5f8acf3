package endpoint

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/eagleray-sideband/bridge"
	"github.com/zhubert/eagleray-sideband/events"
	"github.com/zhubert/eagleray-sideband/logger"
	"github.com/zhubert/eagleray-sideband/metrics"
	"github.com/zhubert/eagleray-sideband/vdp"
)

// DefaultInvokePollTimeout is the poll timeout while waiting for invocations.
const DefaultInvokePollTimeout = 999999 * time.Millisecond

// State is the position of the endpoint in its per-epoch state machine:
//
//	Disconnected -> Connecting -> Connected -> ObjectCreated ->
//	AwaitingInvocation -> Destroying -> Disconnected
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateObjectCreated
	StateAwaitingInvocation
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateObjectCreated:
		return "ObjectCreated"
	case StateAwaitingInvocation:
		return "AwaitingInvocation"
	case StateDestroying:
		return "Destroying"
	default:
		return "Unknown"
	}
}

// Options configures an Endpoint. Zero values take the defaults.
type Options struct {
	PluginName        string
	ObjectName        string
	RetryInterval     time.Duration
	InvokePollTimeout time.Duration

	// Flags are passed to CreateChannelObject. Only vdp.ConfigDefault is
	// used today; side channel negotiation would start here.
	Flags vdp.ConfigFlags

	Events  events.Sink
	Metrics *metrics.Metrics
	Sleep   SleepFunc

	// OnTransition is called on the Run goroutine after every state change.
	OnTransition func(from, to State)
}

// waker is implemented by channels whose blocking poll can be interrupted.
type waker interface {
	Wake()
}

// Endpoint runs the connection epoch loop.
type Endpoint struct {
	negotiator *Negotiator
	forward    bridge.Forwarder
	sink       vdp.NotifySink
	log        *slog.Logger
	opts       Options

	mu    sync.Mutex
	state State
}

// New creates an Endpoint. Invocation arguments reach forward through sink,
// which receives a *bridge.UserContext as its user data.
func New(binding vdp.Binding, forward bridge.Forwarder, sink vdp.NotifySink, log *slog.Logger, opts Options) *Endpoint {
	if opts.PluginName == "" {
		opts.PluginName = vdp.PluginName
	}
	if opts.ObjectName == "" {
		opts.ObjectName = vdp.ObjectName
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.InvokePollTimeout <= 0 {
		opts.InvokePollTimeout = DefaultInvokePollTimeout
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Endpoint{
		negotiator: NewNegotiator(binding, NegotiatorOptions{
			PluginName:    opts.PluginName,
			RetryInterval: opts.RetryInterval,
			Sleep:         opts.Sleep,
			Metrics:       opts.Metrics,
		}, opts.Events, log),
		forward: forward,
		sink:    sink,
		log:     log,
		opts:    opts,
	}
}

// State returns the current state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Resolve looks up a capability table under the capability lock. Callbacks
// that need a table while invocations are awaited use it; the lock is free
// at that point, so it does not block.
func (e *Endpoint) Resolve(iid uuid.UUID) (any, error) {
	return e.negotiator.Resolve(iid)
}

func (e *Endpoint) transition(to State) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.mu.Unlock()
	if from == to {
		return
	}
	e.log.Debug("endpoint state", "from", from.String(), "to", to.String())
	if e.opts.OnTransition != nil {
		e.opts.OnTransition(from, to)
	}
}

// Run negotiates the channel, serves invocations on one channel object until
// the channel drops, tears the object down and starts again, forever. The
// service library expects every call to come from the thread that
// initialized it, so Run locks its goroutine to an OS thread.
//
// Run returns ctx.Err() once ctx is done, checked between polls. Any other
// error is a missing capability and means the deployment is broken.
func (e *Endpoint) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer e.transition(StateDisconnected)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		e.transition(StateConnecting)
		session, err := e.negotiator.Negotiate(ctx)
		if err != nil {
			if errors.Is(err, vdp.ErrInterfaceUnavailable) {
				e.log.Error("capability missing", "error", err)
				events.Emitf(e.opts.Events, events.KindError, "", "Fatal: %v", err)
			}
			return err
		}
		e.transition(StateConnected)

		if err := e.serve(ctx, session); err != nil {
			return err
		}
		e.transition(StateDisconnected)
	}
}

// serve runs one connected epoch.
func (e *Endpoint) serve(ctx context.Context, session *Session) error {
	epoch := session.EpochID()
	log := e.log.With(logger.EpochKey, epoch)

	manager := NewObjectManager(session, log, ObjectManagerOptions{
		Events:  e.opts.Events,
		Metrics: e.opts.Metrics,
	})
	userCtx, err := bridge.NewUserContext(bridge.UserContextConfig{
		Epoch:       epoch,
		Forward:     e.forward,
		Contexts:    session.Contexts,
		Variants:    session.Variants,
		ObjectState: manager.State,
	})
	if err != nil {
		return err
	}

	if _, err := manager.Create(e.opts.ObjectName, e.sink, userCtx, e.opts.Flags); err != nil {
		// The channel may have dropped in between; start a new epoch.
		return e.opts.Sleep(ctx, e.opts.RetryInterval)
	}
	e.transition(StateObjectCreated)

	e.transition(StateAwaitingInvocation)
	e.await(ctx, session)

	e.transition(StateDestroying)
	if err := manager.Destroy(); err != nil {
		log.Warn("destroy failed", "error", err)
	}
	return ctx.Err()
}

// await polls until the channel leaves the connected state or ctx is done.
func (e *Endpoint) await(ctx context.Context, session *Session) {
	channel := session.Channel
	if w, ok := channel.(waker); ok {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				w.Wake()
			case <-stop:
			}
		}()
	}

	for ctx.Err() == nil {
		channel.PollTimeout(e.opts.InvokePollTimeout)
		state := channel.ChannelState()
		e.opts.Metrics.ChannelState(int32(state))
		if state != vdp.ChannelConnected {
			e.log.Info("channel left connected state", "state", state.String())
			events.Emitf(e.opts.Events, events.KindChannelState, session.EpochID(), "Channel state = %s", state)
			return
		}
	}
}
