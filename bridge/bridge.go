// Package bridge implements the notification sink registered with the
// channel object. OnInvoke runs on whatever thread the service library
// chooses; it reads parameter 0 of the invocation, copies its text out and
// forwards it to the command queue. Nothing it does may block for long or
// unwind back into the service library.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/zhubert/eagleray-sideband/events"
	"github.com/zhubert/eagleray-sideband/logger"
	"github.com/zhubert/eagleray-sideband/metrics"
	"github.com/zhubert/eagleray-sideband/vdp"
)

// Forwarder is the producer end of the command queue.
type Forwarder interface {
	Send(arg string) error
}

// FatalFunc is called for conditions the process cannot recover from.
type FatalFunc func(err error)

// ExitOnFatal logs err and exits the process.
func ExitOnFatal(log *slog.Logger) FatalFunc {
	return func(err error) {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// UserContextConfig holds the fields of a UserContext.
type UserContextConfig struct {
	Epoch    string
	Forward  Forwarder
	Contexts vdp.ContextInterface
	Variants vdp.VariantInterface

	// ObjectState reports the state of the epoch's channel object. Optional.
	ObjectState func() (vdp.ObjectState, bool)
}

// UserContext is the per-epoch record handed to the service library as the
// channel object's user data. It is never modified after construction, so
// any number of callbacks may read it at once.
type UserContext struct {
	epoch       string
	forward     Forwarder
	contexts    vdp.ContextInterface
	variants    vdp.VariantInterface
	objectState func() (vdp.ObjectState, bool)
}

// NewUserContext builds a UserContext. Forward, Contexts and Variants are required.
func NewUserContext(cfg UserContextConfig) (*UserContext, error) {
	if cfg.Forward == nil || cfg.Contexts == nil || cfg.Variants == nil {
		return nil, errors.New("user context requires a forwarder, a context interface and a variant interface")
	}
	return &UserContext{
		epoch:       cfg.Epoch,
		forward:     cfg.Forward,
		contexts:    cfg.Contexts,
		variants:    cfg.Variants,
		objectState: cfg.ObjectState,
	}, nil
}

// Epoch returns the connection epoch the context belongs to.
func (u *UserContext) Epoch() string {
	return u.epoch
}

// Options configures a Sink. The zero value is usable.
type Options struct {
	Events  events.Sink
	Metrics *metrics.Metrics
}

// Sink implements vdp.NotifySink.
type Sink struct {
	log   *slog.Logger
	fatal FatalFunc
	opts  Options
}

var _ vdp.NotifySink = (*Sink)(nil)

// NewSink creates a Sink. fatal is called when an argument cannot be
// forwarded because the command queue is gone.
func NewSink(log *slog.Logger, fatal FatalFunc, opts Options) *Sink {
	if fatal == nil {
		fatal = ExitOnFatal(log)
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	return &Sink{log: log, fatal: fatal, opts: opts}
}

// OnInvoke handles one host invocation.
func (s *Sink) OnInvoke(userData any, ictx vdp.InvocationContext) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("invocation panicked", "panic", r)
			s.opts.Metrics.Invocation(metrics.InvocationDropped)
		}
	}()

	uc, ok := userData.(*UserContext)
	if !ok || uc == nil {
		s.log.Error("invocation without user context", "userData", fmt.Sprintf("%T", userData))
		s.opts.Metrics.Invocation(metrics.InvocationDropped)
		return
	}
	log := s.log.With(logger.EpochKey, uc.epoch)

	command := uc.contexts.Command(ictx)
	params := uc.contexts.ParamCount(ictx)
	log.Debug("invocation", "command", command, "params", params)

	g := &variantGuard{variants: uc.variants, log: log, metrics: s.opts.Metrics}
	defer g.release()

	if err := uc.contexts.Param(ictx, 0, &g.v); err != nil {
		log.Warn("failed to read parameter 0", "command", command, "error", err)
		s.opts.Metrics.Invocation(metrics.InvocationDropped)
		return
	}
	arg, err := g.v.Text()
	if err != nil {
		log.Warn("parameter 0 is not text", "command", command, "type", g.v.Type.String())
		s.opts.Metrics.Invocation(metrics.InvocationDropped)
		return
	}

	if err := uc.forward.Send(arg); err != nil {
		s.opts.Metrics.Invocation(metrics.InvocationDropped)
		s.fatal(fmt.Errorf("forward invocation argument: %w", err))
		return
	}
	s.opts.Metrics.Invocation(metrics.InvocationForwarded)
	events.Emitf(s.opts.Events, events.KindInvocation, uc.epoch, "Invoke: %s", arg)
}

// OnObjectStateChanged reports the new object state.
func (s *Sink) OnObjectStateChanged(userData any) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("object state callback panicked", "panic", r)
		}
	}()

	uc, _ := userData.(*UserContext)
	if uc == nil {
		s.log.Warn("object state changed without user context")
		return
	}
	if uc.objectState == nil {
		s.log.Info("object state changed", logger.EpochKey, uc.epoch)
		events.Emitf(s.opts.Events, events.KindObjectState, uc.epoch, "Object state changed")
		return
	}
	state, ok := uc.objectState()
	if !ok {
		s.log.Info("object state changed", logger.EpochKey, uc.epoch, "state", "no object")
		return
	}
	s.log.Info("object state changed", logger.EpochKey, uc.epoch, "state", state.String())
	events.Emitf(s.opts.Events, events.KindObjectState, uc.epoch, "Object state = %s", state)
}

// variantGuard owns one variant for the duration of a callback and clears
// it exactly once.
type variantGuard struct {
	v        vdp.Variant
	variants vdp.VariantInterface
	log      *slog.Logger
	metrics  *metrics.Metrics
	released bool
}

func (g *variantGuard) release() {
	if g.released {
		return
	}
	g.released = true
	if err := g.variants.Clear(&g.v); err != nil {
		g.log.Warn("failed to clear variant", "error", err)
		g.metrics.VariantReleased(false)
		return
	}
	g.metrics.VariantReleased(true)
}
