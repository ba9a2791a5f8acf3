package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zhubert/eagleray-sideband/events"
	"github.com/zhubert/eagleray-sideband/metrics"
	"github.com/zhubert/eagleray-sideband/trigger"
)

// Options configures a Dispatcher. The zero value is usable.
type Options struct {
	Events  events.Sink
	Metrics *metrics.Metrics

	// OnFired is called after each trigger call with the argument and its
	// outcome. Used by tests and the status surface.
	OnFired func(arg string, status int, err error)
}

// Dispatcher is the single consumer of a Queue.
type Dispatcher struct {
	queue   *Queue
	trigger trigger.Trigger
	log     *slog.Logger
	opts    Options
}

// NewDispatcher creates a Dispatcher that fires t for each queued argument.
func NewDispatcher(queue *Queue, t trigger.Trigger, log *slog.Logger, opts Options) *Dispatcher {
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	return &Dispatcher{
		queue:   queue,
		trigger: t,
		log:     log,
		opts:    opts,
	}
}

// Run initializes the trigger once and then fires it for every argument in
// queue order, one at a time, without retries. It returns ctx.Err() when ctx
// is done. Any other return means the queue can no longer deliver and the
// process should stop.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.trigger.About(); err != nil {
		return fmt.Errorf("initialize trigger: %w", err)
	}
	d.log.Info("dispatcher started")

	for {
		arg, err := d.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.log.Info("dispatcher stopped", "pending", d.queue.Len())
				return err
			}
			return fmt.Errorf("receive command: %w", err)
		}
		d.fire(arg)
	}
}

func (d *Dispatcher) fire(arg string) {
	start := time.Now()
	status, err := d.trigger.Fire(arg)
	took := time.Since(start)
	d.opts.Metrics.Trigger(err == nil, took)

	if err != nil {
		d.log.Error("trigger failed", "arg", arg, "error", err)
		events.Emitf(d.opts.Events, events.KindError, "", "Trigger %q failed: %v", arg, err)
	} else {
		d.log.Info("trigger fired", "arg", arg, "status", status, "took", took)
		events.Emitf(d.opts.Events, events.KindTrigger, "", "Trigger %q = %d", arg, status)
	}

	if d.opts.OnFired != nil {
		d.opts.OnFired(arg, status, err)
	}
}
