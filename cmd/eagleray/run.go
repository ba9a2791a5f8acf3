package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zhubert/eagleray-sideband/bridge"
	"github.com/zhubert/eagleray-sideband/config"
	"github.com/zhubert/eagleray-sideband/dispatch"
	"github.com/zhubert/eagleray-sideband/endpoint"
	"github.com/zhubert/eagleray-sideband/events"
	"github.com/zhubert/eagleray-sideband/logger"
	"github.com/zhubert/eagleray-sideband/metrics"
	"github.com/zhubert/eagleray-sideband/simhost"
	"github.com/zhubert/eagleray-sideband/trigger"
	"github.com/zhubert/eagleray-sideband/vdp"
	"github.com/zhubert/eagleray-sideband/vdpservice"
)

const (
	simulateFlag       = "simulate"
	metricsAddressFlag = "metrics-address"
	eventsSocketFlag   = "events-socket"
	triggerModeFlag    = "trigger-mode"
	quietFlag          = "quiet"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Connect to the host and forward input commands until interrupted",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  simulateFlag,
			Usage: "use an in-process simulated host; each stdin line is delivered as an invocation, an empty line toggles the connection",
		},
		&cli.StringFlag{
			Name:  metricsAddressFlag,
			Usage: "serve Prometheus metrics on this address (overrides metrics.address)",
		},
		&cli.StringFlag{
			Name:      eventsSocketFlag,
			Usage:     "unix socket for status events (overrides events.socket)",
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:  triggerModeFlag,
			Usage: "one of library, command or log (overrides trigger.mode)",
		},
		&cli.BoolFlag{
			Name:    quietFlag,
			Aliases: []string{"q"},
			Usage:   "do not print status events to stdout",
		},
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet(metricsAddressFlag) {
		cfg.Metrics.Address = c.String(metricsAddressFlag)
	}
	if c.IsSet(eventsSocketFlag) {
		cfg.Events.Socket = c.String(eventsSocketFlag)
	}
	if c.IsSet(triggerModeFlag) {
		cfg.Trigger.Mode = c.String(triggerModeFlag)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	defer logger.Close()
	log := logger.Get()

	trig, err := newTrigger(cfg, logger.WithComponent("trigger"))
	if err != nil {
		return err
	}

	rcv := &receiver{
		cfg:     cfg,
		log:     log,
		trigger: trig,
		fatal:   bridge.ExitOnFatal(logger.WithComponent("bridge")),
	}
	if !c.Bool(quietFlag) {
		rcv.console = c.App.Writer
	}

	if c.Bool(simulateFlag) {
		host := simhost.New(simhost.WithLogger(logger.WithComponent("simhost")))
		rcv.binding = host
		rcv.sim = host
		rcv.input = os.Stdin
	} else {
		svc, err := vdpservice.Open(cfg.ServiceLibrary, logger.WithComponent("vdpservice"))
		if err != nil {
			return err
		}
		rcv.binding = svc
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rcv.run(ctx)
}

// newTrigger builds the trigger selected by cfg.Trigger.Mode.
func newTrigger(cfg *config.Config, log *slog.Logger) (trigger.Trigger, error) {
	switch cfg.Trigger.Mode {
	case config.TriggerLibrary:
		lib, err := trigger.OpenLibrary(cfg.Trigger.Library, log)
		if err != nil {
			return nil, err
		}
		return lib, nil
	case config.TriggerCommand:
		return trigger.NewCommand(trigger.CommandConfig{
			Name:    cfg.Trigger.Command,
			Args:    cfg.Trigger.Args,
			Timeout: cfg.Trigger.Timeout,
		}, nil, log), nil
	case config.TriggerLog:
		return trigger.NewLog(log), nil
	default:
		return nil, fmt.Errorf("unknown trigger mode %q", cfg.Trigger.Mode)
	}
}

// receiver wires the endpoint, bridge and dispatcher together for one run.
type receiver struct {
	cfg     *config.Config
	log     *slog.Logger
	binding vdp.Binding
	trigger trigger.Trigger
	fatal   bridge.FatalFunc

	// console receives one line per status event when set.
	console io.Writer
	// extra receives every status event when set.
	extra events.Sink

	// sim and input drive simulate mode.
	sim   *simhost.Host
	input io.Reader

	// onTransition is passed to the endpoint.
	onTransition func(from, to endpoint.State)
}

func (r *receiver) run(ctx context.Context) error {
	m := metrics.New()

	sinks := []events.Sink{events.NewLogSink(r.log.With("component", "events"))}
	if r.console != nil {
		out := r.console
		sinks = append(sinks, events.SinkFunc(func(ev events.Event) {
			fmt.Fprintln(out, ev.Message)
		}))
	}
	if r.extra != nil {
		sinks = append(sinks, r.extra)
	}
	if r.cfg.Events.Socket != "" {
		srv, err := events.NewServer(r.cfg.Events.Socket, r.log)
		if err != nil {
			return err
		}
		srv.Start()
		srv.WaitReady()
		defer srv.Close()
		sinks = append(sinks, srv)
	}
	sink := events.Fanout(sinks...)
	events.Emitf(sink, events.KindBanner, "", "EagleRay Sideband Input Receiver %s", version)

	queue := dispatch.NewQueue(m)
	sender := queue.Sender()
	dispatcher := dispatch.NewDispatcher(queue, r.trigger, r.log.With("component", "dispatch"), dispatch.Options{
		Events:  sink,
		Metrics: m,
	})
	notify := bridge.NewSink(r.log.With("component", "bridge"), r.fatal, bridge.Options{
		Events:  sink,
		Metrics: m,
	})
	ep := endpoint.New(r.binding, sender, notify, r.log.With("component", "endpoint"), endpoint.Options{
		PluginName:        r.cfg.PluginName,
		ObjectName:        r.cfg.ObjectName,
		RetryInterval:     r.cfg.RetryInterval,
		InvokePollTimeout: r.cfg.InvokePollTimeout,
		Events:            sink,
		Metrics:           m,
		OnTransition:      r.onTransition,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		defer sender.Close()
		return ep.Run(gctx)
	})
	if addr := r.cfg.Metrics.Address; addr != "" {
		g.Go(func() error {
			r.log.Info("serving metrics", "address", addr)
			return m.Serve(gctx, addr)
		})
	}
	if r.sim != nil && r.input != nil {
		// Not part of the group: a blocked read on stdin must not hold up shutdown.
		go r.feed(gctx)
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		r.log.Info("shutdown complete")
		return nil
	}
	return err
}

// feed turns input lines into simulated host activity. A non-empty line is
// delivered as an invocation. An empty line drops the connection, or
// restores it if it was dropped.
func (r *receiver) feed(ctx context.Context) {
	available := true
	scanner := bufio.NewScanner(r.input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			available = !available
			r.sim.SetAvailable(available)
			if !available {
				r.sim.Disconnect()
			}
			r.log.Info("simulated host availability changed", "available", available)
			continue
		}
		if err := r.sim.InvokeText(line); err != nil {
			r.log.Warn("simulated invocation not delivered", "arg", line, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		r.log.Warn("reading simulated input", "error", err)
	}
}
