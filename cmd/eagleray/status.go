package main

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/urfave/cli/v2"

	"github.com/zhubert/eagleray-sideband/events"
)

const (
	socketFlag = "socket"
	countFlag  = "count"
)

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "Stream status events from a running receiver",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:      socketFlag,
			Aliases:   []string{"s"},
			Usage:     "path to the events socket (default: events.socket from the config)",
			TakesFile: true,
		},
		&cli.IntFlag{
			Name:    countFlag,
			Aliases: []string{"n"},
			Usage:   "exit after this many events (0 streams until the receiver stops)",
		},
	},
	Action: statusAction,
}

func statusAction(c *cli.Context) error {
	socket := c.String(socketFlag)
	if socket == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		socket = cfg.Events.Socket
	}
	if socket == "" {
		return errors.New("events socket is disabled in the config; pass --socket")
	}

	client, err := events.Dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	go func() {
		<-c.Context.Done()
		client.Close()
	}()

	return streamEvents(client, c.App.Writer, c.Int(countFlag))
}

type eventSource interface {
	Next() (events.Event, error)
}

// streamEvents prints events from src until it ends or limit events were
// printed. A limit of zero means no limit.
func streamEvents(src eventSource, out io.Writer, limit int) error {
	for n := 0; limit == 0 || n < limit; n++ {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		fmt.Fprintln(out, formatEvent(ev))
	}
	return nil
}

func formatEvent(ev events.Event) string {
	epoch := ev.Epoch
	if len(epoch) > 8 {
		epoch = epoch[:8]
	}
	if epoch == "" {
		epoch = "-"
	}
	return fmt.Sprintf("%s %-16s %-8s %s", ev.Time.Format("15:04:05.000"), ev.Kind, epoch, ev.Message)
}
