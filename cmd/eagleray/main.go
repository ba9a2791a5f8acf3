package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zhubert/eagleray-sideband/config"
	"github.com/zhubert/eagleray-sideband/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	configFlag = "config"
	debugFlag  = "debug"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "eagleray"
	app.Usage = "EagleRay sideband input receiver"
	app.Description = "Receives input commands from the remote desktop host over the " +
		"vdpService RPC channel and hands each one to the input trigger."
	app.Version = version
	app.OnUsageError = func(c *cli.Context, e error, b bool) error { return e }

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:      configFlag,
			Aliases:   []string{"c"},
			Usage:     "path to eagleray.yaml (default: the per-user config directory)",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"d"},
			Usage:   "enable debug logging",
		},
	}
	app.Commands = []*cli.Command{
		runCommand,
		statusCommand,
		doctorCommand,
		configCommand,
	}
	return app
}

// loadConfig loads the config named by --config, or the default file.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String(configFlag); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if c.Bool(debugFlag) {
		cfg.Debug = true
	}
	logger.SetDebug(cfg.Debug)
	return cfg, nil
}
