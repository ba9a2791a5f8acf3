package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zhubert/eagleray-sideband/config"
)

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Show the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "# %s\n%s", cfg.FilePath(), data)
		return nil
	},
	Subcommands: []*cli.Command{{
		Name:  "init",
		Usage: "Write the default configuration file if none exists",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.FilePath()); err == nil {
				return fmt.Errorf("%s already exists", cfg.FilePath())
			}
			def := config.Default()
			def.SetFilePath(cfg.FilePath())
			if err := def.Save(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "wrote %s\n", cfg.FilePath())
			return nil
		},
	}},
}
