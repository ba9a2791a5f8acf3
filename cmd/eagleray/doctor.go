package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	prereq "github.com/zhubert/eagleray-sideband/cli"
	"github.com/zhubert/eagleray-sideband/logger"
)

var doctorCommand = &cli.Command{
	Name:  "doctor",
	Usage: "Check that the service library and trigger are available",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		prereqs := prereq.DefaultPrerequisites(cfg)
		fmt.Fprint(c.App.Writer, prereq.FormatCheckResults(prereq.CheckAll(prereqs)))
		return prereq.ValidateRequired(prereqs)
	},
	Subcommands: []*cli.Command{{
		Name:  "clear-logs",
		Usage: "Remove the receiver's log files",
		Action: func(c *cli.Context) error {
			logger.Close()
			n, err := logger.ClearLogs()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "removed %d log file(s)\n", n)
			return nil
		},
	}},
}
