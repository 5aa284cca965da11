package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var hostname string
var contentType = "application/json"

func main() {
	app := cli.NewApp()
	app.Name = "medic"
	app.Usage = "watch docker compose services and remediate the failing ones"
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "run the health monitor daemon",
			Action: run,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Value:   "/etc/medic/medic.yaml",
					Usage:   "YAML configuration file; missing files fall back to defaults",
					EnvVars: []string{"MEDIC_CONFIG"},
				},
				&cli.StringSliceFlag{
					Name:  "env-file",
					Value: cli.NewStringSlice(".env"),
					Usage: "dotenv files loaded before the configuration",
				},
			},
		},
		{
			Name:   "check",
			Usage:  "run a check cycle immediately",
			Action: check,
		},
		{
			Name:    "services",
			Aliases: []string{"ls"},
			Usage:   "show the status of the last check cycle",
			Action:  services,
		},
		{
			Name:   "events",
			Usage:  "list recent remediation events",
			Action: events,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "service",
					Usage: "only show events of this service",
				},
				&cli.IntFlag{
					Name:  "limit",
					Value: 20,
				},
			},
		},
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "host",
			Value:       "http://127.0.0.1:8480",
			Usage:       "medic control api to connect to",
			Destination: &hostname,
			EnvVars:     []string{"MEDIC_URL"},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func errorf(m string, args ...interface{}) error {
	return cli.Exit(fmt.Sprintf(m, args...), 1)
}
