package main

import "github.com/urfave/cli/v3"

var (
	lorasPath string
	logLevel  string
	logFormat string
	debug     bool
)

func lorasPathFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "loras-path",
		Aliases:     []string{"path"},
		Usage:       "directory containing LoRA adapters",
		Destination: &lorasPath,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// loadFlags are shared by commands that run the load pipeline.
func loadFlags(alpha *float64) []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "alpha",
			Aliases:     []string{"a"},
			Usage:       "manual alpha override (0 resolves it from the file)",
			Destination: alpha,
		},
	}
}
