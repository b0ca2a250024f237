package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lorakit/internal/version"
)

func versionCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "version",
		Usage: "Print lorakit build information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print build information as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(info)
			}
			fmt.Printf("lorakit %s\n", info.Version)
			if info.Commit != "" {
				fmt.Printf("  commit: %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				fmt.Printf("  built:  %s\n", info.BuildTime)
			}
			return nil
		},
	}
}
