package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lorakit/internal/api"
	"github.com/samcharles93/lorakit/internal/checkpoint"
	"github.com/samcharles93/lorakit/internal/config"
	"github.com/samcharles93/lorakit/internal/logger"
	"github.com/samcharles93/lorakit/internal/lora"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		keep        int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the inspection API over the LoRA directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8189",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "keep",
				Usage:       "number of inspections kept for retrieval",
				Value:       api.DefaultStoreCapacity,
				Destination: &keep,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, appConfig, &addr)

			dir := lorasDir()
			if dir == "" {
				return cli.Exit(fmt.Sprintf("error: --loras-path is required unless %s is set", config.EnvLorasDir), 1)
			}

			server := api.NewServer(api.ServerConfig{
				LorasDir: dir,
				Pipeline: &lora.Pipeline{Source: checkpoint.Files{Log: log}, Log: log},
				Store:    api.NewInspectionStore(int(keep)),
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "loras", dir)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
