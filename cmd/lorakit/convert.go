package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lorakit/internal/checkpoint"
	"github.com/samcharles93/lorakit/internal/export"
	"github.com/samcharles93/lorakit/internal/logger"
	"github.com/samcharles93/lorakit/internal/lora"
)

func convertCmd() *cli.Command {
	var (
		output        string
		alpha         float64
		strengthModel float64
		strengthClip  float64
		dtype         string
	)

	return &cli.Command{
		Name:      "convert",
		Usage:     "Rewrite an adapter into canonical diffusion-model keys",
		ArgsUsage: "[file or name]",
		Flags: append(loadFlags(&alpha),
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output .safetensors path (default: <input>.canonical.safetensors)",
				Destination: &output,
			},
			&cli.Float64Flag{
				Name:        "strength-model",
				Usage:       "diffusion model strength recorded in the output",
				Value:       1,
				Destination: &strengthModel,
			},
			&cli.Float64Flag{
				Name:        "strength-clip",
				Usage:       "text encoder strength recorded in the output",
				Value:       1,
				Destination: &strengthClip,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "convert weights to F32, F16 or BF16 (default: keep)",
				Destination: &dtype,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyLoadConfig(cmd, appConfig, &alpha, &strengthModel, &strengthClip, &dtype)

			dtype = strings.ToUpper(strings.TrimSpace(dtype))
			switch dtype {
			case "", "F32", "F16", "BF16":
			default:
				return cli.Exit(fmt.Sprintf("error: unsupported --dtype %q", dtype), 1)
			}

			in, err := resolveLoraPath(cmd.Args().First(), lorasDir(), os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			out, err := resolveConvertOut(in, output)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			p := &lora.Pipeline{Source: checkpoint.Files{Log: log}, Log: log}
			w := &export.Writer{DType: dtype, Log: log}
			req := lora.Request{
				Path:          in,
				Alpha:         alpha,
				StrengthModel: strengthModel,
				StrengthClip:  strengthClip,
			}
			model, _, rep, err := lora.Apply(ctx, p, w, export.Target{Path: out}, export.Target{}, req)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			switch {
			case rep == nil:
				fmt.Println("both strengths are zero; nothing written")
			case !model.Applied:
				return cli.Exit(fmt.Sprintf("error: %v", rep.Err()), 1)
			default:
				fmt.Printf("wrote %s (%d tensors, alpha %g from %s)\n", out, len(rep.Output), rep.Alpha.Value, rep.Alpha.Source)
			}
			return nil
		},
	}
}
