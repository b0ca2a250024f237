package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lorakit/internal/config"
	"github.com/samcharles93/lorakit/internal/inventory"
	"github.com/samcharles93/lorakit/internal/logger"
)

func listCmd() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List adapters in the LoRA directory",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			dir := lorasDir()
			if dir == "" {
				return cli.Exit(fmt.Sprintf("error: --loras-path is required unless %s is set", config.EnvLorasDir), 1)
			}
			entries, err := inventory.Discover(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(entries) == 0 {
				log.Info("no adapters found", "path", dir)
				return nil
			}
			renderInventory(os.Stdout, entries)
			return nil
		},
	}
}

func renderInventory(w io.Writer, entries []inventory.Entry) {
	var data [][]string
	for _, e := range entries {
		sidecar := ""
		if e.Sidecar {
			sidecar = "json"
		}
		data = append(data, []string{e.Name, e.Format, inventory.FormatSize(e.Size), sidecar})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "FORMAT", "SIZE", "SIDECAR"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
