package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lorakit/internal/checkpoint"
	"github.com/samcharles93/lorakit/internal/logger"
	"github.com/samcharles93/lorakit/internal/lora"
)

func inspectCmd() *cli.Command {
	var (
		alpha   float64
		asJSON  bool
		showAll bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show how an adapter resolves and translates",
		ArgsUsage: "[file or name]",
		Flags: append(loadFlags(&alpha),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the report as JSON",
				Destination: &asJSON,
			},
			&cli.BoolFlag{
				Name:        "keys",
				Usage:       "list every canonical key",
				Destination: &showAll,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyLoadConfig(cmd, appConfig, &alpha, nil, nil, nil)

			path, err := resolveLoraPath(cmd.Args().First(), lorasDir(), os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log := logger.FromContext(ctx)
			p := &lora.Pipeline{Source: checkpoint.Files{Log: log}, Log: log}
			req := lora.Request{Path: path, Alpha: alpha}
			if err := req.Validate(); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			rep, err := p.Prepare(ctx, req)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if asJSON {
				return writeReportJSON(os.Stdout, rep)
			}
			renderReport(os.Stdout, rep, showAll)
			return nil
		},
	}
}

type reportView struct {
	*lora.Report
	Format        string      `json:"format"`
	CanonicalKeys []string    `json:"canonical_keys"`
	Pairs         []lora.Pair `json:"pairs"`
	Empty         bool        `json:"empty"`
}

func writeReportJSON(w io.Writer, rep *lora.Report) error {
	view := reportView{
		Report:        rep,
		Format:        checkpoint.DetectFormat(rep.Path).String(),
		CanonicalKeys: rep.Output.Keys(),
		Pairs:         rep.Pairs(),
		Empty:         rep.Empty(),
	}
	if view.CanonicalKeys == nil {
		view.CanonicalKeys = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func renderReport(w io.Writer, rep *lora.Report, showKeys bool) {
	_, _ = fmt.Fprintf(w, "File:     %s\n", rep.Path)
	_, _ = fmt.Fprintf(w, "Format:   %s\n", checkpoint.DetectFormat(rep.Path))
	_, _ = fmt.Fprintf(w, "Dialect:  %s\n", rep.Dialect)
	alpha := fmt.Sprintf("%g (%s)", rep.Alpha.Value, rep.Alpha.Source)
	if rep.Alpha.Detail != "" {
		alpha = fmt.Sprintf("%g (%s: %s)", rep.Alpha.Value, rep.Alpha.Source, rep.Alpha.Detail)
	}
	_, _ = fmt.Fprintf(w, "Alpha:    %s\n", alpha)
	_, _ = fmt.Fprintf(w, "Keys:     %d raw, %d canonical\n\n", rep.RawKeys, len(rep.Output))

	if rep.Empty() {
		_, _ = fmt.Fprintln(w, "warning: key conversion produced no adapter keys; the adapter would not be applied")
		return
	}

	var data [][]string
	for _, p := range rep.Pairs() {
		rank := "-"
		if p.Rank > 0 {
			rank = strconv.Itoa(p.Rank)
		}
		data = append(data, []string{p.Path, rank, mark(p.Down), mark(p.Up), mark(p.Alpha)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"MODULE", "RANK", "DOWN", "UP", "ALPHA"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")
	table.AppendBulk(data)
	table.Render()

	if showKeys {
		_, _ = fmt.Fprintln(w)
		for _, k := range rep.Output.Keys() {
			_, _ = fmt.Fprintln(w, k)
		}
	}
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
