package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-recur/internal/cli"
	"github.com/Veraticus/spice-recur/internal/export"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <parent-id>",
		Short: "Export a series as an iCalendar file",
		Long: `Export a series as a VCALENDAR with one all-day event per stored record.

Instances are exported as individual events related to the template, so
calendar clients show exactly what is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}

	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	output, _ := cmd.Flags().GetString("output")

	mgr, store, err := initManager(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	s, err := mgr.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load series: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	if err := export.WriteSeries(w, s, time.Now()); err != nil {
		return err
	}

	if output != "" {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Exported %d events to %s", len(s.Children)+1, output)))
	}
	return nil
}
