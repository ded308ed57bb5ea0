package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-recur/internal/cli"
	"github.com/Veraticus/spice-recur/internal/model"
	"github.com/Veraticus/spice-recur/internal/recurrence"
)

// now is the clock used to find the next upcoming occurrence.
var now = time.Now

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <parent-id>",
		Short: "Show a series template and its instances",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	mgr, store, err := initManager(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	s, err := mgr.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load series: %w", err)
	}

	fmt.Fprintln(out, cli.FormatTitle(s.Parent.Title))
	fmt.Fprintf(out, "Rule: %s\n", s.Rule)
	if s.Parent.RecurrenceRule != "" {
		fmt.Fprintf(out, "RRULE: %s\n", s.Parent.RecurrenceRule)
	}
	if summary, err := recurrence.Summarize(s.Rule); err == nil {
		fmt.Fprintf(out, "Span: %s\n", summary)
	}
	if next, ok, err := recurrence.NextAfter(s.Rule, now()); err == nil {
		if ok {
			fmt.Fprintf(out, "Next: %s\n", next.Format(model.DateLayout))
		} else {
			fmt.Fprintln(out, "Next: none, the series has ended")
		}
	}
	fmt.Fprintln(out)

	printTransactions(out, append([]model.Transaction{s.Parent}, s.Children...))

	if want := s.Rule.Count; len(s.Children) != want {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d of %d instances remain", len(s.Children), want)))
	}
	return nil
}
