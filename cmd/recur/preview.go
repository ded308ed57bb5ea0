package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-recur/internal/cli"
	"github.com/Veraticus/spice-recur/internal/model"
	"github.com/Veraticus/spice-recur/internal/recurrence"
)

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the dates a recurrence rule generates",
		Long: `Preview a recurrence rule without touching the database.

The start date belongs to the parent template; the listed dates are the
generated instances that would be stored alongside it.`,
		Example: `  recur preview --frequency monthly --count 12 --start 2024-01-31
  recur preview --frequency custom --custom-days 10 --count 5`,
		RunE: runPreview,
	}

	addRuleFlags(cmd)
	cmd.Flags().String("start", "", "start date YYYY-MM-DD (default: today)")
	cmd.Flags().Bool("rrule", false, "also print the RFC 5545 RRULE")
	_ = cmd.MarkFlagRequired("frequency")
	_ = cmd.MarkFlagRequired("count")

	return cmd
}

func runPreview(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	start, err := dateFlag(cmd, "start")
	if err != nil {
		return err
	}
	rule, err := ruleFromFlags(cmd, start)
	if err != nil {
		return err
	}

	dates, err := recurrence.Generate(*rule)
	if err != nil {
		return err
	}
	summary, err := recurrence.Summarize(*rule)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(dates)+1)
	rows = append(rows, []string{"0", start.Format(model.DateLayout), start.Weekday().String(), "template"})
	for i, d := range dates {
		rows = append(rows, []string{strconv.Itoa(i + 1), d.Format(model.DateLayout), d.Weekday().String(), ""})
	}

	fmt.Fprintln(out, cli.FormatTitle(rule.String()))
	fmt.Fprintln(out, cli.RenderTable([]string{"#", "DATE", "WEEKDAY", ""}, rows))
	fmt.Fprintln(out, cli.FormatInfo(summary.String()))

	if showRRule, _ := cmd.Flags().GetBool("rrule"); showRRule {
		value, err := recurrence.RRuleString(*rule)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "RRULE:%s\n", value)
	}

	return nil
}
