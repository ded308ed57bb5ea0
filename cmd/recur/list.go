package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-recur/internal/cli"
	"github.com/Veraticus/spice-recur/internal/model"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the series templates of the configured user",
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, cfg, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	templates, err := store.ListTemplates(ctx, cfg.UserID)
	if err != nil {
		return fmt.Errorf("failed to list series: %w", err)
	}

	if len(templates) == 0 {
		fmt.Fprintln(out, cli.InfoStyle.Render("No series found. Use 'recur create --frequency ...' to create one."))
		return nil
	}

	rows := make([][]string, 0, len(templates))
	for _, t := range templates {
		rule, _ := t.Recurrence()
		rows = append(rows, []string{t.ID, t.Title, formatAmount(t), rule.String(), nextDate(t)})
	}
	fmt.Fprintln(out, cli.RenderTable([]string{"ID", "TITLE", "AMOUNT", "RULE", "NEXT"}, rows))
	return nil
}

func nextDate(t model.Transaction) string {
	if t.NextRecurrenceDate == nil {
		return "-"
	}
	return t.NextRecurrenceDate.Format(model.DateLayout)
}
