package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-recur/internal/cli"
)

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction or a whole series",
		Long: `Delete one record, or with --series a template and all of its instances.

Deleting only a template leaves its instances in place; they can still be
removed later with --series.`,
		Args: cobra.ExactArgs(1),
		RunE: runDelete,
	}

	cmd.Flags().Bool("series", false, "delete the template and every instance")
	cmd.Flags().BoolP("force", "f", false, "Skip confirmation prompt")

	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	id := args[0]
	wholeSeries, _ := cmd.Flags().GetBool("series")
	force, _ := cmd.Flags().GetBool("force")

	mgr, store, err := initManager(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	if !force {
		prompt := fmt.Sprintf("Delete transaction %s?", id)
		if wholeSeries {
			prompt = fmt.Sprintf("Delete series %s and all of its instances?", id)
		}
		ok, err := cli.NewConfirmer(cmd.InOrStdin(), out).Confirm(ctx, prompt)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Operation canceled.")
			return nil
		}
	}

	if wholeSeries {
		n, err := mgr.DeleteSeries(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to delete series: %w", err)
		}
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted %d records of series %s", n, id)))
		return nil
	}

	if err := mgr.DeleteSingle(ctx, id); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted transaction %s", id)))
	return nil
}
