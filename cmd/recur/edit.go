package main

import (
	"fmt"
	"time"

	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-recur/internal/cli"
	"github.com/Veraticus/spice-recur/internal/model"
)

func editCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a transaction, or every record of a series",
		Long: `Edit one record. With --shared the id must be a series template and the
change is applied to the template and all of its instances.

--date only moves a single record and cannot be combined with --shared.
--frequency and the other rule flags rewrite the rule stored on a template;
existing instances keep their dates.`,
		Args: cobra.ExactArgs(1),
		RunE: runEdit,
	}

	cmd.Flags().Bool("shared", false, "apply the change to the whole series")
	cmd.Flags().String("title", "", "new title")
	cmd.Flags().String("amount", "", "new amount")
	cmd.Flags().String("type", "", "new type (income or expense)")
	cmd.Flags().String("category", "", "new category")
	cmd.Flags().String("description", "", "new description")
	cmd.Flags().String("account", "", "new account id; clears the card")
	cmd.Flags().String("card", "", "new card id; clears the account")
	cmd.Flags().String("date", "", "new date YYYY-MM-DD (single record only)")
	addRuleFlags(cmd)

	return cmd
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	id := args[0]
	shared, _ := cmd.Flags().GetBool("shared")

	patch, err := patchFromFlags(cmd)
	if err != nil {
		return err
	}
	// The manager pins the start to the template's own date.
	rule, err := ruleFromFlags(cmd, time.Now())
	if err != nil {
		return err
	}
	if patch.IsEmpty() && rule == nil {
		return fmt.Errorf("nothing to change: pass at least one field flag")
	}

	mgr, store, err := initManager(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	if !patch.IsEmpty() {
		if shared {
			n, err := mgr.EditShared(ctx, id, patch)
			if err != nil {
				return fmt.Errorf("failed to edit series: %w", err)
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Updated series %s and %d instances", id, n)))
		} else {
			if err := mgr.EditSingle(ctx, id, patch); err != nil {
				return fmt.Errorf("failed to edit transaction: %w", err)
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Updated transaction %s", id)))
		}
	}

	if rule != nil {
		if err := mgr.UpdateRuleMetadata(ctx, id, *rule); err != nil {
			return fmt.Errorf("failed to update rule: %w", err)
		}
		fmt.Fprintln(out, cli.FormatWarning("Rule updated; existing instances were not regenerated"))
	}
	return nil
}

// patchFromFlags maps every explicitly set field flag onto a patch.
func patchFromFlags(cmd *cobra.Command) (model.Patch, error) {
	var patch model.Patch
	flags := cmd.Flags()

	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		patch.Title = mo.Some(v)
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		patch.Description = mo.Some(v)
	}
	if flags.Changed("category") {
		v, _ := flags.GetString("category")
		patch.Category = mo.Some(v)
	}
	if flags.Changed("amount") {
		v, _ := flags.GetString("amount")
		amount, err := parseAmount(v)
		if err != nil {
			return model.Patch{}, err
		}
		patch.Amount = mo.Some(amount)
	}
	if flags.Changed("type") {
		v, _ := flags.GetString("type")
		typ, err := parseType(v)
		if err != nil {
			return model.Patch{}, err
		}
		patch.Type = mo.Some(typ)
	}
	if flags.Changed("account") || flags.Changed("card") {
		patch.Funding = mo.Some(fundingFromFlags(cmd))
	}
	if flags.Changed("date") {
		d, err := dateFlag(cmd, "date")
		if err != nil {
			return model.Patch{}, err
		}
		patch.Date = mo.Some(d)
	}

	return patch, nil
}
