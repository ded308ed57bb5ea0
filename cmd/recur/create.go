package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-recur/internal/cli"
	"github.com/Veraticus/spice-recur/internal/common"
	"github.com/Veraticus/spice-recur/internal/model"
)

func createCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a transaction or a recurring series",
		Long: `Create a single transaction, or with --frequency a recurring series.

A series is stored as one parent template dated on --date plus one instance
per generated date. If any instance cannot be stored, nothing is kept.`,
		Example: `  recur create --title Rent --amount 1200 --category Housing --account checking \
    --frequency monthly --count 12 --date 2024-01-31`,
		RunE: runCreate,
	}

	cmd.Flags().String("title", "", "transaction title")
	cmd.Flags().String("amount", "", "amount, e.g. 42.50")
	cmd.Flags().String("type", string(model.TypeExpense), "income or expense")
	cmd.Flags().String("category", "", "category")
	cmd.Flags().String("description", "", "free-form description")
	cmd.Flags().String("account", "", "account id (exclusive with --card)")
	cmd.Flags().String("card", "", "card id (exclusive with --account)")
	cmd.Flags().String("date", "", "transaction or series start date YYYY-MM-DD (default: today)")
	addRuleFlags(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runCreate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	draft, rule, err := draftFromFlags(cmd)
	if err != nil {
		return err
	}

	mgr, store, err := initManager(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	result, err := mgr.Create(ctx, draft, rule)
	if err != nil {
		var partial *common.PartialSeriesFailure
		if errors.As(err, &partial) && !partial.RolledBack() {
			return common.NewUserError(
				fmt.Sprintf("series %s was only partly stored; remove it with `recur delete %s --series`", partial.ParentID, partial.ParentID),
				err)
		}
		return fmt.Errorf("failed to create: %w", err)
	}

	if !result.IsSeries() {
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created transaction %s", result.Transaction.ID)))
		return nil
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created series %s with %d instances", result.Transaction.ID, len(result.Children))))
	fmt.Fprintln(out, cli.FormatInfo(result.Summary.String()))
	return nil
}

// draftFromFlags reads the record fields and the optional recurrence rule.
func draftFromFlags(cmd *cobra.Command) (model.Transaction, *model.RecurrenceRule, error) {
	title, _ := cmd.Flags().GetString("title")
	amountFlag, _ := cmd.Flags().GetString("amount")
	typeFlag, _ := cmd.Flags().GetString("type")
	category, _ := cmd.Flags().GetString("category")
	description, _ := cmd.Flags().GetString("description")

	amount, err := parseAmount(amountFlag)
	if err != nil {
		return model.Transaction{}, nil, err
	}
	typ, err := parseType(typeFlag)
	if err != nil {
		return model.Transaction{}, nil, err
	}
	date, err := dateFlag(cmd, "date")
	if err != nil {
		return model.Transaction{}, nil, err
	}

	funding := fundingFromFlags(cmd)
	draft := model.Transaction{
		Title:       title,
		Description: description,
		Category:    category,
		Amount:      amount,
		Type:        typ,
		Date:        date,
		AccountID:   funding.AccountID,
		CardID:      funding.CardID,
	}

	rule, err := ruleFromFlags(cmd, date)
	if err != nil {
		return model.Transaction{}, nil, err
	}
	return draft, rule, nil
}
