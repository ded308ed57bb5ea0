package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-recur/internal/cli"
	"github.com/Veraticus/spice-recur/internal/config"
	"github.com/Veraticus/spice-recur/internal/model"
	"github.com/Veraticus/spice-recur/internal/series"
	"github.com/Veraticus/spice-recur/internal/storage"
)

// initStorage opens the configured database and runs migrations.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath, storage.WithBusyRetries(cfg.BusyRetries))
	if err != nil {
		return nil, nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, cfg, nil
}

// initManager opens storage and wraps it in a series manager.
func initManager(ctx context.Context) (*series.Manager, *storage.SQLiteStorage, error) {
	store, cfg, err := initStorage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return series.NewManager(store, series.WithDefaultUserID(cfg.UserID)), store, nil
}

func closeStorage(store *storage.SQLiteStorage) {
	if closeErr := store.Close(); closeErr != nil {
		slog.Error("failed to close storage", "error", closeErr)
	}
}

// addRuleFlags registers the recurrence flags shared by preview and create.
func addRuleFlags(cmd *cobra.Command) {
	cmd.Flags().String("frequency", "", "daily, weekly, biweekly, monthly, quarterly, semiannual, yearly or custom")
	cmd.Flags().Int("interval", 1, "repeat every N periods")
	cmd.Flags().Int("count", 0, fmt.Sprintf("number of generated occurrences (1-%d)", model.MaxRepetitions))
	cmd.Flags().Int("custom-days", 0, "period length in days for the custom frequency")
}

// ruleFromFlags builds the recurrence rule anchored on start. It returns nil
// when no --frequency was given.
func ruleFromFlags(cmd *cobra.Command, start time.Time) (*model.RecurrenceRule, error) {
	freqFlag, _ := cmd.Flags().GetString("frequency")
	if freqFlag == "" {
		return nil, nil
	}

	freq, err := model.ParseFrequency(freqFlag)
	if err != nil {
		return nil, err
	}
	interval, _ := cmd.Flags().GetInt("interval")
	count, _ := cmd.Flags().GetInt("count")
	customDays, _ := cmd.Flags().GetInt("custom-days")

	rule, err := model.NewRecurrenceRule(model.RuleParams{
		Frequency:  freq,
		Interval:   interval,
		Count:      count,
		CustomDays: customDays,
		StartDate:  start,
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// dateFlag parses a YYYY-MM-DD flag, defaulting to today when it is unset.
func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return model.DateOf(time.Now()), nil
	}
	d, err := model.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return d, nil
}

// fundingFromFlags reads --account and --card. An empty value clears the reference.
func fundingFromFlags(cmd *cobra.Command) model.Funding {
	var f model.Funding
	if v, _ := cmd.Flags().GetString("account"); v != "" {
		f.AccountID = &v
	}
	if v, _ := cmd.Flags().GetString("card"); v != "" {
		f.CardID = &v
	}
	return f
}

func parseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}

func parseType(value string) (model.TransactionType, error) {
	typ := model.TransactionType(strings.ToLower(strings.TrimSpace(value)))
	if !typ.IsValid() {
		return "", fmt.Errorf("invalid type %q: expected income or expense", value)
	}
	return typ, nil
}

// printTransactions renders records as a table.
func printTransactions(w io.Writer, txns []model.Transaction) {
	rows := make([][]string, 0, len(txns))
	for _, t := range txns {
		kind := "single"
		switch {
		case t.IsParentTemplate:
			kind = "template"
		case t.IsChild():
			kind = "instance"
		}
		rows = append(rows, []string{
			t.Date.Format(model.DateLayout),
			t.ID,
			t.Title,
			formatAmount(t),
			t.Category,
			kind,
		})
	}
	fmt.Fprintln(w, cli.RenderTable([]string{"DATE", "ID", "TITLE", "AMOUNT", "CATEGORY", "KIND"}, rows))
}

func formatAmount(t model.Transaction) string {
	if t.Type == model.TypeExpense {
		return "-" + t.Amount.StringFixed(2)
	}
	return t.Amount.StringFixed(2)
}
