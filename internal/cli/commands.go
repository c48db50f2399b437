package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"budgetview/internal/core"
	"budgetview/internal/dashboard"
	"budgetview/internal/firefly"
)

// rangeFlags are the --start/--end flags shared by range-based commands.
type rangeFlags struct {
	start string
	end   string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "first day, YYYY-MM-DD (default: first day of this month)")
	cmd.Flags().StringVar(&f.end, "end", "", "last day, YYYY-MM-DD (default: last day of this month)")
}

func (f rangeFlags) given() bool {
	return f.start != "" || f.end != ""
}

func (f rangeFlags) parse(a *app) (core.DateRange, error) {
	r, err := core.ParseDateRange(f.start, f.end, a.now())
	if err != nil {
		return core.DateRange{}, fmt.Errorf("--start/--end: %w", err)
	}
	return r, nil
}

func newAccountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts with their current balance",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Accounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("load accounts: %w", err)
			}
			return printResult(cmd.OutOrStdout(), a, res, renderAccounts)
		}),
	}
}

func newTransactionsCmd(a *app) *cobra.Command {
	var (
		dates rangeFlags
		typ   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List transactions",
		Long:  "List transactions. Without --start/--end every transaction is listed; only the unfiltered listing is kept for offline use.",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return errors.New("--limit must not be negative")
			}
			f := firefly.TransactionFilter{
				Type:  strings.ToLower(strings.TrimSpace(typ)),
				Limit: limit,
			}
			if dates.given() {
				r, err := dates.parse(a)
				if err != nil {
					return err
				}
				f.Start, f.End = r.Start, r.End
			}

			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Transactions(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("load transactions: %w", err)
			}
			return printResult(cmd.OutOrStdout(), a, res, renderTransactions)
		}),
	}

	dates.register(cmd)
	cmd.Flags().StringVar(&typ, "type", "", "withdrawal, deposit or transfer")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many transactions")
	return cmd
}

func newBudgetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "budgets",
		Short: "List budgets",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Budgets(cmd.Context())
			if err != nil {
				return fmt.Errorf("load budgets: %w", err)
			}
			return printResult(cmd.OutOrStdout(), a, res, renderBudgets)
		}),
	}
}

func newBudgetLimitsCmd(a *app) *cobra.Command {
	var dates rangeFlags

	cmd := &cobra.Command{
		Use:   "budget-limits",
		Short: "List budget limits and what was spent against them",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			r, err := dates.parse(a)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.BudgetLimits(cmd.Context(), r)
			if err != nil {
				return fmt.Errorf("load budget limits: %w", err)
			}
			return printResult(cmd.OutOrStdout(), a, res, renderBudgetLimits)
		}),
	}
	dates.register(cmd)
	return cmd
}

func newPiggyBanksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "piggy-banks",
		Short: "List piggy banks and their progress",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.PiggyBanks(cmd.Context())
			if err != nil {
				return fmt.Errorf("load piggy banks: %w", err)
			}
			return printResult(cmd.OutOrStdout(), a, res, renderPiggyBanks)
		}),
	}
}

func newRecurringCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "recurring",
		Aliases: []string{"recurrences"},
		Short:   "List recurring transactions",
		Args:    cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Recurrences(cmd.Context())
			if err != nil {
				return fmt.Errorf("load recurring transactions: %w", err)
			}
			return printResult(cmd.OutOrStdout(), a, res, renderRecurrences)
		}),
	}
}

func newExpensesCmd(a *app) *cobra.Command {
	var dates rangeFlags

	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "Show expenses per asset account",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			r, err := dates.parse(a)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.ExpensesByRange(cmd.Context(), r)
			if err != nil {
				return fmt.Errorf("load expenses: %w", err)
			}
			return printResult(cmd.OutOrStdout(), a, res, renderExpenses)
		}),
	}
	dates.register(cmd)
	return cmd
}

func newOverviewCmd(a *app) *cobra.Command {
	var dates rangeFlags

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Net worth, spending and budget usage at a glance",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			r, err := dates.parse(a)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Overview(cmd.Context(), r)
			if err != nil {
				return fmt.Errorf("load overview: %w", err)
			}
			return printResult(cmd.OutOrStdout(), a, res, renderOverview)
		}),
	}
	dates.register(cmd)
	return cmd
}

func renderOverview(w io.Writer, st styles, o dashboard.Overview) error {
	fmt.Fprintf(w, "Overview %s\n\n", o.Range)
	if err := renderTotals(w, st, "Net worth", o.NetWorth); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := renderTotals(w, st, "Spent", o.TotalExpenses); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return renderBudgetUsage(w, st, o.Budgets)
}
