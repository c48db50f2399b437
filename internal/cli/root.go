package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the budgetview command tree with dependencies taken from
// the environment and configuration.
func NewRootCmd(version string) *cobra.Command {
	return NewRootCmdWithEnv(version, &Env{})
}

// NewRootCmdWithEnv creates the root command with explicit dependencies for
// testability.
func NewRootCmdWithEnv(version string, env *Env) *cobra.Command {
	a := newApp(env)

	cmd := &cobra.Command{
		Use:          "budgetview",
		Short:        "Firefly III budgets in the terminal, also when the server is down",
		Long:         "budgetview reads accounts, budgets and transactions from a Firefly III server and keeps a local copy to show when the server cannot be reached.",
		Version:      version,
		Example:      rootCmdExample,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.setupLogger(slog.LevelWarn, cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&a.offline, "offline", false, "read only from the local cache")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&a.json, "json", false, "print JSON instead of tables")

	cmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newAccountsCmd(a),
		newTransactionsCmd(a),
		newBudgetsCmd(a),
		newBudgetLimitsCmd(a),
		newPiggyBanksCmd(a),
		newRecurringCmd(a),
		newExpensesCmd(a),
		newOverviewCmd(a),
		newSyncCmd(a),
		newCacheCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// runE wraps a command body so the store is released on every exit path.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}
}

const rootCmdExample = `  # Log in with a personal access token
  budgetview login --server https://firefly.example.com --token $FIREFLY_TOKEN

  # Balances of all accounts
  budgetview accounts

  # Withdrawals in May
  budgetview transactions --start 2024-05-01 --end 2024-05-31 --type withdrawal

  # Budget usage for the current month, from the cache only
  budgetview overview --offline

  # Refresh the local cache
  budgetview sync

  # Serve the JSON dashboard API
  budgetview serve`
