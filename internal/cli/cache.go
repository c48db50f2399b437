package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	var dates rangeFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch everything kept offline and record the sync time",
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
			report, err := svc.Refresh(cmd.Context(), r)
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			if a.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"entities": report.Entities,
					"start":    report.Range.StartDate(),
					"end":      report.Range.EndDate(),
					"syncedAt": report.SyncedAt.UTC(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d collections for %s\n", len(report.Entities), report.Range)
			return nil
		}),
	}
	dates.register(cmd)
	return cmd
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local cache",
	}
	cmd.AddCommand(newCacheStatusCmd(a), newCacheClearCmd(a))
	return cmd
}

func newCacheStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List cached entries and when they were synced",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			stack, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := stack.Cache.Status(cmd.Context(), a.env.Config.CacheMaxAge)
			if err != nil {
				return fmt.Errorf("cache status: %w", err)
			}
			lastSync, synced := stack.Cache.LastSync(cmd.Context())

			w := cmd.OutOrStdout()
			if a.json {
				out := map[string]any{"entries": entries, "lastSync": nil}
				if synced {
					out["lastSync"] = lastSync.UTC()
				}
				return writeJSON(w, out)
			}

			st := newStyles(w)
			now := a.now()
			if synced {
				fmt.Fprintf(w, "Last full sync: %s\n\n", humanize.RelTime(lastSync, now, "ago", "from now"))
			} else {
				fmt.Fprint(w, "Last full sync: never\n\n")
			}
			if len(entries) == 0 {
				fmt.Fprintln(w, "Cache is empty")
				return nil
			}

			t := newTable(w, st, "KEY", "SYNCED", "STALE", "READABLE")
			for _, e := range entries {
				when := "unknown"
				if !e.LastSynced.IsZero() {
					when = humanize.RelTime(e.LastSynced, now, "ago", "from now")
				}
				stale := yesNo(e.Stale)
				if e.Stale {
					stale = st.warning.Render(stale)
				}
				t.row(e.Key, when, stale, yesNo(e.Readable))
			}
			return t.flush()
		}),
	}
}

func newCacheClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry, keeping the login",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			stack, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := stack.Cache.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		}),
	}
}
