package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"budgetview/internal/core"
	"budgetview/internal/firefly"
	"budgetview/internal/query"
)

// Table layout constants.
const (
	tableMinWidth = 0
	tableTabWidth = 4
	tablePadding  = 2
)

// styles renders output for one writer. Colors are dropped automatically
// when the writer is not a terminal.
type styles struct {
	header  lipgloss.Style
	notice  lipgloss.Style
	warning lipgloss.Style
	over    lipgloss.Style
	section lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header:  r.NewStyle().Bold(true),
		notice:  r.NewStyle().Foreground(lipgloss.Color("214")),
		warning: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		over:    r.NewStyle().Foreground(lipgloss.Color("196")),
		section: r.NewStyle().Bold(true).Underline(true),
	}
}

// table writes rows aligned in columns with a styled header line.
type table struct {
	tw *tabwriter.Writer
	st styles
}

func newTable(w io.Writer, st styles, columns ...string) *table {
	t := &table{
		tw: tabwriter.NewWriter(w, tableMinWidth, tableTabWidth, tablePadding, ' ', 0),
		st: st,
	}
	cells := make([]string, len(columns))
	for i, c := range columns {
		cells[i] = st.header.Render(c)
	}
	fmt.Fprintln(t.tw, strings.Join(cells, "\t"))
	return t
}

func (t *table) row(cells ...string) {
	fmt.Fprintln(t.tw, strings.Join(cells, "\t"))
}

func (t *table) flush() error {
	return t.tw.Flush()
}

// jsonResult is the --json shape, the same envelope the HTTP API returns.
type jsonResult struct {
	Data        any        `json:"data"`
	IsCacheData bool       `json:"isCacheData"`
	LastSynced  *time.Time `json:"lastSynced"`
	Stale       bool       `json:"stale"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult prints res as JSON or through the table function, followed by
// the cache notice when the data did not come from the server.
func printResult[T any](w io.Writer, a *app, res query.Result[T], render func(io.Writer, styles, T) error) error {
	if a.json {
		out := jsonResult{Data: res.Data, IsCacheData: res.IsCacheData, Stale: res.Stale}
		if !res.LastSynced.IsZero() {
			synced := res.LastSynced.UTC()
			out.LastSynced = &synced
		}
		return writeJSON(w, out)
	}

	st := newStyles(w)
	if err := render(w, st, res.Data); err != nil {
		return err
	}
	if res.IsCacheData {
		printCacheNotice(w, st, res.LastSynced, res.Stale, a.now())
	}
	return nil
}

// cacheNotice describes where cached data came from, e.g.
// "showing cached data (synced 3 hours ago)".
func cacheNotice(lastSynced, now time.Time) string {
	if lastSynced.IsZero() {
		return "showing cached data"
	}
	return fmt.Sprintf("showing cached data (synced %s)", humanize.RelTime(lastSynced, now, "ago", "from now"))
}

func printCacheNotice(w io.Writer, st styles, lastSynced time.Time, stale bool, now time.Time) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.notice.Render(cacheNotice(lastSynced, now)))
	if stale {
		fmt.Fprintln(w, st.warning.Render("data may be outdated"))
	}
}

// money formats a server amount, falling back to the raw text when it does
// not parse.
func money(a firefly.Amount, currencyCode string) string {
	m, err := a.Money()
	if err != nil {
		return string(a) + " " + currencyCode
	}
	return core.FormatMoney(m, currencyCode)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderAccounts(w io.Writer, st styles, accounts []firefly.Account) error {
	t := newTable(w, st, "NAME", "TYPE", "BALANCE", "ACTIVE")
	for _, acc := range accounts {
		attr := acc.Attributes
		t.row(attr.Name, attr.Type, money(attr.CurrentBalance, attr.CurrencyCode), yesNo(attr.Active))
	}
	return t.flush()
}

func renderTransactions(w io.Writer, st styles, txs []firefly.Transaction) error {
	t := newTable(w, st, "DATE", "DESCRIPTION", "TYPE", "AMOUNT", "FROM", "TO")
	for _, tx := range txs {
		for _, split := range tx.Attributes.Transactions {
			t.row(split.Date.Format(core.DateLayout),
				split.Description,
				split.Type,
				money(split.Amount, split.CurrencyCode),
				split.SourceName,
				split.DestinationName)
		}
	}
	return t.flush()
}

func renderBudgets(w io.Writer, st styles, budgets []firefly.Budget) error {
	t := newTable(w, st, "NAME", "ACTIVE")
	for _, b := range budgets {
		t.row(b.Attributes.Name, yesNo(b.Attributes.Active))
	}
	return t.flush()
}

func renderBudgetLimits(w io.Writer, st styles, limits []firefly.BudgetLimit) error {
	t := newTable(w, st, "BUDGET", "START", "END", "LIMIT", "SPENT")
	for _, l := range limits {
		attr := l.Attributes
		t.row(attr.BudgetID,
			attr.Start.Format(core.DateLayout),
			attr.End.Format(core.DateLayout),
			money(attr.Amount, attr.CurrencyCode),
			money(attr.Spent, attr.CurrencyCode))
	}
	return t.flush()
}

func renderPiggyBanks(w io.Writer, st styles, banks []firefly.PiggyBank) error {
	t := newTable(w, st, "NAME", "SAVED", "TARGET", "PROGRESS", "TARGET DATE")
	for _, p := range banks {
		attr := p.Attributes
		t.row(attr.Name,
			money(attr.CurrentAmount, attr.CurrencyCode),
			money(attr.TargetAmount, attr.CurrencyCode),
			fmt.Sprintf("%.0f%%", attr.Percentage),
			attr.TargetDate)
	}
	return t.flush()
}

func renderRecurrences(w io.Writer, st styles, recs []firefly.Recurrence) error {
	t := newTable(w, st, "TITLE", "TYPE", "FIRST DATE", "REPEATS", "AMOUNT", "ACTIVE")
	for _, r := range recs {
		attr := r.Attributes
		repeats := make([]string, 0, len(attr.Repetitions))
		for _, rep := range attr.Repetitions {
			repeats = append(repeats, rep.Type)
		}
		amount := ""
		if len(attr.Transactions) > 0 {
			first := attr.Transactions[0]
			amount = money(first.Amount, first.CurrencyCode)
		}
		t.row(attr.Title, attr.Type, attr.FirstDate, strings.Join(repeats, ","), amount, yesNo(attr.Active))
	}
	return t.flush()
}

func renderExpenses(w io.Writer, st styles, entries []firefly.InsightEntry) error {
	t := newTable(w, st, "ACCOUNT", "SPENT")
	for _, e := range entries {
		t.row(e.Name, money(e.Difference, e.CurrencyCode))
	}
	return t.flush()
}

func renderTotals(w io.Writer, st styles, title string, totals []core.CurrencyAmount) error {
	fmt.Fprintln(w, st.section.Render(title))
	if len(totals) == 0 {
		fmt.Fprintln(w, "  none")
		return nil
	}
	for _, total := range totals {
		fmt.Fprintf(w, "  %s\n", core.FormatMoney(total.Amount, total.CurrencyCode))
	}
	return nil
}

func renderBudgetUsage(w io.Writer, st styles, usage []core.BudgetUsage) error {
	fmt.Fprintln(w, st.section.Render("Budgets"))
	if len(usage) == 0 {
		fmt.Fprintln(w, "  none")
		return nil
	}
	t := newTable(w, st, "BUDGET", "SPENT", "LIMIT", "LEFT", "USED")
	for _, u := range usage {
		used := fmt.Sprintf("%.0f%%", u.Percent)
		if u.Over {
			used = st.over.Render(used)
		}
		t.row(u.Name,
			core.FormatMoney(u.Spent, u.CurrencyCode),
			core.FormatMoney(u.Limit, u.CurrencyCode),
			core.FormatMoney(u.Remaining, u.CurrencyCode),
			used)
	}
	return t.flush()
}
