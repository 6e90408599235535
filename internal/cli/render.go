package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/application/service"
	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/cache"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// renderPortfolio prints the composition with each slice's share of the total
func renderPortfolio(w io.Writer, snap cache.Snapshot, base entity.Currency) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "CURRENCY\tNAME\tAMOUNT\tVALUE\tSHARE")

	total := decimal.Zero
	for _, s := range snap.Slices {
		info := s.Info()
		label := info.Code
		if s.Synthetic {
			label += " (sample)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\n",
			label,
			info.Name,
			s.Currency.Format(s.Amount),
			base.Format(s.ValueInBaseCurrency),
			s.PercentageOfTotal,
		)
		total = total.Add(s.ValueInBaseCurrency)
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t\n", base.Format(total))

	if err := tw.Flush(); err != nil {
		return err
	}
	if snap.RatesStale {
		fmt.Fprintln(w, "Rates unavailable, values use default rates.")
	}
	return nil
}

// renderSeries prints each currency's rate series with its summary
func renderSeries(w io.Writer, snap cache.Snapshot, currencies []entity.Currency) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "CURRENCY\tLAST\tMIN\tMAX\tCHANGE\tSERIES")

	for _, cur := range currencies {
		series, ok := snap.Series[cur]
		if !ok {
			continue
		}
		sum := service.SummarizeSeries(series)

		points := make([]string, len(series))
		for i, v := range series {
			points[i] = fmt.Sprintf("%.4f", v)
		}

		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%+.2f%%\t%s\n",
			cur, sum.Last, sum.Min, sum.Max, sum.ChangePercent, strings.Join(points, " "))
	}

	return tw.Flush()
}

// renderArchive prints at most days archive entries, newest first
func renderArchive(w io.Writer, archive []entity.ArchiveEntry, base entity.Currency, days int) error {
	if len(archive) == 0 {
		fmt.Fprintln(w, "No archived rates.")
		return nil
	}
	if days > 0 && len(archive) > days {
		archive = archive[:days]
	}

	foreign := entity.ForeignCurrencies(base)
	tw := newTable(w)

	header := []string{"DATE"}
	for _, cur := range foreign {
		header = append(header, cur.String())
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, e := range archive {
		row := []string{e.DateKey()}
		for _, cur := range foreign {
			if r, ok := e.Table.Rate(cur); ok {
				row = append(row, r.StringFixed(4))
			} else {
				row = append(row, "-")
			}
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

// renderHistory prints the transactions, newest first
func renderHistory(w io.Writer, txs []entity.Transaction, base entity.Currency) error {
	if len(txs) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return nil
	}

	sorted := make([]entity.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tTYPE\tAMOUNT\tRATE\tVALUE")
	for _, tx := range sorted {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			tx.Timestamp.Local().Format("2006-01-02 15:04"),
			tx.Kind,
			tx.Currency.Format(tx.Amount),
			tx.RateApplied.StringFixed(4),
			base.Format(tx.BaseCurrencyValue),
		)
	}

	return tw.Flush()
}

// renderBalance prints every non-zero holding, base first
func renderBalance(w io.Writer, balance entity.Balance, base entity.Currency) {
	parts := []string{base.Format(balance.Get(base))}
	for _, cur := range entity.ForeignCurrencies(base) {
		if amt := balance.Get(cur); amt.IsPositive() {
			parts = append(parts, cur.Format(amt))
		}
	}
	fmt.Fprintf(w, "Balance: %s\n", strings.Join(parts, ", "))
}
