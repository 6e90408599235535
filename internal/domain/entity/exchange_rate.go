package entity

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RateTable holds exchange rates of foreign currencies against the base currency
// effective on a given date. A table is never modified after it is built.
type RateTable struct {
	Date  time.Time
	Rates map[Currency]decimal.Decimal
}

// NewRateTable builds a table, dropping non-positive rates
func NewRateTable(date time.Time, rates map[Currency]decimal.Decimal) RateTable {
	clean := make(map[Currency]decimal.Decimal, len(rates))
	for c, r := range rates {
		if r.IsPositive() {
			clean[c] = r
		}
	}
	return RateTable{Date: date, Rates: clean}
}

// Rate returns the rate for currency, if the table has one
func (t RateTable) Rate(currency Currency) (decimal.Decimal, bool) {
	r, ok := t.Rates[currency]
	return r, ok
}

// IsEmpty reports whether the table has no rates
func (t RateTable) IsEmpty() bool {
	return len(t.Rates) == 0
}

// ArchiveEntry is a rate table tagged with its calendar date
type ArchiveEntry struct {
	Date  time.Time
	Table RateTable
}

// DateKey returns the calendar date as YYYY-MM-DD
func (e ArchiveEntry) DateKey() string {
	return e.Date.Format(DateLayout)
}

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// NormalizeArchive collapses entries sharing a calendar date (the last one wins)
// and returns them sorted by date, oldest first.
func NormalizeArchive(entries []ArchiveEntry) []ArchiveEntry {
	byDate := make(map[string]ArchiveEntry, len(entries))
	for _, e := range entries {
		byDate[e.DateKey()] = e
	}

	out := make([]ArchiveEntry, 0, len(byDate))
	for _, e := range byDate {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	return out
}
