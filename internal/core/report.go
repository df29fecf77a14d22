package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultGBPToEURRate is the fallback conversion rate when a user has no
// rate configured or the stored value does not parse. The same constant
// feeds the extraction worker's EUR suggestion so the two stay in sync.
const DefaultGBPToEURRate = 1.15

// UnknownClientName groups invoices whose client name could not be
// resolved at read time.
const UnknownClientName = "Unknown"

// InvoiceRecord is the flattened read-model row the aggregator consumes.
// Client name and currency are denormalized by the storage layer, which
// also applies all defaulting: an absent currency arrives as "EUR", an
// absent name as "", an absent native amount as zero cents.
type InvoiceRecord struct {
	ClientName       string
	ClientCurrency   string
	Amount           Money
	AmountEUR        *Money
	Year             int // 0 = unset
	Month            int // 0 = unset
	SentToClient     bool
	SentToAccountant bool
	PaymentReceived  bool
}

type (
	ClientTotal struct {
		Name   string
		Amount Money
	}

	MonthTotal struct {
		Key    string // "YYYY-MM", zero-padded month
		Amount Money
	}

	YearTotal struct {
		Year   int
		Amount Money
	}

	// Summary is the aggregated financial report for one user.
	Summary struct {
		TotalIncome         Money
		PendingToAccountant Money
		SentToClient        Money
		SentToAccountant    Money
		ByClient            []ClientTotal
		ByMonth             []MonthTotal
		ByYear              []YearTotal
	}
)

// ParseRate parses a stored conversion-rate setting, falling back to
// DefaultGBPToEURRate when the value is absent or not a positive number.
// A bad setting is recovered, never surfaced as an error.
func ParseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultGBPToEURRate
	}
	rate, err := strconv.ParseFloat(s, 64)
	if err != nil || rate <= 0 {
		return DefaultGBPToEURRate
	}
	return rate
}

// NormalizedAmount converts one invoice to the EUR reporting currency.
// Precedence is fixed: the pre-converted AmountEUR wins when present,
// otherwise GBP invoices are multiplied by the rate, otherwise the
// native amount is taken as already EUR.
func NormalizedAmount(r InvoiceRecord, rate float64) Money {
	if r.AmountEUR != nil {
		return *r.AmountEUR
	}
	if r.ClientCurrency == CurrencyGBP {
		return r.Amount.MulRate(rate)
	}
	return r.Amount
}

// Summarize reduces a user's invoice set to a Summary. It is pure: no
// I/O, no shared state, safe to call concurrently. Invoices without
// year/month are excluded from the period groupings only.
func Summarize(invoices []InvoiceRecord, rate float64) Summary {
	s := Summary{
		ByClient: []ClientTotal{},
		ByMonth:  []MonthTotal{},
		ByYear:   []YearTotal{},
	}

	byClient := make(map[string]int64)
	byMonth := make(map[string]int64)
	byYear := make(map[int]int64)

	for _, inv := range invoices {
		amount := NormalizedAmount(inv, rate)
		s.TotalIncome.Cents += amount.Cents

		if inv.SentToClient {
			s.SentToClient.Cents += amount.Cents
			if !inv.SentToAccountant {
				s.PendingToAccountant.Cents += amount.Cents
			}
		}
		if inv.SentToAccountant {
			s.SentToAccountant.Cents += amount.Cents
		}

		name := inv.ClientName
		if name == "" {
			name = UnknownClientName
		}
		byClient[name] += amount.Cents

		if inv.Year != 0 {
			byYear[inv.Year] += amount.Cents
			if inv.Month != 0 {
				byMonth[fmt.Sprintf("%04d-%02d", inv.Year, inv.Month)] += amount.Cents
			}
		}
	}

	for name, cents := range byClient {
		s.ByClient = append(s.ByClient, ClientTotal{Name: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(s.ByClient, func(i, j int) bool {
		if s.ByClient[i].Amount.Cents != s.ByClient[j].Amount.Cents {
			return s.ByClient[i].Amount.Cents > s.ByClient[j].Amount.Cents
		}
		return s.ByClient[i].Name < s.ByClient[j].Name
	})

	for key, cents := range byMonth {
		s.ByMonth = append(s.ByMonth, MonthTotal{Key: key, Amount: Money{Cents: cents}})
	}
	sort.Slice(s.ByMonth, func(i, j int) bool { return s.ByMonth[i].Key < s.ByMonth[j].Key })

	for year, cents := range byYear {
		s.ByYear = append(s.ByYear, YearTotal{Year: year, Amount: Money{Cents: cents}})
	}
	sort.Slice(s.ByYear, func(i, j int) bool { return s.ByYear[i].Year < s.ByYear[j].Year })

	return s
}
