package aggregate

import (
	"sort"
	"time"

	"toplist-tracker-go/internal/models"
	"toplist-tracker-go/internal/store"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// WindowStart returns the first trading day of a trailing window of days ending at now.
func WindowStart(now time.Time, days int) time.Time {
	return startOfDay(now).AddDate(0, 0, -days)
}

// startOfDay keeps the calendar date of t and moves it to UTC midnight, the form trade dates
// are stored in.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SuccessRate is 100 × success / appearances rounded to two places, or zero without appearances.
func SuccessRate(success, appearances int64) decimal.Decimal {
	if appearances == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(success).Mul(hundred).
		Div(decimal.NewFromInt(appearances)).
		Round(2)
}

// Summarize folds per-direction window statistics into one summary per trader. Names in known
// that have no statistics get an all-zero summary so earlier figures do not linger. The result
// is sorted by trader name.
func Summarize(stats []store.TraderDirectionStat, known []string, updatedAt time.Time) []models.TraderSummary {
	type acc struct {
		buy, sell   decimal.Decimal
		appearances int64
		success     int64
	}
	byName := make(map[string]*acc, len(known))
	get := func(name string) *acc {
		a, ok := byName[name]
		if !ok {
			a = &acc{buy: decimal.Zero, sell: decimal.Zero}
			byName[name] = a
		}
		return a
	}

	for _, name := range known {
		get(name)
	}
	for _, s := range stats {
		a := get(s.TraderName)
		switch s.Direction {
		case models.DirectionBuy:
			a.buy = a.buy.Add(s.Amount)
		case models.DirectionSell:
			a.sell = a.sell.Add(s.Amount)
		default:
			// Only valid directions are ever written.
			continue
		}
		a.appearances += s.LineCount
		a.success += s.SuccessCount
	}

	summaries := make([]models.TraderSummary, 0, len(byName))
	for name, a := range byName {
		summaries = append(summaries, models.TraderSummary{
			TraderName:      name,
			TotalBuyAmount:  a.buy,
			TotalSellAmount: a.sell,
			NetAmount:       a.buy.Sub(a.sell),
			SuccessRate:     SuccessRate(a.success, a.appearances),
			AppearanceCount: a.appearances,
			UpdatedAt:       updatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].TraderName < summaries[j].TraderName
	})
	return summaries
}
