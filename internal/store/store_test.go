package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"toplist-tracker-go/internal/config"
	"toplist-tracker-go/internal/database"
	"toplist-tracker-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDatabase(&config.Database{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	return New(db)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedDisclosure stores a disclosure with one line per trader entry.
func seedDisclosure(t *testing.T, s *Store, code string, date time.Time, priceChange string, lines ...models.DisclosureLine) *models.Disclosure {
	t.Helper()
	ctx := context.Background()
	market := models.MarketShenzhen
	if code[0] == '6' {
		market = models.MarketShanghai
	}
	sec, _, err := s.GetOrCreateSecurity(ctx, &models.Security{Code: code, Name: "Name " + code, Market: market})
	require.NoError(t, err)

	d := &models.Disclosure{
		SecurityID:  sec.ID,
		TradeDate:   date,
		Reason:      "daily gain over 7%",
		TotalBuy:    dec("1000000"),
		TotalSell:   dec("400000"),
		Turnover:    dec("10.5"),
		PriceChange: dec(priceChange),
	}
	require.NoError(t, s.CreateDisclosure(ctx, d, lines))
	return d
}

func line(name string, dir models.Direction, amount string) models.DisclosureLine {
	return models.DisclosureLine{TraderName: name, Direction: dir, Amount: dec(amount), Proportion: dec("5")}
}

func TestGetOrCreateSecurity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, created, err := s.GetOrCreateSecurity(ctx, &models.Security{Code: "600001", Name: "First Name", Market: models.MarketShanghai})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)
	assert.True(t, first.IsActive)

	// A later sighting under a new name must not overwrite the stored one.
	again, created, err := s.GetOrCreateSecurity(ctx, &models.Security{Code: "600001", Name: "Renamed", Market: models.MarketShanghai})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "First Name", again.Name)

	var count int64
	require.NoError(t, s.db.Model(&models.Security{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateDisclosure(t *testing.T) {
	s := newTestStore(t)

	d := seedDisclosure(t, s, "000001", day(2024, 1, 2), "9.98",
		line("desk a", models.DirectionBuy, "500000"),
		line("desk b", models.DirectionSell, "300000"),
	)

	assert.NotZero(t, d.ID)
	assert.True(t, dec("600000").Equal(d.NetAmount), "net amount is derived from buy minus sell")
	require.Len(t, d.Lines, 2)
	for _, l := range d.Lines {
		assert.Equal(t, d.ID, l.DisclosureID)
	}

	lines, err := s.ListDisclosureLines(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, models.DirectionBuy, lines[0].Direction)
	assert.Equal(t, "desk a", lines[0].TraderName)
	assert.True(t, dec("500000").Equal(lines[0].Amount))

	var stored models.Disclosure
	require.NoError(t, s.db.First(&stored, d.ID).Error)
	assert.True(t, dec("600000").Equal(stored.NetAmount))
}

func TestCreateDisclosure_RollsBackOnLineFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sec, _, err := s.GetOrCreateSecurity(ctx, &models.Security{Code: "000002", Name: "X", Market: models.MarketShenzhen})
	require.NoError(t, err)

	d := &models.Disclosure{SecurityID: sec.ID, TradeDate: day(2024, 1, 2), Reason: "r"}
	// Two lines with the same primary key make the batch insert fail.
	lines := []models.DisclosureLine{
		{ID: 7, TraderName: "a", Direction: models.DirectionBuy},
		{ID: 7, TraderName: "b", Direction: models.DirectionBuy},
	}
	err = s.CreateDisclosure(ctx, d, lines)
	require.Error(t, err)

	var count int64
	require.NoError(t, s.db.Model(&models.Disclosure{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDisclosureExists(t *testing.T) {
	s := newTestStore(t)
	d := seedDisclosure(t, s, "000001", day(2024, 1, 2), "1")
	ctx := context.Background()

	exists, err := s.DisclosureExists(ctx, d.SecurityID, day(2024, 1, 2), d.Reason)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.DisclosureExists(ctx, d.SecurityID, day(2024, 1, 3), d.Reason)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = s.DisclosureExists(ctx, d.SecurityID, day(2024, 1, 2), "other reason")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTraderWindowStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedDisclosure(t, s, "000001", day(2024, 3, 1), "1.2", line("desk a", models.DirectionBuy, "500000"))
	seedDisclosure(t, s, "600001", day(2024, 3, 2), "-0.5", line("desk a", models.DirectionSell, "300000"))
	seedDisclosure(t, s, "600002", day(2024, 3, 3), "2", line("desk a", models.DirectionBuy, "100000"))
	// Outside the window.
	seedDisclosure(t, s, "000003", day(2023, 1, 1), "5", line("desk old", models.DirectionBuy, "999"))

	stats, err := s.TraderWindowStats(ctx, day(2024, 1, 1))
	require.NoError(t, err)
	require.Len(t, stats, 2)

	buy, sell := stats[0], stats[1]
	assert.Equal(t, "desk a", buy.TraderName)
	assert.Equal(t, models.DirectionBuy, buy.Direction)
	assert.True(t, dec("600000").Equal(buy.Amount), buy.Amount.String())
	assert.Equal(t, int64(2), buy.LineCount)
	assert.Equal(t, int64(2), buy.SuccessCount)

	assert.Equal(t, models.DirectionSell, sell.Direction)
	assert.True(t, dec("300000").Equal(sell.Amount))
	assert.Equal(t, int64(1), sell.LineCount)
	assert.Equal(t, int64(0), sell.SuccessCount)

	names, err := s.DistinctTraderNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"desk a", "desk old"}, names)
}

func TestUpsertTraderSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.TraderSummary{
		TraderName:      "desk a",
		TotalBuyAmount:  dec("100"),
		NetAmount:       dec("100"),
		SuccessRate:     dec("100"),
		AppearanceCount: 1,
	}
	require.NoError(t, s.UpsertTraderSummary(ctx, first))

	second := &models.TraderSummary{
		TraderName:      "desk a",
		TotalBuyAmount:  dec("500000"),
		TotalSellAmount: dec("300000"),
		NetAmount:       dec("200000"),
		SuccessRate:     dec("50"),
		AppearanceCount: 2,
	}
	require.NoError(t, s.UpsertTraderSummary(ctx, second))

	var all []models.TraderSummary
	require.NoError(t, s.db.Find(&all).Error)
	require.Len(t, all, 1)
	assert.True(t, dec("500000").Equal(all[0].TotalBuyAmount))
	assert.True(t, dec("300000").Equal(all[0].TotalSellAmount))
	assert.True(t, dec("200000").Equal(all[0].NetAmount))
	assert.True(t, dec("50").Equal(all[0].SuccessRate))
	assert.Equal(t, int64(2), all[0].AppearanceCount)
}

func TestListDisclosures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDisclosure(t, s, "600001", day(2024, 1, 2), "1")
	seedDisclosure(t, s, "000001", day(2024, 1, 2), "1")
	seedDisclosure(t, s, "000002", day(2024, 1, 3), "1")

	tests := []struct {
		name   string
		filter DisclosureFilter
		want   []string
	}{
		{"All newest first", DisclosureFilter{}, []string{"000002", "600001", "000001"}},
		{"By date", DisclosureFilter{Date: day(2024, 1, 2)}, []string{"600001", "000001"}},
		{"By market", DisclosureFilter{Market: models.MarketShenzhen}, []string{"000002", "000001"}},
		{"Limit", DisclosureFilter{Limit: 1}, []string{"000002"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := s.ListDisclosures(ctx, tt.filter)
			require.NoError(t, err)

			var codes []string
			for _, item := range items {
				codes = append(codes, item.Security.Code)
			}
			assert.Equal(t, tt.want, codes)
		})
	}
}

func TestListTraderSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, count := range []int64{3, 7, 5} {
		require.NoError(t, s.UpsertTraderSummary(ctx, &models.TraderSummary{
			TraderName:      fmt.Sprintf("desk %d", i),
			TotalBuyAmount:  decimal.NewFromInt(int64(i) * 1000000),
			AppearanceCount: count,
		}))
	}

	items, err := s.ListTraderSummaries(ctx, TraderFilter{MinAmount: dec("1000000")})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "desk 1", items[0].TraderName)
	assert.Equal(t, "desk 2", items[1].TraderName)

	items, err = s.ListTraderSummaries(ctx, TraderFilter{UpdatedSince: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTraderHistory(t *testing.T) {
	s := newTestStore(t)
	seedDisclosure(t, s, "000001", day(2024, 3, 1), "1.2", line("desk a", models.DirectionBuy, "500000"))
	seedDisclosure(t, s, "600001", day(2024, 3, 5), "-0.5", line("desk a", models.DirectionSell, "300000"), line("desk b", models.DirectionBuy, "1"))
	seedDisclosure(t, s, "600002", day(2023, 3, 5), "2", line("desk a", models.DirectionBuy, "7"))

	history, err := s.TraderHistory(context.Background(), "desk a", day(2024, 1, 1))
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "600001", history[0].Code)
	assert.Equal(t, models.DirectionSell, history[0].Direction)
	assert.True(t, dec("-0.5").Equal(history[0].PriceChange))
	assert.True(t, day(2024, 3, 5).Equal(history[0].TradeDate.UTC()))
	assert.Equal(t, "000001", history[1].Code)
}

func TestMarketOverview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDisclosure(t, s, "600001", day(2024, 1, 2), "1")
	seedDisclosure(t, s, "000001", day(2024, 1, 2), "1")
	seedDisclosure(t, s, "000002", day(2024, 1, 2), "1")
	seedDisclosure(t, s, "000003", day(2024, 1, 3), "1")

	overview, err := s.MarketOverview(ctx, day(2024, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", overview.Date)
	assert.Equal(t, int64(3), overview.DailyStats.StockCount)
	assert.True(t, dec("3000000").Equal(overview.DailyStats.TotalBuyAmount))
	assert.True(t, dec("1800000").Equal(overview.DailyStats.NetAmount))
	assert.True(t, dec("10.5").Equal(overview.DailyStats.AvgTurnover))

	require.Len(t, overview.MarketStats, 2)
	assert.Equal(t, models.MarketShanghai, overview.MarketStats[0].Market)
	assert.Equal(t, int64(1), overview.MarketStats[0].StockCount)
	assert.Equal(t, models.MarketShenzhen, overview.MarketStats[1].Market)
	assert.True(t, dec("1200000").Equal(overview.MarketStats[1].NetFlow))

	t.Run("Empty day", func(t *testing.T) {
		overview, err := s.MarketOverview(ctx, day(2020, 1, 1))
		require.NoError(t, err)
		assert.Zero(t, overview.DailyStats.StockCount)
		assert.True(t, overview.DailyStats.TotalBuyAmount.IsZero())
		assert.Empty(t, overview.MarketStats)
	})
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(fmt.Errorf("x: %w", driver.ErrBadConn)), ErrUnavailable)
	assert.NotErrorIs(t, classify(errors.New("constraint failed")), ErrUnavailable)
}
