package store

import (
	"context"
	"fmt"
	"time"

	"toplist-tracker-go/internal/models"

	"github.com/shopspring/decimal"
)

// DisclosureFilter narrows ListDisclosures. Zero values mean "any".
type DisclosureFilter struct {
	Date   time.Time
	Market string
	Limit  int
}

// TraderFilter narrows ListTraderSummaries.
type TraderFilter struct {
	MinAmount    decimal.Decimal
	UpdatedSince time.Time
	Limit        int
}

// TraderHistoryEntry is one appearance of a trader desk on the top list.
type TraderHistoryEntry struct {
	TradeDate   time.Time        `json:"trade_date"`
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Direction   models.Direction `json:"direction"`
	Amount      decimal.Decimal  `json:"amount"`
	Proportion  decimal.Decimal  `json:"proportion"`
	PriceChange decimal.Decimal  `json:"price_change"`
}

// DailyStats are the totals over every disclosure of one day.
type DailyStats struct {
	TotalBuyAmount  decimal.Decimal `json:"total_buy_amount"`
	TotalSellAmount decimal.Decimal `json:"total_sell_amount"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	AvgTurnover     decimal.Decimal `json:"avg_turnover"`
	StockCount      int64           `json:"stock_count"`
}

// MarketStats are the totals of one day for one venue.
type MarketStats struct {
	Market     string          `json:"market"`
	BuyAmount  decimal.Decimal `json:"buy_amount"`
	SellAmount decimal.Decimal `json:"sell_amount"`
	NetFlow    decimal.Decimal `json:"net_flow"`
	StockCount int64           `json:"stock_count"`
}

// MarketOverview is the fund flow picture of one trading day.
type MarketOverview struct {
	Date        string        `json:"date"`
	DailyStats  DailyStats    `json:"daily_stats"`
	MarketStats []MarketStats `json:"market_stats"`
}

func normalizeLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

// ListSecurities returns the active securities ordered by code.
func (s *Store) ListSecurities(ctx context.Context) ([]models.Security, error) {
	var items []models.Security
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("code").Find(&items).Error; err != nil {
		return nil, classify(fmt.Errorf("failed to list securities: %w", err))
	}
	return items, nil
}

// ListDisclosures returns the most recent disclosures with their security.
func (s *Store) ListDisclosures(ctx context.Context, filter DisclosureFilter) ([]models.Disclosure, error) {
	query := s.db.WithContext(ctx).Model(&models.Disclosure{}).
		Preload("Security").
		Joins("JOIN securities ON securities.id = disclosures.security_id")
	if !filter.Date.IsZero() {
		query = query.Where("disclosures.trade_date = ?", filter.Date)
	}
	if filter.Market != "" {
		query = query.Where("securities.market = ?", filter.Market)
	}

	var items []models.Disclosure
	err := query.Order("disclosures.trade_date DESC, disclosures.id").
		Limit(normalizeLimit(filter.Limit, 50)).
		Find(&items).Error
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list disclosures: %w", err))
	}
	return items, nil
}

// ListDisclosureLines returns the trader lines of one disclosure, buys first.
func (s *Store) ListDisclosureLines(ctx context.Context, disclosureID uint) ([]models.DisclosureLine, error) {
	var items []models.DisclosureLine
	err := s.db.WithContext(ctx).
		Where("disclosure_id = ?", disclosureID).
		Order("direction, id").
		Find(&items).Error
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list disclosure lines: %w", err))
	}
	return items, nil
}

// ListTraderSummaries returns the summaries of the most active traders with at least
// MinAmount bought or sold.
func (s *Store) ListTraderSummaries(ctx context.Context, filter TraderFilter) ([]models.TraderSummary, error) {
	query := s.db.WithContext(ctx).Model(&models.TraderSummary{}).
		Where("total_buy_amount >= ? OR total_sell_amount >= ?", filter.MinAmount, filter.MinAmount)
	if !filter.UpdatedSince.IsZero() {
		query = query.Where("updated_at >= ?", filter.UpdatedSince)
	}

	var items []models.TraderSummary
	err := query.Order("appearance_count DESC, trader_name").
		Limit(normalizeLimit(filter.Limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list trader summaries: %w", err))
	}
	return items, nil
}

// TraderHistory lists the appearances of a trader since the given day, newest first.
func (s *Store) TraderHistory(ctx context.Context, traderName string, since time.Time) ([]TraderHistoryEntry, error) {
	var items []TraderHistoryEntry
	err := s.db.WithContext(ctx).
		Table("disclosure_lines AS l").
		Select(`d.trade_date AS trade_date,
			s.code AS code,
			s.name AS name,
			l.direction AS direction,
			l.amount AS amount,
			l.proportion AS proportion,
			d.price_change AS price_change`).
		Joins("JOIN disclosures AS d ON d.id = l.disclosure_id").
		Joins("JOIN securities AS s ON s.id = d.security_id").
		Where("l.trader_name = ? AND d.trade_date >= ?", traderName, since).
		Order("d.trade_date DESC, l.id").
		Scan(&items).Error
	if err != nil {
		return nil, classify(fmt.Errorf("failed to load history for %q: %w", traderName, err))
	}
	return items, nil
}

// MarketOverview aggregates the disclosures of one day, in total and per venue.
func (s *Store) MarketOverview(ctx context.Context, date time.Time) (*MarketOverview, error) {
	overview := &MarketOverview{Date: date.Format("2006-01-02"), MarketStats: []MarketStats{}}

	err := s.db.WithContext(ctx).Model(&models.Disclosure{}).
		Select(`COALESCE(SUM(total_buy), 0) AS total_buy_amount,
			COALESCE(SUM(total_sell), 0) AS total_sell_amount,
			COALESCE(SUM(net_amount), 0) AS net_amount,
			COALESCE(AVG(turnover), 0) AS avg_turnover,
			COUNT(*) AS stock_count`).
		Where("trade_date = ?", date).
		Scan(&overview.DailyStats).Error
	if err != nil {
		return nil, classify(fmt.Errorf("failed to aggregate daily stats: %w", err))
	}

	err = s.db.WithContext(ctx).Model(&models.Disclosure{}).
		Select(`securities.market AS market,
			COALESCE(SUM(disclosures.total_buy), 0) AS buy_amount,
			COALESCE(SUM(disclosures.total_sell), 0) AS sell_amount,
			COALESCE(SUM(disclosures.net_amount), 0) AS net_flow,
			COUNT(*) AS stock_count`).
		Joins("JOIN securities ON securities.id = disclosures.security_id").
		Where("disclosures.trade_date = ?", date).
		Group("securities.market").
		Order("securities.market").
		Scan(&overview.MarketStats).Error
	if err != nil {
		return nil, classify(fmt.Errorf("failed to aggregate market stats: %w", err))
	}

	return overview, nil
}
