package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"toplist-tracker-go/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnavailable marks failures that mean the database as a whole cannot be reached,
// as opposed to a single statement being rejected.
var ErrUnavailable = errors.New("storage unavailable")

// TraderDirectionStat is one row of the windowed aggregate: totals for a trader on one side.
type TraderDirectionStat struct {
	TraderName   string
	Direction    models.Direction
	Amount       decimal.Decimal
	LineCount    int64
	SuccessCount int64
}

// Store is the gorm-backed persistence layer.
type Store struct {
	db *gorm.DB
}

// New creates a Store on an open, migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetOrCreateSecurity returns the security with sec.Code, inserting sec if the code is new.
// Name and market of an existing row are left untouched. Safe under concurrent writers.
func (s *Store) GetOrCreateSecurity(ctx context.Context, sec *models.Security) (*models.Security, bool, error) {
	candidate := models.Security{
		Code:     sec.Code,
		Name:     sec.Name,
		Market:   sec.Market,
		IsActive: true,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&candidate)
	if res.Error != nil {
		return nil, false, classify(fmt.Errorf("failed to create security %s: %w", sec.Code, res.Error))
	}
	if res.RowsAffected == 1 {
		return &candidate, true, nil
	}

	var existing models.Security
	if err := s.db.WithContext(ctx).Where("code = ?", sec.Code).First(&existing).Error; err != nil {
		return nil, false, classify(fmt.Errorf("failed to load security %s: %w", sec.Code, err))
	}
	return &existing, false, nil
}

// DisclosureExists reports whether a disclosure for the same stock, day and reason is stored.
func (s *Store) DisclosureExists(ctx context.Context, securityID uint, tradeDate time.Time, reason string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Disclosure{}).
		Where("security_id = ? AND trade_date = ? AND reason = ?", securityID, tradeDate, reason).
		Count(&count).Error
	if err != nil {
		return false, classify(fmt.Errorf("failed to look up disclosure: %w", err))
	}
	return count > 0, nil
}

// CreateDisclosure inserts a disclosure and its lines in one transaction.
func (s *Store) CreateDisclosure(ctx context.Context, d *models.Disclosure, lines []models.DisclosureLine) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(d).Error; err != nil {
			return fmt.Errorf("failed to create disclosure: %w", err)
		}
		if len(lines) == 0 {
			return nil
		}
		for i := range lines {
			lines[i].DisclosureID = d.ID
		}
		if err := tx.CreateInBatches(lines, 100).Error; err != nil {
			return fmt.Errorf("failed to create disclosure lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return classify(err)
	}
	d.Lines = lines
	return nil
}

// DistinctTraderNames lists every trader name that has ever appeared in a disclosure line.
func (s *Store) DistinctTraderNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.DisclosureLine{}).
		Distinct().
		Order("trader_name").
		Pluck("trader_name", &names).Error
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list trader names: %w", err))
	}
	return names, nil
}

// TraderWindowStats sums and counts disclosure lines per trader and direction for disclosures
// dated on or after since. SuccessCount counts lines whose disclosure had a positive price change.
func (s *Store) TraderWindowStats(ctx context.Context, since time.Time) ([]TraderDirectionStat, error) {
	var stats []TraderDirectionStat
	err := s.db.WithContext(ctx).
		Table("disclosure_lines AS l").
		Select(`l.trader_name AS trader_name,
			l.direction AS direction,
			COALESCE(SUM(l.amount), 0) AS amount,
			COUNT(*) AS line_count,
			COALESCE(SUM(CASE WHEN d.price_change > 0 THEN 1 ELSE 0 END), 0) AS success_count`).
		Joins("JOIN disclosures AS d ON d.id = l.disclosure_id").
		Where("d.trade_date >= ?", since).
		Group("l.trader_name, l.direction").
		Order("l.trader_name, l.direction").
		Scan(&stats).Error
	if err != nil {
		return nil, classify(fmt.Errorf("failed to aggregate trader stats: %w", err))
	}
	return stats, nil
}

// UpsertTraderSummary creates the summary or overwrites the derived fields of an existing one.
func (s *Store) UpsertTraderSummary(ctx context.Context, summary *models.TraderSummary) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "trader_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_buy_amount",
			"total_sell_amount",
			"net_amount",
			"success_rate",
			"appearance_count",
			"updated_at",
		}),
	}).Create(summary).Error
	if err != nil {
		return classify(fmt.Errorf("failed to upsert summary for %q: %w", summary.TraderName, err))
	}
	return nil
}

// classify tags connection-level failures with ErrUnavailable.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
