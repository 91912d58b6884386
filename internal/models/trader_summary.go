package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TraderSummary holds the rolling-window statistics of one trader desk.
// Rows are derived by the aggregation engine and overwritten on every run.
type TraderSummary struct {
	ID              uint            `gorm:"primaryKey" json:"-"`
	TraderName      string          `gorm:"size:100;uniqueIndex;not null" json:"trader_name"`
	TotalBuyAmount  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_buy_amount"`
	TotalSellAmount decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_sell_amount"`
	NetAmount       decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"net_amount"`
	SuccessRate     decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0;index" json:"success_rate"`
	AppearanceCount int64           `gorm:"not null;default:0;index" json:"appearance_count"`
	UpdatedAt       time.Time       `gorm:"index" json:"updated_at"`
}
