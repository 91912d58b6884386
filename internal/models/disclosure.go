package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Disclosure is one top-list appearance of a stock on a trading day.
// A stock can appear more than once per day when several reasons apply.
type Disclosure struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	SecurityID  uint             `gorm:"not null;index:idx_disclosure_security_date" json:"security_id"`
	Security    Security         `gorm:"constraint:OnDelete:CASCADE" json:"security"`
	TradeDate   time.Time        `gorm:"type:date;not null;index;index:idx_disclosure_security_date" json:"trade_date"`
	Reason      string           `gorm:"size:100;not null" json:"reason"`
	TotalBuy    decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"total_buy"`
	TotalSell   decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"total_sell"`
	NetAmount   decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"net_amount"`
	Turnover    decimal.Decimal  `gorm:"type:numeric(10,2);not null" json:"turnover"`
	PriceChange decimal.Decimal  `gorm:"type:numeric(10,2);not null" json:"price_change"`
	Lines       []DisclosureLine `gorm:"constraint:OnDelete:CASCADE" json:"lines,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// BeforeCreate derives the net amount so it always matches buy minus sell.
func (d *Disclosure) BeforeCreate(tx *gorm.DB) error {
	d.NetAmount = d.TotalBuy.Sub(d.TotalSell)
	return nil
}
