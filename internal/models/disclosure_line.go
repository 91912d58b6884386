package models

import "github.com/shopspring/decimal"

// Direction tags a trader desk's side within a disclosure.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// DisclosureLine is one trader desk's buy or sell contribution to a Disclosure.
// TraderName is free text and is the join key for aggregation, so it is stored normalized.
type DisclosureLine struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	DisclosureID uint            `gorm:"not null;index" json:"disclosure_id"`
	TraderName   string          `gorm:"size:100;not null;index" json:"trader_name"`
	Direction    Direction       `gorm:"size:4;not null;index" json:"direction"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Proportion   decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"proportion"`
}
