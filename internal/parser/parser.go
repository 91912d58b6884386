// Package parser turns the text cells scraped from the top-list pages into typed values.
// Every function here is pure; anything that does not look like the expected layout fails
// with ErrMalformedRow instead of being guessed at.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"toplist-tracker-go/internal/models"

	"github.com/shopspring/decimal"
)

// ErrMalformedRow marks a row whose cells do not match the expected layout.
var ErrMalformedRow = errors.New("malformed row")

const (
	// MinListCells is the number of cells a list row must carry; the detail link is in the last one.
	MinListCells = 10
	// MinDetailCells is the number of cells a detail sub-table row must carry.
	MinDetailCells = 3
	// DateLayout is the textual trade date format of the list page.
	DateLayout = "2006-01-02"
)

// Source amounts are quoted in units of 10,000 (万).
var unitMultiplier = decimal.NewFromInt(10000)

var hundred = decimal.NewFromInt(100)

// List row columns.
const (
	colDate = iota
	colCode
	colName
	colReason
	colPriceChange
	colTurnover
	colBuy
	colSell
)

// Detail row columns.
const (
	colTrader = iota
	colAmount
	colProportion
)

// RawDisclosureRow is one parsed list row.
type RawDisclosureRow struct {
	TradeDate   time.Time
	Code        string
	Name        string
	Market      string
	Reason      string
	PriceChange decimal.Decimal
	Turnover    decimal.Decimal
	TotalBuy    decimal.Decimal
	TotalSell   decimal.Decimal
}

// NetAmount is buy minus sell.
func (r *RawDisclosureRow) NetAmount() decimal.Decimal {
	return r.TotalBuy.Sub(r.TotalSell)
}

// RawDisclosureLine is one parsed detail row.
type RawDisclosureLine struct {
	TraderName string
	Direction  models.Direction
	Amount     decimal.Decimal
	Proportion decimal.Decimal
}

// ParseListRow parses a list row. The venue is resolved from the code with policy.
func ParseListRow(cells []string, policy VenuePolicy) (*RawDisclosureRow, error) {
	if len(cells) < MinListCells {
		return nil, malformed("list row has %d cells, want at least %d", len(cells), MinListCells)
	}

	code := strings.TrimSpace(cells[colCode])
	if code == "" {
		return nil, malformed("empty stock code")
	}
	market, err := policy.Venue(code)
	if err != nil {
		return nil, malformed("stock code %q: %v", code, err)
	}

	dateText := strings.TrimSpace(cells[colDate])
	tradeDate, err := time.Parse(DateLayout, dateText)
	if err != nil {
		return nil, malformed("trade date %q: %v", dateText, err)
	}

	row := &RawDisclosureRow{
		TradeDate: tradeDate,
		Code:      code,
		Name:      strings.TrimSpace(cells[colName]),
		Market:    market,
		Reason:    strings.TrimSpace(cells[colReason]),
	}

	if row.PriceChange, err = ParsePercent(cells[colPriceChange]); err != nil {
		return nil, malformed("price change: %v", err)
	}
	if row.Turnover, err = ParsePercent(cells[colTurnover]); err != nil {
		return nil, malformed("turnover: %v", err)
	}
	if row.TotalBuy, err = ParseAmount(cells[colBuy]); err != nil {
		return nil, malformed("total buy: %v", err)
	}
	if row.TotalSell, err = ParseAmount(cells[colSell]); err != nil {
		return nil, malformed("total sell: %v", err)
	}

	return row, nil
}

// ParseDetailRow parses one row of the buy or sell sub-table.
func ParseDetailRow(cells []string, direction models.Direction) (*RawDisclosureLine, error) {
	if !direction.Valid() {
		return nil, malformed("unknown direction %q", direction)
	}
	if len(cells) < MinDetailCells {
		return nil, malformed("detail row has %d cells, want at least %d", len(cells), MinDetailCells)
	}

	name := NormalizeTraderName(cells[colTrader])
	if name == "" {
		return nil, malformed("empty trader name")
	}

	amount, err := ParseAmount(cells[colAmount])
	if err != nil {
		return nil, malformed("amount: %v", err)
	}
	proportion, err := ParsePercent(cells[colProportion])
	if err != nil {
		return nil, malformed("proportion: %v", err)
	}
	if proportion.IsNegative() || proportion.GreaterThan(hundred) {
		return nil, malformed("proportion %s outside [0, 100]", proportion)
	}

	return &RawDisclosureLine{
		TraderName: name,
		Direction:  direction,
		Amount:     amount,
		Proportion: proportion,
	}, nil
}

// ParsePercent parses text such as "3.5%" into 3.5.
func ParsePercent(text string) (decimal.Decimal, error) {
	return parseNumber(strings.TrimSuffix(strings.TrimSpace(text), "%"))
}

// ParseAmount parses a figure quoted in 10k units and returns it in base currency units.
func ParseAmount(text string) (decimal.Decimal, error) {
	d, err := parseNumber(text)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Mul(unitMultiplier), nil
}

func parseNumber(text string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if cleaned == "" {
		return decimal.Zero, errors.New("empty numeric cell")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", text)
	}
	return d, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRow, fmt.Sprintf(format, args...))
}
