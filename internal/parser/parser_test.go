package parser

import (
	"testing"
	"time"

	"toplist-tracker-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

// listRow pads the visible columns with the two trailing cells of the page (blank, detail link).
func listRow(cells ...string) []string {
	return append(cells, "", "明细")
}

func TestParseListRow_ScenarioA(t *testing.T) {
	// Arrange
	cells := listRow("2024-01-15", "600001", "Test Co", "reason A", "3.5%", "12.0%", "100", "40")

	// Act
	row, err := ParseListRow(cells, DefaultVenuePolicy())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), row.TradeDate)
	assert.Equal(t, "600001", row.Code)
	assert.Equal(t, "Test Co", row.Name)
	assert.Equal(t, models.MarketShanghai, row.Market)
	assert.Equal(t, "reason A", row.Reason)
	assertDecimal(t, "1000000", row.TotalBuy)
	assertDecimal(t, "400000", row.TotalSell)
	assertDecimal(t, "600000", row.NetAmount())
	assertDecimal(t, "12.0", row.Turnover)
	assertDecimal(t, "3.5", row.PriceChange)
}

func TestParseListRow(t *testing.T) {
	testCases := []struct {
		name           string
		cells          []string
		expectedMarket string
		expectedBuy    string
		expectedSell   string
		expectError    bool
	}{
		{
			name:           "Shenzhen code with whitespace",
			cells:          listRow(" 2024-02-01 ", " 000001 ", " 平安银行 ", "日涨幅偏离值达7%", "-2.10%", "1.5%", "1,234.5", "0"),
			expectedMarket: models.MarketShenzhen,
			expectedBuy:    "12345000",
			expectedSell:   "0",
		},
		{
			name:           "Negative net flow",
			cells:          listRow("2024-02-01", "300750", "CATL", "r", "10%", "3%", "12.34", "56.78"),
			expectedMarket: models.MarketShenzhen,
			expectedBuy:    "123400",
			expectedSell:   "567800",
		},
		{name: "Nine cells", cells: []string{"2024-01-15", "600001", "Test Co", "reason", "3.5%", "12%", "100", "40", ""}, expectError: true},
		{name: "Empty row", cells: nil, expectError: true},
		{name: "Slash date", cells: listRow("2024/01/15", "600001", "Test Co", "r", "3.5%", "12%", "100", "40"), expectError: true},
		{name: "Non-numeric price change", cells: listRow("2024-01-15", "600001", "Test Co", "r", "n/a", "12%", "100", "40"), expectError: true},
		{name: "Non-numeric buy amount", cells: listRow("2024-01-15", "600001", "Test Co", "r", "3.5%", "12%", "abc", "40"), expectError: true},
		{name: "Empty sell amount", cells: listRow("2024-01-15", "600001", "Test Co", "r", "3.5%", "12%", "100", " "), expectError: true},
		{name: "Empty code", cells: listRow("2024-01-15", " ", "Test Co", "r", "3.5%", "12%", "100", "40"), expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			row, err := ParseListRow(tc.cells, DefaultVenuePolicy())

			if tc.expectError {
				assert.ErrorIs(t, err, ErrMalformedRow)
				assert.Nil(t, row)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedMarket, row.Market)
			assertDecimal(t, tc.expectedBuy, row.TotalBuy)
			assertDecimal(t, tc.expectedSell, row.TotalSell)
			assert.True(t, row.TotalBuy.Sub(row.TotalSell).Equal(row.NetAmount()))
		})
	}
}

func TestParseListRow_UnknownVenue(t *testing.T) {
	strict := NewPrefixPolicy(map[string]string{"6": "SH", "0": "SZ"}, "")
	_, err := ParseListRow(listRow("2024-01-15", "830001", "BJ Co", "r", "1%", "1%", "1", "1"), strict)
	assert.ErrorIs(t, err, ErrMalformedRow)
	assert.Contains(t, err.Error(), "830001")
}

func TestParseDetailRow(t *testing.T) {
	testCases := []struct {
		name               string
		cells              []string
		direction          models.Direction
		expectedTrader     string
		expectedAmount     string
		expectedProportion string
		expectError        bool
	}{
		{
			name:               "Buy row",
			cells:              []string{" 中信证券上海分公司 ", "1500.5", "12.34%"},
			direction:          models.DirectionBuy,
			expectedTrader:     "中信证券上海分公司",
			expectedAmount:     "15005000",
			expectedProportion: "12.34",
		},
		{
			name:               "Sell row with extra columns",
			cells:              []string{"Desk  X", "30", "5%", "extra"},
			direction:          models.DirectionSell,
			expectedTrader:     "desk x",
			expectedAmount:     "300000",
			expectedProportion: "5",
		},
		{name: "Two cells", cells: []string{"Desk X", "30"}, direction: models.DirectionBuy, expectError: true},
		{name: "Blank trader", cells: []string{"  ", "30", "5%"}, direction: models.DirectionBuy, expectError: true},
		{name: "Non-numeric amount", cells: []string{"Desk X", "--", "5%"}, direction: models.DirectionBuy, expectError: true},
		{name: "Proportion above 100", cells: []string{"Desk X", "30", "100.01%"}, direction: models.DirectionSell, expectError: true},
		{name: "Negative proportion", cells: []string{"Desk X", "30", "-1%"}, direction: models.DirectionSell, expectError: true},
		{name: "Unknown direction", cells: []string{"Desk X", "30", "5%"}, direction: "hold", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			line, err := ParseDetailRow(tc.cells, tc.direction)

			if tc.expectError {
				assert.ErrorIs(t, err, ErrMalformedRow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedTrader, line.TraderName)
			assert.Equal(t, tc.direction, line.Direction)
			assertDecimal(t, tc.expectedAmount, line.Amount)
			assertDecimal(t, tc.expectedProportion, line.Proportion)
		})
	}
}

func TestParseAmountIsExact(t *testing.T) {
	amount, err := ParseAmount("0.0001")
	require.NoError(t, err)
	assertDecimal(t, "1", amount)

	amount, err = ParseAmount("123456789.12")
	require.NoError(t, err)
	assertDecimal(t, "1234567891200", amount)
}
