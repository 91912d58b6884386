package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixPolicy(t *testing.T) {
	policy := NewPrefixPolicy(map[string]string{
		"6":   "sh",
		"0":   "SZ",
		"3":   "SZ",
		"900": "SH-B",
		"":    "ignored",
	}, "")

	testCases := []struct {
		code        string
		expected    string
		expectError bool
	}{
		{code: "600001", expected: "SH"},
		{code: "000001", expected: "SZ"},
		{code: "300750", expected: "SZ"},
		{code: "900901", expected: "SH-B"},
		{code: "830001", expectError: true},
		{code: "", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.code, func(t *testing.T) {
			venue, err := policy.Venue(tc.code)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, venue)
		})
	}
}

func TestDefaultVenuePolicy(t *testing.T) {
	policy := DefaultVenuePolicy()

	venue, err := policy.Venue("601318")
	assert.NoError(t, err)
	assert.Equal(t, "SH", venue)

	venue, err = policy.Venue("830001")
	assert.NoError(t, err)
	assert.Equal(t, "SZ", venue, "fallback covers every non-6 prefix")
}
