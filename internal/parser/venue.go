package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"toplist-tracker-go/internal/models"
)

// VenuePolicy classifies a stock code into an exchange venue.
type VenuePolicy interface {
	Venue(code string) (string, error)
}

// PrefixPolicy matches the longest configured code prefix and falls back to a default venue.
// The stock code prefix alone does not identify every venue (B shares, the Beijing exchange),
// which is why the table is configuration rather than code.
type PrefixPolicy struct {
	prefixes []string
	venues   map[string]string
	fallback string
}

// NewPrefixPolicy builds a policy from a prefix table. An empty fallback makes unmatched codes an error.
func NewPrefixPolicy(prefixes map[string]string, fallback string) *PrefixPolicy {
	p := &PrefixPolicy{
		venues:   make(map[string]string, len(prefixes)),
		fallback: strings.ToUpper(strings.TrimSpace(fallback)),
	}
	for prefix, venue := range prefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		p.venues[prefix] = strings.ToUpper(strings.TrimSpace(venue))
		p.prefixes = append(p.prefixes, prefix)
	}
	sort.Slice(p.prefixes, func(i, j int) bool {
		if len(p.prefixes[i]) != len(p.prefixes[j]) {
			return len(p.prefixes[i]) > len(p.prefixes[j])
		}
		return p.prefixes[i] < p.prefixes[j]
	})
	return p
}

// DefaultVenuePolicy sends codes starting with "6" to Shanghai and everything else to Shenzhen.
func DefaultVenuePolicy() *PrefixPolicy {
	return NewPrefixPolicy(map[string]string{"6": models.MarketShanghai}, models.MarketShenzhen)
}

// Venue implements VenuePolicy.
func (p *PrefixPolicy) Venue(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("empty code")
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(code, prefix) {
			return p.venues[prefix], nil
		}
	}
	if p.fallback == "" {
		return "", fmt.Errorf("no venue for code %q", code)
	}
	return p.fallback, nil
}
