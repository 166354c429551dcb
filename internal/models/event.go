package models

import (
	"sort"
	"strings"
)

// Impact is the market-impact rating the news source assigns to an event.
type Impact string

const (
	ImpactHigh   Impact = "High"
	ImpactMedium Impact = "Medium"
	// ImpactLow never leaves the news source; it exists so classification has a value to return.
	ImpactLow Impact = "Low"
)

// ParseImpact maps a stored or user supplied value onto a known Impact.
func ParseImpact(s string) (Impact, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ImpactHigh, true
	case "medium":
		return ImpactMedium, true
	case "low":
		return ImpactLow, true
	}
	return "", false
}

// Event represents one scraped economic-calendar entry for the current day.
// Values are shared read-only between all users of a sync run.
type Event struct {
	Currency string `json:"currency"` // Three letter currency code, e.g. "USD"
	Title    string `json:"title"`    // Event name as shown by the source, e.g. "CPI m/m"
	Impact   Impact `json:"impact"`
	Forecast string `json:"forecast"`
	Actual   string `json:"actual"`
	TimeText string `json:"time"` // Free-form time of day: "8:30am", "All Day", "Tentative" or empty
}

// ImpactSet is a set of impact ratings.
type ImpactSet map[Impact]struct{}

// NewImpactSet builds a set from the given values.
func NewImpactSet(values ...Impact) ImpactSet {
	s := make(ImpactSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether v is in the set. A nil set contains nothing.
func (s ImpactSet) Has(v Impact) bool {
	_, ok := s[v]
	return ok
}

func (s ImpactSet) Len() int { return len(s) }

// Values returns the members in sorted order.
func (s ImpactSet) Values() []Impact {
	out := make([]Impact, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CurrencySet is a set of upper-case currency codes.
type CurrencySet map[string]struct{}

// NewCurrencySet builds a set from the given codes, normalising them to upper case.
func NewCurrencySet(codes ...string) CurrencySet {
	s := make(CurrencySet, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether code is in the set. A nil set contains nothing.
func (s CurrencySet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

func (s CurrencySet) Len() int { return len(s) }

// Values returns the members in sorted order.
func (s CurrencySet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// UserPreference is a subscribed user as read from the user directory.
// The sync engine never mutates it.
type UserPreference struct {
	Identity     string      // Unique key, the user's email address
	RefreshToken string      // Long-lived OAuth refresh token
	Impacts      ImpactSet   // Impact ratings the user wants
	Currencies   CurrencySet // Currencies the user wants
}
