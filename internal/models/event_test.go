package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseImpact(t *testing.T) {
	for in, want := range map[string]Impact{"High": ImpactHigh, " medium ": ImpactMedium, "LOW": ImpactLow} {
		got, ok := ParseImpact(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseImpact("holiday")
	assert.False(t, ok)
}

func TestSets(t *testing.T) {
	impacts := NewImpactSet(ImpactMedium, ImpactHigh, ImpactHigh)
	assert.Equal(t, 2, impacts.Len())
	assert.Equal(t, []Impact{ImpactHigh, ImpactMedium}, impacts.Values())

	currencies := NewCurrencySet("usd", " EUR", "", "USD")
	assert.Equal(t, []string{"EUR", "USD"}, currencies.Values())
	assert.True(t, currencies.Has("USD"))
	assert.False(t, currencies.Has("usd"))

	var none CurrencySet
	assert.False(t, none.Has("USD"))
	assert.Empty(t, none.Values())
}
