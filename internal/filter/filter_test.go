package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fxcalsync/internal/models"
)

var events = []models.Event{
	{Currency: "USD", Title: "CPI m/m", Impact: models.ImpactHigh},
	{Currency: "EUR", Title: "ECB Press Conference", Impact: models.ImpactHigh},
	{Currency: "USD", Title: "Retail Sales m/m", Impact: models.ImpactMedium},
	{Currency: "JPY", Title: "BOJ Policy Rate", Impact: models.ImpactHigh},
	{Currency: "GBP", Title: "Claimant Count Change", Impact: models.ImpactMedium},
	{Currency: "USD", Title: "FOMC Statement", Impact: models.ImpactHigh},
}

func TestFilterMatchesBothSelections(t *testing.T) {
	pref := models.UserPreference{
		Impacts:    models.NewImpactSet(models.ImpactHigh),
		Currencies: models.NewCurrencySet("USD", "JPY"),
	}

	got := Filter(events, pref)

	assert.Equal(t, []models.Event{events[0], events[3], events[5]}, got)
}

func TestFilterPreservesOrderAndSubset(t *testing.T) {
	pref := models.UserPreference{
		Impacts:    models.NewImpactSet(models.ImpactHigh, models.ImpactMedium),
		Currencies: models.NewCurrencySet("usd", "gbp"),
	}

	got := Filter(events, pref)

	assert.Equal(t, []models.Event{events[0], events[2], events[4], events[5]}, got)
	for _, ev := range got {
		assert.Contains(t, events, ev)
		assert.True(t, pref.Impacts.Has(ev.Impact))
		assert.True(t, pref.Currencies.Has(ev.Currency))
	}
}

func TestFilterEmptySelectionsMatchNothing(t *testing.T) {
	cases := map[string]models.UserPreference{
		"nil sets":         {},
		"no impacts":       {Currencies: models.NewCurrencySet("USD")},
		"no currencies":    {Impacts: models.NewImpactSet(models.ImpactHigh)},
		"empty non-nil":    {Impacts: models.NewImpactSet(), Currencies: models.NewCurrencySet()},
		"unknown currency": {Impacts: models.NewImpactSet(models.ImpactHigh), Currencies: models.NewCurrencySet("XAU")},
	}
	for name, pref := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, Filter(events, pref))
		})
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	in := append([]models.Event(nil), events...)
	pref := models.UserPreference{
		Impacts:    models.NewImpactSet(models.ImpactMedium),
		Currencies: models.NewCurrencySet("USD", "GBP"),
	}

	_ = Filter(in, pref)

	assert.Equal(t, events, in)
}
