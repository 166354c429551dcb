package eventid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fxcalsync/internal/models"
)

var refDate = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func TestIdentifyCPIScenario(t *testing.T) {
	ev := models.Event{Currency: "USD", Title: "CPI m/m", Impact: models.ImpactHigh, TimeText: "8:30am"}

	id := Identify(ev, refDate)

	assert.True(t, strings.HasPrefix(id, "20250115"))
	assert.Equal(t, "20250115cpimmusd", id)
	assert.NotContains(t, id, "w")
	assert.True(t, Valid(id))
}

func TestIdentifyStripsForbiddenCharacters(t *testing.T) {
	ev := models.Event{Currency: "NZD", Title: "Westpac Consumer Sentiment (Q/Q) y-o-y, ÄÖÜ"}

	id := Identify(ev, refDate)

	assert.Equal(t, "20250115estpacconsumersentimentqqond", id)
	for _, c := range "wxyz ()/-,ÄÖÜ" {
		assert.NotContains(t, id, string(c))
	}
}

func TestIdentifyIsDeterministic(t *testing.T) {
	ev := models.Event{Currency: "EUR", Title: "German Flash Manufacturing PMI", Forecast: "43.7"}
	other := ev
	other.Forecast = "44.1"
	other.Actual = "45.0"
	other.TimeText = "10:30am"

	assert.Equal(t, Identify(ev, refDate), Identify(ev, refDate))
	assert.Equal(t, Identify(ev, refDate), Identify(other, refDate), "forecast/actual/time do not change identity")
}

func TestIdentifyDayScoped(t *testing.T) {
	ev := models.Event{Currency: "USD", Title: "Unemployment Claims"}
	next := refDate.AddDate(0, 0, 1)

	assert.NotEqual(t, Identify(ev, refDate), Identify(ev, next))
	assert.True(t, strings.HasPrefix(Identify(ev, next), "20250116"))
}

func TestIdentifyCurrencyDistinguishesEvents(t *testing.T) {
	usd := models.Event{Currency: "USD", Title: "CPI m/m"}
	cad := models.Event{Currency: "CAD", Title: "CPI m/m"}

	assert.NotEqual(t, Identify(usd, refDate), Identify(cad, refDate))
}

func TestIdentifyTruncates(t *testing.T) {
	ev := models.Event{Currency: "GBP", Title: strings.Repeat("abc", 60)}

	id := Identify(ev, refDate)

	assert.Len(t, id, MaxLength)
	assert.True(t, strings.HasPrefix(id, "20250115abcabc"))
	assert.Equal(t, id, Identify(ev, refDate))
}

func TestIdentifyAlphabetProperty(t *testing.T) {
	titles := []string{"", "!!!", "Wxyz", "ISM Services PMI", "BOJ Policy Rate", "10-y Bond Auction", "Zew Economic Sentiment"}
	currencies := []string{"USD", "EUR", "JPY", "CHF", "CNY", "xyz"}
	for _, title := range titles {
		for _, cur := range currencies {
			id := Identify(models.Event{Title: title, Currency: cur}, refDate)
			assert.True(t, Valid(id), "%q/%q -> %q", title, cur, id)
			assert.GreaterOrEqual(t, len(id), 8)
		}
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("20250115abc"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("20250115w"))
	assert.False(t, Valid("ABC"))
	assert.False(t, Valid(strings.Repeat("a", MaxLength+1)))
}
