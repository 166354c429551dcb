package news

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"fxcalsync/internal/models"
)

const (
	DefaultURL     = "https://www.forexfactory.com/calendar?day=today"
	DefaultTimeout = 60 * time.Second

	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	rowSelector = `tr.calendar__row`
)

// extractRowsJS collects the calendar table into RawRow shaped objects.
const extractRowsJS = `Array.from(document.querySelectorAll('tr.calendar__row')).map(function (row) {
  var text = function (cls) {
    var el = row.querySelector('.' + cls);
    return el ? el.innerText.trim() : '';
  };
  var icon = row.querySelector('.calendar__impact span');
  return {
    currency: text('calendar__currency'),
    title: text('calendar__event-title'),
    impactClass: icon ? icon.className : '',
    actual: text('calendar__actual'),
    forecast: text('calendar__forecast'),
    time: text('calendar__time')
  };
})`

// ForexFactory scrapes the ForexFactory "today" calendar with headless Chromium.
type ForexFactory struct {
	logger  *slog.Logger
	url     string
	timeout time.Duration
}

// NewForexFactory creates the scraper. Empty url and zero timeout select the defaults.
func NewForexFactory(logger *slog.Logger, url string, timeout time.Duration) *ForexFactory {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ForexFactory{logger: logger, url: url, timeout: timeout}
}

// FetchToday loads the page, waits for the calendar table and extracts its rows.
func (f *ForexFactory) FetchToday(parentCtx context.Context) ([]models.Event, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parentCtx, opts...)
	defer cancelAlloc()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, f.timeout)
	defer timeoutCancel()

	f.logger.Info("Fetching news from ForexFactory.", "url", f.url)

	var rows []RawRow
	tasks := chromedp.Tasks{
		chromedp.Navigate(f.url),
		chromedp.WaitReady(rowSelector, chromedp.ByQuery),
		chromedp.Evaluate(extractRowsJS, &rows),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("forexfactory: chromedp run failed: %w", err)
	}

	events := NormalizeRows(rows)
	f.logger.Info("Parsed calendar rows.", "rows", len(rows), "events", len(events))
	return events, nil
}
