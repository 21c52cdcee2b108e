package feeds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmonitor/monthend/pkg/logger"
)

const calendarHTML = `
<html><body>
<table class="earnings-calendar"><tbody>
<tr><td>AAPL</td><td>2026-09-10</td></tr>
<tr><td>MSFT</td><td>2026-09-12</td></tr>
<tr><td>not-a-symbol!</td><td>2026-09-12</td></tr>
<tr><td>GOOG</td><td>bad-date</td></tr>
<tr><td>AAPL</td><td>2026-12-10</td></tr>
</tbody></table>
</body></html>`

func TestParseCalendarHTML(t *testing.T) {
	c := &EarningsClient{logger: logger.NewNop()}

	events, err := c.parseCalendarHTML(calendarHTML)
	require.NoError(t, err)

	require.Len(t, events, 2, "malformed rows skipped")

	aapl, ok := events["AAPL"]
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), aapl.AnnounceDate,
		"earliest date wins when a symbol appears twice")

	_, ok = events["MSFT"]
	assert.True(t, ok)
}

func TestParseCalendarHTMLEmpty(t *testing.T) {
	c := &EarningsClient{logger: logger.NewNop()}
	events, err := c.parseCalendarHTML("<html><body></body></html>")
	require.NoError(t, err)
	assert.Empty(t, events)
}
