package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admintable.org/internal/live"
)

func entries(values ...string) []live.Entry {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out := make([]live.Entry, len(values))
	for i, v := range values {
		out[i] = live.Entry{Value: v, Time: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestSparkline(t *testing.T) {
	svg := string(Sparkline(entries("1", "3", "2")))
	require.NotEmpty(t, svg)
	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Contains(t, svg, `viewBox="0 0 250 25"`)
	// first point: x=1, value 1 is the minimum so y=height-1
	assert.Contains(t, svg, `d="M1.00,24.00 L84.33,1.00 L167.67,12.50"`)
	assert.Contains(t, svg, `stroke="magenta"`)
	assert.Contains(t, svg, `stroke-dasharray="4 4"`)
}

func TestSparklineFlatAndNonNumeric(t *testing.T) {
	assert.Empty(t, Sparkline(entries("a", "b")))
	svg := string(Sparkline(entries("5", "oops", "5")))
	assert.Contains(t, svg, "12.50")
	assert.NotContains(t, svg, "NaN")
}

func TestHistoryTooltip(t *testing.T) {
	rows := HistoryTooltip(entries("2", "x", "8", "5"))
	require.Len(t, rows, 5)
	assert.Equal(t, TooltipRow{Label: "First", Value: "2", Time: "12:00:00"}, rows[0])
	assert.Equal(t, TooltipRow{Label: "Last", Value: "5", Time: "12:00:03"}, rows[1])
	assert.Equal(t, TooltipRow{Label: "Min", Value: "2", Time: "12:00:00"}, rows[2])
	assert.Equal(t, TooltipRow{Label: "Max", Value: "8", Time: "12:00:02"}, rows[3])
	assert.Equal(t, TooltipRow{Label: "Avg", Value: "5.00", Time: "-"}, rows[4])

	html := string(HistoryTooltipHTML(entries("1")))
	assert.Contains(t, html, "<td>Avg</td><td>1.00</td>")
}

func TestHistoryTooltipWithoutNumbers(t *testing.T) {
	rows := HistoryTooltip(entries("up", "down"))
	require.Len(t, rows, 2)
	assert.Nil(t, HistoryTooltip(nil))
}
