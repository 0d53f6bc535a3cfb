package render

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"

	"admintable.org/internal/live"
)

const (
	sparkWidth  = 250
	sparkHeight = 25
)

type sparkData struct {
	Width, Height int
	Line          string
	MinMarker     string
	MaxMarker     string
	Average       string
}

var sparkTemplate = template.Must(template.New("spark").Parse(
	`<svg class="sparkline" viewBox="0 0 {{.Width}} {{.Height}}" preserveAspectRatio="none" xmlns="http://www.w3.org/2000/svg">` +
		`<path d="{{.Line}}" stroke="blue" fill="none" stroke-width="1"/>` +
		`<path d="{{.MinMarker}}" stroke="magenta" stroke-width="1"/>` +
		`<path d="{{.MaxMarker}}" stroke="magenta" stroke-width="1"/>` +
		`<path d="{{.Average}}" stroke="gray" stroke-width="2" vector-effect="non-scaling-stroke" stroke-dasharray="4 4"/>` +
		`</svg>`))

// Sparkline draws the numeric entries as a small line chart with min and max
// markers and a dashed average line. It returns "" when no entry is numeric.
func Sparkline(entries []live.Entry) template.HTML {
	var values []float64
	for _, e := range entries {
		if v, ok := e.Number(); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return ""
	}

	minV, maxV, sum := values[0], values[0], 0.0
	minI, maxI := 0, 0
	for i, v := range values {
		if v < minV {
			minV, minI = v, i
		}
		if v > maxV {
			maxV, maxI = v, i
		}
		sum += v
	}
	avg := sum / float64(len(values))

	x := func(i int) float64 { return float64(i)/float64(len(values))*sparkWidth + 1 }
	y := func(v float64) float64 {
		if maxV == minV {
			return sparkHeight / 2.0
		}
		return sparkHeight - 2 - ((v-minV)/(maxV-minV))*(sparkHeight-2) + 1
	}

	var line strings.Builder
	for i, v := range values {
		if i == 0 {
			line.WriteByte('M')
		} else {
			line.WriteString(" L")
		}
		line.WriteString(coord(x(i)) + "," + coord(y(v)))
	}

	data := sparkData{
		Width:     sparkWidth,
		Height:    sparkHeight,
		Line:      line.String(),
		MinMarker: "M" + coord(x(minI)) + ",0 L" + coord(x(minI)) + "," + coord(y(minV)),
		MaxMarker: "M" + coord(x(maxI)) + "," + strconv.Itoa(sparkHeight) + " L" + coord(x(maxI)) + "," + coord(y(maxV)),
		Average:   "M0," + coord(y(avg)) + " L" + strconv.Itoa(sparkWidth) + "," + coord(y(avg)),
	}
	var buf bytes.Buffer
	if err := sparkTemplate.Execute(&buf, data); err != nil {
		return ""
	}
	return template.HTML(buf.String())
}

func coord(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

// TooltipRow is one line of the history tooltip.
type TooltipRow struct {
	Label string
	Value string
	Time  string
}

// HistoryTooltip lists the first, last, min, max and average values with the
// time they were received. Min, Max and Avg are omitted when no value is
// numeric.
func HistoryTooltip(entries []live.Entry) []TooltipRow {
	st, ok := live.ComputeStats(entries)
	if !ok {
		return nil
	}
	rows := []TooltipRow{
		{Label: "First", Value: st.First.Value, Time: clock(st.First)},
		{Label: "Last", Value: st.Last.Value, Time: clock(st.Last)},
	}
	if st.Numeric > 0 {
		rows = append(rows,
			TooltipRow{Label: "Min", Value: st.Min.Value, Time: clock(st.Min)},
			TooltipRow{Label: "Max", Value: st.Max.Value, Time: clock(st.Max)},
			TooltipRow{Label: "Avg", Value: strconv.FormatFloat(st.Mean, 'f', 2, 64), Time: "-"},
		)
	}
	return rows
}

func clock(e live.Entry) string { return e.Time.Format("15:04:05") }

var tooltipTemplate = template.Must(template.New("tooltip").Parse(
	`<table class="history-tooltip"><tbody>{{range .}}<tr><td>{{.Label}}</td><td>{{.Value}}</td><td>{{.Time}}</td></tr>{{end}}</tbody></table>`))

// HistoryTooltipHTML renders HistoryTooltip as a table.
func HistoryTooltipHTML(entries []live.Entry) template.HTML {
	rows := HistoryTooltip(entries)
	if len(rows) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := tooltipTemplate.Execute(&buf, rows); err != nil {
		return ""
	}
	return template.HTML(buf.String())
}
