package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"regexp"
	"strconv"
	"strings"

	"admintable.org/internal/schema"
)

const (
	chartWidth   = 640
	chartHeight  = 300
	chartPadLeft = 48
	chartPadTop  = 12
	chartPadBot  = 32
	chartPadRite = 12
	chartTicks   = 5
)

// Palette of named colours at shade 6. Backends name series colours as
// "<name>.<shade>".
var namedColors = map[string]string{
	"dark":   "#25262b",
	"gray":   "#868e96",
	"red":    "#fa5252",
	"pink":   "#e64980",
	"grape":  "#be4bdb",
	"violet": "#7950f2",
	"indigo": "#4c6ef5",
	"blue":   "#228be6",
	"cyan":   "#15aabf",
	"teal":   "#12b886",
	"green":  "#40c057",
	"lime":   "#82c91e",
	"yellow": "#fab005",
	"orange": "#fd7e14",
}

var defaultSeriesColors = []string{"#228be6", "#40c057", "#fd7e14", "#be4bdb", "#fa5252", "#15aabf"}

var cssColor = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]+)$`)

// SeriesColor maps a backend colour name to a CSS colour.
func SeriesColor(name string, i int) string {
	name = strings.TrimSpace(name)
	base, _, _ := strings.Cut(name, ".")
	if c, ok := namedColors[strings.ToLower(base)]; ok {
		return c
	}
	if name != "" && cssColor.MatchString(name) {
		return name
	}
	return defaultSeriesColors[i%len(defaultSeriesColors)]
}

type chartTick struct {
	Y     float64
	Label string
}

type chartLabel struct {
	X     float64
	Label string
}

type chartBar struct {
	X, Y, W, H float64
	Color      string
	Title      string
}

type chartSeries struct {
	Name  string
	Color string
	Path  string
	Area  string
}

type chartData struct {
	Type        string
	Title       string
	Description string
	Width       int
	Height      int
	Left        float64
	Right       float64
	Top         float64
	Bottom      float64
	Ticks       []chartTick
	Labels      []chartLabel
	Series      []chartSeries
	Bars        []chartBar
}

var chartTemplate = template.Must(template.New("chart").Parse(`<figure class="chart chart-{{.Type}}">
{{- if .Title}}<figcaption class="chart-title">{{.Title}}</figcaption>{{end}}
<svg viewBox="0 0 {{.Width}} {{.Height}}" xmlns="http://www.w3.org/2000/svg" role="img">
{{- range .Ticks}}<line class="grid" x1="{{$.Left}}" x2="{{$.Right}}" y1="{{.Y}}" y2="{{.Y}}" stroke="#dee2e6" stroke-dasharray="5 5"/><text x="{{$.Left}}" dx="-6" y="{{.Y}}" dy="4" text-anchor="end" font-size="11">{{.Label}}</text>{{end}}
{{- range .Labels}}<text x="{{.X}}" y="{{$.Bottom}}" dy="18" text-anchor="middle" font-size="11">{{.Label}}</text>{{end}}
{{- range .Series}}{{if .Area}}<path d="{{.Area}}" fill="{{.Color}}" fill-opacity="0.2" stroke="none"/>{{end}}{{if .Path}}<path d="{{.Path}}" fill="none" stroke="{{.Color}}" stroke-width="2"><title>{{.Name}}</title></path>{{end}}{{end}}
{{- range .Bars}}<rect x="{{.X}}" y="{{.Y}}" width="{{.W}}" height="{{.H}}" fill="{{.Color}}"><title>{{.Title}}</title></rect>{{end}}
</svg>
<ul class="chart-legend">{{range .Series}}<li><span class="swatch" style="background: {{.Color}}"></span>{{.Name}}</li>{{end}}</ul>
{{- if .Description}}<p class="chart-description">{{.Description}}</p>{{end}}
</figure>`))

// Chart renders a line, bar or area chart. Points whose value is missing or
// not numeric are left out of their series.
func Chart(g schema.GraphResponse) template.HTML {
	switch g.Type {
	case schema.ChartLine, schema.ChartBar, schema.ChartArea:
	default:
		return template.HTML(`<p class="chart-error">` +
			template.HTMLEscapeString(fmt.Sprintf("Invalid chart type: %q", g.Type)) + `</p>`)
	}
	cfg := g.Config
	data := chartData{
		Type:        g.Type,
		Title:       cfg.Title,
		Description: cfg.Description,
		Width:       chartWidth,
		Height:      chartHeight,
		Left:        chartPadLeft,
		Right:       chartWidth - chartPadRite,
		Top:         chartPadTop,
		Bottom:      chartHeight - chartPadBot,
	}

	lo, hi := 0.0, 0.0
	for _, row := range cfg.Data {
		for _, s := range cfg.Series {
			if v, ok := number(row[s.Name]); ok {
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
		}
	}
	if hi == lo {
		hi = lo + 1
	}
	plotW := data.Right - data.Left
	plotH := data.Bottom - data.Top
	y := func(v float64) float64 { return data.Bottom - (v-lo)/(hi-lo)*plotH }

	for i := 0; i <= chartTicks; i++ {
		v := lo + (hi-lo)*float64(i)/chartTicks
		data.Ticks = append(data.Ticks, chartTick{Y: round2(y(v)), Label: formatTick(v)})
	}

	n := len(cfg.Data)
	slot := plotW / float64(max(n, 1))
	center := func(i int) float64 { return data.Left + slot*(float64(i)+0.5) }
	for i, row := range cfg.Data {
		data.Labels = append(data.Labels, chartLabel{X: round2(center(i)), Label: display(row[cfg.DataKey])})
	}

	barW := slot * 0.8 / float64(max(len(cfg.Series), 1))
	for si, s := range cfg.Series {
		color := SeriesColor(s.Color, si)
		name := s.Name
		if s.Label != "" {
			name = s.Label
		}
		cs := chartSeries{Name: name, Color: color}
		var path, area strings.Builder
		firstX, lastX := -1.0, -1.0
		for i, row := range cfg.Data {
			v, ok := number(row[s.Name])
			if !ok {
				continue
			}
			if g.Type == schema.ChartBar {
				top, base := y(math.Max(v, 0)), y(math.Min(v, 0))
				data.Bars = append(data.Bars, chartBar{
					X:     round2(center(i) - slot*0.4 + barW*float64(si)),
					Y:     round2(top),
					W:     round2(barW),
					H:     round2(base - top),
					Color: color,
					Title: name + ": " + formatTick(v),
				})
				continue
			}
			px, py := coord(center(i)), coord(y(v))
			if path.Len() == 0 {
				path.WriteString("M" + px + "," + py)
				area.WriteString("M" + px + "," + coord(y(math.Max(lo, 0))) + " L" + px + "," + py)
				firstX = center(i)
			} else {
				path.WriteString(" L" + px + "," + py)
				area.WriteString(" L" + px + "," + py)
			}
			lastX = center(i)
		}
		if g.Type != schema.ChartBar {
			cs.Path = path.String()
			if g.Type == schema.ChartArea && firstX >= 0 {
				area.WriteString(" L" + coord(lastX) + "," + coord(y(math.Max(lo, 0))) + " Z")
				cs.Area = area.String()
			}
		}
		data.Series = append(data.Series, cs)
	}

	var buf bytes.Buffer
	if err := chartTemplate.Execute(&buf, data); err != nil {
		return template.HTML(`<p class="chart-error">` +
			template.HTMLEscapeString("Error rendering chart: "+err.Error()) + `</p>`)
	}
	return template.HTML(buf.String())
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func display(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func formatTick(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
