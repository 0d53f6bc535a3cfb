package render

import "html/template"

var fieldTemplates = template.Must(template.New("render").Parse(`
{{define "text"}}{{if .Overlay}}<span class="preview">{{.Text}}</span>{{else}}<span class="value">{{.Text}}</span>{{end}}{{end}}

{{define "overlay"}}{{with .Overlay}}<button type="button" class="overlay-open" title="Show full value" onclick="document.getElementById('{{.ID}}').showModal()">&#128065;</button>
<dialog id="{{.ID}}" class="overlay overlay-{{.Hint}}">
  <header><h1>{{.Title}}</h1><form method="dialog"><button class="overlay-close" aria-label="Close">&times;</button></form></header>
  <div class="overlay-body">{{.Body}}</div>
</dialog>{{end}}{{end}}

{{define "field"}}{{if eq .Kind 1}}<span class="value empty"></span>
{{- else if eq .Kind 2 3}}<span class="field"><a href="{{.Href}}">{{template "text" .}}</a>{{template "overlay" .}}</span>
{{- else if eq .Kind 4}}{{template "live" .Live}}
{{- else if eq .Kind 5}}<code class="value unknown">{{.Text}}</code>
{{- else}}<span class="field">{{template "text" .}}{{template "overlay" .}}</span>{{end}}{{end}}

{{define "live"}}<span class="live" data-endpoint="{{.Endpoint}}" data-topic="{{.Topic}}">
  <span class="live-indicator connecting" title="Connecting"></span>
  <span class="live-value">{{template "field" .Initial}}</span>
  {{- if .History}}<span class="live-history"></span>{{end}}
</span>{{end}}
`))
