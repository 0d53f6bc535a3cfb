package console

import (
	"bytes"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"admintable.org/internal/obs"
)

var funcMap = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"opLabel": func(op string) string {
		if l, ok := operatorLabels[op]; ok {
			return l
		}
		return op
	},
}

const tmplBase = `
{{define "base"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
{{with .Refresh}}<meta http-equiv="refresh" content="{{.Seconds}};url={{.URL}}">{{end}}
<title>{{if .Title}}{{.Title}} · {{end}}{{.App.Name}}</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:system-ui,sans-serif;background:#0d1117;color:#c9d1d9;font-size:14px;line-height:1.5;display:flex;min-height:100vh}
a{color:#58a6ff;text-decoration:none}
a:hover{text-decoration:underline}
aside{background:#161b22;border-right:1px solid #30363d;width:220px;padding:12px;flex-shrink:0}
aside .brand{color:#f0f6fc;font-weight:700;font-size:15px;display:flex;gap:8px;align-items:center;margin-bottom:12px}
aside .brand img{width:24px;height:24px}
aside h2{font-size:11px;color:#8b949e;text-transform:uppercase;letter-spacing:.06em;margin:12px 0 4px}
aside a{display:block;color:#c9d1d9;padding:3px 8px;border-radius:4px}
aside a:hover{background:#21262d;text-decoration:none}
aside .user{margin-top:24px;border-top:1px solid #30363d;padding-top:8px;color:#8b949e;font-size:12px}
aside .version{color:#8b949e;font-size:11px}
main{padding:16px 24px;flex:1;min-width:0}
h1{font-size:18px;font-weight:700;color:#f0f6fc;margin-bottom:8px}
h2{font-size:13px;font-weight:600;color:#8b949e;text-transform:uppercase;letter-spacing:.06em;margin:20px 0 8px}
.dim{color:#8b949e}
.banner{background:#1f6feb22;border:1px solid #1f6feb;border-radius:6px;padding:8px 12px;margin-bottom:12px}
.flash{border-radius:6px;padding:8px 12px;margin-bottom:8px;border:1px solid #1f6feb;background:#1f6feb22}
.flash.failed{border-color:#f87171;background:#f8717122}
.flash b{margin-right:8px}
.section{background:#161b22;border:1px solid #30363d;border-radius:6px;margin-bottom:16px;padding:12px;overflow-x:auto}
table{width:100%;border-collapse:collapse;font-size:13px}
th{text-align:left;padding:6px 10px;border-bottom:1px solid #30363d;color:#8b949e;font-weight:600;font-size:12px}
td{padding:5px 10px;border-bottom:1px solid #21262d;vertical-align:top}
tr:hover td{background:#161b22}
.fields{display:grid;grid-template-columns:repeat(auto-fill,minmax(260px,1fr));gap:12px}
.fields .label{color:#8b949e;font-size:12px}
.badge{display:inline-block;padding:1px 8px;border-radius:10px;font-size:12px;background:#1f6feb33;border:1px solid #1f6feb;margin:2px}
.badge button{background:none;border:0;color:#c9d1d9;cursor:pointer;margin-left:4px}
form.inline{display:inline}
input,select,textarea{background:#0d1117;color:#c9d1d9;border:1px solid #30363d;border-radius:4px;padding:4px 6px;font:inherit}
button{background:#21262d;color:#c9d1d9;border:1px solid #30363d;border-radius:4px;padding:4px 10px;cursor:pointer;font:inherit}
button.primary{background:#1f6feb;border-color:#1f6feb;color:#fff}
.form-field{margin-bottom:10px;display:flex;flex-direction:column;gap:2px;max-width:480px}
.form-field .error{color:#f87171;font-size:12px}
.form-field .description{color:#8b949e;font-size:12px}
.form-error{color:#f87171;margin-bottom:8px}
.pager{display:flex;gap:8px;align-items:center;margin-top:8px}
.error-page{color:#f87171}
dialog.overlay{background:#161b22;color:#c9d1d9;border:1px solid #30363d;border-radius:6px;max-width:80vw;max-height:80vh;padding:12px}
dialog.overlay header{display:flex;justify-content:space-between;gap:12px}
.overlay-open{background:none;border:0;padding:0 4px}
.live-indicator{display:inline-block;width:8px;height:8px;border-radius:50%;background:#f59e0b;margin-right:4px}
.live-indicator.connected{background:#56d364}
.live-indicator.failed{background:#f87171}
pre{white-space:pre-wrap;word-break:break-all;font-size:12px}
.markdown table{width:auto}
.markdown p,.markdown ul{margin-bottom:8px}
.chart svg{background:#0d1117;border-radius:4px}
</style>
</head>
<body>
{{if .App.Name}}<aside>
  <div class="brand">{{with .App.IconSrc}}<img src="{{.}}" alt="">{{end}}<a href="/">{{.App.Name}}</a></div>
  {{range .App.Navigation}}<h2>{{.Name}}</h2>
  {{range .Links}}<a href="{{linkHref .}}">{{.Label}}</a>{{end}}
  {{end}}
  <div class="user">{{with .User}}Signed in as <b>{{.}}</b><br><a href="/logout">Log out</a>{{end}}</div>
  {{with .App.Version}}<div class="version">v{{.}}</div>{{end}}
</aside>{{end}}
<main>
{{range .Flashes}}<div class="flash{{if .Failed}} failed{{end}}"><b>{{.Title}}</b>{{.Message}}</div>{{end}}
{{template "content" .}}
</main>
<script>
document.querySelectorAll('.live[data-endpoint]').forEach(function(el){
  var es=new EventSource(el.dataset.endpoint);
  es.onmessage=function(ev){
    var u=JSON.parse(ev.data);
    var ind=el.querySelector('.live-indicator');
    ind.className='live-indicator '+u.state;ind.title=u.label;
    el.querySelector('.live-value').innerHTML=u.value;
    var h=el.querySelector('.live-history');
    if(h&&u.history){h.innerHTML=u.history;}
  };
});
</script>
</body>
</html>{{end}}

{{define "table"}}<table>
<thead><tr>{{range .Headers}}<th{{with .Description}} title="{{.}}"{{end}}>
{{- if .Href}}<a href="{{.Href}}">{{.Display}}</a>{{if eq .Sort "asc"}} &#9650;{{else if eq .Sort "desc"}} &#9660;{{end}}{{else}}{{.Display}}{{end}}</th>{{end}}</tr></thead>
<tbody>{{range .Rows}}<tr>{{range .}}<td>{{.HTML}}</td>{{end}}</tr>{{else}}<tr><td colspan="{{len .Headers}}" class="dim">No rows</td></tr>{{end}}</tbody>
</table>
<div class="pager">
{{if .PrevHref}}<a href="{{.PrevHref}}">&laquo; Prev</a>{{end}}
<span class="dim">Page {{.Page}} of {{.Pages}} · {{.Total}} rows</span>
{{if .NextHref}}<a href="{{.NextHref}}">Next &raquo;</a>{{end}}
</div>{{end}}
`

const tmplDashboard = `{{define "content"}}
{{with .Content.Banner}}<div class="banner markdown">{{.}}</div>{{end}}
<div class="markdown">{{.Content.Body}}</div>
{{end}}`

const tmplPage = `{{define "content"}}
<h1>{{.Title}}</h1>
<div class="markdown">{{.Content}}</div>
{{end}}`

const tmplError = `{{define "content"}}
<h1>{{.Title}}</h1>
<p class="error-page">{{.Content.Message}}</p>
{{with .Content.Back}}<p><a href="{{.}}">Go back</a></p>{{end}}
{{end}}`

const tmplList = `{{define "content"}}{{with .Content}}
<h1>{{.Title}}</h1>
{{with .Description}}<p class="dim">{{.}}</p>{{end}}
{{if .CreateHref}}<p><a href="{{.CreateHref}}">+ Create</a></p>{{end}}
<div class="section">
  {{if .Available}}<form method="post" action="{{.Action}}">
    <input type="hidden" name="op" value="filters-add">
    <select name="ref">{{range .Available}}<option value="{{.Ref}}">{{.Display}}</option>{{end}}</select>
    <select name="fop">{{range .Operators}}<option value="{{.Op}}">{{.Label}}</option>{{end}}</select>
    <input name="val" placeholder="value">
    <button type="submit">Add Filter</button>
  </form>{{end}}
  <div>{{range .Applied}}<form class="inline" method="post" action="{{$.Content.Action}}">
    <input type="hidden" name="op" value="filters-remove">
    <input type="hidden" name="ref" value="{{.Ref}}"><input type="hidden" name="fop" value="{{.Op}}"><input type="hidden" name="val" value="{{.Val}}">
    <span class="badge">{{.Display}} {{opLabel .Op}} <b>{{.Val}}</b><button type="submit" aria-label="Remove filter">&times;</button></span>
  </form>{{end}}</div>
</div>
<div class="section">
{{template "table" .Table}}
<form method="post" action="{{.Action}}" class="pager">
  <input type="hidden" name="op" value="perPage">
  <label>Rows per page <select name="perPage" onchange="this.form.submit()">{{range .PerPageChoices}}<option value="{{.}}"{{if eq . $.Content.PerPage}} selected{{end}}>{{.}}</option>{{end}}</select></label>
  <noscript><button type="submit">Apply</button></noscript>
</form>
</div>
{{end}}{{end}}`

const tmplDetail = `{{define "content"}}{{with .Content}}
<h1>{{.Title}}</h1>
{{with .Description}}<p class="dim">{{.}}</p>{{end}}
<div class="section fields">{{range .Fields}}<div><div class="label">{{.Title}}</div>{{.HTML}}</div>{{end}}</div>
{{if .Actions}}<h2>Actions</h2>
{{range .Actions}}<div class="section">
  <form method="post" action="{{.Href}}">
    <b>{{.Title}}</b>{{with .Description}} <span class="dim">{{.}}</span>{{end}}
    {{with .Error}}<div class="form-error">{{.}}</div>{{end}}
    {{.Form}}
    <button type="submit" class="primary">{{.Title}}</button>
  </form>
</div>{{end}}{{end}}
{{if .Tables}}<h2>Tables</h2>
{{range .Tables}}<div class="section">
  <b><a href="{{.ListHref}}">{{.Title}}</a></b>{{with .Description}} <span class="dim">{{.}}</span>{{end}}
  {{if .Error}}<p class="error-page">{{.Error}}</p>{{else}}{{template "table" .Table}}{{end}}
</div>{{end}}{{end}}
{{if .Graphs}}<h2>Graphs</h2>
{{range .Graphs}}<div class="section chart">
  <b>{{.Title}}</b>{{with .Description}} <span class="dim">{{.}}</span>{{end}}
  <form method="get" action="{{.Action}}">
    {{range .Keep}}<input type="hidden" name="{{.Name}}" value="{{.Value}}">{{end}}
    <label>From <input type="date" name="{{.FromParam}}" value="{{.From}}"></label>
    <label>To <input type="date" name="{{.ToParam}}" value="{{.To}}"></label>
    <button type="submit">Apply</button>
  </form>
  {{if .Error}}<p class="error-page">{{.Error}}</p>{{else}}{{.Chart}}{{end}}
</div>{{end}}{{end}}
{{end}}{{end}}`

const tmplForm = `{{define "content"}}{{with .Content}}
<h1>{{.Title}}</h1>
{{with .Description}}<p class="dim">{{.}}</p>{{end}}
<div class="section">
<form method="post" action="{{.Action}}">
  {{with .Error}}<div class="form-error">{{.}}</div>{{end}}
  {{.Form}}
  <button type="submit" class="primary">{{.Submit}}</button>
</form>
</div>
{{end}}{{end}}`

const tmplLogin = `{{define "content"}}{{with .Content}}
<div class="section" style="max-width:420px;margin:40px auto">
<h1>Welcome back!</h1>
<p class="dim">To continue, please log in</p>
<form method="post" action="{{.Action}}">
  <div class="form-field"><label for="username">Username</label><input id="username" name="username" value="{{.Username}}" required autofocus></div>
  <div class="form-field"><label for="password">Password</label><input id="password" name="password" type="password" required></div>
  {{if .NeedOTP}}<div class="form-field"><label for="otp">One-time password</label><input id="otp" name="otp" inputmode="numeric" autocomplete="one-time-code"></div>{{end}}
  {{with .Error}}<div class="form-error">{{.}}</div>{{end}}
  <button type="submit" class="primary">Sign in</button>
</form>
</div>
{{end}}{{end}}`

var pageTemplates = map[string]*template.Template{}

func init() {
	base := template.Must(template.New("base").Funcs(funcMap).Funcs(template.FuncMap{"linkHref": linkHref}).Parse(tmplBase))
	for name, src := range map[string]string{
		"dashboard": tmplDashboard,
		"page":      tmplPage,
		"error":     tmplError,
		"list":      tmplList,
		"detail":    tmplDetail,
		"form":      tmplForm,
		"login":     tmplLogin,
	} {
		pageTemplates[name] = template.Must(template.Must(base.Clone()).Parse(src))
	}
}

// renderPage executes page into a buffer first so a template error still yields
// a clean 500.
func renderPage(w http.ResponseWriter, status int, page string, data *pageData) {
	t, ok := pageTemplates[page]
	if !ok {
		http.Error(w, "unknown page "+page, http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		obs.Logger().Error("template error", zap.String("page", page), zap.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
