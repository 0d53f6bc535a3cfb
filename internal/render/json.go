package render

import (
	"bytes"
	"encoding/json"
	"html/template"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

var jsonFormatter = chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(2))

// PrettyJSON indents src with two spaces. ok is false when src is not JSON.
func PrettyJSON(src string) (string, bool) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(src)), "", "  "); err != nil {
		return src, false
	}
	return buf.String(), true
}

// JSON renders src pretty-printed and highlighted. Invalid JSON is shown as
// literal text.
func JSON(src string) template.HTML {
	pretty, ok := PrettyJSON(src)
	if !ok {
		return preformatted(src)
	}
	highlighted, err := highlight(pretty, "json")
	if err != nil {
		return preformatted(pretty)
	}
	return highlighted
}

func highlight(code, language string) (template.HTML, error) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)
	style := styles.Get("github")
	if style == nil {
		style = styles.Fallback
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := jsonFormatter.Format(&buf, style, iterator); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func preformatted(s string) template.HTML {
	return template.HTML(`<pre class="literal">` + template.HTMLEscapeString(s) + `</pre>`)
}
