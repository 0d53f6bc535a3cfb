package render

import (
	"bytes"
	"html/template"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var (
	markdownOnce sync.Once
	markdownInst goldmark.Markdown

	policyOnce sync.Once
	policyInst *bluemonday.Policy
)

// The configuration never changes, so one instance serves every request.
func markdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInst = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.DefinitionList,
			),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		)
	})
	return markdownInst
}

func htmlPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").Globally()
		p.AllowAttrs("style").OnElements("span", "div", "p", "td", "th")
		policyInst = p
	})
	return policyInst
}

// Markdown renders GitHub-flavoured markdown. Raw HTML in the source is
// dropped by the renderer.
func Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdownParser().Convert([]byte(src), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(buf.String())
}

// HTML sanitises backend-provided markup before it is embedded in a page.
func HTML(src string) template.HTML {
	return template.HTML(htmlPolicy().Sanitize(src))
}
