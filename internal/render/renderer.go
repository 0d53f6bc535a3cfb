package render

import (
	"bytes"
	"html/template"
	"regexp"
	"strconv"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"

	"admintable.org/internal/obs"
	"admintable.org/internal/querystate"
	"admintable.org/internal/routes"
	"admintable.org/internal/schema"
)

// DefaultBreak is the length above which a scalar moves into an overlay.
const DefaultBreak = 25

const ellipsis = "…"

var uuidPattern = regexp.MustCompile(`\w{8}(-\w{4}){3}-\w{12}`)

// Kind is the shape of a rendered field.
type Kind int

const (
	KindText Kind = iota
	KindEmpty
	KindDetailLink
	KindTableLink
	KindLive
	KindUnknown
)

// Overlay is the full content of a value shown in a dialog.
type Overlay struct {
	ID    string
	Title string
	Hint  Hint
	Body  template.HTML
}

// LiveView describes a live widget. The browser connects to Endpoint.
type LiveView struct {
	Topic    string
	History  bool
	Endpoint string
	Initial  FieldView
}

// FieldView is a cell resolved against its column title.
type FieldView struct {
	Kind    Kind
	Title   string
	Text    string
	Href    string
	Overlay *Overlay
	Live    *LiveView
}

// Truncated reports whether the inline text is a preview of an overlay.
func (v FieldView) Truncated() bool { return v.Overlay != nil }

// HTML renders the view as an HTML fragment.
func (v FieldView) HTML() template.HTML {
	var buf bytes.Buffer
	if err := fieldTemplates.ExecuteTemplate(&buf, "field", v); err != nil {
		obs.Logger().Error("render field", zap.Error(err))
		return template.HTML(template.HTMLEscapeString(v.Text))
	}
	return template.HTML(buf.String())
}

// Renderer resolves cells into field views.
type Renderer struct {
	breakAt int
	seq     atomic.Uint64
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithBreakThreshold overrides DefaultBreak.
func WithBreakThreshold(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.breakAt = n
		}
	}
}

func New(opts ...Option) *Renderer {
	r := &Renderer{breakAt: DefaultBreak}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Break returns the truncation threshold.
func (r *Renderer) Break() int { return r.breakAt }

// Field renders cell under the column title, which may carry a format hint.
func (r *Renderer) Field(cell schema.Cell, title string) FieldView {
	switch c := cell.(type) {
	case schema.Scalar:
		return r.Scalar(c.Text, title)
	case schema.DetailLink:
		if !c.Valid() {
			_, display := ParseTitle(title)
			return FieldView{Kind: KindEmpty, Title: display}
		}
		v := r.Scalar(c.Value, title)
		v.Kind = KindDetailLink
		v.Href = routes.ResourceDetail(c.Resource, c.ID)
		return v
	case schema.TableLink:
		v := r.Scalar(c.Value, title)
		v.Kind = KindTableLink
		v.Href = routes.ResourceList(c.Resource, []querystate.Filter{{
			Ref: c.Filter.Col,
			Op:  c.Filter.Op,
			Val: c.Filter.Val.String(),
		}}, nil)
		return v
	case schema.LiveValue:
		_, display := ParseTitle(title)
		return FieldView{
			Kind:  KindLive,
			Title: display,
			Live: &LiveView{
				Topic:    c.Topic,
				History:  c.History,
				Endpoint: routes.Live(c.Topic, c.Initial, c.History, title),
				Initial:  r.Scalar(c.Initial, title),
			},
		}
	case schema.Unknown:
		_, display := ParseTitle(title)
		return FieldView{Kind: KindUnknown, Title: display, Text: string(c.Raw)}
	case nil:
		_, display := ParseTitle(title)
		return FieldView{Kind: KindEmpty, Title: display}
	}
	_, display := ParseTitle(title)
	return FieldView{Kind: KindUnknown, Title: display}
}

// Scalar applies the inline/overlay rule to a plain value.
func (r *Renderer) Scalar(value, title string) FieldView {
	hint, display := ParseTitle(title)
	v := FieldView{Kind: KindText, Title: display, Text: value}
	if hint == HintNone && !r.IsLong(value) {
		return v
	}
	preview, cut := truncate(value, r.breakAt)
	if cut {
		preview += ellipsis
	}
	v.Text = preview
	v.Overlay = &Overlay{
		ID:    "overlay-" + strconv.FormatUint(r.seq.Add(1), 10),
		Title: display,
		Hint:  hint,
		Body:  overlayBody(hint, value),
	}
	return v
}

// IsLong reports whether value exceeds the threshold. Values containing a
// UUID are never long.
func (r *Renderer) IsLong(value string) bool {
	return utf8.RuneCountInString(value) > r.breakAt && !uuidPattern.MatchString(value)
}

func overlayBody(hint Hint, value string) template.HTML {
	switch hint {
	case HintHTML:
		return HTML(value)
	case HintMarkdown:
		return Markdown(value)
	case HintJSON:
		return JSON(value)
	default:
		return template.HTML(`<p class="overlay-text">` + template.HTMLEscapeString(value) + `</p>`)
	}
}

func truncate(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
