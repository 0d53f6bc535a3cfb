package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"admintable.org/internal/obs"
	"admintable.org/internal/schema"
)

// FormError is the key of errors that belong to the whole form.
const FormError = ""

// FieldErrors maps a property name to its validation message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == FormError {
			parts = append(parts, e[k])
			continue
		}
		parts = append(parts, k+": "+e[k])
	}
	return strings.Join(parts, "; ")
}

// ActionSchema describes the parameters of an action as an object schema so
// actions share the form renderer.
func ActionSchema(a schema.Action) *schema.JSONSchema {
	s := &schema.JSONSchema{Type: "object", Title: a.Title, Description: a.Description}
	for _, p := range a.Parameters {
		prop := &schema.JSONSchema{Title: p.Title}
		if prop.Title == "" {
			prop.Title = p.Attr
		}
		if p.Description != nil {
			prop.Description = *p.Description
		}
		switch p.Type {
		case "int":
			prop.Type = "integer"
		case "bool":
			prop.Type = "boolean"
		default:
			prop.Type = "string"
		}
		if p.Required {
			s.Required = append(s.Required, p.Attr)
		}
		s.Properties = append(s.Properties, schema.Property{Name: p.Attr, Schema: prop})
	}
	return s
}

type formOption struct {
	Value    string
	Label    string
	Selected bool
}

type formField struct {
	Name        string
	ID          string
	Label       string
	Description string
	Input       string
	Value       string
	Checked     bool
	Required    bool
	Multiple    bool
	Step        string
	Min         string
	Max         string
	Options     []formOption
	Error       string
}

type formData struct {
	Error  string
	Fields []formField
}

var formTemplate = template.Must(template.New("form").Parse(`
{{- if .Error}}<p class="form-error" role="alert">{{.Error}}</p>{{end}}
{{- range .Fields}}
<div class="form-field{{if .Error}} has-error{{end}}">
  {{- if eq .Input "checkbox"}}
  <label for="{{.ID}}"><input type="checkbox" id="{{.ID}}" name="{{.Name}}" value="true"{{if .Checked}} checked{{end}}> {{.Label}}</label>
  {{- else}}
  <label for="{{.ID}}">{{.Label}}{{if .Required}} <span class="required">*</span>{{end}}</label>
  {{- if eq .Input "select"}}
  <select id="{{.ID}}" name="{{.Name}}"{{if .Required}} required{{end}}{{if .Multiple}} multiple{{end}}>
    {{- if and (not .Required) (not .Multiple)}}<option value=""></option>{{end}}
    {{- range .Options}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}
  </select>
  {{- else if eq .Input "textarea"}}
  <textarea id="{{.ID}}" name="{{.Name}}" rows="4"{{if .Required}} required{{end}}>{{.Value}}</textarea>
  {{- else}}
  <input type="{{.Input}}" id="{{.ID}}" name="{{.Name}}" value="{{.Value}}"{{if .Required}} required{{end}}{{if .Step}} step="{{.Step}}"{{end}}{{if .Min}} min="{{.Min}}"{{end}}{{if .Max}} max="{{.Max}}"{{end}}>
  {{- end}}
  {{- end}}
  {{- if .Description}}<small class="description">{{.Description}}</small>{{end}}
  {{- if .Error}}<small class="error">{{.Error}}</small>{{end}}
</div>
{{- end}}`))

// Form renders the inputs of an object schema. values prefill the inputs
// (submitted values or query parameters); schema defaults fill the rest.
// The caller supplies the surrounding form element.
func Form(s *schema.JSONSchema, values url.Values, errs FieldErrors) template.HTML {
	if s == nil {
		return ""
	}
	data := formData{Error: errs[FormError]}
	for _, p := range s.Properties {
		prop := p.Schema.Resolve(s)
		if prop == nil {
			continue
		}
		data.Fields = append(data.Fields, buildField(p.Name, prop, s.IsRequired(p.Name), values, errs[p.Name]))
	}
	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, data); err != nil {
		obs.Logger().Error("render form", zap.Error(err))
		return ""
	}
	return template.HTML(buf.String())
}

func buildField(name string, prop *schema.JSONSchema, required bool, values url.Values, errMsg string) formField {
	f := formField{
		Name:        name,
		ID:          "field-" + name,
		Label:       prop.Title,
		Description: prop.Description,
		Required:    required,
		Error:       errMsg,
	}
	if f.Label == "" {
		f.Label = name
	}

	current, present := values[name]
	if !present && prop.Default != nil {
		current = defaultStrings(prop.Default)
	}
	first := ""
	if len(current) > 0 {
		first = current[0]
	}

	switch {
	case len(prop.Enum) > 0:
		f.Input = "select"
		f.Options = enumOptions(prop.Enum, current)
	case prop.Type == "array" && prop.Items != nil && len(prop.Items.Enum) > 0:
		f.Input = "select"
		f.Multiple = true
		f.Options = enumOptions(prop.Items.Enum, current)
	case prop.Type == "boolean":
		f.Input = "checkbox"
		f.Checked = truthyForm(first)
	case prop.Type == "integer":
		f.Input = "number"
		f.Step = "1"
		f.Value = first
	case prop.Type == "number":
		f.Input = "number"
		f.Step = "any"
		f.Value = first
	case prop.Type == "array":
		f.Input = "textarea"
		f.Value = strings.Join(current, "\n")
	case prop.Type == "object":
		f.Input = "textarea"
		f.Value = first
	default:
		f.Input = stringInput(prop.Format)
		f.Value = first
	}
	if prop.Minimum != nil {
		f.Min = strconv.FormatFloat(*prop.Minimum, 'f', -1, 64)
	}
	if prop.Maximum != nil {
		f.Max = strconv.FormatFloat(*prop.Maximum, 'f', -1, 64)
	}
	return f
}

func stringInput(format string) string {
	switch format {
	case "date":
		return "date"
	case "date-time":
		return "datetime-local"
	case "time":
		return "time"
	case "email":
		return "email"
	case "password":
		return "password"
	case "uri":
		return "url"
	case "textarea", "multiline":
		return "textarea"
	}
	return "text"
}

func enumOptions(enum []any, current []string) []formOption {
	opts := make([]formOption, 0, len(enum))
	for _, e := range enum {
		v := enumString(e)
		selected := false
		for _, c := range current {
			if c == v {
				selected = true
				break
			}
		}
		opts = append(opts, formOption{Value: v, Label: v, Selected: selected})
	}
	return opts
}

func enumString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func defaultStrings(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, enumString(e))
		}
		return out
	case map[string]any:
		b, _ := json.Marshal(x)
		return []string{string(b)}
	}
	return []string{enumString(v)}
}

func truthyForm(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "1", "yes":
		return true
	}
	return false
}

// ParseForm coerces submitted values to the types of the schema and checks
// required fields, enums and bounds. Empty optional fields are omitted, or
// sent as null when the schema allows it.
func ParseForm(s *schema.JSONSchema, form url.Values) (map[string]any, FieldErrors) {
	out := make(map[string]any)
	errs := FieldErrors{}
	if s == nil {
		return out, nil
	}
	for _, p := range s.Properties {
		prop := p.Schema.Resolve(s)
		if prop == nil {
			continue
		}
		v, set, msg := parseValue(prop, form[p.Name], s.IsRequired(p.Name))
		if msg != "" {
			errs[p.Name] = msg
			continue
		}
		if set {
			out[p.Name] = v
		}
	}
	if len(errs) > 0 {
		return out, errs
	}
	return out, nil
}

func parseValue(prop *schema.JSONSchema, raw []string, required bool) (any, bool, string) {
	if prop.Type == "boolean" && len(prop.Enum) == 0 {
		return len(raw) > 0 && truthyForm(raw[0]), true, ""
	}
	if prop.Type == "array" {
		return parseArray(prop, raw, required)
	}

	text := ""
	if len(raw) > 0 {
		text = strings.TrimSpace(raw[0])
	}
	if text == "" {
		if required {
			return nil, false, "This field is required"
		}
		if prop.Nullable {
			return nil, true, ""
		}
		return nil, false, ""
	}

	if len(prop.Enum) > 0 {
		for _, e := range prop.Enum {
			if enumString(e) == text {
				return e, true, ""
			}
		}
		return nil, false, "Must be one of the listed values"
	}
	v, msg := parseScalar(prop, text)
	return v, msg == "", msg
}

func parseScalar(prop *schema.JSONSchema, text string) (any, string) {
	switch prop.Type {
	case "integer":
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, "Must be a whole number"
		}
		if msg := checkBounds(prop, float64(n)); msg != "" {
			return nil, msg
		}
		return n, ""
	case "number":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, "Must be a number"
		}
		if msg := checkBounds(prop, f); msg != "" {
			return nil, msg
		}
		return f, ""
	case "boolean":
		return truthyForm(text), ""
	case "object":
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, "Must be a JSON object"
		}
		return obj, ""
	}
	n := len([]rune(text))
	if prop.MinLength != nil && n < *prop.MinLength {
		return nil, fmt.Sprintf("Must be at least %d characters", *prop.MinLength)
	}
	if prop.MaxLength != nil && n > *prop.MaxLength {
		return nil, fmt.Sprintf("Must be at most %d characters", *prop.MaxLength)
	}
	return text, ""
}

func checkBounds(prop *schema.JSONSchema, v float64) string {
	if prop.Minimum != nil && v < *prop.Minimum {
		return "Must be at least " + strconv.FormatFloat(*prop.Minimum, 'f', -1, 64)
	}
	if prop.Maximum != nil && v > *prop.Maximum {
		return "Must be at most " + strconv.FormatFloat(*prop.Maximum, 'f', -1, 64)
	}
	return ""
}

// Arrays arrive either as repeated values (multi-select) or one per line.
func parseArray(prop *schema.JSONSchema, raw []string, required bool) (any, bool, string) {
	var items []string
	for _, r := range raw {
		for _, line := range strings.Split(r, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				items = append(items, line)
			}
		}
	}
	if len(items) == 0 {
		if required {
			return nil, false, "This field is required"
		}
		return []any{}, true, ""
	}
	itemSchema := prop.Items
	if itemSchema == nil {
		itemSchema = &schema.JSONSchema{Type: "string"}
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		v, _, msg := parseValue(itemSchema, []string{it}, false)
		if msg != "" {
			return nil, false, msg + ": " + it
		}
		out = append(out, v)
	}
	return out, true, ""
}
