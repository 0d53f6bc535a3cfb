package schema

import (
	"bytes"
	"encoding/json"
	"strings"
)

// JSONSchema is the subset of JSON Schema used by create and input forms.
// Properties keep the order in which the backend declared them.
type JSONSchema struct {
	Type        string                 `json:"-"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Format      string                 `json:"format,omitempty"`
	Default     any                    `json:"default,omitempty"`
	Enum        []any                  `json:"enum,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Ref         string                 `json:"$ref,omitempty"`
	AnyOf       []*JSONSchema          `json:"anyOf,omitempty"`
	AllOf       []*JSONSchema          `json:"allOf,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Defs        map[string]*JSONSchema `json:"$defs,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
	Properties  []Property             `json:"-"`
	Nullable    bool                   `json:"-"`
}

// Property is one named entry of an object schema.
type Property struct {
	Name   string
	Schema *JSONSchema
}

type jsonSchemaAlias JSONSchema

func (s *JSONSchema) UnmarshalJSON(data []byte) error {
	var aux struct {
		*jsonSchemaAlias
		Type       json.RawMessage `json:"type"`
		Properties json.RawMessage `json:"properties"`
	}
	aux.jsonSchemaAlias = (*jsonSchemaAlias)(s)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := s.decodeType(aux.Type); err != nil {
		return err
	}
	props, err := decodeOrderedProperties(aux.Properties)
	if err != nil {
		return err
	}
	s.Properties = props
	return nil
}

// type may be a string or a list such as ["string", "null"].
func (s *JSONSchema) decodeType(raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		return json.Unmarshal(raw, &s.Type)
	}
	var types []string
	if err := json.Unmarshal(raw, &types); err != nil {
		return err
	}
	for _, t := range types {
		if t == "null" {
			s.Nullable = true
			continue
		}
		if s.Type == "" {
			s.Type = t
		}
	}
	return nil
}

func decodeOrderedProperties(raw json.RawMessage) ([]Property, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, &DecodeError{What: "schema properties", Reason: "expected object"}
	}
	var props []Property
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		var sub JSONSchema
		if err := dec.Decode(&sub); err != nil {
			return nil, err
		}
		props = append(props, Property{Name: name, Schema: &sub})
	}
	return props, nil
}

func (s *JSONSchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	base, err := json.Marshal((*jsonSchemaAlias)(s))
	if err != nil {
		return nil, err
	}
	buf.Write(base[:len(base)-1])
	sep := len(base) > 2
	writeKey := func(k string) {
		if sep {
			buf.WriteByte(',')
		}
		sep = true
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
	}
	if s.Type != "" {
		writeKey("type")
		var tb []byte
		if s.Nullable {
			tb, _ = json.Marshal([]string{s.Type, "null"})
		} else {
			tb, _ = json.Marshal(s.Type)
		}
		buf.Write(tb)
	}
	if len(s.Properties) > 0 {
		writeKey("properties")
		buf.WriteByte('{')
		for i, p := range s.Properties {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(p.Name)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := json.Marshal(p.Schema)
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// IsRequired reports whether name is listed in Required.
func (s *JSONSchema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Resolve follows a local $ref ("#/$defs/Name") against root and collapses a
// nullable anyOf (as emitted for Optional fields) to its non-null branch.
func (s *JSONSchema) Resolve(root *JSONSchema) *JSONSchema {
	cur := s
	for i := 0; i < 8 && cur != nil; i++ {
		switch {
		case cur.Ref != "" && root != nil:
			name := strings.TrimPrefix(cur.Ref, "#/$defs/")
			target, ok := root.Defs[name]
			if !ok {
				return cur
			}
			merged := *target
			if cur.Title != "" {
				merged.Title = cur.Title
			}
			if cur.Description != "" {
				merged.Description = cur.Description
			}
			if cur.Default != nil {
				merged.Default = cur.Default
			}
			cur = &merged
		case cur.Type == "" && len(cur.AnyOf) > 0:
			var pick *JSONSchema
			nullable := false
			for _, alt := range cur.AnyOf {
				if alt.Type == "null" {
					nullable = true
					continue
				}
				if pick == nil {
					pick = alt
				}
			}
			if pick == nil {
				return cur
			}
			merged := *pick
			merged.Nullable = merged.Nullable || nullable
			if cur.Title != "" {
				merged.Title = cur.Title
			}
			if cur.Description != "" {
				merged.Description = cur.Description
			}
			if cur.Default != nil {
				merged.Default = cur.Default
			}
			cur = &merged
		case cur.Type == "" && len(cur.AllOf) == 1:
			merged := *cur.AllOf[0]
			if cur.Title != "" {
				merged.Title = cur.Title
			}
			if cur.Default != nil {
				merged.Default = cur.Default
			}
			cur = &merged
		default:
			return cur
		}
	}
	return cur
}
