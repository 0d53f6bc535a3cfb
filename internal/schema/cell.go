// Package schema holds the JSON payloads exchanged with the admin backend.
package schema

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Text is a scalar that may arrive as a JSON string, number, bool or null and
// is displayed as text.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text(scalarText(data))
	return nil
}

func (t Text) String() string { return string(t) }

// scalarText renders a JSON scalar the way it is displayed in a cell. Non
// scalar values keep their compact JSON text.
func scalarText(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
	case 'n':
		if string(data) == "null" {
			return ""
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

// Cell is one table or detail value. It is one of Scalar, DetailLink,
// TableLink, LiveValue or Unknown.
type Cell interface {
	isCell()
}

// Scalar is a plain string, number or boolean.
type Scalar struct {
	Text string
	Null bool
}

// LinkFilter is the single filter carried by a table link.
type LinkFilter struct {
	Col string `json:"col"`
	Op  string `json:"op"`
	Val Text   `json:"val"`
}

// DetailLink points at a single resource instance.
type DetailLink struct {
	Resource string
	ID       string
	Value    string
}

// TableLink points at a resource list pre-filtered by one filter.
type TableLink struct {
	Resource string
	Filter   LinkFilter
	Value    string
}

// LiveValue is a value streamed over the live-data socket.
type LiveValue struct {
	Topic   string
	Initial string
	History bool
}

// Unknown is any object the decoder did not recognise. Raw is its JSON.
type Unknown struct {
	Raw json.RawMessage
}

func (Scalar) isCell()     {}
func (DetailLink) isCell() {}
func (TableLink) isCell()  {}
func (LiveValue) isCell()  {}
func (Unknown) isCell()    {}

// Valid reports whether the link has the fields needed to navigate.
func (d DetailLink) Valid() bool { return d.Resource != "" && d.ID != "" }

type cellEnvelope struct {
	Type     string          `json:"type"`
	Kind     string          `json:"kind"`
	Resource string          `json:"resource"`
	ID       Text            `json:"id"`
	Value    Text            `json:"value"`
	Filter   *LinkFilter     `json:"filter"`
	Topic    Text            `json:"topic"`
	Initial  Text            `json:"initial"`
	History  json.RawMessage `json:"history"`
}

// DecodeCell decodes one cell. It never fails: anything it cannot place
// becomes Unknown.
func DecodeCell(raw json.RawMessage) Cell {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Scalar{Null: true}
	}
	switch trimmed[0] {
	case '{':
	case 'n':
		return Scalar{Null: true}
	default:
		return Scalar{Text: scalarText(trimmed)}
	}

	var env cellEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Unknown{Raw: append(json.RawMessage(nil), trimmed...)}
	}
	switch {
	case env.Type == "link" && env.Kind == "detail":
		return DetailLink{Resource: env.Resource, ID: string(env.ID), Value: string(env.Value)}
	case env.Type == "link" && env.Kind == "table" && env.Filter != nil:
		return TableLink{Resource: env.Resource, Filter: *env.Filter, Value: string(env.Value)}
	case env.Type == "live" && env.Topic != "":
		return LiveValue{Topic: string(env.Topic), Initial: string(env.Initial), History: truthy(env.History)}
	}
	return Unknown{Raw: append(json.RawMessage(nil), trimmed...)}
}

// history arrives as a bool; older backends sent a count.
func truthy(raw json.RawMessage) bool {
	s := string(bytes.TrimSpace(raw))
	switch s {
	case "", "null", "false", "0", `""`:
		return false
	case "true":
		return true
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n != 0
	}
	return true
}

// Row is a list of cells.
type Row []Cell

func (r *Row) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	row := make(Row, len(raws))
	for i, raw := range raws {
		row[i] = DecodeCell(raw)
	}
	*r = row
	return nil
}

// TableHeader describes one column.
type TableHeader struct {
	Ref         string `json:"ref"`
	Display     string `json:"display"`
	Sortable    bool   `json:"sortable"`
	Sort        string `json:"sort"` // asc, desc or empty
	Description string `json:"description"`
}

// Field is one [header, cell] pair of a detail view.
type Field struct {
	Head TableHeader
	Cell Cell
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return &DecodeError{What: "detail field", Reason: "expected [header, cell] pair"}
	}
	if err := json.Unmarshal(pair[0], &f.Head); err != nil {
		return err
	}
	f.Cell = DecodeCell(pair[1])
	return nil
}
