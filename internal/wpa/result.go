package wpa

import (
	"bytes"
	"encoding/json"
)

// Kind identifies the shape of a Result.
type Kind int

// Result kinds.
const (
	// KindText is a bare token ("OK", "PONG", an assigned network id).
	KindText Kind = iota

	// KindFields is a flat key=value mapping (STATUS, SIGNAL_POLL).
	KindFields

	// KindRows is an ordered list of labelled rows (SCAN_RESULTS, LIST_NETWORKS).
	KindRows

	// KindFail is the failure marker.
	KindFail
)

// Result is the payload of a Reply. Exactly one of Text, Fields or Rows is
// meaningful, selected by Kind.
type Result struct {
	Kind   Kind
	Text   string
	Fields map[string]string
	Rows   []Row
}

// Fail returns the failure marker.
func Fail() Result {
	return Result{Kind: KindFail, Text: TokenFail}
}

// Text returns a bare token result.
func Text(s string) Result {
	return Result{Kind: KindText, Text: s}
}

// Fields returns a key=value result.
func Fields(m map[string]string) Result {
	return Result{Kind: KindFields, Fields: m}
}

// Rows returns a tabular result.
func Rows(rows []Row) Result {
	return Result{Kind: KindRows, Rows: rows}
}

// Failed reports whether r is the failure marker.
func (r Result) Failed() bool {
	return r.Kind == KindFail
}

// Empty reports whether r carries nothing: no rows, no fields, or empty text.
func (r Result) Empty() bool {
	switch r.Kind {
	case KindRows:
		return len(r.Rows) == 0
	case KindFields:
		return len(r.Fields) == 0
	case KindText:
		return r.Text == ""
	default:
		return false
	}
}

// MarshalJSON renders the result as a string, an object, an array of objects,
// or the literal "FAIL".
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindFail:
		return json.Marshal(TokenFail)
	case KindFields:
		if r.Fields == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(r.Fields)
	case KindRows:
		if r.Rows == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.Rows)
	default:
		return json.Marshal(r.Text)
	}
}

// Field is one labelled cell of a Row.
type Field struct {
	Label string
	Value string
}

// Row is a table row with its cells in column order.
type Row []Field

// Get returns the value for label.
func (r Row) Get(label string) (string, bool) {
	for _, f := range r {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

// set replaces the value of an existing label in place, or appends it.
func (r Row) set(label, value string) Row {
	for i := range r {
		if r[i].Label == label {
			r[i].Value = value
			return r
		}
	}
	return append(r, Field{Label: label, Value: value})
}

// Labels returns the row's labels in column order.
func (r Row) Labels() []string {
	labels := make([]string, len(r))
	for i, f := range r {
		labels[i] = f.Label
	}
	return labels
}

// MarshalJSON renders the row as an object whose keys keep column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
