// Package jsonutil wraps github.com/go-json-experiment/json for the
// checkpoint file and the JSONL event stream.
//
// Usage:
//
//	data, err := jsonutil.Marshal(state)
//	err = jsonutil.Unmarshal(data, &state)
package jsonutil

import (
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Unmarshal parses the JSON-encoded data and stores the result in v.
// Unknown fields are ignored so older checkpoints stay readable.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v, json.RejectUnknownMembers(false))
}

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent returns the indented JSON encoding of v.
func MarshalIndent(v any, indent string) ([]byte, error) {
	return json.Marshal(v, jsontext.WithIndent(indent))
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return jsontext.Value(data).IsValid()
}

// Encoder writes one JSON value per line.
type Encoder struct {
	w      io.Writer
	indent string
}

// NewStreamEncoder creates an encoder that writes to w.
func NewStreamEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the JSON encoding of v followed by a newline.
func (e *Encoder) Encode(v any) error {
	var opts []json.Options
	if e.indent != "" {
		opts = append(opts, jsontext.WithIndent(e.indent))
	}
	if err := json.MarshalWrite(e.w, v, opts...); err != nil {
		return err
	}
	_, err := e.w.Write([]byte{'\n'})
	return err
}

// SetIndent makes subsequent values indented. The output is then no longer
// one value per line.
func (e *Encoder) SetIndent(indent string) {
	e.indent = indent
}
