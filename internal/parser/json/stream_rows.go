// Package json streams account records from JSON sources: a root array of
// objects, an envelope object holding such an array, a single object, or
// newline-delimited objects (optionally after any of the former).
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"collectwise/internal/config"
	"collectwise/internal/parser"
)

// StreamJSONRows streams JSON records into pooled *parser.Row objects aligned
// to columns.
//
// Row numbers are record ordinals (first record = 1). Object keys are
// normalized like CSV headers, so "Account Number" matches account_number.
//
// Options:
//   - header_map: raw key -> column name overrides.
//   - trim_space (true).
//   - array_join_separator (","): arrays of strings become one joined value.
//
// A record that is not an object, or carries a nested object, is reported
// through onErr and skipped. Malformed JSON ends the stream and is returned.
func StreamJSONRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *parser.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	dec := json.NewDecoder(src)
	dec.UseNumber()

	s := &stream{
		ctx:     ctx,
		dec:     dec,
		out:     out,
		onErr:   onErr,
		width:   len(columns),
		colPos:  make(map[string]int, len(columns)),
		hm:      opt.StringMap("header_map"),
		trim:    opt.Bool("trim_space", true),
		joinSep: opt.String("array_join_separator", ","),
	}
	for i, c := range columns {
		s.colPos[c] = i
	}

	tok, err := dec.Token()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("json: read first token: %w", err)
	}

	switch tok {
	case json.Delim('['):
		if err := s.streamArray(); err != nil {
			return err
		}
	case json.Delim('{'):
		single, err := s.streamEnvelopeOrSingle()
		if err != nil {
			return err
		}
		if single != nil {
			if err := s.emit(single); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("json: unsupported root token %v (want object or array)", tok)
	}
	return s.streamTrailing()
}

type stream struct {
	ctx   context.Context
	dec   *json.Decoder
	out   chan<- *parser.Row
	onErr func(line int, err error)

	width   int
	colPos  map[string]int
	hm      map[string]string
	trim    bool
	joinSep string

	line int
}

func (s *stream) report(err error) {
	if s.onErr != nil {
		s.onErr(s.line, err)
	}
}

// emit converts one decoded record and sends it. Non-object records are
// row-level defects.
func (s *stream) emit(raw any) error {
	s.line++

	obj, ok := raw.(map[string]any)
	if !ok {
		s.report(fmt.Errorf("record is %s, not an object", kindOf(raw)))
		return nil
	}

	row := parser.GetRow(s.width)
	row.Line = s.line
	for k, v := range obj {
		pos, ok := s.colPos[parser.NormalizeHeader(k, false, s.hm)]
		if !ok {
			continue
		}
		val, err := s.scalar(v)
		if err != nil {
			row.Free()
			s.report(fmt.Errorf("field %q: %w", k, err))
			return nil
		}
		row.V[pos] = val
	}

	select {
	case s.out <- row:
		return nil
	case <-s.ctx.Done():
		row.Drop()
		return s.ctx.Err()
	}
}

// scalar flattens a JSON value to the string form the validator expects.
func (s *stream) scalar(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if s.trim {
			t = strings.TrimSpace(t)
		}
		if t == "" {
			return nil, nil
		}
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, it := range t {
			if it == nil {
				continue
			}
			str, ok := it.(string)
			if !ok {
				return nil, errors.New("array of non-string values")
			}
			parts = append(parts, str)
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return strings.Join(parts, s.joinSep), nil
	default:
		return nil, fmt.Errorf("%s is not a scalar", kindOf(v))
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// streamArray streams the elements of an array whose '[' was consumed, and
// consumes the closing ']'. null elements are skipped.
func (s *stream) streamArray() error {
	for s.dec.More() {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		var raw any
		if err := s.dec.Decode(&raw); err != nil {
			return fmt.Errorf("json: decode record %d: %w", s.line+1, err)
		}
		if raw == nil {
			continue
		}
		if err := s.emit(raw); err != nil {
			return err
		}
	}
	return expectDelim(s.dec, ']')
}

// streamEnvelopeOrSingle walks a root object whose '{' was consumed. The
// first array-valued field is streamed as the records and the remaining
// fields are skipped. Without one, the object itself is the single record and
// is returned.
func (s *stream) streamEnvelopeOrSingle() (map[string]any, error) {
	single := make(map[string]any)

	for s.dec.More() {
		keyTok, err := s.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read object key: %w", err)
		}
		key, _ := keyTok.(string)

		valTok, err := s.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read value of %q: %w", key, err)
		}

		if valTok == json.Delim('[') {
			if err := s.streamArray(); err != nil {
				return nil, err
			}
			for s.dec.More() {
				if _, err := s.dec.Token(); err != nil {
					return nil, fmt.Errorf("json: skip envelope key: %w", err)
				}
				if err := skipNextValue(s.dec); err != nil {
					return nil, err
				}
			}
			return nil, expectDelim(s.dec, '}')
		}

		val, err := materialize(s.dec, valTok)
		if err != nil {
			return nil, err
		}
		single[key] = val
	}
	if err := expectDelim(s.dec, '}'); err != nil {
		return nil, err
	}
	return single, nil
}

// streamTrailing streams newline-delimited records until EOF.
func (s *stream) streamTrailing() error {
	for {
		var raw any
		err := s.dec.Decode(&raw)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("json: decode record %d: %w", s.line+1, err)
		}
		if err := s.emit(raw); err != nil {
			return err
		}
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if tok != want {
		return fmt.Errorf("json: expected %q, got %v", want, tok)
	}
	return nil
}

// skipNextValue consumes the next value without materializing it.
func skipNextValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: skip value: %w", err)
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	end := json.Delim(']')
	if d == '{' {
		end = '}'
	}
	for dec.More() {
		if d == '{' {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("json: skip object key: %w", err)
			}
		}
		if err := skipNextValue(dec); err != nil {
			return err
		}
	}
	return expectDelim(dec, end)
}

// materialize builds the Go value whose first token was already read.
func materialize(dec *json.Decoder, tok any) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		m := make(map[string]any)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested key: %w", err)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested value: %w", err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			k, _ := kt.(string)
			m[k] = v
		}
		return m, expectDelim(dec, '}')
	case '[':
		var arr []any
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested element: %w", err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, expectDelim(dec, ']')
	default:
		return nil, fmt.Errorf("json: unexpected delimiter %q", d)
	}
}
