// Package record turns raw upstream payloads into typed records.
//
// Every decoder is a pure function returning the record and true, or the
// zero value and false when the payload does not have the expected shape.
// A record is never returned half populated.
package record

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// idNameSeparator splits upstream "ID - Name" strings.
const idNameSeparator = " - "

// parse decodes JSON keeping numbers as json.Number.
func parse(raw []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// trailing garbage makes the whole payload invalid
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return v, true
}

// Valid reports whether raw is a single well-formed JSON value.
func Valid(raw []byte) bool {
	_, ok := parse(raw)
	return ok
}

func parseObject(raw []byte) (map[string]any, bool) {
	v, ok := parse(raw)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// str returns a scalar field as a string. Numbers are accepted as well.
func str(m map[string]any, key string) (string, bool) {
	switch v := m[key].(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// opt returns a scalar field as a string, or "" if it is missing or not a scalar.
func opt(m map[string]any, key string) string {
	s, _ := str(m, key)
	return s
}

// required returns the values of all keys, or false if any is missing or empty.
func required(m map[string]any, keys ...string) ([]string, bool) {
	values := make([]string, len(keys))
	for i, k := range keys {
		s, ok := str(m, k)
		if !ok || s == "" {
			return nil, false
		}
		values[i] = s
	}
	return values, true
}

// present is like required but only checks that the keys exist; empty and
// null values read as "".
func present(m map[string]any, keys ...string) ([]string, bool) {
	values := make([]string, len(keys))
	for i, k := range keys {
		v, ok := m[k]
		if !ok {
			return nil, false
		}
		if v == nil {
			continue
		}
		s, ok := str(m, k)
		if !ok {
			return nil, false
		}
		values[i] = s
	}
	return values, true
}

func object(m map[string]any, key string) (map[string]any, bool) {
	o, ok := m[key].(map[string]any)
	return o, ok
}

func list(m map[string]any, key string) ([]any, bool) {
	l, ok := m[key].([]any)
	return l, ok
}

// strList returns the scalar elements of a list field; missing lists are empty.
func strList(m map[string]any, key string) []string {
	l, _ := list(m, key)
	out := make([]string, 0, len(l))
	for _, v := range l {
		switch v := v.(type) {
		case string:
			out = append(out, v)
		case json.Number:
			out = append(out, v.String())
		default:
			out = append(out, "")
		}
	}
	return out
}

// SplitIDName splits "ID - Name" on the first separator.
// Without a separator the whole string is the ID and the name is empty.
func SplitIDName(s string) (id, name string) {
	id, name, _ = strings.Cut(s, idNameSeparator)
	return strings.TrimSpace(id), strings.TrimSpace(name)
}
