// Package settings validates site settings payloads and merges them into
// the stored settings document.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
)

// ErrInvalidPayload is wrapped by every validation failure.
var ErrInvalidPayload = errors.New("invalid settings payload")

type fieldKind int

const (
	kindString fieldKind = iota
	kindURL
	kindBool
)

// schema lists every group and leaf a settings document may contain.
var schema = map[string]map[string]fieldKind{
	"colors": {
		"primary":    kindString,
		"secondary":  kindString,
		"background": kindString,
		"text":       kindString,
	},
	"typography": {
		"fontFamily": kindString,
		"baseSize":   kindString,
		"lineHeight": kindString,
	},
	"content": {
		"hero_title":       kindString,
		"hero_subtitle":    kindString,
		"primary_cta_text": kindString,
		"primary_cta_url":  kindURL,
	},
	"toggles": {
		"showTestimonials": kindBool,
		"showFAQ":          kindBool,
		"showProcess":      kindBool,
	},
}

// Groups returns the recognised top-level group names in sorted order.
func Groups() []string {
	return sortedKeys(schema)
}

// FieldError reports the first offending field of a rejected payload.
type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidPayload, e.Path, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidPayload }

// Decode parses a PATCH body and validates it. The whole payload is rejected
// on the first problem; nothing is partially accepted.
func Decode(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &FieldError{Path: "$", Reason: "unexpected data after JSON object"}
	}

	return Validate(raw)
}

// Validate checks an already decoded value against the schema and returns
// a copy containing exactly the supplied fields.
func Validate(raw any) (map[string]any, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &FieldError{Path: "$", Reason: "must be an object"}
	}

	out := make(map[string]any, len(obj))
	for _, group := range sortedKeys(obj) {
		fields, known := schema[group]
		if !known {
			return nil, &FieldError{Path: group, Reason: "unknown field"}
		}

		groupObj, ok := obj[group].(map[string]any)
		if !ok {
			return nil, &FieldError{Path: group, Reason: "must be an object"}
		}

		clean := make(map[string]any, len(groupObj))
		for _, name := range sortedKeys(groupObj) {
			path := group + "." + name
			kind, known := fields[name]
			if !known {
				return nil, &FieldError{Path: path, Reason: "unknown field"}
			}
			if err := checkLeaf(path, kind, groupObj[name]); err != nil {
				return nil, err
			}
			clean[name] = groupObj[name]
		}
		out[group] = clean
	}
	return out, nil
}

func checkLeaf(path string, kind fieldKind, v any) error {
	switch kind {
	case kindBool:
		if _, ok := v.(bool); !ok {
			return &FieldError{Path: path, Reason: "must be a boolean"}
		}
		return nil
	}

	s, ok := v.(string)
	if !ok {
		return &FieldError{Path: path, Reason: "must be a string"}
	}
	if s == "" {
		return &FieldError{Path: path, Reason: "must not be empty"}
	}
	if kind == kindURL && !isURL(s) {
		return &FieldError{Path: path, Reason: "must be a URL"}
	}
	return nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
