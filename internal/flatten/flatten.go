// Package flatten turns decoded JSON documents of arbitrary depth into
// single-level maps keyed by the path to each leaf.
package flatten

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind classifies a decoded JSON node.
type Kind int

const (
	Scalar Kind = iota
	Mapping
	Sequence
)

// KindOf reports the node kind of a value produced by a JSON decoder.
func KindOf(v any) Kind {
	switch v.(type) {
	case map[string]any:
		return Mapping
	case []any:
		return Sequence
	default:
		return Scalar
	}
}

// Flatten walks doc and returns its leaves keyed by their joined path.
// Mapping children are keyed parent+sep+child, sequence items
// parent+sep+index. Empty mappings and sequences are kept as leaves so the
// column still appears in the output. Keys are visited in sorted order, so
// when two paths join to the same key the later one in that order wins.
func Flatten(doc map[string]any, sep string) map[string]any {
	out := make(map[string]any, len(doc))
	for _, k := range sortedKeys(doc) {
		walk(out, k, doc[k], sep)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func walk(out map[string]any, path string, v any, sep string) {
	switch KindOf(v) {
	case Mapping:
		m := v.(map[string]any)
		if len(m) == 0 {
			out[path] = m
			return
		}
		for _, k := range sortedKeys(m) {
			walk(out, path+sep+k, m[k], sep)
		}
	case Sequence:
		s := v.([]any)
		if len(s) == 0 {
			out[path] = s
			return
		}
		for i, child := range s {
			walk(out, path+sep+strconv.Itoa(i), child, sep)
		}
	default:
		out[path] = v
	}
}

// Project keeps the keys of flat that start with prefix and returns them
// with the prefix removed. Keys equal to the prefix itself are dropped.
func Project(flat map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		name := strings.TrimPrefix(k, prefix)
		if name == "" {
			continue
		}
		out[name] = v
	}
	return out
}

// Format renders a leaf value as CSV cell text.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if len(t) == 0 {
			return "{}"
		}
	case []any:
		if len(t) == 0 {
			return "[]"
		}
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
