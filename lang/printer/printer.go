// Package printer renders an evaluated values.Value, following spec.md
// §8's canonical record normal form (label-sorted, order-insensitive), in
// the language's own textual form or as YAML/JSON for downstream tooling
// (SPEC_FULL.md §3).
package printer

import (
	"encoding/json"
	"fmt"

	"github.com/mna/laconic/lang/values"
	"gopkg.in/yaml.v3"
)

// Dhall renders v in the canonical textual dump spec.md §8 describes:
// values.Value.String() already produces this (label-sorted records,
// `Some x`/`None` for Optionals, signed Integers), so this is a thin,
// named entry point rather than a reimplementation.
func Dhall(v values.Value) string { return v.String() }

// JSON renders v as JSON, converting Records/Lists/Optionals to their
// plain Go equivalents first.
func JSON(v values.Value, indent bool) (string, error) {
	b, err := toJSONValue(v)
	if err != nil {
		return "", err
	}
	var out []byte
	if indent {
		out, err = json.MarshalIndent(b, "", "  ")
	} else {
		out, err = json.Marshal(b)
	}
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// YAML renders v as YAML via the same plain-Go-value conversion as JSON.
func YAML(v values.Value) (string, error) {
	b, err := toJSONValue(v)
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// toJSONValue converts a values.Value into plain bool/uint64/int64/float64/
// string/[]any/map[string]any (None becomes nil), the shapes encoding/json and yaml.v3 both marshal
// natively. Functions and BuiltinTokens have no data representation and
// are rejected: a caller printing an unapplied function wants a clearer
// error than a silently-empty object.
func toJSONValue(v values.Value) (interface{}, error) {
	switch vv := v.(type) {
	case values.Bool:
		return bool(vv), nil
	case values.Natural:
		return uint64(vv), nil
	case values.Integer:
		return int64(vv), nil
	case values.Double:
		return float64(vv), nil
	case values.String:
		return string(vv), nil
	case values.Optional:
		if !vv.IsSome() {
			return nil, nil
		}
		return toJSONValue(vv.Val)
	case *values.Record:
		out := make(map[string]interface{}, vv.Len())
		for _, l := range vv.Labels() {
			fv, _ := vv.Get(l)
			cv, err := toJSONValue(fv)
			if err != nil {
				return nil, err
			}
			out[l] = cv
		}
		return out, nil
	case *values.List:
		out := make([]interface{}, vv.Len())
		for i, e := range vv.Elems {
			cv, err := toJSONValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot render a value of kind %s as data", v.Kind())
	}
}
