package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/goccy/go-yaml"
)

// FromAny converts a decoded YAML or JSON value into a detached node tree.
// yaml.MapSlice keeps its key order; plain maps are sorted by key.
func FromAny(v any) (*Node, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case *Node:
		return x.Clone(), nil
	case bool:
		return FromBool(x), nil
	case string:
		return FromString(x), nil
	case int:
		return FromInt(int64(x)), nil
	case int32:
		return FromInt(int64(x)), nil
	case int64:
		return FromInt(x), nil
	case uint:
		return FromInt(int64(x)), nil
	case uint32:
		return FromInt(int64(x)), nil
	case uint64:
		return FromInt(int64(x)), nil
	case float32:
		return FromFloat(float64(x)), nil
	case float64:
		return FromFloat(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return FromInt(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrType, x)
		}
		return FromFloat(f), nil
	case []any:
		vs := make([]*Node, len(x))
		for i := range x {
			n, err := FromAny(x[i])
			if err != nil {
				return nil, err
			}
			vs[i] = n
		}
		return FromSlice(vs), nil
	case yaml.MapSlice:
		kvs := make([]KeyVal, len(x))
		for i, item := range x {
			n, err := FromAny(item.Value)
			if err != nil {
				return nil, err
			}
			kvs[i] = KeyVal{Key: fmt.Sprint(item.Key), Val: n}
		}
		return FromKeyVals(kvs), nil
	case map[string]any:
		keys := slices.Sorted(maps.Keys(x))
		kvs := make([]KeyVal, len(keys))
		for i, k := range keys {
			n, err := FromAny(x[k])
			if err != nil {
				return nil, err
			}
			kvs[i] = KeyVal{Key: k, Val: n}
		}
		return FromKeyVals(kvs), nil
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = v
		}
		return FromAny(m)
	default:
		return nil, fmt.Errorf("%w: cannot convert %T", ErrType, v)
	}
}

// ToAny converts node into plain Go values suitable for encoding/json.
func ToAny(node *Node) any {
	switch node.Type {
	case ObjectType:
		res := make(map[string]any, len(node.Fields))
		for i, f := range node.Fields {
			res[f.String] = ToAny(node.Values[i])
		}
		return res
	case ArrayType:
		res := make([]any, len(node.Values))
		for i, v := range node.Values {
			res[i] = ToAny(v)
		}
		return res
	case StringType:
		return node.String
	case NumberType:
		if node.Int64 != nil {
			return *node.Int64
		}
		if node.Float64 != nil {
			return *node.Float64
		}
		return json.Number(node.Number)
	case BoolType:
		return node.Bool
	default:
		return nil
	}
}

// toOrdered is ToAny keeping object field order, for YAML output.
func toOrdered(node *Node) any {
	switch node.Type {
	case ObjectType:
		res := make(yaml.MapSlice, len(node.Fields))
		for i, f := range node.Fields {
			res[i] = yaml.MapItem{Key: f.String, Value: toOrdered(node.Values[i])}
		}
		return res
	case ArrayType:
		res := make([]any, len(node.Values))
		for i, v := range node.Values {
			res[i] = toOrdered(v)
		}
		return res
	default:
		return ToAny(node)
	}
}

func ParseYAML(d []byte) (*Node, error) {
	var v any
	if err := yaml.UnmarshalWithOptions(d, &v, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return FromAny(v)
}

func ParseJSON(d []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return FromAny(v)
}

func EncodeYAML(node *Node) ([]byte, error) {
	return yaml.Marshal(toOrdered(node))
}

func EncodeJSON(node *Node) ([]byte, error) {
	return json.Marshal(ToAny(node))
}

// MustYAML is EncodeYAML for use in messages; encoding errors are
// rendered inline.
func MustYAML(node *Node) string {
	if node == nil {
		return "<nil>"
	}
	d, err := EncodeYAML(node)
	if err != nil {
		return fmt.Sprintf("[raw *ir.Node] %v", err)
	}
	return string(bytes.TrimSpace(d))
}
