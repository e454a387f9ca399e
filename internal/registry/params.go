package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Params are the raw per-request operation parameters as decoded from JSON.
type Params map[string]any

type ParamKind string

const (
	KindInt   ParamKind = "int"
	KindFloat ParamKind = "float"
)

// ParamSpec describes one accepted parameter.
// Clamp pulls out-of-range values into [Min, Max]; without it Min/Max are
// not enforced. Positive rejects values <= 0 since no sane default exists.
type ParamSpec struct {
	Kind        ParamKind `json:"type"`
	Default     float64   `json:"default"`
	Min         float64   `json:"min,omitempty"`
	Max         float64   `json:"max,omitempty"`
	Clamp       bool      `json:"clamped,omitempty"`
	Odd         bool      `json:"odd,omitempty"`
	Positive    bool      `json:"positive,omitempty"`
	Description string    `json:"description,omitempty"`
}

type ParamSchema map[string]ParamSpec

// Int returns a normalized integer parameter.
func (p Params) Int(key string) int {
	return int(math.Round(p.Float(key)))
}

// Float returns a normalized numeric parameter or 0 when absent.
func (p Params) Float(key string) float64 {
	v, ok := p[key]
	if !ok {
		return 0
	}
	f, err := toFloat(v)
	if err != nil {
		return 0
	}
	return f
}

// Normalize validates raw params against the schema of op: defaults are
// filled in, clampable values are clamped (and forced odd where required),
// everything else out of range is rejected. Keys unknown to the schema are dropped.
func Normalize(op string, schema ParamSchema, raw Params) (Params, error) {
	out := make(Params, len(schema))
	for key, spec := range schema {
		value, ok := raw[key]
		if !ok || value == nil {
			out[key] = spec.Default
			continue
		}

		f, err := toFloat(value)
		if err != nil {
			return nil, &InvalidParameterError{Op: op, Param: key, Value: value, Reason: err.Error()}
		}
		if math.IsNaN(f) {
			return nil, &InvalidParameterError{Op: op, Param: key, Value: value, Reason: "not a number"}
		}

		if spec.Kind == KindInt && !math.IsInf(f, 0) {
			f = math.Round(f)
		}

		switch {
		case spec.Clamp:
			f = math.Max(spec.Min, math.Min(spec.Max, f))
		case math.IsInf(f, 0):
			return nil, &InvalidParameterError{Op: op, Param: key, Value: value, Reason: "must be finite"}
		}

		if spec.Positive && f <= 0 {
			return nil, &InvalidParameterError{Op: op, Param: key, Value: value, Reason: "must be greater than zero"}
		}

		if spec.Odd && int(f)%2 == 0 {
			// чётное ядро делаем нечётным, не выходя за верхнюю границу
			if spec.Clamp && f+1 > spec.Max {
				f--
			} else {
				f++
			}
		}

		out[key] = f
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
