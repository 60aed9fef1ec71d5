package codec

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/phautamaki/orchard/pkg/api"
	"github.com/phautamaki/orchard/pkg/tensor"
)

// registerBuiltins installs codecs for the array types orchard ships with.
// Matrices travel as columnar payloads (a shape plus named numeric columns)
// instead of going through the structural path, which keeps large numeric
// data in flat typed slices end to end.
func registerBuiltins(r *TypeRegistry) {
	opts := Options{Serializer: serializeTensor, Deserializer: deserializeTensor}
	for _, sample := range []any{&mat.Dense{}, &tensor.CSR{}, &tensor.COO{}} {
		if err := r.Register(sample, opts); err != nil {
			panic(fmt.Sprintf("codec: registering builtin: %v", err))
		}
	}
}

// shapeKey is the reserved column name carrying the matrix dimensions.
// tensor.FromColumnar tells the three array types apart by their remaining
// column names.
const shapeKey = "shape"

func serializeTensor(v any) (any, error) {
	col, ok := tensor.ToColumnar(v)
	if !ok {
		return nil, fmt.Errorf("unsupported tensor type %T", v)
	}
	for _, n := range col.Shape {
		if n < 1 {
			return nil, fmt.Errorf("cannot serialize an empty matrix")
		}
	}
	payload := make(map[string]any, 1+len(col.Floats)+len(col.Ints))
	payload[shapeKey] = col.Shape
	for name, data := range col.Floats {
		payload[name] = data
	}
	for name, data := range col.Ints {
		payload[name] = data
	}
	return payload, nil
}

func deserializeTensor(payload any) (any, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tensor payload must be a map, got %T", payload)
	}
	col := &api.Columnar{
		Floats: make(map[string][]float64),
		Ints:   make(map[string][]int),
	}
	for name, v := range m {
		switch data := v.(type) {
		case []int:
			if name == shapeKey {
				col.Shape = data
			} else {
				col.Ints[name] = data
			}
		case []float64:
			col.Floats[name] = data
		default:
			return nil, fmt.Errorf("tensor column %q must be numeric, got %T", name, v)
		}
	}
	return tensor.FromColumnar(col)
}
