package codec

import (
	"fmt"
	"reflect"

	"github.com/phautamaki/orchard/pkg/api"
)

// Codec converts application values to and from the serialized forms in
// pkg/api. A codec is stateless apart from its registry, so it is safe for
// concurrent use once the registration phase is over.
//
// The supported value domain is closed on purpose: Go's literal types
// (bools, all integer and float widths, strings, []byte), homogeneous
// slices of them, []any, string-keyed maps, ObjectRefs, and registered
// types. Everything round-trips to exactly the type it went in as; there is
// no reflective "best effort" for arbitrary types, because a best effort
// that changes types on the way back is worse than an immediate error.
type Codec struct {
	types *TypeRegistry
}

// New creates a codec over the given registry.
func New(types *TypeRegistry) *Codec {
	return &Codec{types: types}
}

// Types returns the codec's registry.
func (c *Codec) Types() *TypeRegistry { return c.types }

// Serialize converts v into its structural form. The second result lists
// every ObjectRef contained in v, in first-appearance order, for the
// store's reference-graph tracking.
//
// Values of unregistered non-literal types fail with an
// UnregisteredTypeError.
func (c *Codec) Serialize(v any) (*api.Value, []api.ObjectRef, error) {
	s := serializeState{codec: c}
	val, err := s.walk(v)
	if err != nil {
		return nil, nil, err
	}
	return val, s.contained, nil
}

type serializeState struct {
	codec     *Codec
	contained []api.ObjectRef
	seen      map[api.ObjectRef]bool
}

func (s *serializeState) addRef(r api.ObjectRef) {
	if s.seen == nil {
		s.seen = make(map[api.ObjectRef]bool)
	}
	if !s.seen[r] {
		s.seen[r] = true
		s.contained = append(s.contained, r)
	}
}

func (s *serializeState) walk(v any) (*api.Value, error) {
	switch x := v.(type) {
	case nil:
		return &api.Value{Kind: api.KindNil}, nil
	case bool:
		return &api.Value{Kind: api.KindBool, Bool: x}, nil

	case int:
		return &api.Value{Kind: api.KindInt, Int: int64(x)}, nil
	case int8:
		return &api.Value{Kind: api.KindInt, Int: int64(x), Bits: 8}, nil
	case int16:
		return &api.Value{Kind: api.KindInt, Int: int64(x), Bits: 16}, nil
	case int32:
		return &api.Value{Kind: api.KindInt, Int: int64(x), Bits: 32}, nil
	case int64:
		return &api.Value{Kind: api.KindInt, Int: x, Bits: 64}, nil

	case uint:
		return &api.Value{Kind: api.KindUint, Uint: uint64(x)}, nil
	case uint8:
		return &api.Value{Kind: api.KindUint, Uint: uint64(x), Bits: 8}, nil
	case uint16:
		return &api.Value{Kind: api.KindUint, Uint: uint64(x), Bits: 16}, nil
	case uint32:
		return &api.Value{Kind: api.KindUint, Uint: uint64(x), Bits: 32}, nil
	case uint64:
		return &api.Value{Kind: api.KindUint, Uint: x, Bits: 64}, nil

	case float32:
		return &api.Value{Kind: api.KindFloat, Float: float64(x), Bits: 32}, nil
	case float64:
		return &api.Value{Kind: api.KindFloat, Float: x, Bits: 64}, nil

	case string:
		return &api.Value{Kind: api.KindString, Str: x}, nil
	case []byte:
		return &api.Value{Kind: api.KindBytes, Bytes: x}, nil

	case api.ObjectRef:
		s.addRef(x)
		return &api.Value{Kind: api.KindRef, Ref: x}, nil

	case []int:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return &api.Value{Kind: api.KindIntList, Ints: out}, nil
	case []int32:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return &api.Value{Kind: api.KindIntList, Ints: out, Bits: 32}, nil
	case []int64:
		return &api.Value{Kind: api.KindIntList, Ints: x, Bits: 64}, nil

	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return &api.Value{Kind: api.KindFloatList, Floats: out, Bits: 32}, nil
	case []float64:
		return &api.Value{Kind: api.KindFloatList, Floats: x, Bits: 64}, nil

	case []string:
		return &api.Value{Kind: api.KindStringList, Strings: x}, nil
	case []bool:
		return &api.Value{Kind: api.KindBoolList, Bools: x}, nil

	case []any:
		list := make([]*api.Value, len(x))
		for i, elem := range x {
			ev, err := s.walk(elem)
			if err != nil {
				return nil, err
			}
			list[i] = ev
		}
		return &api.Value{Kind: api.KindList, List: list}, nil

	case map[string]any:
		m := make(map[string]*api.Value, len(x))
		for k, elem := range x {
			ev, err := s.walk(elem)
			if err != nil {
				return nil, err
			}
			m[k] = ev
		}
		return &api.Value{Kind: api.KindMap, Map: m}, nil
	}

	return s.walkRegistered(v)
}

func (s *serializeState) walkRegistered(v any) (*api.Value, error) {
	reg, ok := s.codec.types.lookupValue(v)
	if !ok {
		return nil, &api.UnregisteredTypeError{TypeName: reflect.TypeOf(v).String()}
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, fmt.Errorf("cannot serialize a nil %s", reg.name)
	}

	switch reg.strategy {
	case strategyGob:
		data, err := gobEncode(v)
		if err != nil {
			return nil, fmt.Errorf("serializing %s: %w", reg.name, err)
		}
		return &api.Value{Kind: api.KindBlob, Tag: reg.name, Bytes: data}, nil

	case strategyCustom:
		payload, err := reg.ser(v)
		if err != nil {
			return nil, fmt.Errorf("serializing %s: %w", reg.name, err)
		}
		body, err := s.walk(payload)
		if err != nil {
			return nil, fmt.Errorf("serializing %s payload: %w", reg.name, err)
		}
		return &api.Value{Kind: api.KindCustom, Tag: reg.name, Body: body}, nil

	default:
		return s.walkStructural(v, reg)
	}
}

func (s *serializeState) walkStructural(v any, reg *registration) (*api.Value, error) {
	pv := pointerTo(v, reg.rt)

	node := &api.Value{Kind: api.KindObject, Tag: reg.name}

	fields := pv.Interface().(Decomposer).Decompose()
	if len(fields) > 0 {
		node.Fields = make(map[string]*api.Value, len(fields))
		for k, fv := range fields {
			fval, err := s.walk(fv)
			if err != nil {
				return nil, fmt.Errorf("serializing %s.%s: %w", reg.name, k, err)
			}
			node.Fields[k] = fval
		}
	}

	if reg.hasArgs {
		args := pv.Interface().(ArgsDecomposer).DecomposeArgs()
		node.Args = make([]*api.Value, len(args))
		for i, av := range args {
			aval, err := s.walk(av)
			if err != nil {
				return nil, fmt.Errorf("serializing %s arg %d: %w", reg.name, i, err)
			}
			node.Args[i] = aval
		}
	}

	return node, nil
}

// pointerTo returns v as an addressable *T, copying when the caller passed
// the bare struct value. Pointer-receiver Decompose methods then work for
// both T and *T inputs.
func pointerTo(v any, rt reflect.Type) reflect.Value {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.Type().Elem() == rt {
			return rv
		}
		rv = rv.Elem()
	}
	pv := reflect.New(rt)
	pv.Elem().Set(rv)
	return pv
}

// Deserialize inverts Serialize. Registered types come back as pointers:
// a serialized T or *T deserializes to *T.
func (c *Codec) Deserialize(val *api.Value) (any, error) {
	if val == nil {
		return nil, fmt.Errorf("cannot deserialize a nil value")
	}
	switch val.Kind {
	case api.KindNil:
		return nil, nil
	case api.KindBool:
		return val.Bool, nil

	case api.KindInt:
		switch val.Bits {
		case 0:
			return int(val.Int), nil
		case 8:
			return int8(val.Int), nil
		case 16:
			return int16(val.Int), nil
		case 32:
			return int32(val.Int), nil
		case 64:
			return val.Int, nil
		}
		return nil, fmt.Errorf("invalid integer width %d", val.Bits)

	case api.KindUint:
		switch val.Bits {
		case 0:
			return uint(val.Uint), nil
		case 8:
			return uint8(val.Uint), nil
		case 16:
			return uint16(val.Uint), nil
		case 32:
			return uint32(val.Uint), nil
		case 64:
			return val.Uint, nil
		}
		return nil, fmt.Errorf("invalid unsigned width %d", val.Bits)

	case api.KindFloat:
		if val.Bits == 32 {
			return float32(val.Float), nil
		}
		return val.Float, nil

	case api.KindString:
		return val.Str, nil
	case api.KindBytes:
		return val.Bytes, nil

	case api.KindRef:
		return val.Ref, nil

	case api.KindIntList:
		switch val.Bits {
		case 0:
			out := make([]int, len(val.Ints))
			for i, n := range val.Ints {
				out[i] = int(n)
			}
			return out, nil
		case 32:
			out := make([]int32, len(val.Ints))
			for i, n := range val.Ints {
				out[i] = int32(n)
			}
			return out, nil
		case 64:
			return val.Ints, nil
		}
		return nil, fmt.Errorf("invalid integer list width %d", val.Bits)

	case api.KindFloatList:
		if val.Bits == 32 {
			out := make([]float32, len(val.Floats))
			for i, f := range val.Floats {
				out[i] = float32(f)
			}
			return out, nil
		}
		return val.Floats, nil

	case api.KindStringList:
		return val.Strings, nil
	case api.KindBoolList:
		return val.Bools, nil

	case api.KindList:
		out := make([]any, len(val.List))
		for i, ev := range val.List {
			elem, err := c.Deserialize(ev)
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil

	case api.KindMap:
		out := make(map[string]any, len(val.Map))
		for k, ev := range val.Map {
			elem, err := c.Deserialize(ev)
			if err != nil {
				return nil, err
			}
			out[k] = elem
		}
		return out, nil

	case api.KindBlob:
		reg, ok := c.types.lookupTag(val.Tag)
		if !ok {
			return nil, &api.UnregisteredTypeError{TypeName: val.Tag}
		}
		if reg.strategy != strategyGob {
			return nil, fmt.Errorf("type %s was not registered with the gob fallback", val.Tag)
		}
		ptr := reflect.New(reg.rt)
		if err := gobDecode(val.Bytes, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("deserializing %s: %w", val.Tag, err)
		}
		return ptr.Interface(), nil

	case api.KindCustom:
		reg, ok := c.types.lookupTag(val.Tag)
		if !ok {
			return nil, &api.UnregisteredTypeError{TypeName: val.Tag}
		}
		if reg.strategy != strategyCustom {
			return nil, fmt.Errorf("type %s was not registered with a custom codec", val.Tag)
		}
		payload, err := c.Deserialize(val.Body)
		if err != nil {
			return nil, fmt.Errorf("deserializing %s payload: %w", val.Tag, err)
		}
		out, err := reg.deser(payload)
		if err != nil {
			return nil, fmt.Errorf("deserializing %s: %w", val.Tag, err)
		}
		return out, nil

	case api.KindObject:
		return c.deserializeObject(val)
	}

	return nil, fmt.Errorf("invalid value kind %d", val.Kind)
}

func (c *Codec) deserializeObject(val *api.Value) (any, error) {
	reg, ok := c.types.lookupTag(val.Tag)
	if !ok {
		return nil, &api.UnregisteredTypeError{TypeName: val.Tag}
	}
	if reg.strategy != strategyStructural {
		return nil, fmt.Errorf("type %s was not registered structurally", val.Tag)
	}

	// Allocation only; no constructor logic runs.
	ptr := reflect.New(reg.rt)

	if len(val.Args) > 0 {
		ar, ok := ptr.Interface().(ArgsRecomposer)
		if !ok {
			return nil, fmt.Errorf("type %s carries constructor arguments it cannot restore", val.Tag)
		}
		args := make([]any, len(val.Args))
		for i, av := range val.Args {
			arg, err := c.Deserialize(av)
			if err != nil {
				return nil, fmt.Errorf("deserializing %s arg %d: %w", val.Tag, i, err)
			}
			args[i] = arg
		}
		if err := ar.RecomposeArgs(args); err != nil {
			return nil, fmt.Errorf("restoring %s args: %w", val.Tag, err)
		}
	}

	fields := make(map[string]any, len(val.Fields))
	for k, fv := range val.Fields {
		field, err := c.Deserialize(fv)
		if err != nil {
			return nil, fmt.Errorf("deserializing %s.%s: %w", val.Tag, k, err)
		}
		fields[k] = field
	}
	if err := ptr.Interface().(Recomposer).Recompose(fields); err != nil {
		return nil, fmt.Errorf("restoring %s: %w", val.Tag, err)
	}
	return ptr.Interface(), nil
}
