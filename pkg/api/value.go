package api

// ValueKind discriminates the variants of Value.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindList
	KindIntList
	KindFloatList
	KindStringList
	KindBoolList
	KindMap
	KindObject
	KindBlob
	KindCustom
	KindRef
)

// Value is the structural serialized form of an application value: a closed
// tree of tagged nodes that any wire codec can encode without reflection
// tricks, because no field is interface-typed.
//
// Which fields are meaningful depends on Kind; all others stay at their zero
// value and are omitted on the wire. Omission is safe: Kind tells the reader
// which field to look at, and the zero value of that field is the correct
// decoded value (KindFloat with no "f" key is 0.0, and so on).
//
// The interesting variants:
//
//   - KindObject is the decomposed form of a registered type: Tag holds the
//     registered identifier, Fields the decomposed attribute map, and Args
//     (if present) the captured constructor arguments for types that opt in
//     to constructor-argument capture.
//   - KindBlob is the gob-fallback form: Tag plus the opaque encoded Bytes.
//   - KindCustom is a registered custom codec's payload: Tag plus Body, the
//     payload value serialized through the generic path.
//   - KindRef embeds an ObjectRef. Refs survive serialization as refs; the
//     reader gets the ref back, not the value behind it.
//
// Values are produced and consumed by the codec package; the store treats
// them as opaque payloads.
type Value struct {
	Kind ValueKind `cbor:"k" json:"k"`

	// Bits preserves the source width of numeric kinds so round-trips
	// restore the exact Go type: 0 means the platform int/uint, otherwise
	// 8, 16, 32 or 64. For floats it is 32 or 64 (0 reads as 64).
	Bits uint8 `cbor:"w,omitempty" json:"w,omitempty"`

	Bool  bool    `cbor:"b,omitempty" json:"b,omitempty"`
	Int   int64   `cbor:"i,omitempty" json:"i,omitempty"`
	Uint  uint64  `cbor:"u,omitempty" json:"u,omitempty"`
	Float float64 `cbor:"f,omitempty" json:"f,omitempty"`
	Str   string  `cbor:"s,omitempty" json:"s,omitempty"`
	Bytes []byte  `cbor:"y,omitempty" json:"y,omitempty"`

	// List holds heterogeneous sequences; the typed slices below keep the
	// common homogeneous cases compact and width-exact.
	List    []*Value  `cbor:"l,omitempty" json:"l,omitempty"`
	Ints    []int64   `cbor:"li,omitempty" json:"li,omitempty"`
	Floats  []float64 `cbor:"lf,omitempty" json:"lf,omitempty"`
	Strings []string  `cbor:"ls,omitempty" json:"ls,omitempty"`
	Bools   []bool    `cbor:"lb,omitempty" json:"lb,omitempty"`

	Map map[string]*Value `cbor:"m,omitempty" json:"m,omitempty"`

	Tag    string            `cbor:"t,omitempty" json:"t,omitempty"`
	Fields map[string]*Value `cbor:"d,omitempty" json:"d,omitempty"`
	Args   []*Value          `cbor:"a,omitempty" json:"a,omitempty"`
	Body   *Value            `cbor:"c,omitempty" json:"c,omitempty"`

	Ref ObjectRef `cbor:"r,omitempty" json:"r,omitempty"`
}

// Columnar is the raw form of a numeric array value: named columns of
// contiguous numbers plus the array shape, written to the store's columnar
// path without touching the structural codec.
//
// The column names identify the layout (dense, CSR, COO); the tensor package
// owns the naming convention and the conversions.
type Columnar struct {
	Shape  []int                `cbor:"shape" json:"shape"`
	Floats map[string][]float64 `cbor:"floats,omitempty" json:"floats,omitempty"`
	Ints   map[string][]int     `cbor:"ints,omitempty" json:"ints,omitempty"`
}
