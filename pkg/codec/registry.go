// Package codec converts application values to and from the serialized
// forms defined in pkg/api: the structural Value tree and, through the
// built-in registrations, nested numeric arrays.
//
// The package has two halves. TypeRegistry decides how a Go type serializes
// and enforces the requirements of each strategy when the type is
// registered, never later. Codec does the actual conversion, walking values
// into Value trees and back.
package codec

import (
	"encoding/gob"
	"fmt"
	"reflect"

	"github.com/phautamaki/orchard/pkg/api"
)

// Decomposer is the structural strategy's serialization half: Decompose
// returns the attribute map that represents the value. The map may contain
// literals, ObjectRefs, and values of other registered types.
type Decomposer interface {
	Decompose() map[string]any
}

// Recomposer is the structural strategy's deserialization half. Recompose is
// called on a freshly allocated zero value; no constructor logic runs, so
// the method must restore everything from the attribute map alone.
type Recomposer interface {
	Recompose(fields map[string]any) error
}

// ArgsDecomposer optionally captures constructor arguments alongside the
// attribute map. It exists for record-like types whose identity lives in
// positional values rather than named attributes; most types do not need it.
type ArgsDecomposer interface {
	DecomposeArgs() []any
}

// ArgsRecomposer restores captured constructor arguments. It runs before
// Recompose during deserialization.
type ArgsRecomposer interface {
	RecomposeArgs(args []any) error
}

// Serializer converts a value of a custom-registered type into a payload
// built from literals and registered types. The payload is serialized
// through the generic path, so anything the codec handles is allowed.
type Serializer func(v any) (any, error)

// Deserializer inverts the matching Serializer.
type Deserializer func(payload any) (any, error)

// Options selects a serialization strategy. With the zero value the type
// must satisfy the structural strategy (Decomposer plus Recomposer on a
// struct type). GobFallback switches to opaque gob encoding instead, and a
// Serializer/Deserializer pair installs a custom codec. The strategies are
// mutually exclusive.
//
// Gob blobs are opaque to the store: ObjectRefs buried inside a gob-encoded
// value are not tracked in the reference graph. Types that carry refs
// should use the structural strategy.
type Options struct {
	GobFallback bool

	Serializer   Serializer
	Deserializer Deserializer
}

type strategy uint8

const (
	strategyStructural strategy = iota
	strategyGob
	strategyCustom
)

type registration struct {
	name     string
	rt       reflect.Type // the registered type, pointers stripped
	strategy strategy
	ser      Serializer
	deser    Deserializer
	hasArgs  bool
}

// TypeRegistry maps Go types to serialization strategies. Types register
// under their namespace-qualified name (full package path plus type name),
// and lookups are exact; there is no match through embedding or interfaces.
//
// Registration is part of the single-threaded setup phase: all Register
// calls must happen before any worker loop starts. The registry is
// deliberately unsynchronized; after setup it is only read.
type TypeRegistry struct {
	byName map[string]*registration
	byType map[reflect.Type]*registration
}

// NewTypeRegistry creates a registry with the built-in registrations (dense
// matrices) already installed.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{
		byName: make(map[string]*registration),
		byType: make(map[reflect.Type]*registration),
	}
	registerBuiltins(r)
	return r
}

var (
	decomposerIface     = reflect.TypeOf((*Decomposer)(nil)).Elem()
	recomposerIface     = reflect.TypeOf((*Recomposer)(nil)).Elem()
	argsDecomposerIface = reflect.TypeOf((*ArgsDecomposer)(nil)).Elem()
	argsRecomposerIface = reflect.TypeOf((*ArgsRecomposer)(nil)).Elem()
)

// Register adds a type to the registry. sample carries only the type; its
// value is ignored, and pointers are stripped, so Register(&T{}, ...) and
// Register(T{}, ...) mean the same thing. Values of registered types travel
// as pointers: deserialization always yields a *T.
//
// Every precondition is checked here. A type that cannot satisfy its chosen
// strategy fails registration with an UnserializableTypeError; nothing is
// deferred to first use.
func (r *TypeRegistry) Register(sample any, opts Options) error {
	if sample == nil {
		return fmt.Errorf("cannot register a nil sample")
	}
	rt := reflect.TypeOf(sample)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	name := typeIdentifier(rt)
	if name == "" {
		return &api.UnserializableTypeError{
			TypeName: rt.String(),
			Reason:   "unnamed types cannot be registered",
		}
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("type %s is already registered", name)
	}

	reg := &registration{name: name, rt: rt}
	custom := opts.Serializer != nil || opts.Deserializer != nil

	switch {
	case custom && opts.GobFallback:
		return &api.UnserializableTypeError{
			TypeName: name,
			Reason:   "a custom codec and the gob fallback are mutually exclusive",
		}

	case custom:
		if opts.Serializer == nil || opts.Deserializer == nil {
			return &api.UnserializableTypeError{
				TypeName: name,
				Reason:   "a custom codec needs both a serializer and a deserializer",
			}
		}
		reg.strategy = strategyCustom
		reg.ser = opts.Serializer
		reg.deser = opts.Deserializer

	case opts.GobFallback:
		reg.strategy = strategyGob
		// Make the type known to gob under interface fields as well.
		gob.Register(reflect.New(rt).Elem().Interface())

	default:
		if rt.Kind() != reflect.Struct {
			return &api.UnserializableTypeError{
				TypeName: name,
				Reason:   fmt.Sprintf("%s types cannot decompose structurally; use the gob fallback or a custom codec", rt.Kind()),
			}
		}
		pt := reflect.PointerTo(rt)
		if !pt.Implements(decomposerIface) {
			return &api.UnserializableTypeError{
				TypeName: name,
				Reason:   "does not implement Decompose",
			}
		}
		if !pt.Implements(recomposerIface) {
			return &api.UnserializableTypeError{
				TypeName: name,
				Reason:   "does not implement Recompose",
			}
		}
		if pt.Implements(argsDecomposerIface) {
			if !pt.Implements(argsRecomposerIface) {
				return &api.UnserializableTypeError{
					TypeName: name,
					Reason:   "captures constructor arguments but does not implement RecomposeArgs",
				}
			}
			reg.hasArgs = true
		}
	}

	r.byName[name] = reg
	r.byType[rt] = reg
	return nil
}

// Registered reports whether the type of v (pointers stripped) has a
// registration.
func (r *TypeRegistry) Registered(v any) bool {
	if v == nil {
		return false
	}
	_, ok := r.lookupValue(v)
	return ok
}

func (r *TypeRegistry) lookupValue(v any) (*registration, bool) {
	rt := reflect.TypeOf(v)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	reg, ok := r.byType[rt]
	return reg, ok
}

func (r *TypeRegistry) lookupTag(tag string) (*registration, bool) {
	reg, ok := r.byName[tag]
	return reg, ok
}

// typeIdentifier builds the namespace-qualified registration name. Types
// from the main package or local scopes still get their package path, which
// keeps names unique across modules.
func typeIdentifier(rt reflect.Type) string {
	if rt.Name() == "" {
		return ""
	}
	if rt.PkgPath() == "" {
		// Predeclared types (int, string, ...) have no package path.
		return rt.Name()
	}
	return rt.PkgPath() + "." + rt.Name()
}
