// Package wire provides the byte-level codecs used for serialized tasks and
// stored payloads.
//
// Everything that crosses a process-shaped boundary (the coordinator's task
// queue, the durable object stores) is a plain struct from pkg/api; a wire
// codec turns those structs into bytes and back. CBOR is the default because
// it is compact and deterministic; JSON is available for debuggability. The
// caller and the executing worker must agree on the codec, so a cluster is
// configured with exactly one.
package wire

import "fmt"

// Codec marshals the wire-level structs. Implementations must be
// deterministic and safe for concurrent use.
type Codec interface {
	// ContentType identifies the format, e.g. "application/cbor".
	ContentType() string

	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps format names and content types to codecs.
type Registry struct {
	byType map[string]Codec
}

// NewRegistry constructs a registry preloaded with the built-in codecs,
// CBOR and JSON.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(CBOR())
	r.Register(JSON())
	return r
}

// Register adds a codec under its content type.
func (r *Registry) Register(c Codec) {
	r.byType[c.ContentType()] = c
}

// Get returns a codec by content type, or nil if none is registered.
func (r *Registry) Get(contentType string) Codec {
	return r.byType[contentType]
}

// ByName resolves a short configuration name ("cbor", "json") or a full
// content type to a codec.
func (r *Registry) ByName(name string) (Codec, error) {
	switch name {
	case "cbor":
		name = contentTypeCBOR
	case "json":
		name = contentTypeJSON
	}
	c := r.byType[name]
	if c == nil {
		return nil, fmt.Errorf("unknown wire format %q", name)
	}
	return c, nil
}
