package wire

import (
	"sync"

	"github.com/fxamacker/cbor/v2"
)

const contentTypeCBOR = "application/cbor"

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var (
	cborOnce     sync.Once
	cborInstance Codec
)

// CBOR returns the deterministic CBOR codec (RFC 8949, canonical encoding).
// It is the default wire format.
func CBOR() Codec {
	cborOnce.Do(func() {
		em, err := cbor.CanonicalEncOptions().EncMode()
		if err != nil {
			// The options are fixed at compile time; EncMode can only
			// fail on invalid options.
			panic("wire: building CBOR encoder: " + err.Error())
		}
		dm, err := cbor.DecOptions{}.DecMode()
		if err != nil {
			panic("wire: building CBOR decoder: " + err.Error())
		}
		cborInstance = &cborCodec{enc: em, dec: dm}
	})
	return cborInstance
}

func (c *cborCodec) ContentType() string { return contentTypeCBOR }

func (c *cborCodec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *cborCodec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}
