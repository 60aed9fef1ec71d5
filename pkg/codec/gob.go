package codec

import (
	"bytes"
	"encoding/gob"
)

// gobEncode serializes a value of a gob-fallback type. Gob flattens
// pointers, so T and *T inputs produce the same payload.
func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gobDecode fills ptr, a *T allocated by the caller.
func gobDecode(data []byte, ptr any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(ptr)
}
