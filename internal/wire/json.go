package wire

import "encoding/json"

const contentTypeJSON = "application/json"

type jsonCodec struct{}

// JSON returns a JSON codec. It trades compactness for readability; useful
// when inspecting queued tasks or stored payloads by hand. JSON cannot carry
// NaN or infinite floats, so numeric workloads should stay on CBOR.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string { return contentTypeJSON }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
