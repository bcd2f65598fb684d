package server

import "encoding/json"

// JSONCodec is a connect.Codec that marshals arbitrary Go structs as JSON.
// The introspection API has no generated protobuf types to marshal, so this
// replaces connect's default protojson-based "json" codec rather than
// registering a new name: any connect.WithCodec(JSONCodec{}) on the server
// makes the "application/json" content type go through encoding/json
// instead of protojson. Client code that talks to this API must register
// the same codec.
type JSONCodec struct{}

// Name reports the codec's registered name, matching connect's built-in
// JSON codec name so this implementation takes over the "application/json"
// content type.
func (JSONCodec) Name() string { return "json" }

// Marshal encodes v as JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON into v.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
