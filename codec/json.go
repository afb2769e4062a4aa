package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Headers and bodies carry their own tagged encodings, so JSON round-trips
// them exactly (integers are never widened to float64).
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }
