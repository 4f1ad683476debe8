// Package connectjson provides the plain-JSON codec the eval stream handlers
// register instead of protobuf, so the wire payloads stay the same structs
// the NDJSON transport emits.
package connectjson

import (
	"encoding/json"

	"github.com/bufbuild/connect-go"
)

// Codec encodes/decodes the RunEval stream messages as JSON.
type Codec struct{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var _ connect.Codec = (*Codec)(nil)
