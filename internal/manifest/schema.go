package manifest

import "encoding/json"

// SchemaName labels the manifest schema in schema-constrained requests.
const SchemaName = "file_manifest"

// Schema is the JSON schema sent as the response-shape constraint for
// manifest generation.
var Schema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "mode": {"type": "string", "enum": ["full", "patch"]},
    "files": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "path": {"type": "string"},
          "content": {"type": "string"}
        },
        "required": ["path", "content"],
        "additionalProperties": false
      }
    },
    "notes": {"type": "string"}
  },
  "required": ["mode", "files"],
  "additionalProperties": false
}`)
