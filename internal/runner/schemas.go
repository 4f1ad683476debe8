package runner

import "encoding/json"

var planSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "files": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["files"],
  "additionalProperties": false
}`)

var reviewSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "quality": {"type": "string", "enum": ["good", "ok", "poor"]},
    "issues": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["quality", "issues"],
  "additionalProperties": false
}`)
