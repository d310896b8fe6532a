package runbook

// documentSchema is the JSON Schema every runbook document is validated
// against before decoding into the typed model. Structural constraints live
// here; referential integrity and schema compatibility are the planner's job.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "artifacts"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "config": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "maxConcurrency": {"type": "integer", "minimum": 1},
        "timeout": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "artifacts": {
      "type": "object",
      "minProperties": 1,
      "propertyNames": {"pattern": "^[A-Za-z0-9_:-]+$"},
      "additionalProperties": {"$ref": "#/$defs/artifact"}
    },
    "aliases": {
      "type": "object",
      "additionalProperties": {"type": "string", "minLength": 1}
    }
  },
  "$defs": {
    "component": {
      "type": "object",
      "required": ["type"],
      "additionalProperties": false,
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "properties": {"type": "object"}
      }
    },
    "artifact": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "source": {"$ref": "#/$defs/component"},
        "inputs": {
          "oneOf": [
            {"type": "string", "minLength": 1},
            {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1}
          ]
        },
        "process": {"$ref": "#/$defs/component"},
        "inputVersions": {
          "type": "object",
          "additionalProperties": {"type": "string", "pattern": "^\\d+\\.\\d+\\.\\d+$"}
        },
        "output": {"type": "boolean"},
        "optional": {"type": "boolean"}
      },
      "oneOf": [
        {"required": ["source"], "not": {"required": ["inputs"]}},
        {"required": ["inputs"], "not": {"required": ["source"]}}
      ]
    }
  }
}`
