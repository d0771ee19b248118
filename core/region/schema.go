package region

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const documentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"regions": {
			"type": "array",
			"items": {"$ref": "#/definitions/region"}
		},
		"bypass": {
			"type": "array",
			"items": {"type": "string"}
		}
	},
	"definitions": {
		"region": {
			"type": "object",
			"required": ["name", "world", "minX", "minY", "minZ", "maxX", "maxY", "maxZ"],
			"properties": {
				"name": {"type": "string", "minLength": 1},
				"world": {"type": "string"},
				"creator": {"type": "string"},
				"minX": {"type": "integer"},
				"minY": {"type": "integer"},
				"minZ": {"type": "integer"},
				"maxX": {"type": "integer"},
				"maxY": {"type": "integer"},
				"maxZ": {"type": "integer"},
				"allowFireDamage": {"type": "boolean"},
				"allowEnderPearl": {"type": "boolean"},
				"allowPvp": {"type": "boolean"},
				"allowBreak": {"type": "boolean"},
				"allowPlace": {"type": "boolean"},
				"priority": {"type": "boolean"}
			}
		}
	}
}`

var schema = jsonschema.MustCompileString("regions.schema.json", documentSchema)

// validateDocument checks data against the regions.json schema. Content that is not
// JSON is left to the decoder and reported as valid here.
func validateDocument(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return schema.Validate(v)
}
