package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Fabrica-Labs/forma/core/pkg/issue"
)

const envelopeSchemaURL = "forma://schemas/patch-envelope.json"

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["patch_id", "target_module_id", "target_manifest_hash", "mode", "reason", "operations"],
  "properties": {
    "patch_id": {"type": "string", "minLength": 1},
    "target_module_id": {"type": "string", "minLength": 1},
    "target_manifest_hash": {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"},
    "mode": {"const": "preview"},
    "reason": {"type": "string", "minLength": 1},
    "metadata": {"type": "object"},
    "operations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["op"],
        "properties": {
          "op": {"type": "string"},
          "path": {"type": "string"},
          "from": {"type": "string"},
          "entity_id": {"type": "string"},
          "after_field_id": {"type": "string"},
          "field": {"type": "object"}
        }
      }
    }
  },
  "additionalProperties": false
}`

var compiledEnvelopeSchema = mustCompileEnvelopeSchema()

func mustCompileEnvelopeSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
		panic(fmt.Sprintf("patch: envelope schema resource: %v", err))
	}
	s, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("patch: envelope schema compile: %v", err))
	}
	return s
}

// DecodeEnvelope parses and schema-checks a wire envelope. Schema
// violations come back as issues, not a hard error; err is reserved for
// bytes that are not JSON at all.
func DecodeEnvelope(data []byte) (*Envelope, []issue.Issue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("decode patch envelope: %w", err)
	}
	if err := compiledEnvelopeSchema.Validate(raw); err != nil {
		var list issue.List
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			for _, cause := range flattenSchemaError(ve) {
				list.Add(issue.New(CodeSchema, cause.InstanceLocation, cause.Message))
			}
		} else {
			list.Add(issue.New(CodeSchema, "", err.Error()))
		}
		return nil, list.Items(), nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("decode patch envelope: %w", err)
	}
	return &env, nil, nil
}

// flattenSchemaError collects leaf causes so every violation surfaces as
// its own issue.
func flattenSchemaError(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, flattenSchemaError(c)...)
	}
	return out
}
