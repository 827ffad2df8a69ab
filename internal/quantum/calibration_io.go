package quantum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// calibrationSchemaJSON constrains an on-disk PriorCalibration: it must carry a
// model identity, both hyperparameters, a global posterior, and may carry
// per-category/per-source posteriors. Rejecting malformed calibration files
// here means AssessBatch/AssessBatchFromStreams never see a half-populated
// prior table.
const calibrationSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["ModelID", "ModelVersion", "PriorAlpha", "PriorBeta", "Global"],
  "properties": {
    "ModelID": {"type": "string", "minLength": 1},
    "ModelVersion": {"type": "integer", "minimum": 1},
    "PriorAlpha": {"type": "number", "exclusiveMinimum": 0},
    "PriorBeta": {"type": "number", "exclusiveMinimum": 0},
    "Global": {"$ref": "#/definitions/posterior"},
    "Categories": {"type": ["object", "null"], "additionalProperties": {"$ref": "#/definitions/posterior"}},
    "Sources": {"type": ["object", "null"], "additionalProperties": {"$ref": "#/definitions/posterior"}}
  },
  "definitions": {
    "posterior": {
      "type": "object",
      "required": ["Alpha", "Beta", "Mean"],
      "properties": {
        "Alpha": {"type": "number", "exclusiveMinimum": 0},
        "Beta": {"type": "number", "exclusiveMinimum": 0},
        "NEff": {"type": "number", "minimum": 0},
        "Mean": {"type": "number", "minimum": 0, "maximum": 1},
        "CILow": {"type": "number"},
        "CIHigh": {"type": "number"}
      }
    }
  }
}`

const calibrationSchemaResourceURL = "entropid://calibration-v1.schema.json"

func compileCalibrationSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(calibrationSchemaResourceURL, bytes.NewReader([]byte(calibrationSchemaJSON))); err != nil {
		return nil, fmt.Errorf("quantum: add calibration schema resource: %w", err)
	}
	schema, err := compiler.Compile(calibrationSchemaResourceURL)
	if err != nil {
		return nil, fmt.Errorf("quantum: compile calibration schema: %w", err)
	}
	return schema, nil
}

// LoadCalibrationFile reads, schema-validates, and decodes a PriorCalibration
// from path. It does not install the result globally -- call
// SetGlobalCalibration explicitly, which is what reload.Watcher does on
// every change.
func LoadCalibrationFile(path string) (PriorCalibration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PriorCalibration{}, fmt.Errorf("quantum: read calibration file: %w", err)
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return PriorCalibration{}, fmt.Errorf("quantum: calibration file is not valid JSON: %w", err)
	}
	schema, err := compileCalibrationSchema()
	if err != nil {
		return PriorCalibration{}, err
	}
	if err := schema.Validate(instance); err != nil {
		return PriorCalibration{}, fmt.Errorf("quantum: calibration file failed schema validation: %w", err)
	}

	var cal PriorCalibration
	if err := json.Unmarshal(raw, &cal); err != nil {
		return PriorCalibration{}, fmt.Errorf("quantum: decode calibration file: %w", err)
	}
	return cal, nil
}

// SaveCalibrationFile serializes cal to path as indented JSON, matching the
// shape LoadCalibrationFile expects back.
func SaveCalibrationFile(path string, cal PriorCalibration) error {
	data, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return fmt.Errorf("quantum: marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("quantum: write calibration file: %w", err)
	}
	return nil
}
