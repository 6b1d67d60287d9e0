package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

// configSchema rejects unknown keys and wrongly typed values before decoding.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "duration": {"type": ["string", "integer"]},
    "models": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "agent": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "instruction": {"type": "string"},
        "models": {"$ref": "#/definitions/models"},
        "alias_name": {"type": "string"}
      }
    }
  },
  "properties": {
    "aws": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "region": {"type": "string"},
        "profile": {"type": "string"},
        "agent_role_arn": {"type": "string"},
        "idle_session_ttl": {"type": "integer", "minimum": 60},
        "calls_per_second": {"type": "number", "minimum": 0},
        "burst": {"type": "integer", "minimum": 0}
      }
    },
    "control_plane": {"enum": ["bedrock", "fake"]},
    "lifecycle": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "poll_interval": {"$ref": "#/definitions/duration"},
        "max_polls": {"type": "integer", "minimum": 1},
        "await_deletion": {"type": "boolean"}
      }
    },
    "invocation": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "alias_id": {"type": "string"},
        "trace_level": {"enum": ["core", "outline", "all"]},
        "render": {"enum": ["plain", "markdown"]},
        "breaker": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "max_failures": {"type": "integer", "minimum": 0},
            "timeout": {"$ref": "#/definitions/duration"}
          }
        }
      }
    },
    "hierarchy": {"type": "string"},
    "hierarchies": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "supervisor"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "root_tag": {"type": "string"},
          "guardrail_name": {"type": "string"},
          "prompt_template": {"type": "string"},
          "models": {"$ref": "#/definitions/models"},
          "leaves": {"type": "array", "items": {"$ref": "#/definitions/agent"}},
          "supervisor": {
            "allOf": [{"$ref": "#/definitions/agent"}],
            "properties": {
              "collaborators": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["agent"],
                  "properties": {
                    "agent": {"type": "string", "minLength": 1},
                    "instruction": {"type": "string"},
                    "association_name": {"type": "string"},
                    "relay_history": {"type": "boolean"}
                  }
                }
              }
            }
          }
        }
      }
    },
    "logger": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string"},
        "format": {"enum": ["text", "json"]},
        "output": {"type": "string"}
      }
    },
    "tracer": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "exporter": {"enum": ["noop", "stdout"]}
      }
    },
    "audit": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "path": {"type": "string"}
      }
    },
    "includes": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.json", strings.NewReader(configSchema)); err != nil {
			schemaErr = fmt.Errorf("add config schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("config.json")
	})
	return compiledSchema, schemaErr
}

// validateSchema checks a raw YAML document against the config schema.
func validateSchema(path string, data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	if doc == nil {
		return nil
	}

	// Round-trip through JSON so numbers and maps take the shapes the validator expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return domain.NewDomainError("config.validateSchema", domain.ErrConfigLoad, err.Error())
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.NewDomainError("config.validateSchema", domain.ErrConfigLoad, err.Error())
	}

	if err := schema.Validate(v); err != nil {
		return domain.NewDomainError("config.validateSchema", domain.ErrConfigLoad,
			fmt.Sprintf("%s: %v", path, err))
	}
	return nil
}
