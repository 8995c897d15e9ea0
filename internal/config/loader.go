package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

// SchemaURL identifies the embedded schema.
const SchemaURL = "echocode.v1.schema.json"

//go:embed schema/echocode.v1.schema.json
var embeddedSchema string

// Schema returns the embedded JSON schema document.
func Schema() string {
	return embeddedSchema
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath != "" {
		return jsonschema.Compile(schemaPath)
	}

	return jsonschema.CompileString(SchemaURL, embeddedSchema)
}

// LoadAndValidate loads the YAML file at path, validates it against the schema
// at schemaPath (or the embedded schema when empty), and decodes it on top of Default.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	return Parse(data, schemaPath)
}

// Parse validates and decodes a YAML document.
func Parse(data []byte, schemaPath string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	return config, nil
}

// Load reads, validates, applies environment overrides and checks references.
func Load(path, schemaPath string) (*Config, error) {
	cfg, err := LoadAndValidate(path, schemaPath)
	if err != nil {
		return nil, err
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load when path exists and otherwise starts from Default.
// A missing file is an error only when required is set.
func LoadOrDefault(path, schemaPath string, required bool) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil || required {
			return Load(path, schemaPath)
		}
	}

	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
