package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

//go:embed lerobot-preview.v1.schema.json
var embeddedSchema string

// LoadAndValidate loads and validates the configuration. When schemaPath is
// empty the embedded schema is used.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	config.Normalize()
	return &config, nil
}

// Load resolves the effective configuration. An explicit path must exist; the
// default config file is optional and its absence yields defaults.
func Load(path, schemaPath string, explicit bool) (*Config, error) {
	cfg, err := LoadAndValidate(path, schemaPath)
	if err == nil {
		return cfg, nil
	}

	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg := &Config{}
		cfg.Normalize()
		return cfg, nil
	}

	return nil, err
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath == "" {
		schema, err := jsonschema.CompileString("lerobot-preview.v1.schema.json", embeddedSchema)
		if err != nil {
			return nil, fmt.Errorf("config: failed to compile embedded schema: %w", err)
		}
		return schema, nil
	}

	schema, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	return schema, nil
}
