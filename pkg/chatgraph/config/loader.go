package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads a configuration tree from disk, picking the decoder by
// file extension (.yaml, .yml, or .json). This is the usual entry point
// for wiring an executor from a deployment config.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decode(data, "yaml", yaml.Unmarshal)
	case ".json":
		return decode(data, "json", json.Unmarshal)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", filepath.Ext(path))
	}
}

// FromYAML parses a YAML document into a Config.
func FromYAML(data []byte) (Config, error) {
	return decode(data, "yaml", yaml.Unmarshal)
}

// FromJSON parses a JSON document into a Config.
func FromJSON(data []byte) (Config, error) {
	return decode(data, "json", json.Unmarshal)
}

// decode unmarshals a document into the map the Config accessors read.
// The top level must be a mapping (model lists and the like nest below).
func decode(data []byte, format string, unmarshal func([]byte, any) error) (Config, error) {
	var m map[string]any
	if err := unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s config: %w", format, err)
	}
	return New(m), nil
}
