package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"asbuilt/internal/engine"
)

// LoadCase reads a case file holding baseline, events and document_ref. Files ending in
// .json are decoded as JSON, anything else as YAML.
func LoadCase(path string) (engine.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Input{}, err
	}
	in, err := ParseCase(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return engine.Input{}, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

func ParseCase(data []byte, isJSON bool) (engine.Input, error) {
	var in engine.Input
	if isJSON {
		if err := json.Unmarshal(data, &in); err != nil {
			return in, fmt.Errorf("invalid case json: %w", err)
		}
		return in, nil
	}
	if err := yaml.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("invalid case yaml: %w", err)
	}
	return in, nil
}

// LoadCases reads every path, stopping at the first unreadable file.
func LoadCases(paths []string) ([]engine.Input, error) {
	out := make([]engine.Input, 0, len(paths))
	for _, p := range paths {
		in, err := LoadCase(p)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}
