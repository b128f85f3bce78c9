package survey

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a survey definition file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf infers the definition format from a file name.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported survey file extension %q", filepath.Ext(path))
	}
}

// LoadFile reads and decodes a definition file. The survey ID is the file
// name without its extension.
func LoadFile(path string) (*Survey, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read survey: %w", err)
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Decode(id, data, format)
}

// Decode parses a definition: an ordered array of question records.
func Decode(id string, data []byte, format Format) (*Survey, error) {
	jsonData, err := ToJSON(data, format)
	if err != nil {
		return nil, err
	}
	var questions []Question
	if err := json.Unmarshal(jsonData, &questions); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	if questions == nil {
		questions = []Question{}
	}
	return &Survey{ID: id, Questions: questions}, nil
}

// ToJSON converts a definition of the given format into JSON bytes.
func ToJSON(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		if !json.Valid(data) {
			return nil, fmt.Errorf("structural decode: invalid JSON")
		}
		return data, nil
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("structural decode: %w", err)
		}
		if doc == nil {
			return []byte("[]"), nil
		}
		out, err := json.Marshal(normalizeYAML(doc))
		if err != nil {
			return nil, fmt.Errorf("structural decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported survey format %q", format)
	}
}

// normalizeYAML rewrites map[any]any nodes (non-string keys) into
// map[string]any so the tree can be marshalled as JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}
