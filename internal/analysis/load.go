package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// KindFormAnalysis tags an envelope carrying a Result.
const KindFormAnalysis = "form_analysis"

// Envelope is the tagged wrapper accepted at the file and HTTP boundary.
type Envelope struct {
	Kind   string  `json:"kind" yaml:"kind"`
	Result *Result `json:"result" yaml:"result"`
}

// Load reads a Result from a .json, .yaml or .yml file and validates it.
func Load(path string) (*Result, error) {
	// #nosec G304 -- analysis path comes from the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return DecodeJSON(data)
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return nil, fmt.Errorf("unsupported analysis format: %s", ext)
	}
}

// DecodeJSON accepts either an Envelope or a bare Result.
func DecodeJSON(data []byte) (*Result, error) {
	var probe struct {
		Kind *string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	var res *Result
	if probe.Kind != nil {
		var env Envelope
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("decode analysis envelope: %w", err)
		}
		r, err := env.unwrap()
		if err != nil {
			return nil, err
		}
		res = r
	} else {
		res = &Result{}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(res); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}

	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// DecodeYAML is DecodeJSON for YAML documents.
func DecodeYAML(data []byte) (*Result, error) {
	var probe map[string]any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	var res *Result
	if _, tagged := probe["kind"]; tagged {
		var env Envelope
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("decode analysis envelope: %w", err)
		}
		r, err := env.unwrap()
		if err != nil {
			return nil, err
		}
		res = r
	} else {
		res = &Result{}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(res); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}

	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func (e Envelope) unwrap() (*Result, error) {
	if e.Kind != KindFormAnalysis {
		return nil, fmt.Errorf("%w: unsupported payload kind %q", ErrInvalid, e.Kind)
	}
	if e.Result == nil {
		return nil, fmt.Errorf("%w: envelope has no result", ErrInvalid)
	}
	return e.Result, nil
}
