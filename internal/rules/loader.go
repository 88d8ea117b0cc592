package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaSource string

//go:embed default_rules.yaml
var defaultRules []byte

var ruleSchema = jsonschema.MustCompileString("rules.schema.json", schemaSource)

// Parse decodes a YAML or JSON rule document, checks it against the rule schema and validates it.
func Parse(r io.Reader) (Set, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Set{}, fmt.Errorf("reading rules: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Set{}, fmt.Errorf("%w: decoding rules: %v", ErrInvalidRule, err)
	}
	if err := validateDocument(doc); err != nil {
		return Set{}, err
	}

	var set Set
	if err := yaml.NewDecoder(bytes.NewReader(raw)).Decode(&set); err != nil {
		return Set{}, fmt.Errorf("%w: decoding rules: %v", ErrInvalidRule, err)
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}

// LoadFile reads a rule set from path.
func LoadFile(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return Set{}, fmt.Errorf("opening rules file: %w", err)
	}
	defer func() { _ = f.Close() }()

	set, err := Parse(f)
	if err != nil {
		return Set{}, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Default returns the built-in rule set.
func Default() Set {
	set, err := Parse(bytes.NewReader(defaultRules))
	if err != nil {
		panic(fmt.Sprintf("built-in rules are invalid: %v", err))
	}
	return set
}

// Load returns the rule set at path, or the built-in set when path is empty.
func Load(path string) (Set, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// validateDocument runs the JSON schema over a decoded YAML value.
// The value is round-tripped through encoding/json so the validator sees JSON types.
func validateDocument(doc any) error {
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	var normalized any
	if err := json.Unmarshal(buf, &normalized); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if err := ruleSchema.Validate(normalized); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}
