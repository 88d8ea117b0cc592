// Package rules implements ordered, first-match-wins transaction classification.
package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRule is returned when a rule set fails validation at load time.
var ErrInvalidRule = errors.New("invalid rule")

// Field selects which derived value a condition reads.
type Field string

// Condition fields.
const (
	FieldLabel    Field = "label"
	FieldReceiver Field = "receiver"
	FieldTopic    Field = "topic"
)

// Operator combines the condition results of one rule.
type Operator string

// Rule operators. An empty operator behaves as OperatorAnd.
const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// Condition tests one field with exactly one predicate.
type Condition struct {
	Field     Field  `yaml:"field" json:"field"`
	Contains  string `yaml:"contains,omitempty" json:"contains,omitempty"`
	SeemsLike string `yaml:"seemslike,omitempty" json:"seemslike,omitempty"`
}

// Result is what a matching rule assigns. Description may carry ${receiver} and ${topic}.
type Result struct {
	Description string `yaml:"description" json:"description"`
	Kind        string `yaml:"kind" json:"kind"`
	Frequency   string `yaml:"frequency" json:"frequency"`
}

// Rule pairs its conditions with the result they select.
type Rule struct {
	Name       string      `yaml:"name,omitempty" json:"name,omitempty"`
	Operator   Operator    `yaml:"operator,omitempty" json:"operator,omitempty"`
	Conditions []Condition `yaml:"conditions" json:"conditions"`
	Result     Result      `yaml:"result" json:"result"`
}

// Set is an ordered rule list plus the fallback result.
type Set struct {
	Rules   []Rule `yaml:"rules" json:"rules"`
	Default Result `yaml:"defaultRule" json:"defaultRule"`
}

// Validate reports the first malformed rule in the set.
func (s Set) Validate() error {
	for i, rule := range s.Rules {
		if err := rule.validate(); err != nil {
			return fmt.Errorf("%w: rule %d (%s): %v", ErrInvalidRule, i, rule.label(i), err)
		}
	}
	if strings.TrimSpace(s.Default.Kind) == "" {
		return fmt.Errorf("%w: default rule: missing kind", ErrInvalidRule)
	}
	return nil
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.Result.Kind) == "" {
		return errors.New("missing result kind")
	}
	switch r.Operator {
	case "", OperatorAnd, OperatorOr:
	default:
		return fmt.Errorf("unknown operator %q", r.Operator)
	}
	if len(r.Conditions) == 0 {
		return errors.New("no conditions")
	}
	for j, c := range r.Conditions {
		switch c.Field {
		case FieldLabel, FieldReceiver, FieldTopic:
		default:
			return fmt.Errorf("condition %d: unknown field %q", j, c.Field)
		}
		if (c.Contains == "") == (c.SeemsLike == "") {
			return fmt.Errorf("condition %d: exactly one of contains or seemslike is required", j)
		}
	}
	return nil
}

func (r Rule) label(i int) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("#%d", i+1)
}
