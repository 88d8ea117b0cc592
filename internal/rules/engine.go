package rules

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/browser2excel/internal/model"
)

const (
	receiverToken = "${receiver}"
	topicToken    = "${topic}"
)

// Similarity decides whether a value semantically resembles a target phrase.
type Similarity interface {
	SeemsLike(value, target string) bool
}

// NoSimilarity never reports a match. It is the default until a real model is plugged in.
type NoSimilarity struct{}

// SeemsLike always returns false.
func (NoSimilarity) SeemsLike(string, string) bool { return false }

// Engine classifies records against an ordered rule set.
type Engine struct {
	similarity Similarity
	logger     *slog.Logger
	rules      []Rule
	fallback   Result
}

// Option configures an Engine.
type Option func(*Engine)

// WithSimilarity replaces the seemslike predicate implementation.
func WithSimilarity(s Similarity) Option {
	return func(e *Engine) { e.similarity = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine validates the set and returns an engine for it. A malformed set is rejected here,
// never per record.
func NewEngine(set Set, opts ...Option) (*Engine, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		rules:      append([]Rule(nil), set.Rules...),
		fallback:   set.Default,
		similarity: NoSimilarity{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Len returns the number of ordered rules, excluding the default.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Match returns the index of the first rule that matches, or -1.
func (e *Engine) Match(receiver, topic, label string) int {
	values := map[Field]string{
		FieldReceiver: receiver,
		FieldTopic:    topic,
		FieldLabel:    label,
	}

	for i, rule := range e.rules {
		if e.matches(rule, values) {
			return i
		}
	}
	return -1
}

// Classify returns the result of the first matching rule, or the default result.
func (e *Engine) Classify(receiver, topic, label string) model.Classification {
	result := e.fallback
	if i := e.Match(receiver, topic, label); i >= 0 {
		result = e.rules[i].Result
	}

	return model.Classification{
		Description: expand(result.Description, receiver, topic),
		Kind:        result.Kind,
		Frequency:   result.Frequency,
	}
}

func (e *Engine) matches(rule Rule, values map[Field]string) bool {
	if rule.Operator == OperatorOr {
		for _, c := range rule.Conditions {
			if e.holds(c, values[c.Field]) {
				return true
			}
		}
		return false
	}

	for _, c := range rule.Conditions {
		if !e.holds(c, values[c.Field]) {
			return false
		}
	}
	return true
}

// holds evaluates one condition. An empty field never satisfies a predicate.
func (e *Engine) holds(c Condition, value string) bool {
	if value == "" {
		return false
	}
	if c.Contains != "" {
		return strings.Contains(strings.ToLower(value), strings.ToLower(c.Contains))
	}
	e.logger.Debug("semantic similarity requested",
		"field", c.Field,
		"value", value,
		"target", c.SeemsLike)
	return e.similarity.SeemsLike(value, c.SeemsLike)
}

func expand(template, receiver, topic string) string {
	out := strings.Replace(template, receiverToken, receiver, 1)
	return strings.Replace(out, topicToken, topic, 1)
}

// String describes the engine for logs.
func (e *Engine) String() string {
	return fmt.Sprintf("rules.Engine(%d rules)", len(e.rules))
}
