package rules

import (
	"testing"

	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fallback = Result{Description: "${receiver} / ${topic}", Kind: "Other", Frequency: "once"}

func contains(field Field, s string) Condition {
	return Condition{Field: field, Contains: s}
}

func newEngine(t *testing.T, rules ...Rule) *Engine {
	t.Helper()
	e, err := NewEngine(Set{Rules: rules, Default: fallback})
	require.NoError(t, err)
	return e
}

func TestEngine_Classify(t *testing.T) {
	amazon := Rule{
		Conditions: []Condition{contains(FieldReceiver, "amazon")},
		Result:     Result{Description: "Amazon: ${topic}", Kind: "Shopping", Frequency: "once"},
	}
	anyShop := Rule{
		Conditions: []Condition{contains(FieldLabel, "shop")},
		Result:     Result{Description: "Shop", Kind: "Misc", Frequency: "once"},
	}

	tests := []struct {
		name     string
		rules    []Rule
		receiver string
		topic    string
		label    string
		want     model.Classification
	}{
		{
			name:     "case insensitive contains",
			rules:    []Rule{amazon},
			receiver: "AMAZON EU S.A.R.L.",
			topic:    "Order 42",
			want:     model.Classification{Description: "Amazon: Order 42", Kind: "Shopping", Frequency: "once"},
		},
		{
			name:     "first matching rule wins",
			rules:    []Rule{amazon, anyShop},
			receiver: "Amazon",
			topic:    "Book",
			label:    "online shop",
			want:     model.Classification{Description: "Amazon: Book", Kind: "Shopping", Frequency: "once"},
		},
		{
			name:     "later rule when earlier does not match",
			rules:    []Rule{amazon, anyShop},
			receiver: "Corner",
			label:    "Corner Shop",
			want:     model.Classification{Description: "Shop", Kind: "Misc", Frequency: "once"},
		},
		{
			name:     "default rule when nothing matches",
			rules:    []Rule{amazon},
			receiver: "Bakery",
			topic:    "Bread",
			want:     model.Classification{Description: "Bakery / Bread", Kind: "Other", Frequency: "once"},
		},
		{
			name:  "empty field never matches",
			rules: []Rule{amazon},
			label: "amazon",
			want:  model.Classification{Description: " / ", Kind: "Other", Frequency: "once"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, tt.rules...)
			assert.Equal(t, tt.want, e.Classify(tt.receiver, tt.topic, tt.label))
		})
	}
}

func TestEngine_RuleOrderDeterminism(t *testing.T) {
	first := Rule{
		Conditions: []Condition{contains(FieldTopic, "rent")},
		Result:     Result{Description: "first", Kind: "A"},
	}
	second := Rule{
		Conditions: []Condition{contains(FieldTopic, "rent")},
		Result:     Result{Description: "second", Kind: "B"},
	}
	e := newEngine(t, first, second)

	for range 10 {
		got := e.Classify("", "monthly rent", "")
		assert.Equal(t, "first", got.Description)
		assert.Equal(t, 0, e.Match("", "monthly rent", ""))
	}
}

func TestEngine_Operators(t *testing.T) {
	conditions := []Condition{
		contains(FieldReceiver, "nomatch"),
		contains(FieldTopic, "coffee"),
	}

	or := newEngine(t, Rule{Operator: OperatorOr, Conditions: conditions, Result: Result{Kind: "Hit"}})
	and := newEngine(t, Rule{Conditions: conditions, Result: Result{Kind: "Hit"}})
	explicitAnd := newEngine(t, Rule{Operator: OperatorAnd, Conditions: conditions, Result: Result{Kind: "Hit"}})

	assert.Equal(t, "Hit", or.Classify("cafe", "coffee", "").Kind)
	assert.Equal(t, "Other", and.Classify("cafe", "coffee", "").Kind)
	assert.Equal(t, "Other", explicitAnd.Classify("cafe", "coffee", "").Kind)
	assert.Equal(t, "Hit", and.Classify("nomatch inc", "coffee", "").Kind)
}

func TestEngine_TemplateFirstOccurrenceOnly(t *testing.T) {
	e := newEngine(t, Rule{
		Conditions: []Condition{contains(FieldReceiver, "x")},
		Result:     Result{Description: "${receiver}-${receiver}-${topic}-${topic}", Kind: "K"},
	})

	got := e.Classify("x", "t", "")
	assert.Equal(t, "x-${receiver}-t-${topic}", got.Description)
}

type stubSimilarity struct{ calls int }

func (s *stubSimilarity) SeemsLike(value, target string) bool {
	s.calls++
	return value == "ALDI SUED" && target == "supermarket"
}

func TestEngine_SeemsLike(t *testing.T) {
	rule := Rule{
		Conditions: []Condition{{Field: FieldReceiver, SeemsLike: "supermarket"}},
		Result:     Result{Kind: "Groceries"},
	}

	e := newEngine(t, rule)
	assert.Equal(t, "Other", e.Classify("ALDI SUED", "", "").Kind, "seemslike is false by default")

	stub := &stubSimilarity{}
	custom, err := NewEngine(Set{Rules: []Rule{rule}, Default: fallback}, WithSimilarity(stub))
	require.NoError(t, err)
	assert.Equal(t, "Groceries", custom.Classify("ALDI SUED", "", "").Kind)
	assert.Equal(t, "Other", custom.Classify("", "", "").Kind)
	assert.Equal(t, 1, stub.calls, "empty field skips the predicate")
}

func TestNewEngine_RejectsMalformedRules(t *testing.T) {
	tests := []struct {
		name string
		set  Set
	}{
		{
			name: "missing kind",
			set: Set{Rules: []Rule{{
				Conditions: []Condition{contains(FieldLabel, "a")},
				Result:     Result{Description: "x"},
			}}, Default: fallback},
		},
		{
			name: "missing default kind",
			set:  Set{},
		},
		{
			name: "unknown field",
			set: Set{Rules: []Rule{{
				Conditions: []Condition{contains("svg", "a")},
				Result:     Result{Kind: "K"},
			}}, Default: fallback},
		},
		{
			name: "both predicates",
			set: Set{Rules: []Rule{{
				Conditions: []Condition{{Field: FieldLabel, Contains: "a", SeemsLike: "b"}},
				Result:     Result{Kind: "K"},
			}}, Default: fallback},
		},
		{
			name: "unknown operator",
			set: Set{Rules: []Rule{{
				Operator:   "XOR",
				Conditions: []Condition{contains(FieldLabel, "a")},
				Result:     Result{Kind: "K"},
			}}, Default: fallback},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.set)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}
