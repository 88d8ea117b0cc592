package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonRules = `{
  "rules": [
    {
      "conditions": [
        {"field": "receiver", "contains": "AMAZON"}
      ],
      "result": {"description": "Amazon ${topic}", "kind": "Shopping", "frequency": "once"}
    }
  ],
  "defaultRule": {"description": "${receiver}", "kind": "Other", "frequency": "once"}
}`

func TestParse_JSON(t *testing.T) {
	set, err := Parse(strings.NewReader(jsonRules))
	require.NoError(t, err)
	require.Len(t, set.Rules, 1)
	assert.Equal(t, FieldReceiver, set.Rules[0].Conditions[0].Field)
	assert.Equal(t, "Other", set.Default.Kind)
}

func TestParse_YAML(t *testing.T) {
	doc := `
rules:
  - operator: OR
    conditions:
      - field: topic
        contains: miete
      - field: label
        seemslike: rent
    result:
      description: Rent
      kind: Housing
      frequency: monthly
defaultRule:
  kind: Other
`
	set, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, set.Rules, 1)
	assert.Equal(t, OperatorOr, set.Rules[0].Operator)
	assert.Equal(t, "rent", set.Rules[0].Conditions[1].SeemsLike)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty document", doc: ""},
		{name: "not an object", doc: "[1, 2]"},
		{
			name: "missing result kind",
			doc: `{"rules":[{"conditions":[{"field":"label","contains":"x"}],"result":{"description":"d"}}],
			"defaultRule":{"kind":"Other"}}`,
		},
		{
			name: "unknown field",
			doc: `{"rules":[{"conditions":[{"field":"svg","contains":"x"}],"result":{"kind":"K"}}],
			"defaultRule":{"kind":"Other"}}`,
		},
		{
			name: "missing default",
			doc:  `{"rules":[]}`,
		},
		{name: "broken syntax", doc: "rules: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestLoad(t *testing.T) {
	set, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, set.Rules)

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(jsonRules), 0o600))
	set, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, set.Rules, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault_ClassifiesAmazon(t *testing.T) {
	e, err := NewEngine(Default())
	require.NoError(t, err)

	got := e.Classify("AMAZON EU", "Order 1", "")
	assert.Equal(t, "Shopping", got.Kind)
	assert.Equal(t, "Amazon: Order 1", got.Description)

	got = e.Classify("Bakery", "Bread", "")
	assert.Equal(t, "Other", got.Kind)
	assert.Equal(t, "Bakery Bread", got.Description)
}
