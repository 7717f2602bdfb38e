package interpolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	t.Parallel()
	vars := map[string]string{
		"NODE":   "left",
		"PORT":   "8080",
		"EMPTY":  "",
		"BUCKET": "wall-assets",
	}

	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no references", input: "plain text", expected: "plain text"},
		{name: "single reference", input: "${NODE}", expected: "left"},
		{name: "reference in middle", input: "node-${NODE}-a", expected: "node-left-a"},
		{name: "listen address", input: ":${PORT}", expected: ":8080"},
		{name: "set but empty", input: "[${EMPTY}]", expected: "[]"},
		{name: "default unused", input: "${NODE:right}", expected: "left"},
		{name: "default used", input: "${MISSING:right}", expected: "right"},
		{name: "empty default", input: "a${MISSING:}b", expected: "ab"},
		{name: "default with colon", input: "${MISSING::9090}", expected: ":9090"},
		{
			name:     "several references",
			input:    "s3://${BUCKET}/${NODE}/${MISSING:mod}.lua",
			expected: "s3://wall-assets/left/mod.lua",
		},
		{
			name:        "undefined",
			input:       "${MISSING}",
			expected:    "${MISSING}",
			expectError: true,
		},
		{
			name:        "mixed defined and undefined",
			input:       "${NODE}/${MISSING}",
			expected:    "left/${MISSING}",
			expectError: true,
		},
		{name: "bare dollar is literal", input: "$NODE", expected: "$NODE"},
		{name: "invalid name is literal", input: "${1NODE}", expected: "${1NODE}"},
	}

	e := NewExpander(FromMap(vars))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := e.Expand(tt.input)
			if tt.expectError {
				require.ErrorIs(t, err, ErrUndefinedVariable)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExpandReportsEveryMissingVariable(t *testing.T) {
	t.Parallel()
	_, err := NewExpander(FromMap(nil)).Expand("${A}/${B}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A")
	assert.Contains(t, err.Error(), "B")
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LUMENWALL_INTERPOLATION_TEST", "from-env")

	got, err := ExpandEnvVars("value=${LUMENWALL_INTERPOLATION_TEST}")
	require.NoError(t, err)
	assert.Equal(t, "value=from-env", got)
}
