package fancy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		input  string
		max    int
		expect string
	}{
		{"shorter", "lua", 10, "lua"},
		{"exact", "starlark", 8, "starlark"},
		{"longer", "function client:draw()", 10, "functio..."},
		{"tiny limit", "abcdef", 2, "ab"},
		{"multibyte", "ééééééé", 5, "éé..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expect, TruncateString(tt.input, tt.max))
		})
	}
}

func TestStyledText(t *testing.T) {
	t.Parallel()
	for name, fn := range map[string]func(string) string{
		"node":    NodeText,
		"module":  ModuleText,
		"runtime": RuntimeText,
		"primary": PrimaryText,
		"valid":   ValidText,
		"error":   ErrorText,
		"path":    PathText,
		"summary": SummaryText,
		"count":   CountText,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, fn("wall-7"), "wall-7")
		})
	}
}

func TestTrees(t *testing.T) {
	t.Parallel()

	t.Run("node tree marks primary", func(t *testing.T) {
		t.Parallel()
		out := NodeTree("left", true).AddChild("rect: 0,0,1920,1080").String()
		assert.Contains(t, out, "left")
		assert.Contains(t, out, "(primary)")
		assert.Contains(t, out, "rect: 0,0,1920,1080")

		out = NodeTree("right", false).String()
		assert.NotContains(t, out, "(primary)")
	})

	t.Run("module tree shows runtime", func(t *testing.T) {
		t.Parallel()
		out := ModuleTree("swirl", "lua").AddChild("duration: 30s").String()
		assert.Contains(t, out, "swirl")
		assert.Contains(t, out, "[lua]")
		assert.Contains(t, out, "duration: 30s")
	})

	t.Run("branch node nests", func(t *testing.T) {
		t.Parallel()
		root := Tree().Root("Wall")
		branch := BranchNode("Nodes", "(2)")
		branch.Child(NodeTree("left", false).Tree())
		root.Child(branch)
		out := root.String()
		assert.Contains(t, out, "Nodes")
		assert.Contains(t, out, "(2)")
		assert.Contains(t, out, "left")
		assert.Equal(t, 1, strings.Count(out, "Wall"))
	})
}
