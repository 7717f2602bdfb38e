package titlecard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCardVisibility(t *testing.T) {
	t.Parallel()

	c := New(Info{Title: "Aurora", Author: "kim"}, nil)
	assert.False(t, c.Visible())

	c.Enter()
	c.Enter()
	assert.True(t, c.Visible())

	c.Exit()
	c.Exit()
	assert.False(t, c.Visible())
}

func TestEmptyCardNeverShows(t *testing.T) {
	t.Parallel()

	c := New(Info{}, nil)
	c.Enter()
	assert.False(t, c.Visible())
}

func TestModuleAPI(t *testing.T) {
	t.Parallel()

	c := New(Info{Title: "Aurora"}, nil)
	c.ModuleAPI().SetStatus("frame 12")
	assert.Equal(t, "frame 12", c.Status())
	assert.Equal(t, "Aurora", c.Info().Title)
}
