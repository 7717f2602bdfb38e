package writers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("standard streams", func(t *testing.T) {
		t.Parallel()
		for output, want := range map[string]*os.File{
			"":       os.Stderr,
			"stderr": os.Stderr,
			"stdout": os.Stdout,
		} {
			w, err := Open(output)
			require.NoError(t, err)
			assert.Equal(t, want, w.(nopCloser).Writer)
			require.NoError(t, w.Close())
		}
	})

	t.Run("file uri creates directories", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "a", "b", "wall.log")
		w, err := Open("file://" + path)
		require.NoError(t, err)
		_, err = w.Write([]byte("one\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		w, err = Open(path)
		require.NoError(t, err)
		_, err = w.Write([]byte("two\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\n", string(data))
	})

	t.Run("unsupported", func(t *testing.T) {
		t.Parallel()
		for _, output := range []string{"syslog", "http://collector/logs"} {
			_, err := Open(output)
			require.Error(t, err, output)
		}
	})
}
