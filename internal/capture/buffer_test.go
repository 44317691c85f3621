package capture

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "buffer")

	first, err := WriteRecord(dir, "USER: hi\n\nAGENT: hello")
	require.NoError(t, err)
	second, err := WriteRecord(dir, "USER: again\n\nAGENT: sure")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, RecordExt, filepath.Ext(first))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "USER: hi\n\nAGENT: hello", string(data))

	// Names sort in write order.
	names := []string{filepath.Base(second), filepath.Base(first)}
	sort.Strings(names)
	assert.Equal(t, filepath.Base(first), names[0])
}

func TestCountRecords(t *testing.T) {
	dir := t.TempDir()

	n, err := CountRecords(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for i := 0; i < 3; i++ {
		_, err := WriteRecord(dir, "x")
		require.NoError(t, err)
	}
	ts := "t"
	require.NoError(t, SaveCheckpoint(dir, &ts))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archived.txt"), 0755))

	n, err = CountRecords(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
