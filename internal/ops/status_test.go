package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/spellbook/internal/capture"
	"github.com/hpungsan/spellbook/internal/db"
)

func TestStatus(t *testing.T) {
	v := newTestVault(t, "version: \"1.2.0\"\nvault_dir: notes\ncreated: \"2024-01-01\"\n")
	seedDocs(t, v)
	_, err := Rebuild(context.Background(), v, nil)
	require.NoError(t, err)
	_, err = capture.WriteRecord(v.Paths.BufferDir(), "USER: hi")
	require.NoError(t, err)
	ts := "2024-01-15T10:00:00.000Z"
	require.NoError(t, capture.SaveCheckpoint(v.Paths.BufferDir(), &ts))

	out, err := Status(v)
	require.NoError(t, err)

	assert.Equal(t, v.Paths.Root, out.Root)
	assert.Equal(t, "1.2.0", out.Version)
	assert.Equal(t, "notes", out.VaultDir)
	assert.Equal(t, "2024-01-01", out.Created)
	assert.Equal(t, db.CurrentSchemaVersion, out.SchemaVersion)
	assert.Equal(t, 1, out.BufferPending)
	require.NotNil(t, out.Checkpoint)
	assert.Equal(t, ts, *out.Checkpoint)
	assert.Equal(t, 2, out.Index.Documents)
	assert.Equal(t, 3, out.Index.Entities)
}

func TestStatus_EmptyVault(t *testing.T) {
	v := newTestVault(t, "")

	out, err := Status(v)
	require.NoError(t, err)
	assert.Equal(t, 0, out.BufferPending)
	assert.Nil(t, out.Checkpoint)
	assert.Equal(t, db.Stats{}, out.Index)
}
