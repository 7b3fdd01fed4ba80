package matrix

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpubw/internal/measure"
)

func TestSaveLoadMatrix(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()

	m, err := Build(referenceMeasurements())
	require.NoError(t, err)
	require.NoError(t, SaveMatrix(fs, "/data/baseline/gh200.json", m))

	exists, err := afero.Exists(fs, "/data/baseline/gh200.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	loaded, err := LoadMatrix(fs, "/data/baseline/gh200.json")
	require.NoError(t, err)
	assert.True(t, loaded.Frozen())
	assert.True(t, m.Equal(loaded))
}

func TestLoadMatrix_ProbeText(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()

	text := measure.Render([]measure.Measurement{sample(0, 0, 200), sample(0, 1, 40.5)})
	require.NoError(t, afero.WriteFile(fs, "baseline.txt", []byte(text), 0o644))

	loaded, err := LoadMatrix(fs, "baseline.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, map[int]float64{0: 200, 1: 40.5}, loaded.Row(0))
}

func TestLoadMatrix_Errors(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()

	_, err := LoadMatrix(fs, "missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, afero.WriteFile(fs, "broken.json", []byte("[{\"package\": }]"), 0o644))
	_, err = LoadMatrix(fs, "broken.json")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "dup.txt", []byte("p0 g0 1 GB/s\np0 g0 2 GB/s\n"), 0o644))
	_, err = LoadMatrix(fs, "dup.txt")
	var dup *DuplicateMeasurementError
	assert.ErrorAs(t, err, &dup)
}
