package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadInputs(t *testing.T) {
	dir := t.TempDir()
	hitsPath := filepath.Join(dir, "X.txt")
	labelsPath := filepath.Join(dir, "Y.txt")
	require.NoError(t, os.WriteFile(hitsPath, []byte("1,1,1.0\n1,2,2.0\n2,1,1.1\n"), 0o644))
	require.NoError(t, os.WriteFile(labelsPath, []byte("1,5\n2,3\n"), 0o644))

	in, err := LoadInputs(context.Background(), hitsPath, labelsPath)
	require.NoError(t, err)
	assert.Len(t, in.Hits, 3)
	assert.Equal(t, LayoutPlain, in.Layout)
	assert.Len(t, in.Labels, 2)

	_, err = LoadInputs(context.Background(), hitsPath, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(labelsPath, []byte("1,five\n"), 0o644))
	_, err = LoadInputs(context.Background(), hitsPath, labelsPath)
	assert.ErrorIs(t, err, ErrMalformedRow)
}
