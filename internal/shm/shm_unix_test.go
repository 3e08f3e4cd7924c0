//go:build unix

package shm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "looking-glass")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o600))

	r, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, r.Name())
	assert.Equal(t, 4096, r.Len())

	// 映射为 MAP_SHARED，写入对文件可见。
	copy(r.Bytes(), "KVMFR---")
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Nil(t, r.Bytes())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "KVMFR---", string(raw[:8]))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, merr.ErrShmDevice)
}

func TestOpenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := Open(path)
	assert.ErrorIs(t, err, merr.ErrShmDevice)
}
