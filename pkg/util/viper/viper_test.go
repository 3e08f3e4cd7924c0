package viper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	LGMP struct {
		ShmPath string        `mapstructure:"shm-path"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"lgmp"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"config.yaml": "lgmp:\n  shm-path: /dev/shm/lg\n  timeout: 2s\n",
		"config.json": `{"lgmp": {"shm-path": "/dev/shm/lg", "timeout": "2s"}}`,
		"config.toml": "[lgmp]\nshm-path = \"/dev/shm/lg\"\ntimeout = \"2s\"\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			c := New()
			require.NoError(t, c.LoadFile(writeFile(t, name, content)))

			var s sample
			require.NoError(t, c.Unmarshal(&s))
			assert.Equal(t, "/dev/shm/lg", s.LGMP.ShmPath)
			assert.Equal(t, 2*time.Second, s.LGMP.Timeout)
		})
	}
}

func TestBadTOML(t *testing.T) {
	c := New()
	assert.Error(t, c.LoadFile(writeFile(t, "bad.toml", "[lgmp\n")))
}

func TestDefaultsAndEnv(t *testing.T) {
	c := New()
	c.SetDefault("lgmp.shm-path", "/dev/shm/looking-glass")
	c.SetDefault("lgmp.timeout", "1s")
	require.NoError(t, c.BindEnv("lgmp.timeout", "VIPER_TEST_TIMEOUT"))
	t.Setenv("VIPER_TEST_TIMEOUT", "5s")

	var s sample
	require.NoError(t, c.Unmarshal(&s))
	assert.Equal(t, "/dev/shm/looking-glass", s.LGMP.ShmPath)
	assert.Equal(t, 5*time.Second, s.LGMP.Timeout)
}
