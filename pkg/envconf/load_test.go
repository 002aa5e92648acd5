package envconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string        `envconfig:"NAME" required:"true"`
	Port    uint16        `envconfig:"PORT" default:"8080"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

//nolint:paralleltest
func TestLoadFiles_EnvAndDefaults(t *testing.T) {
	t.Setenv("ENVCONF_NAME", "ledger")

	var cfg sample
	err := LoadFiles("ENVCONF", &cfg)
	require.NoError(t, err)

	require.Equal(t, "ledger", cfg.Name)
	require.Equal(t, uint16(8080), cfg.Port)
	require.Equal(t, 5*time.Second, cfg.Timeout)
}

//nolint:paralleltest
func TestLoadFiles_DotenvDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	err := os.WriteFile(path, []byte("ENVCONF_NAME=fromfile\nENVCONF_PORT=9000\n"), 0o600)
	require.NoError(t, err)

	t.Setenv("ENVCONF_NAME", "fromenv")
	t.Setenv("ENVCONF_PORT", "")
	require.NoError(t, os.Unsetenv("ENVCONF_PORT"))

	var cfg sample
	err = LoadFiles("ENVCONF", &cfg, path)
	require.NoError(t, err)

	require.Equal(t, "fromenv", cfg.Name)
	require.Equal(t, uint16(9000), cfg.Port)
}

//nolint:paralleltest
func TestLoadFiles_MissingRequired(t *testing.T) {
	t.Setenv("ENVCONF_NAME", "")
	require.NoError(t, os.Unsetenv("ENVCONF_NAME"))

	var cfg sample
	err := LoadFiles("ENVCONF", &cfg, filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
}

func TestLoadFiles_NilDestination(t *testing.T) {
	t.Parallel()

	err := LoadFiles("", nil)
	require.ErrorIs(t, err, ErrNilDestination)
}

//nolint:paralleltest
func TestGet(t *testing.T) {
	t.Setenv("ENVCONF_GET_SET", "value")
	t.Setenv("ENVCONF_GET_EMPTY", "")

	require.Equal(t, "value", Get("ENVCONF_GET_SET", "fallback"))
	require.Equal(t, "fallback", Get("ENVCONF_GET_EMPTY", "fallback"))
	require.Equal(t, "fallback", Get("ENVCONF_GET_UNSET_XYZ", "fallback"))
}
