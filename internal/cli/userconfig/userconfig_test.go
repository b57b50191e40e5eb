package userconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectedServer(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	selected, err := GetSelectedServer()
	require.NoError(t, err)
	assert.Empty(t, selected, "no file means nothing selected")

	require.NoError(t, SetSelectedServer("admin.example.com"))

	selected, err = GetSelectedServer()
	require.NoError(t, err)
	assert.Equal(t, "admin.example.com", selected)

	_, err = os.Stat(filepath.Join(home, ".config", "consultadmin", "config.json"))
	assert.NoError(t, err)
}

func TestLoad_Corrupt(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := GetConfigPath()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0644))

	_, err = Load()
	assert.ErrorContains(t, err, "failed to parse user config file")
}
