package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConfigureAt(t *testing.T, path string, force bool) (string, error) {
	t.Helper()

	prevCfg, prevForce := cfgFile, configureForce
	t.Cleanup(func() { cfgFile, configureForce = prevCfg, prevForce })

	cfgFile = path
	configureForce = force

	out := &bytes.Buffer{}
	configureCmd.SetOut(out)
	err := runConfigure(configureCmd, nil)
	return out.String(), err
}

func TestConfigure(t *testing.T) {
	t.Run("writes a starter config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "paws.json")

		out, err := runConfigureAt(t, path, false)
		require.NoError(t, err)
		assert.Contains(t, out, path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "anthropic")
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "paws.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

		_, err := runConfigureAt(t, path, false)
		assert.ErrorContains(t, err, "already exists")
	})

	t.Run("overwrites with force", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "paws.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

		_, err := runConfigureAt(t, path, true)
		assert.NoError(t, err)
	})
}
