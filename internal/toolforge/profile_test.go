package toolforge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProfileAppendsBlock(t *testing.T) {
	profile := filepath.Join(t.TempDir(), ".bashrc")
	require.NoError(t, os.WriteFile(profile, []byte("alias ll='ls -l'\n"), 0o644))

	require.NoError(t, updateProfile(profile, "/home/user/tools"))

	data, err := os.ReadFile(profile)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "alias ll='ls -l'")
	assert.Contains(t, content, profileBegin)
	assert.Contains(t, content, profileEnd)
	assert.Contains(t, content, `export PATH="/home/user/tools/bin:$PATH"`)
}

func TestUpdateProfileReplacesExistingBlock(t *testing.T) {
	profile := filepath.Join(t.TempDir(), ".bashrc")
	require.NoError(t, os.WriteFile(profile, []byte("before\n"), 0o644))

	require.NoError(t, updateProfile(profile, "/old/prefix"))
	require.NoError(t, updateProfile(profile, "/new/prefix"))

	data, err := os.ReadFile(profile)
	require.NoError(t, err)
	content := string(data)

	// The old block is gone, not duplicated.
	assert.Equal(t, 1, strings.Count(content, profileBegin))
	assert.Equal(t, 1, strings.Count(content, profileEnd))
	assert.NotContains(t, content, "/old/prefix")
	assert.Contains(t, content, `export PATH="/new/prefix/bin:$PATH"`)
	assert.Contains(t, content, "before")
}

func TestUpdateProfileCreatesMissingFile(t *testing.T) {
	profile := filepath.Join(t.TempDir(), ".bashrc")

	require.NoError(t, updateProfile(profile, "/home/user/tools"))

	data, err := os.ReadFile(profile)
	require.NoError(t, err)
	assert.Contains(t, string(data), profileBegin)
}
