// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ReplaceTildeInDir("~/models")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "models"), got)

	got, err = ReplaceTildeInDir("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(usr.HomeDir), got)

	got, err = ReplaceTildeInDir("/tmp/~x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/~x", got)

	_, err = ReplaceTildeInDir("~no-such-user-feltnet/x")
	assert.Error(t, err)
	assert.Panics(t, func() { MustReplaceTildeInDir("~no-such-user-feltnet/x") })
}

func TestEnsureDirAndWriteFile(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "a", "b")
	got, err := EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	exists, err := FileExists(dir)
	require.NoError(t, err)
	assert.True(t, exists)

	// Idempotent.
	_, err = EnsureDir(dir)
	require.NoError(t, err)

	path, err := WriteFile(filepath.Join(base, "c", "payload.txt"), []byte("1, 2"))
	require.NoError(t, err)
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1, 2", string(contents))

	_, err = EnsureDir(path)
	assert.Error(t, err, "a regular file is not a directory")

	exists, err = FileExists(filepath.Join(base, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)
}
