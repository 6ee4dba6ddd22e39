// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the file system: tilde expansion for paths given on
// the command line, and the directory creation used by checkpoints and exported payloads.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DirPermMode is the directory creation permission (before umask) used by EnsureDir.
var DirPermMode = os.FileMode(0770)

// FilePermMode is the permission (before umask) of files written by WriteFile.
var FilePermMode = os.FileMode(0660)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// MustReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It panics with an error if `dir` has an unknown user (e.g: `~unknown/...`)
func MustReplaceTildeInDir(dir string) string {
	dir, err := ReplaceTildeInDir(dir)
	if err != nil {
		panic(err)
	}
	return dir
}

// ReplaceTildeInDir by the user's home directory: "~" and "~/..." use the current user, "~name/..." the
// home directory of user name. Returns dir unchanged if it doesn't start with "~".
func ReplaceTildeInDir(dir string) (string, error) {
	if !strings.HasPrefix(dir, "~") {
		return dir, nil
	}
	userName, rest, _ := strings.Cut(dir[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// EnsureDir expands a leading tilde in dir and creates it (with parents) if it doesn't exist.
// It fails if dir exists and is not a directory. It returns the expanded path.
func EnsureDir(dir string) (string, error) {
	dir, err := ReplaceTildeInDir(dir)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(dir)
	switch {
	case err == nil && !fi.IsDir():
		return "", errors.Errorf("%q exists but it's a normal file, not a directory", dir)
	case err == nil:
		return dir, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", errors.Wrapf(err, "failed to os.Stat(%q)", dir)
	}
	if err = os.MkdirAll(dir, DirPermMode); err != nil {
		return "", errors.Wrapf(err, "trying to create dir %q", dir)
	}
	return dir, nil
}

// WriteFile writes data to path, after expanding a leading tilde and creating the parent directory.
// It returns the expanded path.
func WriteFile(path string, data []byte) (string, error) {
	path, err := ReplaceTildeInDir(path)
	if err != nil {
		return "", err
	}
	if _, err = EnsureDir(filepath.Dir(path)); err != nil {
		return "", err
	}
	if err = os.WriteFile(path, data, FilePermMode); err != nil {
		return "", errors.Wrapf(err, "writing %q", path)
	}
	return path, nil
}
