// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	lvl, err := ParseLevel("debug")
	require.NoError(err)
	require.Equal(logging.DEBUG, lvl)

	_, err = ParseLevel("LOUD")
	require.Error(err)

	_, err = New("", "LOUD", false)
	require.Error(err)
}

func TestBackendFileAndRotate(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "mixlink.log")
	b, err := New(f, "NOTICE", false)
	require.NoError(err)

	l := b.GetLogger("log_test")
	l.Debug("hidden")
	l.Notice("visible")

	require.NoError(os.Rename(f, f+".1"))
	require.NoError(b.Rotate())
	l.Warning("after rotate")

	old, err := os.ReadFile(f + ".1")
	require.NoError(err)
	require.Contains(string(old), "log_test: visible")
	require.NotContains(string(old), "hidden")

	cur, err := os.ReadFile(f)
	require.NoError(err)
	require.Contains(string(cur), "after rotate")
}

func TestGoLogger(t *testing.T) {
	t.Parallel()

	f := filepath.Join(t.TempDir(), "go.log")
	b, err := New(f, "DEBUG", false)
	require.NoError(t, err)

	b.GetGoLogger("http", "WARNING").Printf("tls handshake error")

	out, err := os.ReadFile(f)
	require.NoError(t, err)
	require.Contains(t, string(out), "WARN http: tls handshake error")
}
