package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "geocass.db")
	t.Setenv("GEOCASS_DATABASE_URL", "sqlite:///"+dbPath)
	t.Setenv("GEOCASS_LOG_LEVEL", "error")
	t.Setenv(passwordEnv, "correct horse")
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_AccountAndKeyLifecycle(t *testing.T) {
	setupEnv(t)

	out, err := runCmd(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	out, err = runCmd(t, "create-account", "-username", "wren", "-email", "wren@example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "created account wren")

	_, err = runCmd(t, "create-account", "-username", "wren", "-email", "other@example.org")
	assert.Error(t, err, "duplicate username")

	out, err = runCmd(t, "issue-key", "-username", "wren", "-label", "ci", "-ttl", "24h")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "gc_"), "plaintext key printed once: %q", out)

	_, err = runCmd(t, "issue-key", "-username", "ghost")
	assert.Error(t, err)

	out, err = runCmd(t, "rebuild-tags")
	require.NoError(t, err)
	assert.Contains(t, out, "rebuilt tag counts (0 top tags)")
}

func TestRun_Usage(t *testing.T) {
	setupEnv(t)

	_, err := runCmd(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, "create-account", "-username", "wren")
	assert.ErrorIs(t, err, errUsage, "email is required")

	out, err := runCmd(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "create-account")
}
