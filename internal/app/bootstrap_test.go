package app

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RejectsMissingRepo(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), RunOptions{RepoPath: "/does/not/exist"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestRun_RejectsInvalidModeOverride(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), RunOptions{RepoPath: t.TempDir(), Mode: "turbo"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode")
}

func TestRun_RejectsUnknownRunID(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), RunOptions{RepoPath: t.TempDir(), RunID: "nope"}, &out)
	assert.Error(t, err)
}

func TestDetect_WritesServices(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "backend"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "backend", "requirements.txt"), []byte("flask\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, Detect(repo, &out))
	assert.Contains(t, out.String(), "backend")
	assert.Contains(t, out.String(), "kind=python")
}

func TestDetect_ErrorsOnEmptyRepo(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, Detect(t.TempDir(), &out))
}

func TestDetect_InitializesLogging(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "backend"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "backend", "requirements.txt"), []byte("flask\n"), 0o644))

	// Capture stderr: detection log lines must go through the logger,
	// never the uninitialized-logger fallback.
	origStderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w
	defer func() { os.Stderr = origStderr }()

	var out bytes.Buffer
	detectErr := Detect(repo, &out)

	require.NoError(t, w.Close())
	os.Stderr = origStderr
	captured, err := io.ReadAll(r)
	require.NoError(t, err)

	require.NoError(t, detectErr)
	assert.NotContains(t, string(captured), "LOGGING_ERROR")
}
