package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	run, err := store.Create("/tmp/some-repo")
	require.NoError(t, err)
	require.NotEmpty(t, run.State.RunID)

	require.NoError(t, run.AppendRecord(Record{
		Phase:   "ANALYSIS",
		Attempt: 1,
		Status:  StatusCompleted,
		Output:  json.RawMessage(`{"services": ["backend"]}`),
	}))
	require.NoError(t, run.AppendRecord(Record{
		Phase:   "PORT_MGMT",
		Attempt: 1,
		Status:  StatusFailed,
		Error:   "port conflict",
	}))

	loaded, err := store.Load(run.State.RunID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/some-repo", loaded.State.RepoPath)
	require.Len(t, loaded.State.Records, 2)
	assert.Equal(t, 1, loaded.State.Records[0].Sequence)
	assert.Equal(t, 2, loaded.State.Records[1].Sequence)
	assert.Equal(t, "port conflict", loaded.State.Records[1].Error)
	assert.JSONEq(t, `{"services": ["backend"]}`, string(loaded.State.Records[0].Output))
}

func TestAppendIsDurablePerRecord(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	run, err := store.Create("/repo")
	require.NoError(t, err)

	// Each append must be visible to a fresh load immediately, as if
	// the process crashed right after.
	for i, phase := range []string{"ANALYSIS", "PORT_MGMT", "ENV_ASSESS"} {
		require.NoError(t, run.AppendRecord(Record{Phase: phase, Attempt: 1, Status: StatusCompleted}))

		loaded, err := store.Load(run.State.RunID)
		require.NoError(t, err)
		assert.Len(t, loaded.State.Records, i+1)
	}
}

func TestCompletedPhases(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	run, err := store.Create("/repo")
	require.NoError(t, err)

	require.NoError(t, run.AppendRecord(Record{Phase: "ANALYSIS", Attempt: 1, Status: StatusCompleted}))
	require.NoError(t, run.AppendRecord(Record{Phase: "PORT_MGMT", Attempt: 1, Status: StatusFailed, Error: "conflict"}))
	require.NoError(t, run.AppendRecord(Record{
		Phase: "PORT_MGMT", Attempt: 2, Status: StatusCompleted,
		Output: json.RawMessage(`{"backend": 8001}`),
	}))

	completed := run.CompletedPhases()
	require.Len(t, completed, 2)
	assert.Contains(t, completed, "ANALYSIS")
	// The later, successful attempt wins.
	assert.Equal(t, 2, completed["PORT_MGMT"].Attempt)
	assert.NotContains(t, completed, "ENV_ASSESS")
}

func TestFixAttemptHistory(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	run, err := store.Create("/repo")
	require.NoError(t, err)

	for i, fix := range []string{"fix-1", "fix-2", "fix-3", "fix-4"} {
		require.NoError(t, run.AppendFix(FixAttempt{
			Phase:     "SERVICE_STARTUP",
			ErrorText: "exit status 1",
			Fix:       fix,
			Applied:   i == 0,
		}))
	}

	last := run.LastFixes(3)
	require.Len(t, last, 3)
	assert.Equal(t, "fix-2", last[0].Fix)
	assert.Equal(t, "fix-4", last[2].Fix)

	// Fixes survive a reload, applied flag included.
	loaded, err := store.Load(run.State.RunID)
	require.NoError(t, err)
	require.Len(t, loaded.State.Fixes, 4)
	assert.True(t, loaded.State.Fixes[0].Applied)
	assert.False(t, loaded.State.Fixes[1].Applied)
}

func TestLoad_UnknownFieldsIgnored(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	// A file written by a future binary with extra fields still loads.
	state := `{
		"version": 1,
		"runId": "future-run",
		"repoPath": "/repo",
		"createdAt": "2026-01-01T00:00:00Z",
		"records": [
			{"sequence": 1, "phase": "ANALYSIS", "attempt": 1, "status": "completed",
			 "timestamp": "2026-01-01T00:00:01Z", "futureField": {"nested": true}}
		],
		"someNewTopLevelField": 42
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "future-run.json"), []byte(state), 0o644))

	run, err := store.Load("future-run")
	require.NoError(t, err)
	assert.Len(t, run.State.Records, 1)
}

func TestLoad_NewerVersionRejected(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v99.json"), []byte(`{"version": 99, "runId": "v99"}`), 0o644))

	_, err = store.Load("v99")
	assert.Error(t, err)
}

func TestLoad_MissingRun(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Load("does-not-exist")
	assert.Error(t, err)
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	run, err := store.Create("/repo")
	require.NoError(t, err)
	require.NoError(t, run.AppendRecord(Record{Phase: "ANALYSIS", Attempt: 1, Status: StatusCompleted}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}
