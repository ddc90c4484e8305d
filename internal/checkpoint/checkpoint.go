package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"reporunner/pkg/logging"
)

const subsystem = "Checkpoint"

// stateVersion is bumped when the file layout changes incompatibly.
// Unknown fields in older binaries' files are ignored on load, so
// additive changes do not need a bump.
const stateVersion = 1

// RecordStatus is the outcome of one phase attempt.
type RecordStatus string

const (
	StatusCompleted RecordStatus = "completed"
	StatusFailed    RecordStatus = "failed"
)

// Record is one append-only entry in a run's history: a single attempt
// of a single phase.
type Record struct {
	Sequence  int             `json:"sequence"`
	Phase     string          `json:"phase"`
	Attempt   int             `json:"attempt"`
	Status    RecordStatus    `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// FixAttempt is one self-heal action taken during the run, persisted so
// later failures can learn from it.
type FixAttempt struct {
	Phase     string    `json:"phase"`
	ServiceID string    `json:"serviceId,omitempty"`
	ErrorText string    `json:"errorText"`
	Analysis  string    `json:"analysis"`
	Fix       string    `json:"fix"`
	Steps     []string  `json:"steps,omitempty"`

	// Applied reports whether the remediation was mechanically executed
	// before the retry; Succeeded whether the retry then passed.
	Applied   bool      `json:"applied"`
	Succeeded bool      `json:"succeeded"`
	Timestamp time.Time `json:"timestamp"`
}

// RunState is the full persisted state of one run.
type RunState struct {
	Version   int          `json:"version"`
	RunID     string       `json:"runId"`
	RepoPath  string       `json:"repoPath"`
	CreatedAt time.Time    `json:"createdAt"`
	Records   []Record     `json:"records"`
	Fixes     []FixAttempt `json:"fixes,omitempty"`
}

// Store manages run checkpoint files in a directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Create starts a fresh run with a new ID and persists its empty state.
func (s *Store) Create(repoPath string) (*Run, error) {
	run := &Run{
		store: s,
		State: RunState{
			Version:   stateVersion,
			RunID:     uuid.NewString(),
			RepoPath:  repoPath,
			CreatedAt: time.Now(),
		},
	}
	if err := run.persist(); err != nil {
		return nil, err
	}
	logging.Info(subsystem, "Created run %s", run.State.RunID)
	return run, nil
}

// Load reads an existing run for resumption.
func (s *Store) Load(runID string) (*Run, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint for run %s: %w", runID, err)
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding checkpoint for run %s: %w", runID, err)
	}
	if state.Version > stateVersion {
		return nil, fmt.Errorf("checkpoint for run %s has version %d, this binary supports up to %d", runID, state.Version, stateVersion)
	}
	logging.Info(subsystem, "Loaded run %s with %d record(s)", runID, len(state.Records))
	return &Run{store: s, State: state}, nil
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// Run is one run's checkpoint, append-only: records and fixes are only
// ever added, and every append is persisted before it returns.
type Run struct {
	store *Store
	mu    sync.Mutex
	State RunState
}

// AppendRecord adds a phase attempt record, assigning its sequence
// number, and persists the state.
func (r *Run) AppendRecord(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Sequence = len(r.State.Records) + 1
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	r.State.Records = append(r.State.Records, rec)
	if err := r.persistLocked(); err != nil {
		// Keep the in-memory history consistent with the file.
		r.State.Records = r.State.Records[:len(r.State.Records)-1]
		return err
	}
	return nil
}

// AppendFix adds a self-heal attempt and persists the state.
func (r *Run) AppendFix(fix FixAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}
	r.State.Fixes = append(r.State.Fixes, fix)
	if err := r.persistLocked(); err != nil {
		r.State.Fixes = r.State.Fixes[:len(r.State.Fixes)-1]
		return err
	}
	return nil
}

// CompletedPhases returns the latest completed record per phase, keyed
// by phase name. Resumption replays these outputs instead of re-running
// the phases.
func (r *Run) CompletedPhases() map[string]Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	completed := make(map[string]Record)
	for _, rec := range r.State.Records {
		if rec.Status == StatusCompleted {
			completed[rec.Phase] = rec
		}
	}
	return completed
}

// LastFixes returns up to n most recent fix attempts, oldest first.
func (r *Run) LastFixes(n int) []FixAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	fixes := r.State.Fixes
	if len(fixes) > n {
		fixes = fixes[len(fixes)-n:]
	}
	out := make([]FixAttempt, len(fixes))
	copy(out, fixes)
	return out
}

func (r *Run) persist() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked()
}

// persistLocked writes the state to a temp file and renames it into
// place so readers never see a partial file.
func (r *Run) persistLocked() error {
	data, err := json.MarshalIndent(r.State, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	finalPath := r.store.path(r.State.RunID)
	tempFile := finalPath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint temp file: %w", err)
	}
	if err := os.Rename(tempFile, finalPath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("replacing checkpoint file: %w", err)
	}
	return nil
}
