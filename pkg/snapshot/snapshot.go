// Package snapshot implements the per-job, per-phase recovery store: a
// directory of point-in-time copies of the checkpoint database and the
// workspace files that drive phase behavior, taken at every phase boundary
// so a crashed job can be restarted from its last completed phase rather
// than from scratch.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Metadata is written alongside each phase snapshot as metadata.json.
type Metadata struct {
	PhaseNumber    int       `json:"phase_number"`
	Iteration      int       `json:"iteration"`
	MessageCount   int       `json:"message_count"`
	IsStrategic    bool      `json:"is_strategic_phase"`
	TodosCompleted int       `json:"todos_completed"`
	TodosTotal     int       `json:"todos_total"`
	ThreadID       string    `json:"thread_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// filesToCopy are copied verbatim into every phase snapshot directory when
// present. archive/ is copied recursively and handled separately.
var filesToCopy = []string{"workspace.md", "plan.md", "todos.yaml"}

// Manager is the snapshot store for a single job.
type Manager struct {
	base          string // <base>/phase_snapshots/job_<id>
	workspaceRoot string // the job's live workspace root
	checkpointDB  string // path to the checkpoint database file
	log           *slog.Logger
}

// New returns a Manager rooted at <snapshotBase>/phase_snapshots/job_<jobID>.
func New(snapshotBase, jobID, workspaceRoot, checkpointDB string) *Manager {
	return &Manager{
		base:          filepath.Join(snapshotBase, "phase_snapshots", "job_"+jobID),
		workspaceRoot: workspaceRoot,
		checkpointDB:  checkpointDB,
		log:           slog.Default().With("component", "snapshot"),
	}
}

func (m *Manager) phaseDir(n int) string {
	return filepath.Join(m.base, fmt.Sprintf("phase_%d", n))
}

// CreateSnapshot copies the checkpoint database, workspace.md, plan.md,
// todos.yaml, and archive/ into a new phase directory, then writes
// metadata.json. Missing source files are skipped and other copy failures
// are logged, neither failing the snapshot; it returns false only when the
// phase directory or metadata.json cannot be written.
func (m *Manager) CreateSnapshot(phaseNumber, iteration, messageCount int, isStrategic bool, todosCompleted, todosTotal int, threadID string) bool {
	dir := m.phaseDir(phaseNumber)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.log.Warn("snapshot: mkdir failed", "phase", phaseNumber, "err", err)
		return false
	}

	if m.checkpointDB != "" {
		if err := copyFile(m.checkpointDB, filepath.Join(dir, filepath.Base(m.checkpointDB))); err != nil && !os.IsNotExist(err) {
			m.log.Warn("snapshot: checkpoint db copy failed", "phase", phaseNumber, "err", err)
		}
	}

	for _, name := range filesToCopy {
		src := filepath.Join(m.workspaceRoot, name)
		if err := copyFile(src, filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			m.log.Warn("snapshot: file copy failed", "phase", phaseNumber, "file", name, "err", err)
		}
	}

	archiveSrc := filepath.Join(m.workspaceRoot, "archive")
	if err := copyDir(archiveSrc, filepath.Join(dir, "archive")); err != nil && !os.IsNotExist(err) {
		m.log.Warn("snapshot: archive copy failed", "phase", phaseNumber, "err", err)
	}

	meta := Metadata{
		PhaseNumber:    phaseNumber,
		Iteration:      iteration,
		MessageCount:   messageCount,
		IsStrategic:    isStrategic,
		TodosCompleted: todosCompleted,
		TodosTotal:     todosTotal,
		ThreadID:       threadID,
		Timestamp:      time.Now().UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		m.log.Warn("snapshot: metadata marshal failed", "phase", phaseNumber, "err", err)
		return false
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		m.log.Warn("snapshot: metadata write failed", "phase", phaseNumber, "err", err)
		return false
	}
	return true
}

// ListSnapshots returns phase numbers with a snapshot, ascending.
func (m *Manager) ListSnapshots() []int {
	entries, err := os.ReadDir(m.base)
	if err != nil {
		return nil
	}
	var phases []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(e.Name(), "phase_%d", &n); err == nil {
			phases = append(phases, n)
		}
	}
	sort.Ints(phases)
	return phases
}

// GetSnapshot returns the metadata for phase n, or false if absent.
func (m *Manager) GetSnapshot(n int) (Metadata, bool) {
	data, err := os.ReadFile(filepath.Join(m.phaseDir(n), "metadata.json"))
	if err != nil {
		return Metadata{}, false
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false
	}
	return meta, true
}

// GetLatestSnapshot returns the highest-numbered snapshot's metadata.
func (m *Manager) GetLatestSnapshot() (Metadata, bool) {
	phases := m.ListSnapshots()
	if len(phases) == 0 {
		return Metadata{}, false
	}
	return m.GetSnapshot(phases[len(phases)-1])
}

// RecoverToPhase restores the checkpoint database (backing up the current
// one to a .db.backup sibling first), workspace files, and archive/ from
// phase n's snapshot. It returns false without mutating the live workspace
// if the snapshot doesn't exist. If a later restore step fails it returns
// false, and the steps already done stay applied (nothing is rolled back).
func (m *Manager) RecoverToPhase(n int) bool {
	dir := m.phaseDir(n)
	if _, err := os.Stat(dir); err != nil {
		return false
	}

	if m.checkpointDB != "" {
		snapDB := filepath.Join(dir, filepath.Base(m.checkpointDB))
		if _, err := os.Stat(snapDB); err == nil {
			if _, err := os.Stat(m.checkpointDB); err == nil {
				if err := copyFile(m.checkpointDB, m.checkpointDB+".backup"); err != nil {
					m.log.Warn("snapshot: checkpoint backup failed", "phase", n, "err", err)
					return false
				}
			}
			if err := copyFile(snapDB, m.checkpointDB); err != nil {
				m.log.Warn("snapshot: checkpoint restore failed", "phase", n, "err", err)
				return false
			}
		}
	}

	for _, name := range filesToCopy {
		src := filepath.Join(dir, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyFile(src, filepath.Join(m.workspaceRoot, name)); err != nil {
			m.log.Warn("snapshot: workspace file restore failed", "phase", n, "file", name, "err", err)
			return false
		}
	}

	liveArchive := filepath.Join(m.workspaceRoot, "archive")
	snapArchive := filepath.Join(dir, "archive")
	if _, err := os.Stat(snapArchive); err != nil {
		// Snapshot predates any archive entries: the live archive is cleared
		// to match, not left stale.
		_ = os.RemoveAll(liveArchive)
		_ = os.MkdirAll(liveArchive, 0o755)
	} else {
		_ = os.RemoveAll(liveArchive)
		if err := copyDir(snapArchive, liveArchive); err != nil {
			m.log.Warn("snapshot: archive restore failed", "phase", n, "err", err)
			return false
		}
	}

	return true
}

// DeleteSnapshotsAfter removes every snapshot with phase_number > n,
// returning the count deleted. Used after a recovery to drop stale future
// snapshots.
func (m *Manager) DeleteSnapshotsAfter(n int) int {
	count := 0
	for _, phase := range m.ListSnapshots() {
		if phase > n {
			if err := os.RemoveAll(m.phaseDir(phase)); err == nil {
				count++
			}
		}
	}
	return count
}

// Cleanup removes every snapshot for the job.
func (m *Manager) Cleanup() error {
	if err := os.RemoveAll(m.base); err != nil {
		return fmt.Errorf("snapshot: cleanup: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot: %s is not a directory", src)
	}
	return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
