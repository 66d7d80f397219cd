package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentcore/pkg/snapshot"
)

func setup(t *testing.T) (*snapshot.Manager, string, string) {
	t.Helper()
	snapBase := t.TempDir()
	wsRoot := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("db-v1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(wsRoot, "workspace.md"), []byte("memory-v1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(wsRoot, "plan.md"), []byte("plan-v1"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(wsRoot, "archive"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wsRoot, "archive", "phase1.md"), []byte("archived"), 0o644))

	m := snapshot.New(snapBase, "job1", wsRoot, dbPath)
	return m, wsRoot, dbPath
}

func TestCreateSnapshotToleratesMissingFiles(t *testing.T) {
	snapBase := t.TempDir()
	wsRoot := t.TempDir() // no files at all
	m := snapshot.New(snapBase, "job1", wsRoot, "")

	ok := m.CreateSnapshot(1, 5, 10, true, 2, 4, "thread-1")
	assert.True(t, ok)

	meta, found := m.GetSnapshot(1)
	require.True(t, found)
	assert.Equal(t, 1, meta.PhaseNumber)
	assert.Equal(t, "thread-1", meta.ThreadID)
}

func TestListAndGetLatestSnapshot(t *testing.T) {
	m, _, _ := setup(t)
	require.True(t, m.CreateSnapshot(1, 1, 1, true, 0, 4, ""))
	require.True(t, m.CreateSnapshot(2, 2, 2, false, 4, 4, ""))

	phases := m.ListSnapshots()
	assert.Equal(t, []int{1, 2}, phases)

	latest, ok := m.GetLatestSnapshot()
	require.True(t, ok)
	assert.Equal(t, 2, latest.PhaseNumber)
}

func TestRecoverToPhaseRestoresFilesAndBacksUpCheckpoint(t *testing.T) {
	m, wsRoot, dbPath := setup(t)
	require.True(t, m.CreateSnapshot(1, 1, 1, true, 0, 4, ""))

	// Mutate the live workspace and checkpoint after the snapshot.
	require.NoError(t, os.WriteFile(filepath.Join(wsRoot, "workspace.md"), []byte("memory-v2"), 0o644))
	require.NoError(t, os.WriteFile(dbPath, []byte("db-v2"), 0o644))

	ok := m.RecoverToPhase(1)
	require.True(t, ok)

	restored, err := os.ReadFile(filepath.Join(wsRoot, "workspace.md"))
	require.NoError(t, err)
	assert.Equal(t, "memory-v1", string(restored))

	backup, err := os.ReadFile(dbPath + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "db-v2", string(backup))

	restoredDB, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "db-v1", string(restoredDB))
}

func TestRecoverToPhaseClearsArchiveWhenSnapshotHasNone(t *testing.T) {
	snapBase := t.TempDir()
	wsRoot := t.TempDir()
	m := snapshot.New(snapBase, "job1", wsRoot, "")
	require.True(t, m.CreateSnapshot(1, 1, 1, true, 0, 4, "")) // no archive/ at snapshot time

	require.NoError(t, os.MkdirAll(filepath.Join(wsRoot, "archive"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wsRoot, "archive", "stale.md"), []byte("x"), 0o644))

	ok := m.RecoverToPhase(1)
	require.True(t, ok)

	entries, err := os.ReadDir(filepath.Join(wsRoot, "archive"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecoverToPhaseUnknownReturnsFalseWithoutMutating(t *testing.T) {
	m, wsRoot, _ := setup(t)
	ok := m.RecoverToPhase(99)
	assert.False(t, ok)

	content, err := os.ReadFile(filepath.Join(wsRoot, "workspace.md"))
	require.NoError(t, err)
	assert.Equal(t, "memory-v1", string(content))
}

func TestDeleteSnapshotsAfter(t *testing.T) {
	m, _, _ := setup(t)
	require.True(t, m.CreateSnapshot(1, 1, 1, true, 0, 4, ""))
	require.True(t, m.CreateSnapshot(2, 2, 2, false, 4, 4, ""))
	require.True(t, m.CreateSnapshot(3, 3, 3, true, 0, 4, ""))

	deleted := m.DeleteSnapshotsAfter(1)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, []int{1}, m.ListSnapshots())
}

func TestCleanupRemovesEverySnapshot(t *testing.T) {
	m, _, _ := setup(t)
	require.True(t, m.CreateSnapshot(1, 1, 1, true, 0, 4, ""))
	require.NoError(t, m.Cleanup())
	assert.Empty(t, m.ListSnapshots())
}
