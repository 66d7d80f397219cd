package planmanager_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentcore/pkg/planmanager"
	"github.com/kadirpekel/agentcore/pkg/workspace"
)

func newManager(t *testing.T) *planmanager.Manager {
	t.Helper()
	ws := workspace.New(t.TempDir(), "job1", nil, false)
	require.NoError(t, ws.Initialize())
	return planmanager.New(ws)
}

func TestIsCompleteDocumentMarker(t *testing.T) {
	m := newManager(t)
	assert.True(t, m.IsComplete("Status: Complete\nEverything done."))
	assert.True(t, m.IsComplete("# Complete"))
}

func TestIsCompletePhaseHeaderWithIncompleteItem(t *testing.T) {
	m := newManager(t)
	content := "## Phase 1\n- [ ] do the thing\n- [x] done thing\n"
	assert.False(t, m.IsComplete(content))
}

func TestIsCompletePhaseHeaderAllDone(t *testing.T) {
	m := newManager(t)
	content := "## Phase 1\n- [x] do the thing\n- [x] done thing\n"
	assert.True(t, m.IsComplete(content))
}

func TestIsCompleteNoMarkers(t *testing.T) {
	m := newManager(t)
	assert.False(t, m.IsComplete("Just some free-form notes."))
}

func TestGetCurrentPhaseSkipsCompleted(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Write("## Phase 1 (complete)\nnotes\n\n## Phase 2\nin progress\n"))
	phase := m.GetCurrentPhase()
	require.NotNil(t, phase)
	assert.Contains(t, *phase, "Phase 2")
}

func TestMarkPhaseComplete(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Write("## Phase 1\nnotes\n"))
	ok := m.MarkPhaseComplete("## Phase 1")
	require.True(t, ok)
	assert.Contains(t, m.Read(), "## Phase 1 (complete)")

	assert.False(t, m.MarkPhaseComplete("## Phase 99"))
}

func TestExistsReflectsWorkspace(t *testing.T) {
	m := newManager(t)
	assert.False(t, m.Exists())
	require.NoError(t, m.Write("content"))
	assert.True(t, m.Exists())
}
