package todomanager_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentcore/pkg/todomanager"
	"github.com/kadirpekel/agentcore/pkg/workspace"
)

func newManager(t *testing.T) (*todomanager.Manager, *[]string) {
	t.Helper()
	ws := workspace.New(t.TempDir(), "job1", nil, false)
	require.NoError(t, ws.Initialize())

	var commits []string
	commit := func(msg string, allowEmpty bool) bool {
		commits = append(commits, msg)
		return true
	}
	return todomanager.New(ws, commit, todomanager.Config{MinTodos: 2, MaxTodos: 4}), &commits
}

func TestAddStartCompleteLifecycle(t *testing.T) {
	m, commits := newManager(t)
	todo := m.Add("write the docs", todomanager.PriorityHigh)
	assert.Equal(t, "todo_1", todo.ID)
	assert.Equal(t, todomanager.StatusPending, todo.Status)

	assert.True(t, m.Start(todo.ID))
	got, ok := m.Get(todo.ID)
	require.True(t, ok)
	assert.Equal(t, todomanager.StatusInProgress, got.Status)

	assert.True(t, m.Complete(todo.ID, "done via PR 42"))
	got, _ = m.Get(todo.ID)
	assert.Equal(t, todomanager.StatusCompleted, got.Status)
	assert.Equal(t, []string{"done via PR 42"}, got.Notes)

	require.Len(t, *commits, 1)
	assert.Contains(t, (*commits)[0], "todo_1")
}

func TestCompleteUnknownIDReturnsFalse(t *testing.T) {
	m, _ := newManager(t)
	assert.False(t, m.Complete("nope", ""))
	assert.False(t, m.Start("nope"))
}

func TestListPendingOrdersByPriorityThenAge(t *testing.T) {
	m, _ := newManager(t)
	low := m.Add("low item", todomanager.PriorityLow)
	high := m.Add("high item", todomanager.PriorityHigh)
	med := m.Add("medium item", todomanager.PriorityMedium)

	pending := m.ListPending()
	require.Len(t, pending, 3)
	assert.Equal(t, high.ID, pending[0].ID)
	assert.Equal(t, med.ID, pending[1].ID)
	assert.Equal(t, low.ID, pending[2].ID)
}

func TestAllCompleteRequiresNonEmpty(t *testing.T) {
	m, _ := newManager(t)
	assert.False(t, m.AllComplete())

	todo := m.Add("only item", todomanager.PriorityMedium)
	assert.False(t, m.AllComplete())
	m.Complete(todo.ID, "")
	assert.True(t, m.AllComplete())
}

func TestArchiveClearsListAndResetsNextID(t *testing.T) {
	m, _ := newManager(t)
	a := m.Add("item a", todomanager.PriorityMedium)
	m.Complete(a.ID, "")
	m.Add("item b", todomanager.PriorityLow)

	path, err := m.Archive("Phase One", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, path, "archive/todos_phase_1_tactical_20260102_030405.md")
	assert.Empty(t, m.ListAll())

	next := m.Add("fresh item", todomanager.PriorityMedium)
	assert.Equal(t, "todo_1", next.ID)
}

func TestArchiveWithFailureNoteUsesRewindName(t *testing.T) {
	m, _ := newManager(t)
	m.Add("item", todomanager.PriorityMedium)
	path, err := m.ArchiveWithFailureNote("build broke", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, path, "archive/todos_REWIND_phase1_20260102_030405.md")
}

func TestStageTacticalTodosValidatesBounds(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.StageTacticalTodos([]string{"too short list item"}, "Next Phase")
	var stagingErr *todomanager.StagingError
	require.ErrorAs(t, err, &stagingErr)

	_, err = m.StageTacticalTodos([]string{"short", "also fine length item"}, "Next Phase")
	require.ErrorAs(t, err, &stagingErr)
	assert.Contains(t, err.Error(), "item 0")

	_, err = m.StageTacticalTodos([]string{"a proper length item one", "a proper length item two"}, "Next Phase")
	require.NoError(t, err)
	assert.True(t, m.HasStagedTodos())
}

func TestApplyStagedTodosResetsIDsAndActivates(t *testing.T) {
	m, _ := newManager(t)
	m.Add("leftover from prior phase", todomanager.PriorityMedium)

	_, err := m.StageTacticalTodos([]string{"a proper length item one", "a proper length item two"}, "Next Phase")
	require.NoError(t, err)

	m.ApplyStagedTodos()
	assert.False(t, m.HasStagedTodos())
	all := m.ListAll()
	require.Len(t, all, 2)
	assert.Equal(t, "todo_1", all[0].ID)
	assert.Equal(t, "todo_2", all[1].ID)
	assert.Equal(t, "Next Phase", m.CurrentPhaseName())
}

func TestExportRestoreStateRoundTrip(t *testing.T) {
	m, _ := newManager(t)
	m.Add("item one", todomanager.PriorityHigh)
	m.SetPhase(true, 3, "Strategic Planning")

	state := m.ExportState()

	m2, _ := newManager(t)
	m2.RestoreState(state)

	assert.Equal(t, m.ListAll(), m2.ListAll())
	assert.Equal(t, 3, m2.PhaseNumber())
	assert.True(t, m2.IsStrategicPhase())

	next := m2.Add("item two", todomanager.PriorityLow)
	assert.Equal(t, "todo_2", next.ID)
}

func TestSaveLoadStateRoundTripsThroughWorkspace(t *testing.T) {
	ws := workspace.New(t.TempDir(), "job1", nil, false)
	require.NoError(t, ws.Initialize())
	m := todomanager.New(ws, nil, todomanager.DefaultConfig())
	m.Add("persisted item", todomanager.PriorityMedium)

	path, err := m.SaveState()
	require.NoError(t, err)
	assert.True(t, ws.Exists(path))

	m2 := todomanager.New(ws, nil, todomanager.DefaultConfig())
	loaded, err := m2.LoadState()
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, m.ListAll(), m2.ListAll())

	require.NoError(t, m2.ClearSavedState())
	assert.False(t, ws.Exists(path))

	m3 := todomanager.New(ws, nil, todomanager.DefaultConfig())
	loaded, err = m3.LoadState()
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestFormatForDisplayShowsSections(t *testing.T) {
	m, _ := newManager(t)
	m.SetPhase(false, 2, "Implement feature")
	a := m.Add("task one", todomanager.PriorityHigh)
	m.Start(a.ID)
	m.Add("task two", todomanager.PriorityMedium)

	out := m.FormatForDisplay()
	assert.Contains(t, out, "Phase 2 (Tactical): Implement feature")
	assert.Contains(t, out, "### In Progress")
	assert.Contains(t, out, "task one")
	assert.Contains(t, out, "### Pending")
	assert.Contains(t, out, "task two")
	assert.Contains(t, out, "Completed: 0/2")
}
