package memorymanager_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentcore/pkg/memorymanager"
	"github.com/kadirpekel/agentcore/pkg/workspace"
)

func newManager(t *testing.T) *memorymanager.Manager {
	t.Helper()
	ws := workspace.New(t.TempDir(), "job1", nil, false)
	require.NoError(t, ws.Initialize())
	return memorymanager.New(ws)
}

func TestReadAbsentIsEmpty(t *testing.T) {
	m := newManager(t)
	assert.False(t, m.Exists())
	assert.Equal(t, "", m.Read())
}

func TestUpdateSectionCreatesThenReplaces(t *testing.T) {
	m := newManager(t)
	assert.True(t, m.UpdateSection("Findings", "first pass"))
	body := m.GetSection("Findings")
	require.NotNil(t, body)
	assert.Equal(t, "first pass", *body)

	assert.True(t, m.UpdateSection("Findings", "second pass"))
	body = m.GetSection("Findings")
	require.NotNil(t, body)
	assert.Equal(t, "second pass", *body)
}

func TestSectionMatchingIsCaseInsensitiveAndScoped(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Write("## Findings\nbody line 1\n\n## Next Steps\nother content\n"))
	body := m.GetSection("findings")
	require.NotNil(t, body)
	assert.Equal(t, "body line 1", *body)
}

func TestAppendToSection(t *testing.T) {
	m := newManager(t)
	assert.True(t, m.AppendToSection("Findings", "finding one"))
	assert.True(t, m.AppendToSection("Findings", "finding two"))
	body := m.GetSection("Findings")
	require.NotNil(t, body)
	assert.Equal(t, "- finding one\n- finding two", *body)
}

func TestStateRoundTrip(t *testing.T) {
	m := newManager(t)
	assert.True(t, m.SetState("status", "in_progress"))
	assert.True(t, m.SetState("phase", "2"))

	state := m.GetState()
	assert.Equal(t, "in_progress", state["status"])
	assert.Equal(t, "2", state["phase"])
}

func TestGetSectionMissingReturnsNil(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Write("## Something\nbody\n"))
	assert.Nil(t, m.GetSection("Nothing"))
}
