package checkpoint_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentcore/pkg/checkpoint"
	"github.com/kadirpekel/agentcore/pkg/jobstate"
)

func openStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	s, err := checkpoint.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	state := jobstate.New("job1", "/tmp/ws")
	state.Iteration = 3

	require.NoError(t, s.Save("thread-1", state))

	loaded, found, err := s.Load("thread-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, loaded.Iteration)
	assert.Equal(t, "job1", loaded.JobID)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := openStore(t)
	_, found, err := s.Load("absent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := openStore(t)
	state := jobstate.New("job1", "/tmp/ws")
	require.NoError(t, s.Save("thread-1", state))
	require.NoError(t, s.Delete("thread-1"))
	require.NoError(t, s.Delete("thread-1"))

	_, found, err := s.Load("thread-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFirstThreadIDFallback(t *testing.T) {
	s := openStore(t)
	_, found := s.FirstThreadID()
	assert.False(t, found)

	require.NoError(t, s.Save("thread-a", jobstate.New("job1", "/tmp/ws")))
	id, found := s.FirstThreadID()
	assert.True(t, found)
	assert.Equal(t, "thread-a", id)
}

func TestThreadIDsListsAllKeys(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save("thread-a", jobstate.New("job1", "/tmp/ws")))
	require.NoError(t, s.Save("thread-b", jobstate.New("job2", "/tmp/ws2")))

	ids := s.ThreadIDs()
	assert.ElementsMatch(t, []string{"thread-a", "thread-b"}, ids)
}
