package workspace_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentcore/pkg/workspace"
)

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New(t.TempDir(), "job1", nil, false)
	require.NoError(t, ws.Initialize())
	return ws
}

func TestInitializeIsIdempotent(t *testing.T) {
	ws := newTestWorkspace(t)
	require.NoError(t, ws.WriteFile("plan.md", "hello"))
	require.NoError(t, ws.Initialize())

	content, err := ws.ReadFile("plan.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
}

func TestWriteReadRoundTrip(t *testing.T) {
	ws := newTestWorkspace(t)
	require.NoError(t, ws.WriteFile("notes/a.md", "one"))
	content, err := ws.ReadFile("notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "one", content)
}

func TestAppendFile(t *testing.T) {
	ws := newTestWorkspace(t)
	require.NoError(t, ws.AppendFile("log.md", "a\n"))
	require.NoError(t, ws.AppendFile("log.md", "b\n"))
	content, err := ws.ReadFile("log.md")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", content)
}

func TestPathEscapeRejected(t *testing.T) {
	ws := newTestWorkspace(t)
	_, err := ws.ReadFile("../../etc/passwd")
	require.Error(t, err)
	assert.ErrorIs(t, err, workspace.ErrPathEscape)

	err = ws.WriteFile("../outside.txt", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, workspace.ErrPathEscape)
}

func TestPathEscapeViaAbsoluteLookingRel(t *testing.T) {
	ws := newTestWorkspace(t)
	// A rel path starting with "/" must still resolve inside the root.
	require.NoError(t, ws.WriteFile("/top.md", "x"))
	assert.True(t, ws.Exists("top.md"))
	assert.FileExists(t, filepath.Join(ws.Root(), "top.md"))
}

func TestListAndSearchFiles(t *testing.T) {
	ws := newTestWorkspace(t)
	require.NoError(t, ws.WriteFile("docs/a.txt", "needle here"))
	require.NoError(t, ws.WriteFile("docs/b.txt", "nothing"))
	require.NoError(t, ws.WriteFile("docs/img.png", "needle"))

	files, err := ws.ListFiles("docs", "*.txt")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, files)

	results, err := ws.SearchFiles("needle", "docs", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "docs/a.txt", results[0].Path)
}

func TestMoveAndCopyFile(t *testing.T) {
	ws := newTestWorkspace(t)
	require.NoError(t, ws.WriteFile("a.md", "content"))
	require.NoError(t, ws.CopyFile("a.md", "b.md"))
	require.NoError(t, ws.MoveFile("b.md", "c/b.md"))

	assert.True(t, ws.Exists("a.md"))
	assert.False(t, ws.Exists("b.md"))
	content, err := ws.ReadFile("c/b.md")
	require.NoError(t, err)
	assert.Equal(t, "content", content)
}

func TestCleanupRemovesRoot(t *testing.T) {
	ws := newTestWorkspace(t)
	require.NoError(t, ws.Cleanup())
	assert.False(t, ws.Exists("."))
}

func TestGitSinkCommitsNeverFailJob(t *testing.T) {
	ws := workspace.New(t.TempDir(), "job2", nil, true)
	require.NoError(t, ws.Initialize())
	require.NotNil(t, ws.Git)

	require.NoError(t, ws.WriteFile("plan.md", "v1"))
	ok := ws.Git.Commit("update plan", false)
	assert.True(t, ok)

	// A commit with no changes and allowEmpty=false returns false, not error.
	ok = ws.Git.Commit("no-op", false)
	assert.False(t, ok)
}
