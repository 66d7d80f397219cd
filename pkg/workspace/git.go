package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultGitignore seeds the workspace .gitignore when the git sink is
// enabled. Checkpoint/snapshot trees are kept out of version control; the
// engine's own snapshot mechanism (pkg/snapshot) is the recovery path, not
// git history.
var DefaultGitignore = []string{
	"*.db", "*.db.backup", "output/job_completion.json",
}

// maxGitOutputLines caps git query output to a bounded number of lines
// ("Output of queries is truncated to a configured line/word budget").
const maxGitOutputLines = 500

// Git is Workspace's optional commit/tag sink. Every method returns a
// success/failure boolean rather than propagating an error: git failure
// must never abort the job.
type Git struct {
	ws   *Workspace
	repo *git.Repository
}

func newGit(ws *Workspace) *Git {
	return &Git{ws: ws}
}

func (g *Git) initialize() error {
	repo, err := git.PlainInit(g.ws.base, false)
	if err != nil {
		if err == git.ErrRepositoryAlreadyExists {
			repo, err = git.PlainOpen(g.ws.base)
			if err != nil {
				return fmt.Errorf("git: reopen existing repo: %w", err)
			}
			g.repo = repo
			return nil
		}
		return fmt.Errorf("git: init: %w", err)
	}
	g.repo = repo

	gitignorePath := filepath.Join(g.ws.base, ".gitignore")
	if _, statErr := os.Stat(gitignorePath); os.IsNotExist(statErr) {
		_ = os.WriteFile(gitignorePath, []byte(strings.Join(DefaultGitignore, "\n")+"\n"), 0o644)
	}

	g.Commit("Initial workspace snapshot", true)
	return nil
}

func (g *Git) worktree() (*git.Worktree, bool) {
	if g.repo == nil {
		return nil, false
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		slog.Warn("git: worktree unavailable", "error", err)
		return nil, false
	}
	return wt, true
}

// Commit stages all changes and commits them. allowEmpty mirrors `git commit
// --allow-empty`. Returns false on any failure (repo not initialized,
// nothing staged and allowEmpty is false, signature/commit error).
func (g *Git) Commit(msg string, allowEmpty bool) bool {
	wt, ok := g.worktree()
	if !ok {
		return false
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		slog.Warn("git: add failed", "error", err)
		return false
	}

	status, err := wt.Status()
	if err != nil {
		slog.Warn("git: status failed", "error", err)
		return false
	}
	if status.IsClean() && !allowEmpty {
		return false
	}

	sig := &object.Signature{Name: "agentcore", Email: "agentcore@localhost", When: time.Now()}
	_, err = wt.Commit(msg, &git.CommitOptions{Author: sig, AllowEmptyCommits: allowEmpty})
	if err != nil {
		slog.Warn("git: commit failed", "error", err, "message", msg)
		return false
	}
	return true
}

// Tag creates a lightweight or annotated tag at HEAD.
func (g *Git) Tag(name string, msg string) bool {
	if g.repo == nil {
		return false
	}
	head, err := g.repo.Head()
	if err != nil {
		slog.Warn("git: tag failed, no HEAD", "error", err)
		return false
	}
	opts := &git.CreateTagOptions{}
	if msg != "" {
		opts.Message = msg
		opts.Tagger = &object.Signature{Name: "agentcore", Email: "agentcore@localhost", When: time.Now()}
	}
	if _, err := g.repo.CreateTag(name, head.Hash(), opts); err != nil {
		slog.Warn("git: create tag failed", "error", err, "tag", name)
		return false
	}
	return true
}

// Log returns up to maxGitOutputLines commit subjects, most recent first.
func (g *Git) Log() ([]string, bool) {
	if g.repo == nil {
		return nil, false
	}
	head, err := g.repo.Head()
	if err != nil {
		return nil, false
	}
	iter, err := g.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, false
	}
	defer iter.Close()

	var lines []string
	err = iter.ForEach(func(c *object.Commit) error {
		if len(lines) >= maxGitOutputLines {
			return nil
		}
		lines = append(lines, fmt.Sprintf("%s %s", c.Hash.String()[:8], firstLine(c.Message)))
		return nil
	})
	if err != nil {
		return lines, false
	}
	return lines, true
}

// Show returns the diff introduced by a single commit.
func (g *Git) Show(hash string) (string, bool) {
	if g.repo == nil {
		return "", false
	}
	obj, err := g.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return "", false
	}
	return truncate(obj.String()), true
}

// Diff returns the working tree diff against HEAD as a unified-ish summary
// (file status lines; go-git does not expose a textual unified diff without
// extra plumbing, so this reports per-file change kind).
func (g *Git) Diff() (string, bool) {
	wt, ok := g.worktree()
	if !ok {
		return "", false
	}
	status, err := wt.Status()
	if err != nil {
		return "", false
	}
	var b strings.Builder
	for path, s := range status {
		fmt.Fprintf(&b, "%c%c %s\n", s.Staging, s.Worktree, path)
	}
	return truncate(b.String()), true
}

// Status returns the porcelain-style status lines.
func (g *Git) Status() (string, bool) {
	return g.Diff()
}

// HasUncommittedChanges reports whether the working tree is dirty.
func (g *Git) HasUncommittedChanges() bool {
	wt, ok := g.worktree()
	if !ok {
		return false
	}
	status, err := wt.Status()
	if err != nil {
		return false
	}
	return !status.IsClean()
}

// ListTags returns tag names matching a shell glob pattern (empty matches
// all).
func (g *Git) ListTags(pattern string) ([]string, bool) {
	if g.repo == nil {
		return nil, false
	}
	refs, err := g.repo.Tags()
	if err != nil {
		return nil, false
	}
	defer refs.Close()

	var out []string
	_ = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if pattern == "" {
			out = append(out, name)
			return nil
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			out = append(out, name)
		}
		return nil
	})
	return out, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= maxGitOutputLines {
		return s
	}
	return strings.Join(lines[:maxGitOutputLines], "\n") + "\n[truncated]"
}
