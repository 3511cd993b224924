// Package vcs versions the notebook with git. Everything is best effort: a
// notebook without a repository works fine, and remote operations degrade to
// informative results instead of failures.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const remoteName = "origin"

// Manager wraps a git repository at the notebook root.
type Manager struct {
	root   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewManager returns a manager for the repository at root. The repository is
// initialized lazily on the first commit.
func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{root: root, logger: logger}
}

// CommitResult reports the outcome of a commit attempt.
type CommitResult struct {
	Committed bool   `json:"committed"`
	Hash      string `json:"hash,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PushResult reports the outcome of a push attempt.
type PushResult struct {
	Pushed bool   `json:"pushed"`
	Detail string `json:"detail"`
}

// PullResult reports the outcome of a pull attempt.
type PullResult struct {
	Status         string `json:"status"` // ok, skipped, conflict or error
	Detail         string `json:"detail"`
	ConflictBranch string `json:"conflictBranch,omitempty"`
}

// Commit is one history entry.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// RepoStatus describes the repository for the status endpoint.
type RepoStatus struct {
	Initialized      bool `json:"initialized"`
	RemoteConfigured bool `json:"remoteConfigured"`
	Dirty            bool `json:"dirty"`
}

// Initialized reports whether a repository exists at the notebook root.
func (m *Manager) Initialized() bool {
	_, err := git.PlainOpen(m.root)
	return err == nil
}

// open returns the repository, or git.ErrRepositoryNotExists.
func (m *Manager) open() (*git.Repository, error) {
	return git.PlainOpen(m.root)
}

// ensure opens the repository, initializing a fresh one when absent.
func (m *Manager) ensure() (*git.Repository, error) {
	repo, err := git.PlainOpen(m.root)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("vcs: open repository: %w", err)
	}
	repo, err = git.PlainInit(m.root, false)
	if err != nil {
		return nil, fmt.Errorf("vcs: init repository: %w", err)
	}
	m.logger.Info("vcs: initialized repository", slog.String("root", m.root))
	return repo, nil
}

// signature builds the commit author, preferring the user's git identity.
func signature(repo *git.Repository) *object.Signature {
	name, email := "Quire", "quire@localhost"
	if cfg, err := repo.ConfigScoped(gitconfig.GlobalScope); err == nil {
		if cfg.User.Name != "" {
			name = cfg.User.Name
		}
		if cfg.User.Email != "" {
			email = cfg.User.Email
		}
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

// CommitAll stages every change under the root and commits it. A clean tree
// commits nothing and is not an error.
func (m *Manager) CommitAll(message string) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitAllLocked(message)
}

func (m *Manager) commitAllLocked(message string) (CommitResult, error) {
	repo, err := m.ensure()
	if err != nil {
		return CommitResult{}, err
	}
	w, err := repo.Worktree()
	if err != nil {
		return CommitResult{}, fmt.Errorf("vcs: worktree: %w", err)
	}
	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return CommitResult{}, fmt.Errorf("vcs: stage: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return CommitResult{}, fmt.Errorf("vcs: status: %w", err)
	}
	if status.IsClean() {
		return CommitResult{Committed: false}, nil
	}
	if message == "" {
		message = "Update notes " + time.Now().Format("2006-01-02 15:04:05")
	}
	hash, err := w.Commit(message, &git.CommitOptions{Author: signature(repo)})
	if err != nil {
		return CommitResult{}, fmt.Errorf("vcs: commit: %w", err)
	}
	m.logger.Info("vcs: committed", slog.String("hash", hash.String()))
	return CommitResult{Committed: true, Hash: hash.String(), Message: message}, nil
}

// Push sends the current branch to origin. Missing remotes and unreachable
// peers are reported in the result, not as errors.
func (m *Manager) Push(ctx context.Context) (PushResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open()
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return PushResult{Pushed: false, Detail: "no repository"}, nil
		}
		return PushResult{}, fmt.Errorf("vcs: open repository: %w", err)
	}
	if _, err := repo.Remote(remoteName); err != nil {
		return PushResult{Pushed: false, Detail: "no remote configured"}, nil
	}
	err = repo.PushContext(ctx, &git.PushOptions{RemoteName: remoteName})
	switch {
	case err == nil:
		return PushResult{Pushed: true, Detail: "pushed"}, nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return PushResult{Pushed: true, Detail: "already up to date"}, nil
	default:
		m.logger.Warn("vcs: push failed", slog.String("error", err.Error()))
		return PushResult{Pushed: false, Detail: err.Error()}, nil
	}
}

// Pull updates the current branch from origin. Local changes are committed
// first; when histories have diverged, local work is parked on a conflict
// branch and the branch is reset to the remote tip.
func (m *Manager) Pull(ctx context.Context) (PullResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open()
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return PullResult{Status: "skipped", Detail: "no repository"}, nil
		}
		return PullResult{}, fmt.Errorf("vcs: open repository: %w", err)
	}
	if _, err := repo.Remote(remoteName); err != nil {
		return PullResult{Status: "skipped", Detail: "no remote configured"}, nil
	}

	// Pulling over uncommitted work would fail; park it in a commit first.
	if _, err := m.commitAllLocked("Auto-commit before pull"); err != nil {
		return PullResult{}, err
	}

	w, err := repo.Worktree()
	if err != nil {
		return PullResult{}, fmt.Errorf("vcs: worktree: %w", err)
	}
	err = w.PullContext(ctx, &git.PullOptions{RemoteName: remoteName})
	switch {
	case err == nil:
		return PullResult{Status: "ok", Detail: "updated"}, nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return PullResult{Status: "ok", Detail: "already up to date"}, nil
	case errors.Is(err, git.ErrNonFastForwardUpdate) ||
		strings.Contains(err.Error(), "non-fast-forward"):
		return m.parkConflict(repo, w)
	default:
		m.logger.Warn("vcs: pull failed", slog.String("error", err.Error()))
		return PullResult{Status: "error", Detail: err.Error()}, nil
	}
}

// parkConflict saves the local branch tip on a conflict branch and hard
// resets the current branch to the remote tracking tip, which the failed
// pull has already fetched.
func (m *Manager) parkConflict(repo *git.Repository, w *git.Worktree) (PullResult, error) {
	head, err := repo.Head()
	if err != nil {
		return PullResult{Status: "error", Detail: "conflict, but HEAD unreadable: " + err.Error()}, nil
	}

	host, _ := os.Hostname()
	if host == "" {
		host = "local"
	}
	branch := fmt.Sprintf("conflict-%s-%s", time.Now().Format("20060102-150405"), host)
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), head.Hash())
	if err := repo.Storer.SetReference(ref); err != nil {
		return PullResult{}, fmt.Errorf("vcs: create conflict branch: %w", err)
	}

	remoteRef, err := repo.Reference(
		plumbing.NewRemoteReferenceName(remoteName, head.Name().Short()), true)
	if err != nil {
		return PullResult{
			Status:         "conflict",
			Detail:         "local changes parked, remote tip not found: " + err.Error(),
			ConflictBranch: branch,
		}, nil
	}
	if err := w.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return PullResult{}, fmt.Errorf("vcs: reset to remote tip: %w", err)
	}

	m.logger.Warn("vcs: pull conflict",
		slog.String("branch", branch),
		slog.String("remote", remoteRef.Hash().String()))
	return PullResult{
		Status:         "conflict",
		Detail:         "histories diverged; local changes parked",
		ConflictBranch: branch,
	}, nil
}

// History returns up to limit commits, newest first.
func (m *Manager) History(limit int) ([]Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open()
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []Commit{}, nil
		}
		return nil, fmt.Errorf("vcs: open repository: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Commit{}, nil
		}
		return nil, fmt.Errorf("vcs: log: %w", err)
	}
	defer iter.Close()

	if limit <= 0 {
		limit = 20
	}
	out := []Commit{}
	for len(out) < limit {
		c, err := iter.Next()
		if err != nil {
			break
		}
		msg := c.Message
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		out = append(out, Commit{
			Hash:    c.Hash.String(),
			Message: msg,
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
	}
	return out, nil
}

// Status reports repository facts for the status endpoint.
func (m *Manager) Status() (RepoStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open()
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return RepoStatus{}, nil
		}
		return RepoStatus{}, fmt.Errorf("vcs: open repository: %w", err)
	}
	st := RepoStatus{Initialized: true}
	if _, err := repo.Remote(remoteName); err == nil {
		st.RemoteConfigured = true
	}
	if w, err := repo.Worktree(); err == nil {
		if ws, err := w.Status(); err == nil {
			st.Dirty = !ws.IsClean()
		}
	}
	return st, nil
}

// Gitignore adds or removes a pattern in the root .gitignore. It reports
// whether the file changed.
func (m *Manager) Gitignore(pattern string, remove bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false, errors.New("vcs: empty gitignore pattern")
	}

	path := filepath.Join(m.root, ".gitignore")
	var lines []string
	if raw, err := os.ReadFile(path); err == nil {
		lines = strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
		if len(lines) == 1 && lines[0] == "" {
			lines = nil
		}
	}

	idx := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == pattern {
			idx = i
			break
		}
	}

	changed := false
	if remove && idx >= 0 {
		lines = append(lines[:idx], lines[idx+1:]...)
		changed = true
	}
	if !remove && idx < 0 {
		lines = append(lines, pattern)
		changed = true
	}
	if !changed {
		return false, nil
	}

	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("vcs: write .gitignore: %w", err)
	}
	return true, nil
}
