package notebook

import (
	"context"
	"fmt"
	"strings"

	"github.com/hverdal/quire/internal/apperr"
	"github.com/hverdal/quire/internal/settings"
	"github.com/hverdal/quire/internal/vcs"
)

// SyncResult combines a commit attempt with the push that follows it.
type SyncResult struct {
	vcs.CommitResult
	Pushed     bool   `json:"pushed"`
	PushDetail string `json:"pushDetail"`
}

// VersioningStatus is the payload of the versioning status endpoint.
type VersioningStatus struct {
	Settings   settings.Settings `json:"settings"`
	Repository vcs.RepoStatus    `json:"repository"`
}

// CommitAndPush commits all pending changes and pushes them to the remote.
// Push problems are reported in the result so a missing or unreachable remote
// never fails the commit.
func (s *Service) CommitAndPush(ctx context.Context, message string) (SyncResult, error) {
	commit, err := s.vcs.CommitAll(message)
	if err != nil {
		return SyncResult{}, err
	}
	push, err := s.vcs.Push(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	return SyncResult{CommitResult: commit, Pushed: push.Pushed, PushDetail: push.Detail}, nil
}

// PullNotes updates the notebook from the remote.
func (s *Service) PullNotes(ctx context.Context) (vcs.PullResult, error) {
	return s.vcs.Pull(ctx)
}

// History returns recent commits, newest first. Limits outside 1..200 are
// clamped.
func (s *Service) History(_ context.Context, limit int) ([]vcs.Commit, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	return s.vcs.History(limit)
}

// Versioning reports the repository state together with the settings that
// drive auto-commit behavior.
func (s *Service) Versioning(_ context.Context) (VersioningStatus, error) {
	repo, err := s.vcs.Status()
	if err != nil {
		return VersioningStatus{}, err
	}
	return VersioningStatus{Settings: s.settings.Current(), Repository: repo}, nil
}

// UpdateGitignore adds or removes one pattern in the notebook's .gitignore.
func (s *Service) UpdateGitignore(_ context.Context, pattern string, remove bool) (bool, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.ContainsAny(pattern, "\r\n") {
		return false, fmt.Errorf("notebook: %w: invalid gitignore pattern", apperr.ErrValidation)
	}
	return s.vcs.Gitignore(pattern, remove)
}
