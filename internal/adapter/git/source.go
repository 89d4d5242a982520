// Package git produces unified diff text from a local repository
// checkout, backed by go-git.
package git

import (
	"context"
	"fmt"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Source reads diffs out of a local git repository.
type Source struct {
	repoDir string
}

// NewSource constructs a diff source for the provided repository directory.
func NewSource(repoDir string) *Source {
	return &Source{repoDir: repoDir}
}

// PatchResult is a unified diff between two resolved commits.
type PatchResult struct {
	BaseSHA string
	HeadSHA string
	Patch   string
}

// PatchBetween computes the unified diff between the supplied refs.
// Refs may be branch names, tags, or commit hashes; branch names are
// also tried under refs/heads and refs/remotes/origin.
func (s *Source) PatchBetween(ctx context.Context, baseRef, headRef string) (PatchResult, error) {
	repo, err := goGit.PlainOpenWithOptions(s.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return PatchResult{}, fmt.Errorf("open repo: %w", err)
	}

	baseCommit, err := resolveCommit(repo, baseRef)
	if err != nil {
		return PatchResult{}, fmt.Errorf("resolve base ref: %w", err)
	}

	headCommit, err := resolveCommit(repo, headRef)
	if err != nil {
		return PatchResult{}, fmt.Errorf("resolve head ref: %w", err)
	}

	patch, err := baseCommit.PatchContext(ctx, headCommit)
	if err != nil {
		return PatchResult{}, fmt.Errorf("compute patch: %w", err)
	}

	return PatchResult{
		BaseSHA: baseCommit.Hash.String(),
		HeadSHA: headCommit.Hash.String(),
		Patch:   patch.String(),
	}, nil
}

// CurrentBranch returns the name of the checked-out branch.
func (s *Source) CurrentBranch(ctx context.Context) (string, error) {
	repo, err := goGit.PlainOpenWithOptions(s.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	name := head.Name()
	if name.IsBranch() {
		return name.Short(), nil
	}
	return "", fmt.Errorf("detached HEAD")
}

func resolveCommit(repo *goGit.Repository, ref string) (*object.Commit, error) {
	candidates := []string{
		ref,
		fmt.Sprintf("refs/heads/%s", ref),
		fmt.Sprintf("refs/remotes/origin/%s", ref),
	}

	var lastErr error
	for _, candidate := range candidates {
		name := plumbing.Revision(candidate)
		hash, err := repo.ResolveRevision(name)
		if err != nil {
			lastErr = err
			continue
		}
		return repo.CommitObject(*hash)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("unable to resolve ref %s", ref)
}
