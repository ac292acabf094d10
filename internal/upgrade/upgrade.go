// Package upgrade drives the platform upgrade workflow from version lookup to
// pull request.
package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/schaermu/ijsync/internal/config"
	"github.com/schaermu/ijsync/internal/files"
	"github.com/schaermu/ijsync/internal/git"
	"github.com/schaermu/ijsync/internal/github"
	"github.com/schaermu/ijsync/internal/version"
)

// Resolver returns the latest platform version
type Resolver interface {
	Latest(ctx context.Context) (version.Version, error)
}

// Synchronizer rewrites the managed files for a platform version
type Synchronizer interface {
	Run(ctx context.Context, newPlatform version.Version) (files.Result, error)
}

// Engine orchestrates the upgrade process
type Engine struct {
	cfg      *config.Config
	resolver Resolver
	files    Synchronizer
	git      git.Client
	hosting  github.Client
	logger   *slog.Logger
	dryRun   bool
	reset    bool
}

// NewEngine creates a new upgrade engine
func NewEngine(cfg *config.Config, resolver Resolver, synchronizer Synchronizer, gitClient git.Client, hosting github.Client, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		files:    synchronizer,
		git:      gitClient,
		hosting:  hosting,
		logger:   logger,
		dryRun:   dryRun,
	}
}

// WithFreshCheckout makes every run start from the remote base branch,
// discarding local state left by earlier runs.
func (e *Engine) WithFreshCheckout() *Engine {
	e.reset = true
	return e
}

// Run executes the complete upgrade workflow. Remote state is checked before
// every mutation, so repeated runs for the same version are no-ops.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	e.logger.Info("starting upgrade",
		"repo", e.cfg.Repo.Owner+"/"+e.cfg.Repo.Name,
		"dir", e.cfg.Repo.Dir,
		"dry_run", e.dryRun)

	res := Result{State: StateResolveVersion, DryRun: e.dryRun}

	if e.reset {
		commit, err := e.git.ResetToRemote(ctx, e.cfg.Repo.Remote, e.cfg.Repo.BaseBranch)
		if err != nil {
			return res, fmt.Errorf("failed to reset working tree: %w", err)
		}
		e.logger.Info("working tree reset", "branch", e.cfg.Repo.BaseBranch, "commit", commit)
	}

	latest, err := e.resolver.Latest(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to resolve latest version: %w", err)
	}
	res.Version = latest
	if latest.IsZero() {
		e.logger.Warn("no platform version could be resolved, nothing to do")
		res.State = StateDone
		return res, nil
	}
	e.logger.Info("resolved latest version", "platform", e.cfg.Release.PlatformName, "version", latest.String())

	res.State = StateSyncFiles
	synced, err := e.files.Run(ctx, latest)
	res.Files = synced.Written
	if err != nil {
		return res, fmt.Errorf("failed to synchronize files: %w", err)
	}
	e.logger.Info("files synchronized",
		"current_platform", synced.CurrentPlatform.String(),
		"next_plugin", synced.NextPlugin.String(),
		"written", len(synced.Written))

	if e.dryRun {
		for _, f := range synced.Written {
			e.logger.Info("[dry-run] would commit", "file", f)
		}
		e.logger.Info("dry-run complete, no changes published")
		res.State = StateDone
		return res, nil
	}

	res.State = StateCheckChanges
	changes, err := git.CountPendingChanges(ctx, e.git, e.logger)
	if err != nil {
		return res, fmt.Errorf("failed to detect changes: %w", err)
	}
	if changes == 0 {
		e.logger.Info("no changes detected, nothing to publish")
		res.State = StateDone
		return res, nil
	}
	e.logger.Info("changes detected", "modified", changes)

	res.Branch = e.cfg.BranchName(latest.String())
	title := e.cfg.UpgradeTitle(latest.String())

	branches, err := e.hosting.ListBranches(ctx)
	if err != nil {
		return res, err
	}
	prs, err := e.hosting.ListPullRequests(ctx)
	if err != nil {
		return res, err
	}
	branchExists := slices.Contains(branches, res.Branch)
	prExists := slices.Contains(prs, res.Branch)

	if branchExists && prExists {
		e.logger.Info("branch and pull request already exist, skipping", "branch", res.Branch)
		res.State = StateSkip
		return res, nil
	}

	if branchExists {
		e.logger.Info("branch already exists, not pushing", "branch", res.Branch)
	} else {
		res.State = StateBranchAndCommit
		if err := e.commit(ctx, res.Branch, title); err != nil {
			return res, err
		}

		res.State = StatePush
		e.logger.Info("pushing branch", "remote", e.cfg.Repo.Remote, "branch", res.Branch)
		if err := e.git.Push(ctx, e.cfg.Repo.Remote, res.Branch); err != nil {
			return res, fmt.Errorf("failed to push branch: %w", err)
		}
		res.BranchPushed = true
	}

	res.State = StateCheckExistingPR
	if !prExists {
		// another run may have opened it since the first listing
		prs, err = e.hosting.ListPullRequests(ctx)
		if err != nil {
			return res, err
		}
		prExists = slices.Contains(prs, res.Branch)
	}
	if prExists {
		e.logger.Info("pull request already exists, skipping", "branch", res.Branch)
		res.State = StateSkip
		return res, nil
	}

	res.State = StateOpenPR
	pr := github.NewPullRequest{
		Title: title,
		Body:  e.pullRequestBody(latest),
		Head:  res.Branch,
		Base:  e.cfg.Repo.BaseBranch,
	}
	url, err := e.hosting.CreatePullRequest(ctx, pr)
	if errors.Is(err, github.ErrTimeout) {
		// the pull request may exist even though the response never arrived
		e.logger.Warn("pull request creation timed out, re-checking open pull requests", "branch", res.Branch)
		prs, listErr := e.hosting.ListPullRequests(ctx)
		if listErr != nil {
			return res, errors.Join(err, listErr)
		}
		if slices.Contains(prs, res.Branch) {
			e.logger.Info("pull request was created despite the timeout, skipping", "branch", res.Branch)
			res.State = StateSkip
			return res, nil
		}
		url, err = e.hosting.CreatePullRequest(ctx, pr)
	}
	if err != nil {
		return res, err
	}
	res.PullRequestURL = url
	e.logger.Info("pull request opened", "url", url, "branch", res.Branch, "base", e.cfg.Repo.BaseBranch)
	return res, nil
}

func (e *Engine) commit(ctx context.Context, branch, message string) error {
	e.logger.Info("creating branch", "branch", branch)
	if err := e.git.CreateBranch(ctx, branch); err != nil {
		return fmt.Errorf("failed to create branch: %w", err)
	}
	if err := e.git.SetIdentity(ctx, e.cfg.Commit.AuthorName, e.cfg.Commit.AuthorEmail); err != nil {
		return fmt.Errorf("failed to set commit identity: %w", err)
	}
	if err := e.git.Commit(ctx, message); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (e *Engine) pullRequestBody(v version.Version) string {
	return fmt.Sprintf("Please pull these awesome changes in! We are upgrading %s to %s", e.cfg.Release.PlatformName, v.String())
}
