// Package files rewrites the version fields of the plugin's build
// properties, changelog and CI workflow files.
package files

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"

	"github.com/schaermu/ijsync/internal/version"
)

// Stager records written files in the version control index.
type Stager interface {
	Add(ctx context.Context, paths ...string) error
}

// Options configures a Synchronizer. Globs are relative to Dir.
type Options struct {
	Dir            string
	PropertiesGlob string
	ChangelogGlob  string
	WorkflowsGlob  string
	VerifierAction string
	Editions       []string
	PlatformName   string
	DryRun         bool
}

// Result summarizes a synchronization run.
type Result struct {
	// CurrentPlatform is the platform version recorded before the run.
	CurrentPlatform version.Version
	// NextPlugin is the plugin version written, or Zero when properties were skipped.
	NextPlugin version.Version
	// Written lists the files rewritten (or that would be, in dry-run mode).
	Written []string
}

// Synchronizer rewrites managed files for a new platform version
type Synchronizer struct {
	opts   Options
	stager Stager
	logger *slog.Logger
}

// NewSynchronizer creates a synchronizer
func NewSynchronizer(opts Options, stager Stager, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		opts:   opts,
		stager: stager,
		logger: logger,
	}
}

// Run locates every managed file and synchronizes it to newPlatform.
// A properties failure stops the run because the workflow rewrite depends on
// the recorded platform version; changelog and workflow failures are
// collected and returned together, each naming its file.
func (s *Synchronizer) Run(ctx context.Context, newPlatform version.Version) (Result, error) {
	loc := s.Discover(ctx)
	var res Result

	if loc.PropertiesErr != nil {
		return res, fmt.Errorf("properties file: %w", loc.PropertiesErr)
	}
	props, err := s.syncProperties(ctx, loc.Properties, newPlatform)
	if err != nil {
		return res, err
	}
	res.CurrentPlatform = props.current
	res.NextPlugin = props.next
	if props.written {
		res.Written = append(res.Written, loc.Properties)
	}

	var errs []error
	if loc.ChangelogErr != nil {
		errs = append(errs, fmt.Errorf("changelog file: %w", loc.ChangelogErr))
	} else {
		written, err := s.syncChangelog(ctx, loc.Changelog, newPlatform)
		if err != nil {
			errs = append(errs, err)
		} else if written {
			res.Written = append(res.Written, loc.Changelog)
		}
	}

	if loc.WorkflowsErr != nil {
		errs = append(errs, fmt.Errorf("workflow files: %w", loc.WorkflowsErr))
	} else {
		written, err := s.syncWorkflows(ctx, loc.Workflows, props.current, newPlatform)
		res.Written = append(res.Written, written...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return res, errors.Join(errs...)
}

// SyncProperties locates the properties file and synchronizes it. It returns
// the platform version recorded in the file before the run.
func (s *Synchronizer) SyncProperties(ctx context.Context, newPlatform version.Version) (version.Version, error) {
	path, err := s.locateOne(s.opts.PropertiesGlob)
	if err != nil {
		return version.Zero, fmt.Errorf("properties file: %w", err)
	}
	out, err := s.syncProperties(ctx, path, newPlatform)
	return out.current, err
}

// SyncChangelog locates the changelog and records the upgrade note.
func (s *Synchronizer) SyncChangelog(ctx context.Context, newPlatform version.Version) error {
	path, err := s.locateOne(s.opts.ChangelogGlob)
	if err != nil {
		return fmt.Errorf("changelog file: %w", err)
	}
	_, err = s.syncChangelog(ctx, path, newPlatform)
	return err
}

// SyncWorkflows rewrites IDE version tokens in the workflow files that use
// the verifier action. It returns the files written.
func (s *Synchronizer) SyncWorkflows(ctx context.Context, current, newPlatform version.Version) ([]string, error) {
	paths, err := s.locateAll(s.opts.WorkflowsGlob)
	if err != nil {
		return nil, fmt.Errorf("workflow files: %w", err)
	}
	return s.syncWorkflows(ctx, paths, current, newPlatform)
}

// apply writes content to path and stages it. In dry-run mode it only logs
// the diff.
func (s *Synchronizer) apply(ctx context.Context, path, before, after string) error {
	rel := s.rel(path)
	diff := udiff.Unified("a/"+rel, "b/"+rel, before, after)

	if s.opts.DryRun {
		s.logger.Info("[dry-run] would update", "file", rel)
		s.logger.Debug("[dry-run] diff", "file", rel, "diff", diff)
		return nil
	}

	s.logger.Debug("updating file", "file", rel, "diff", diff)
	if err := writeFileAtomic(path, []byte(after)); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := s.stager.Add(ctx, rel); err != nil {
		return fmt.Errorf("failed to stage %s: %w", rel, err)
	}
	s.logger.Info("updated file", "file", rel)
	return nil
}

func (s *Synchronizer) rel(path string) string {
	rel, err := filepath.Rel(s.opts.Dir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// writeFileAtomic replaces path via a temp file and rename, keeping its mode.
func writeFileAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".ijsync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(info.Mode()); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
