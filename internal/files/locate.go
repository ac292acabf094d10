package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned when a single-file pattern matches nothing.
	ErrNotFound = errors.New("no file matches")
	// ErrAmbiguous is returned when a single-file pattern matches more than one file.
	ErrAmbiguous = errors.New("more than one file matches")
)

// Located holds the outcome of discovering the managed files. Each
// single-file lookup carries its own error.
type Located struct {
	Properties    string
	PropertiesErr error
	Changelog     string
	ChangelogErr  error
	Workflows     []string
	WorkflowsErr  error
}

// Discover resolves all managed file patterns concurrently. The lookups touch
// disjoint files and share no state.
func (s *Synchronizer) Discover(ctx context.Context) Located {
	var loc Located
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		loc.Properties, loc.PropertiesErr = s.locateOne(s.opts.PropertiesGlob)
		return nil
	})
	g.Go(func() error {
		loc.Changelog, loc.ChangelogErr = s.locateOne(s.opts.ChangelogGlob)
		return nil
	})
	g.Go(func() error {
		loc.Workflows, loc.WorkflowsErr = s.locateAll(s.opts.WorkflowsGlob)
		return nil
	})

	_ = g.Wait()
	return loc
}

// locateOne resolves pattern relative to the working tree and requires
// exactly one regular file to match.
func (s *Synchronizer) locateOne(pattern string) (string, error) {
	matches, err := s.locateAll(pattern)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w %q", ErrNotFound, pattern)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w %q: %v", ErrAmbiguous, pattern, matches)
	}
}

// locateAll returns every regular file matching pattern, sorted.
func (s *Synchronizer) locateAll(pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.opts.Dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", m, err)
		}
		if info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	s.logger.Debug("located files", "pattern", pattern, "count", len(files))
	return files, nil
}
