package files

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/schaermu/ijsync/internal/version"
)

// syncWorkflows rewrites `<edition>:<current>` tokens to `<edition>:<new>`
// in every workflow file that references the verifier action. Files without
// the reference are never touched. Each file fails independently.
func (s *Synchronizer) syncWorkflows(ctx context.Context, paths []string, current, newPlatform version.Version) ([]string, error) {
	if current.Equal(newPlatform) {
		s.logger.Debug("workflow files already target the platform version", "version", newPlatform.String())
		return nil, nil
	}

	var (
		written []string
		errs    []error
	)
	for _, path := range paths {
		rel := s.rel(path)
		data, err := readFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to read %s: %w", rel, err))
			continue
		}
		if !strings.Contains(data, s.opts.VerifierAction) {
			continue
		}

		result := data
		for _, edition := range s.opts.Editions {
			result = replaceIDEToken(result, edition, current, newPlatform)
		}
		if result == data {
			s.logger.Debug("workflow file has no tokens to update", "file", rel)
			continue
		}

		if err := s.apply(ctx, path, data, result); err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, path)
	}

	s.logger.Debug("workflow files updated", "count", len(written))
	return written, errors.Join(errs...)
}

// replaceIDEToken replaces every `<edition>:<old>` token not directly followed
// by further version characters.
func replaceIDEToken(data, edition string, from, to version.Version) string {
	token := edition + ":" + from.String()
	re := regexp.MustCompile(regexp.QuoteMeta(token) + `([^0-9A-Za-z.\-]|$)`)
	return re.ReplaceAllStringFunc(data, func(m string) string {
		return edition + ":" + to.String() + m[len(token):]
	})
}
