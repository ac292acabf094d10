package files

import (
	"context"
	"fmt"
	"regexp"

	"github.com/schaermu/ijsync/internal/version"
)

// changedHeading is the changelog subsection upgrade notes are added to.
var changedHeading = regexp.MustCompile(`(?m)^### Changed(\r?)$`)

// UpgradeNote is the changelog line recorded for a platform upgrade.
func UpgradeNote(platformName string, v version.Version) string {
	return fmt.Sprintf("- Upgrading %s to %s", platformName, v.String())
}

// syncChangelog inserts the upgrade note below the first "### Changed"
// heading, which is the Unreleased section. A note already present anywhere
// in the file makes this a no-op.
func (s *Synchronizer) syncChangelog(ctx context.Context, path string, newPlatform version.Version) (bool, error) {
	rel := s.rel(path)
	data, err := readFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	note := UpgradeNote(s.opts.PlatformName, newPlatform)
	if regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(note) + `\r?$`).MatchString(data) {
		s.logger.Info("skipping changelog, note already present", "file", rel, "note", note)
		return false, nil
	}

	loc := changedHeading.FindStringSubmatchIndex(data)
	if loc == nil {
		s.logger.Warn("changelog has no \"### Changed\" heading, leaving it untouched", "file", rel)
		return false, nil
	}

	// the note line ends like the heading line
	eol := data[loc[2]:loc[3]]
	result := data[:loc[1]] + "\n" + note + eol + data[loc[1]:]
	if err := s.apply(ctx, path, data, result); err != nil {
		return false, err
	}
	return true, nil
}
