package git

import (
	"context"
	"log/slog"
)

// CountPendingChanges returns the number of modified files in the working
// tree. Created and deleted files are logged for diagnostics but not counted.
func CountPendingChanges(ctx context.Context, client Client, logger *slog.Logger) (int, error) {
	cs, err := client.Status(ctx)
	if err != nil {
		return 0, err
	}

	logger.Debug("working tree status",
		"created", len(cs.Created),
		"modified", len(cs.Modified),
		"deleted", len(cs.Deleted),
		"untracked", len(cs.Untracked))
	for _, p := range cs.Created {
		logger.Debug("C --> " + p)
	}
	for _, p := range cs.Modified {
		logger.Debug("M --> " + p)
	}
	for _, p := range cs.Deleted {
		logger.Debug("D --> " + p)
	}

	return len(cs.Modified), nil
}
