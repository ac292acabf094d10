package upgrade

import "github.com/schaermu/ijsync/internal/version"

// State is a step of the upgrade workflow
type State string

// Workflow states in execution order.
const (
	StateResolveVersion  State = "RESOLVE_VERSION"
	StateSyncFiles       State = "SYNC_FILES"
	StateCheckChanges    State = "CHECK_CHANGES"
	StateBranchAndCommit State = "BRANCH_AND_COMMIT"
	StatePush            State = "PUSH"
	StateCheckExistingPR State = "CHECK_EXISTING_PR"
	StateSkip            State = "SKIP"
	StateOpenPR          State = "OPEN_PR"
	StateDone            State = "DONE"
)

// Result reports the outcome of a workflow run
type Result struct {
	// State is the last state that decided the outcome: DONE, SKIP or OPEN_PR.
	State   State
	Version version.Version
	Branch  string
	// PullRequestURL is set only when a pull request was opened.
	PullRequestURL string
	// Files lists the files the synchronizer wrote (or would write in dry-run mode).
	Files []string
	// BranchPushed is true when this run created and pushed the branch.
	BranchPushed bool
	DryRun       bool
}
