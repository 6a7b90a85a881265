package orchestrator

// DefaultCommitMessage is used when no commit message is configured.
const DefaultCommitMessage = "Automated commit"

// Config captures the runtime controls the orchestrator needs.
type Config struct {
	CommitMessage string
	DryRun        bool
}

func (c Config) commitMessage() string {
	if c.CommitMessage == "" {
		return DefaultCommitMessage
	}
	return c.CommitMessage
}
