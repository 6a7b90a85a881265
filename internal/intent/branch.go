package intent

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const branchTimestampLayout = "2006_01_02-15_04_05"

// SourceBranchName appends a microsecond-resolution timestamp to prefix, e.g.
// "auto/" + "2024_03_01-14_05_09_123456". Two runs in the same second still get
// distinct names.
func SourceBranchName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%s_%06d", prefix, now.Format(branchTimestampLayout), now.Nanosecond()/int(time.Microsecond))
}

// ValidateBranchName applies the subset of git check-ref-format rules that are
// cheap to check before any remote object is created.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return errors.New("branch cannot be empty")
	}

	if strings.ContainsAny(branch, " \t\n\r") {
		return errors.New("branch cannot contain whitespace")
	}

	if strings.Contains(branch, "..") {
		return errors.New("branch cannot contain '..'")
	}

	if strings.ContainsAny(branch, "~^:?*[]\\") || strings.Contains(branch, "@{") {
		return errors.New("branch contains forbidden git characters")
	}

	if strings.HasPrefix(branch, "/") || strings.HasSuffix(branch, "/") || strings.Contains(branch, "//") {
		return errors.New("branch cannot have empty path components")
	}

	if strings.HasSuffix(branch, ".lock") || strings.HasSuffix(branch, ".") {
		return errors.New("branch cannot end with '.lock' or '.'")
	}

	return nil
}

// NormalizeBranch trims whitespace and strips a refs/heads/ prefix from a branch
// name. It returns an empty string when nothing is left.
func NormalizeBranch(branch string) string {
	branch = strings.TrimSpace(branch)

	if len(branch) >= len("refs/heads/") && strings.EqualFold(branch[:len("refs/heads/")], "refs/heads/") {
		branch = branch[len("refs/heads/"):]
	}

	return strings.TrimSpace(branch)
}
