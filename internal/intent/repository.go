package intent

import (
	"errors"
	"strings"
)

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepository parses an "owner/name" identifier such as GITHUB_REPOSITORY.
func ParseRepository(raw string) (Repository, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Repository{}, errors.New("repository cannot be empty")
	}

	owner, name, ok := strings.Cut(raw, "/")
	owner = strings.TrimSpace(owner)
	name = strings.TrimSuffix(strings.TrimSpace(name), ".git")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, errors.New("repository must be in owner/name form")
	}

	return Repository{Owner: owner, Name: name}, nil
}
