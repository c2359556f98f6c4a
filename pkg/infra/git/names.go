package git

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/types"
)

// Conservative slug accepted by every supported provider: alphanumeric
// edges, dots/dashes/underscores inside, at most 100 characters.
var repositoryNameRe = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)

const maxRepositoryNameLen = 100

// CheckRepositoryName validates a bare repository name against the
// provider-agnostic naming rule
func CheckRepositoryName(name string) error {
	if name == "" {
		return goerr.Wrap(types.ErrInvalidArgument, "repository name must not be empty")
	}
	if len(name) > maxRepositoryNameLen || !repositoryNameRe.MatchString(name) {
		return goerr.Wrap(types.ErrInvalidArgument, "invalid repository name", goerr.V("name", name))
	}
	return nil
}

// CheckDescription validates a repository description
func CheckDescription(description string) error {
	if description == "" {
		return goerr.Wrap(types.ErrInvalidArgument, "description must not be empty")
	}
	return nil
}

// FullName joins an owner and a repository name into "owner/name"
func FullName(owner, name string) string {
	return owner + "/" + name
}

// IsFullName reports whether name is a fully qualified "owner/name"
func IsFullName(name string) bool {
	owner, repo, ok := strings.Cut(name, "/")
	if !ok || owner == "" || repo == "" {
		return false
	}
	return !strings.Contains(repo, "/") && CheckRepositoryName(repo) == nil
}

// SplitFullName splits "owner/name", validating the shape
func SplitFullName(fullName string) (owner, name string, err error) {
	if !IsFullName(fullName) {
		return "", "", goerr.Wrap(types.ErrInvalidArgument, "invalid repository full name", goerr.V("fullName", fullName))
	}
	owner, name, _ = strings.Cut(fullName, "/")
	return owner, name, nil
}
