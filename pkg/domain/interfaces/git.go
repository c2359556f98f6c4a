package interfaces

import (
	"context"

	"github.com/catapult-sh/catapult/pkg/domain/model"
)

// GitService is the uniform capability set over Git hosting providers.
// Every provider client implements the same contract; mission control
// never branches on provider identity.
type GitService interface {
	// GetOrganizations lists organizations visible to the authenticated
	// identity, ordered by name
	GetOrganizations(ctx context.Context) ([]model.GitOrganization, error)

	// GetRepositories lists repositories matching the filter. A filter
	// with an organization requires that organization to exist for the
	// identity; without one it means repositories owned by the logged-in
	// user.
	GetRepositories(ctx context.Context, filter model.GitRepositoryFilter) ([]model.GitRepository, error)

	// CreateRepository creates a remote repository and blocks, retrying
	// with backoff, until the repository is visible via read-back. A nil
	// organization creates under the logged-in user's namespace.
	CreateRepository(ctx context.Context, organization *model.GitOrganization, name, description string) (*model.GitRepository, error)

	// GetRepository looks up by bare name (resolved against the logged-in
	// user) or a fully qualified "organization/name". Returns nil without
	// error when the repository does not exist.
	GetRepository(ctx context.Context, name string) (*model.GitRepository, error)

	// GetRepositoryIn looks up a repository inside an organization
	GetRepositoryIn(ctx context.Context, organization model.GitOrganization, name string) (*model.GitRepository, error)

	// DeleteRepository removes a repository by full name. Fire and
	// forget: a missing repository is not distinguished from success.
	DeleteRepository(ctx context.Context, fullName string) error

	// CreateHook registers a webhook. With no events given the provider's
	// suggested default set is used. Providers that do not echo the
	// created hook return nil with nil error.
	CreateHook(ctx context.Context, repository model.GitRepository, secret, webhookURL string, events ...model.HookEvent) (*model.GitHook, error)

	// GetHooks lists the repository's webhooks
	GetHooks(ctx context.Context, repository model.GitRepository) ([]model.GitHook, error)

	// GetHook returns the first hook whose URL matches, case-insensitive,
	// or nil when none does
	GetHook(ctx context.Context, repository model.GitRepository, url string) (*model.GitHook, error)

	// DeleteHook removes a webhook by its identifier
	DeleteHook(ctx context.Context, repository model.GitRepository, hook model.GitHook) error

	// GetLoggedUser resolves the authenticated identity's login and
	// avatar. Fails with a malformed-response error if the provider omits
	// the expected fields.
	GetLoggedUser(ctx context.Context) (*model.GitUser, error)

	// SuggestedHookEvents returns the provider-appropriate default event
	// set for new hooks
	SuggestedHookEvents() []model.HookEvent
}
