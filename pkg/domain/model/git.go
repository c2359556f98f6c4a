package model

// GitOrganization is a read-only projection of a remote organization or
// group the authenticated identity belongs to
type GitOrganization struct {
	Name string `json:"name"`
}

// GitUser represents the authenticated identity at a Git provider
type GitUser struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

// GitRepository is the uniform shape of a remote repository across
// providers. FullName is always "owner/name".
type GitRepository struct {
	FullName string `json:"fullName"`
	Homepage string `json:"homepage"`
	CloneURL string `json:"cloneUrl"`
}

// GitHook is a webhook registered on a remote repository. ID is the
// provider's hook identifier as a string. Hooks are never mutated in
// place; updates are delete and recreate.
type GitHook struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// GitRepositoryFilter shapes a repository listing request. A nil
// Organization means repositories owned by the logged-in user.
type GitRepositoryFilter struct {
	Organization *GitOrganization
	NameContains string
}

// HookEvent is a provider-agnostic webhook event kind. Provider clients
// translate these into their own parameter naming when creating a hook and
// apply the inverse mapping when reading hooks back.
type HookEvent string

const (
	HookEventPush          HookEvent = "push"
	HookEventMergeRequests HookEvent = "merge_requests"
	HookEventIssues        HookEvent = "issues"
)
