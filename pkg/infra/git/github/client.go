package github

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/interfaces"
	"github.com/catapult-sh/catapult/pkg/domain/model"
	"github.com/catapult-sh/catapult/pkg/domain/types"
	"github.com/catapult-sh/catapult/pkg/infra/git"
)

// Generic hook event kinds translated to GitHub's event names, and back
// when reading hooks.
var (
	toGitHubEvent = map[model.HookEvent]string{
		model.HookEventPush:          "push",
		model.HookEventMergeRequests: "pull_request",
		model.HookEventIssues:        "issues",
	}
	fromGitHubEvent = map[string]model.HookEvent{
		"push":         model.HookEventPush,
		"pull_request": model.HookEventMergeRequests,
		"issues":       model.HookEventIssues,
	}
)

type client struct {
	gh *github.Client
}

// New creates a GitService backed by the GitHub REST API, authenticated
// with a personal access token. A non-empty baseURL points the client at
// a GitHub Enterprise instance.
func New(token, baseURL string) (interfaces.GitService, error) {
	gh := github.NewClient(nil).WithAuthToken(token)
	if baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid GitHub base URL", goerr.V("baseURL", baseURL))
		}
	}
	return &client{gh: gh}, nil
}

func (c *client) GetOrganizations(ctx context.Context) ([]model.GitOrganization, error) {
	ghOrgs, resp, err := c.gh.Organizations.List(ctx, "", nil)
	if err != nil {
		return nil, remoteError(resp, err, "failed to list organizations")
	}

	orgs := make([]model.GitOrganization, 0, len(ghOrgs))
	for _, o := range ghOrgs {
		orgs = append(orgs, model.GitOrganization{Name: o.GetLogin()})
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}

func (c *client) GetRepositories(ctx context.Context, filter model.GitRepositoryFilter) ([]model.GitRepository, error) {
	var ghRepos []*github.Repository
	if filter.Organization != nil {
		if err := c.checkOrganizationExists(ctx, filter.Organization.Name); err != nil {
			return nil, err
		}
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, filter.Organization.Name, nil)
		if err != nil {
			return nil, remoteError(resp, err, "failed to list organization repositories")
		}
		ghRepos = repos
	} else {
		repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, nil)
		if err != nil {
			return nil, remoteError(resp, err, "failed to list user repositories")
		}
		ghRepos = repos
	}

	repos := make([]model.GitRepository, 0, len(ghRepos))
	for _, r := range ghRepos {
		if filter.NameContains != "" && !strings.Contains(r.GetName(), filter.NameContains) {
			continue
		}
		repos = append(repos, readRepository(r))
	}
	return repos, nil
}

func (c *client) CreateRepository(ctx context.Context, organization *model.GitOrganization, name, description string) (*model.GitRepository, error) {
	if err := git.CheckRepositoryName(name); err != nil {
		return nil, err
	}
	if err := git.CheckDescription(description); err != nil {
		return nil, err
	}

	var org string
	if organization != nil {
		if err := c.checkOrganizationExists(ctx, organization.Name); err != nil {
			return nil, err
		}
		org = organization.Name
	}

	created, resp, err := c.gh.Repositories.Create(ctx, org, &github.Repository{
		Name:        github.Ptr(name),
		Description: github.Ptr(description),
	})
	if err != nil {
		return nil, remoteError(resp, err, "failed to create repository")
	}

	fullName := created.GetFullName()
	if fullName == "" {
		owner := org
		if owner == "" {
			user, err := c.GetLoggedUser(ctx)
			if err != nil {
				return nil, err
			}
			owner = user.Login
		}
		fullName = git.FullName(owner, name)
	}

	return git.WaitForRepository(ctx, fullName, func(ctx context.Context) (*model.GitRepository, error) {
		return c.repositoryByFullName(ctx, fullName)
	})
}

func (c *client) GetRepository(ctx context.Context, name string) (*model.GitRepository, error) {
	if name == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "repository name must not be empty")
	}
	if git.IsFullName(name) {
		return c.repositoryByFullName(ctx, name)
	}
	if err := git.CheckRepositoryName(name); err != nil {
		return nil, err
	}
	user, err := c.GetLoggedUser(ctx)
	if err != nil {
		return nil, err
	}
	return c.repositoryByFullName(ctx, git.FullName(user.Login, name))
}

func (c *client) GetRepositoryIn(ctx context.Context, organization model.GitOrganization, name string) (*model.GitRepository, error) {
	if err := git.CheckRepositoryName(name); err != nil {
		return nil, err
	}
	if err := c.checkOrganizationExists(ctx, organization.Name); err != nil {
		return nil, err
	}
	return c.repositoryByFullName(ctx, git.FullName(organization.Name, name))
}

func (c *client) DeleteRepository(ctx context.Context, fullName string) error {
	owner, name, err := git.SplitFullName(fullName)
	if err != nil {
		return err
	}
	resp, err := c.gh.Repositories.Delete(ctx, owner, name)
	if err != nil && !isNotFound(resp) {
		return remoteError(resp, err, "failed to delete repository")
	}
	return nil
}

func (c *client) CreateHook(ctx context.Context, repository model.GitRepository, secret, webhookURL string, events ...model.HookEvent) (*model.GitHook, error) {
	owner, name, err := git.SplitFullName(repository.FullName)
	if err != nil {
		return nil, err
	}
	if webhookURL == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "webhook URL must not be empty")
	}
	if len(events) == 0 {
		events = c.SuggestedHookEvents()
	}

	ghEvents := make([]string, 0, len(events))
	for _, ev := range events {
		mapped, ok := toGitHubEvent[ev]
		if !ok {
			return nil, goerr.Wrap(types.ErrInvalidArgument, "unsupported hook event", goerr.V("event", ev))
		}
		ghEvents = append(ghEvents, mapped)
	}

	cfg := &github.HookConfig{
		URL:         github.Ptr(webhookURL),
		ContentType: github.Ptr("json"),
	}
	if secret != "" {
		cfg.Secret = github.Ptr(secret)
	}

	created, resp, err := c.gh.Repositories.CreateHook(ctx, owner, name, &github.Hook{
		Active: github.Ptr(true),
		Events: ghEvents,
		Config: cfg,
	})
	if err != nil {
		return nil, remoteError(resp, err, "failed to create hook")
	}
	hook := readHook(created)
	return &hook, nil
}

func (c *client) GetHooks(ctx context.Context, repository model.GitRepository) ([]model.GitHook, error) {
	owner, name, err := git.SplitFullName(repository.FullName)
	if err != nil {
		return nil, err
	}
	ghHooks, resp, err := c.gh.Repositories.ListHooks(ctx, owner, name, nil)
	if err != nil {
		if isNotFound(resp) {
			return nil, nil
		}
		return nil, remoteError(resp, err, "failed to list hooks")
	}

	hooks := make([]model.GitHook, 0, len(ghHooks))
	for _, h := range ghHooks {
		hooks = append(hooks, readHook(h))
	}
	return hooks, nil
}

func (c *client) GetHook(ctx context.Context, repository model.GitRepository, hookURL string) (*model.GitHook, error) {
	hooks, err := c.GetHooks(ctx, repository)
	if err != nil {
		return nil, err
	}
	for _, hook := range hooks {
		if strings.EqualFold(hook.URL, hookURL) {
			return &hook, nil
		}
	}
	return nil, nil
}

func (c *client) DeleteHook(ctx context.Context, repository model.GitRepository, hook model.GitHook) error {
	owner, name, err := git.SplitFullName(repository.FullName)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(hook.ID, 10, 64)
	if err != nil {
		return goerr.Wrap(types.ErrInvalidArgument, "hook ID is not numeric", goerr.V("id", hook.ID))
	}
	resp, err := c.gh.Repositories.DeleteHook(ctx, owner, name, id)
	if err != nil && !isNotFound(resp) {
		return remoteError(resp, err, "failed to delete hook")
	}
	return nil
}

func (c *client) GetLoggedUser(ctx context.Context) (*model.GitUser, error) {
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, remoteError(resp, err, "failed to resolve authenticated user")
	}
	if user.Login == nil || user.AvatarURL == nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "user response missing login or avatar_url")
	}
	return &model.GitUser{Login: *user.Login, AvatarURL: *user.AvatarURL}, nil
}

func (c *client) SuggestedHookEvents() []model.HookEvent {
	return []model.HookEvent{
		model.HookEventPush,
		model.HookEventMergeRequests,
		model.HookEventIssues,
	}
}

func (c *client) repositoryByFullName(ctx context.Context, fullName string) (*model.GitRepository, error) {
	owner, name, err := git.SplitFullName(fullName)
	if err != nil {
		return nil, err
	}
	ghRepo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		if isNotFound(resp) {
			return nil, nil
		}
		return nil, remoteError(resp, err, "failed to get repository")
	}
	repo := readRepository(ghRepo)
	return &repo, nil
}

func (c *client) checkOrganizationExists(ctx context.Context, name string) error {
	if name == "" {
		return goerr.Wrap(types.ErrInvalidArgument, "organization name must not be empty")
	}
	_, resp, err := c.gh.Organizations.Get(ctx, name)
	if err != nil {
		if isNotFound(resp) {
			return goerr.Wrap(types.ErrNoSuchOrganization, "user does not belong to the organization or it does not exist", goerr.V("organization", name))
		}
		return remoteError(resp, err, "failed to look up organization")
	}
	return nil
}

func readRepository(r *github.Repository) model.GitRepository {
	return model.GitRepository{
		FullName: r.GetFullName(),
		Homepage: r.GetHTMLURL(),
		CloneURL: r.GetCloneURL(),
	}
}

func readHook(h *github.Hook) model.GitHook {
	hook := model.GitHook{
		ID:  strconv.FormatInt(h.GetID(), 10),
		URL: h.GetConfig().GetURL(),
	}
	for _, ev := range h.Events {
		if generic, ok := fromGitHubEvent[ev]; ok {
			hook.Events = append(hook.Events, string(generic))
		} else {
			hook.Events = append(hook.Events, ev)
		}
	}
	sort.Strings(hook.Events)
	return hook
}

func isNotFound(resp *github.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

func remoteError(resp *github.Response, err error, msg string) error {
	opts := []goerr.Option{goerr.V("cause", err.Error())}
	if resp != nil {
		opts = append(opts, goerr.V("status", resp.StatusCode))
	}
	return goerr.Wrap(types.ErrRemote, msg, opts...)
}
