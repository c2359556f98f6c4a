package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/interfaces"
	"github.com/catapult-sh/catapult/pkg/domain/model"
	"github.com/catapult-sh/catapult/pkg/domain/types"
	"github.com/catapult-sh/catapult/pkg/infra/git"
)

// DefaultBaseURL is the public GitLab endpoint, overridable via
// configuration for self-hosted instances
const DefaultBaseURL = "https://gitlab.com"

const apiRoot = "/api/v4"

// GitLab names hook event parameters "<event>_events" and echoes them
// back as boolean fields with the same suffix.
const eventFieldSuffix = "_events"

type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option is a functional option for the GitLab client
type Option func(*client)

// WithBaseURL overrides the API endpoint
func WithBaseURL(baseURL string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// New creates a GitService backed by the GitLab REST API, authenticated
// with a private token
func New(token string, opts ...Option) interfaces.GitService {
	c := &client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) GetOrganizations(ctx context.Context) ([]model.GitOrganization, error) {
	var groups []struct {
		Path string `json:"path"`
	}
	found, err := c.getJSON(ctx, apiRoot+"/groups", &groups)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	orgs := make([]model.GitOrganization, 0, len(groups))
	for _, g := range groups {
		orgs = append(orgs, model.GitOrganization{Name: g.Path})
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}

func (c *client) GetRepositories(ctx context.Context, filter model.GitRepositoryFilter) ([]model.GitRepository, error) {
	var path string
	if filter.Organization != nil {
		if _, err := c.groupID(ctx, filter.Organization.Name); err != nil {
			return nil, err
		}
		path = apiRoot + "/groups/" + url.PathEscape(filter.Organization.Name) + "/projects"
	} else {
		user, err := c.GetLoggedUser(ctx)
		if err != nil {
			return nil, err
		}
		path = apiRoot + "/users/" + url.PathEscape(user.Login) + "/projects"
	}
	if filter.NameContains != "" {
		path += "?search=" + url.QueryEscape(filter.NameContains)
	}

	var projects []json.RawMessage
	found, err := c.getJSON(ctx, path, &projects)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	repos := make([]model.GitRepository, 0, len(projects))
	for _, raw := range projects {
		repo, err := readRepository(raw)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *repo)
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

	form := url.Values{}
	form.Set("name", name)
	form.Set("visibility", "public")
	form.Set("description", description)
	if organization != nil {
		id, err := c.groupID(ctx, organization.Name)
		if err != nil {
			return nil, err
		}
		form.Set("namespace_id", id)
	}

	raw, err := c.postForm(ctx, apiRoot+"/projects", form)
	if err != nil {
		return nil, err
	}
	created, err := readRepository(raw)
	if err != nil {
		return nil, err
	}

	return git.WaitForRepository(ctx, created.FullName, func(ctx context.Context) (*model.GitRepository, error) {
		return c.repositoryByFullName(ctx, created.FullName)
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
	if _, err := c.groupID(ctx, organization.Name); err != nil {
		return nil, err
	}
	return c.repositoryByFullName(ctx, git.FullName(organization.Name, name))
}

func (c *client) DeleteRepository(ctx context.Context, fullName string) error {
	if _, _, err := git.SplitFullName(fullName); err != nil {
		return err
	}
	return c.delete(ctx, apiRoot+"/projects/"+url.PathEscape(fullName))
}

func (c *client) CreateHook(ctx context.Context, repository model.GitRepository, secret, webhookURL string, events ...model.HookEvent) (*model.GitHook, error) {
	if _, _, err := git.SplitFullName(repository.FullName); err != nil {
		return nil, err
	}
	if webhookURL == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "webhook URL must not be empty")
	}
	if len(events) == 0 {
		events = c.SuggestedHookEvents()
	}

	form := url.Values{}
	form.Set("url", webhookURL)
	if secret != "" {
		form.Set("token", secret)
	}
	for _, ev := range events {
		form.Set(string(ev)+eventFieldSuffix, "true")
	}

	raw, err := c.postForm(ctx, apiRoot+"/projects/"+url.PathEscape(repository.FullName)+"/hooks", form)
	if err != nil {
		return nil, err
	}
	return readHook(raw)
}

func (c *client) GetHooks(ctx context.Context, repository model.GitRepository) ([]model.GitHook, error) {
	if _, _, err := git.SplitFullName(repository.FullName); err != nil {
		return nil, err
	}

	var rawHooks []json.RawMessage
	found, err := c.getJSON(ctx, apiRoot+"/projects/"+url.PathEscape(repository.FullName)+"/hooks", &rawHooks)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	hooks := make([]model.GitHook, 0, len(rawHooks))
	for _, raw := range rawHooks {
		hook, err := readHook(raw)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, *hook)
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
	if _, _, err := git.SplitFullName(repository.FullName); err != nil {
		return err
	}
	return c.delete(ctx, apiRoot+"/projects/"+url.PathEscape(repository.FullName)+"/hooks/"+hook.ID)
}

func (c *client) GetLoggedUser(ctx context.Context) (*model.GitUser, error) {
	var user struct {
		Username  *string `json:"username"`
		AvatarURL *string `json:"avatar_url"`
	}
	found, err := c.getJSON(ctx, apiRoot+"/user", &user)
	if err != nil {
		return nil, err
	}
	if !found || user.Username == nil || user.AvatarURL == nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "user response missing username or avatar_url")
	}
	return &model.GitUser{Login: *user.Username, AvatarURL: *user.AvatarURL}, nil
}

func (c *client) SuggestedHookEvents() []model.HookEvent {
	return []model.HookEvent{
		model.HookEventPush,
		model.HookEventMergeRequests,
		model.HookEventIssues,
	}
}

func (c *client) repositoryByFullName(ctx context.Context, fullName string) (*model.GitRepository, error) {
	if _, _, err := git.SplitFullName(fullName); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	found, err := c.getJSON(ctx, apiRoot+"/projects/"+url.PathEscape(fullName), &raw)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return readRepository(raw)
}

// groupID resolves a group name to its opaque numeric ID, required by the
// projects API to scope creation under a group
func (c *client) groupID(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", goerr.Wrap(types.ErrInvalidArgument, "organization name must not be empty")
	}
	var group struct {
		ID json.Number `json:"id"`
	}
	found, err := c.getJSON(ctx, apiRoot+"/groups/"+url.PathEscape(name), &group)
	if err != nil {
		return "", err
	}
	if !found {
		return "", goerr.Wrap(types.ErrNoSuchOrganization, "user does not belong to the group or it does not exist", goerr.V("group", name))
	}
	return group.ID.String(), nil
}

// readRepository maps GitLab's project fields to the uniform repository
// shape. Unknown fields are ignored.
func readRepository(raw json.RawMessage) (*model.GitRepository, error) {
	var project struct {
		PathWithNamespace *string `json:"path_with_namespace"`
		WebURL            *string `json:"web_url"`
		HTTPURLToRepo     *string `json:"http_url_to_repo"`
	}
	if err := json.Unmarshal(raw, &project); err != nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "project is not valid JSON")
	}
	if project.PathWithNamespace == nil || project.WebURL == nil || project.HTTPURLToRepo == nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "project response missing expected fields")
	}
	return &model.GitRepository{
		FullName: *project.PathWithNamespace,
		Homepage: *project.WebURL,
		CloneURL: *project.HTTPURLToRepo,
	}, nil
}

// readHook maps a GitLab hook, scanning for "<event>_events": true flags
// to recover the subscribed event set
func readHook(raw json.RawMessage) (*model.GitHook, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "hook is not valid JSON")
	}

	rawID, ok := fields["id"]
	if !ok {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "hook response missing id")
	}
	var id json.Number
	if err := json.Unmarshal(rawID, &id); err != nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "hook id is not a number")
	}

	var hookURL string
	if rawURL, ok := fields["url"]; ok {
		if err := json.Unmarshal(rawURL, &hookURL); err != nil {
			return nil, goerr.Wrap(types.ErrMalformedResponse, "hook url is not a string")
		}
	}

	hook := &model.GitHook{ID: id.String(), URL: hookURL}
	for name, value := range fields {
		if !strings.HasSuffix(name, eventFieldSuffix) {
			continue
		}
		var enabled bool
		if err := json.Unmarshal(value, &enabled); err != nil || !enabled {
			continue
		}
		hook.Events = append(hook.Events, strings.TrimSuffix(name, eventFieldSuffix))
	}
	sort.Strings(hook.Events)
	return hook, nil
}

func (c *client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("path", path))
	}
	req.Header.Set("Private-Token", c.token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// getJSON performs a GET, decoding the body into out. Returns found=false
// on 404 so callers can express optional lookups.
func (c *client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, goerr.Wrap(types.ErrRemote, err.Error(), goerr.V("path", path))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		return false, remoteError(resp, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, goerr.Wrap(types.ErrMalformedResponse, "failed to decode response body", goerr.V("path", path))
	}
	return true, nil
}

func (c *client) postForm(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(types.ErrRemote, err.Error(), goerr.V("path", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, remoteError(resp, path)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(types.ErrRemote, "failed to read response body", goerr.V("path", path))
	}
	return raw, nil
}

// delete issues a DELETE and ignores the outcome beyond transport
// failures; a missing resource is success
func (c *client) delete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(types.ErrRemote, err.Error(), goerr.V("path", path))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

func remoteError(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return goerr.Wrap(types.ErrRemote,
		fmt.Sprintf("gitlab returned %d", resp.StatusCode),
		goerr.V("path", path),
		goerr.V("status", resp.StatusCode),
		goerr.V("body", string(body)),
	)
}
