package bitbucket

import (
	"bytes"
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

// DefaultBaseURL is the public Bitbucket Cloud endpoint
const DefaultBaseURL = "https://api.bitbucket.org"

const apiRoot = "/2.0"

// Generic hook event kinds translated to Bitbucket's namespaced event
// names, and back when reading hooks.
var (
	toBitbucketEvent = map[model.HookEvent]string{
		model.HookEventPush:          "repo:push",
		model.HookEventMergeRequests: "pullrequest:created",
		model.HookEventIssues:        "issue:created",
	}
	fromBitbucketEvent = map[string]model.HookEvent{
		"repo:push":           model.HookEventPush,
		"pullrequest:created": model.HookEventMergeRequests,
		"issue:created":       model.HookEventIssues,
	}
)

type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option is a functional option for the Bitbucket client
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

// New creates a GitService backed by the Bitbucket Cloud REST API,
// authenticated with a bearer token. Workspaces play the role of
// organizations.
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
	var page struct {
		Values []struct {
			Slug string `json:"slug"`
		} `json:"values"`
	}
	found, err := c.getJSON(ctx, apiRoot+"/workspaces", &page)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	orgs := make([]model.GitOrganization, 0, len(page.Values))
	for _, ws := range page.Values {
		orgs = append(orgs, model.GitOrganization{Name: ws.Slug})
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}

func (c *client) GetRepositories(ctx context.Context, filter model.GitRepositoryFilter) ([]model.GitRepository, error) {
	var owner string
	if filter.Organization != nil {
		if err := c.checkWorkspaceExists(ctx, filter.Organization.Name); err != nil {
			return nil, err
		}
		owner = filter.Organization.Name
	} else {
		user, err := c.GetLoggedUser(ctx)
		if err != nil {
			return nil, err
		}
		owner = user.Login
	}

	path := apiRoot + "/repositories/" + url.PathEscape(owner)
	if filter.NameContains != "" {
		path += "?q=" + url.QueryEscape(fmt.Sprintf("name ~ %q", filter.NameContains))
	}

	var page struct {
		Values []json.RawMessage `json:"values"`
	}
	found, err := c.getJSON(ctx, path, &page)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	repos := make([]model.GitRepository, 0, len(page.Values))
	for _, raw := range page.Values {
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

	var owner string
	if organization != nil {
		if err := c.checkWorkspaceExists(ctx, organization.Name); err != nil {
			return nil, err
		}
		owner = organization.Name
	} else {
		user, err := c.GetLoggedUser(ctx)
		if err != nil {
			return nil, err
		}
		owner = user.Login
	}
	fullName := git.FullName(owner, name)

	body := map[string]any{
		"scm":         "git",
		"is_private":  false,
		"description": description,
	}
	raw, err := c.postJSON(ctx, apiRoot+"/repositories/"+escapeFullName(fullName), body)
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
	if err := c.checkWorkspaceExists(ctx, organization.Name); err != nil {
		return nil, err
	}
	return c.repositoryByFullName(ctx, git.FullName(organization.Name, name))
}

func (c *client) DeleteRepository(ctx context.Context, fullName string) error {
	if _, _, err := git.SplitFullName(fullName); err != nil {
		return err
	}
	return c.delete(ctx, apiRoot+"/repositories/"+escapeFullName(fullName))
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

	bbEvents := make([]string, 0, len(events))
	for _, ev := range events {
		mapped, ok := toBitbucketEvent[ev]
		if !ok {
			return nil, goerr.Wrap(types.ErrInvalidArgument, "unsupported hook event", goerr.V("event", ev))
		}
		bbEvents = append(bbEvents, mapped)
	}

	body := map[string]any{
		"description": "catapult",
		"url":         webhookURL,
		"active":      true,
		"events":      bbEvents,
	}
	if secret != "" {
		body["secret"] = secret
	}

	raw, err := c.postJSON(ctx, apiRoot+"/repositories/"+escapeFullName(repository.FullName)+"/hooks", body)
	if err != nil {
		return nil, err
	}
	return readHook(raw)
}

func (c *client) GetHooks(ctx context.Context, repository model.GitRepository) ([]model.GitHook, error) {
	if _, _, err := git.SplitFullName(repository.FullName); err != nil {
		return nil, err
	}

	var page struct {
		Values []json.RawMessage `json:"values"`
	}
	found, err := c.getJSON(ctx, apiRoot+"/repositories/"+escapeFullName(repository.FullName)+"/hooks", &page)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	hooks := make([]model.GitHook, 0, len(page.Values))
	for _, raw := range page.Values {
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
	return c.delete(ctx, apiRoot+"/repositories/"+escapeFullName(repository.FullName)+"/hooks/"+url.PathEscape(hook.ID))
}

func (c *client) GetLoggedUser(ctx context.Context) (*model.GitUser, error) {
	var user struct {
		Username *string `json:"username"`
		Links    struct {
			Avatar struct {
				Href *string `json:"href"`
			} `json:"avatar"`
		} `json:"links"`
	}
	found, err := c.getJSON(ctx, apiRoot+"/user", &user)
	if err != nil {
		return nil, err
	}
	if !found || user.Username == nil || user.Links.Avatar.Href == nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "user response missing username or avatar link")
	}
	return &model.GitUser{Login: *user.Username, AvatarURL: *user.Links.Avatar.Href}, nil
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
	found, err := c.getJSON(ctx, apiRoot+"/repositories/"+escapeFullName(fullName), &raw)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return readRepository(raw)
}

func (c *client) checkWorkspaceExists(ctx context.Context, name string) error {
	if name == "" {
		return goerr.Wrap(types.ErrInvalidArgument, "organization name must not be empty")
	}
	var ws struct {
		Slug string `json:"slug"`
	}
	found, err := c.getJSON(ctx, apiRoot+"/workspaces/"+url.PathEscape(name), &ws)
	if err != nil {
		return err
	}
	if !found {
		return goerr.Wrap(types.ErrNoSuchOrganization, "user does not belong to the workspace or it does not exist", goerr.V("workspace", name))
	}
	return nil
}

// escapeFullName keeps the owner/name separator literal; Bitbucket paths
// address repositories as two segments
func escapeFullName(fullName string) string {
	owner, name, _ := strings.Cut(fullName, "/")
	return url.PathEscape(owner) + "/" + url.PathEscape(name)
}

// readRepository maps Bitbucket's repository fields to the uniform shape,
// picking the https clone link
func readRepository(raw json.RawMessage) (*model.GitRepository, error) {
	var repo struct {
		FullName *string `json:"full_name"`
		Links    struct {
			HTML struct {
				Href *string `json:"href"`
			} `json:"html"`
			Clone []struct {
				Name string `json:"name"`
				Href string `json:"href"`
			} `json:"clone"`
		} `json:"links"`
	}
	if err := json.Unmarshal(raw, &repo); err != nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "repository is not valid JSON")
	}
	if repo.FullName == nil || repo.Links.HTML.Href == nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "repository response missing expected fields")
	}

	var cloneURL string
	for _, link := range repo.Links.Clone {
		if link.Name == "https" {
			cloneURL = link.Href
			break
		}
	}
	if cloneURL == "" {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "repository response missing https clone link")
	}
	return &model.GitRepository{
		FullName: *repo.FullName,
		Homepage: *repo.Links.HTML.Href,
		CloneURL: cloneURL,
	}, nil
}

func readHook(raw json.RawMessage) (*model.GitHook, error) {
	var hook struct {
		UUID   *string  `json:"uuid"`
		URL    *string  `json:"url"`
		Events []string `json:"events"`
	}
	if err := json.Unmarshal(raw, &hook); err != nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "hook is not valid JSON")
	}
	if hook.UUID == nil || hook.URL == nil {
		return nil, goerr.Wrap(types.ErrMalformedResponse, "hook response missing uuid or url")
	}

	out := &model.GitHook{ID: *hook.UUID, URL: *hook.URL}
	for _, ev := range hook.Events {
		if generic, ok := fromBitbucketEvent[ev]; ok {
			out.Events = append(out.Events, string(generic))
		} else {
			out.Events = append(out.Events, ev)
		}
	}
	sort.Strings(out.Events)
	return out, nil
}

func (c *client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("path", path))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

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

func (c *client) postJSON(ctx context.Context, path string, body any) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode request body")
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(encoded), "application/json")
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
		fmt.Sprintf("bitbucket returned %d", resp.StatusCode),
		goerr.V("path", path),
		goerr.V("status", resp.StatusCode),
		goerr.V("body", string(body)),
	)
}
