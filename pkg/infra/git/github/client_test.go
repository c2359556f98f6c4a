package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/catapult-sh/catapult/pkg/domain/model"
	"github.com/catapult-sh/catapult/pkg/domain/types"
	githubinfra "github.com/catapult-sh/catapult/pkg/infra/git/github"
)

// fakeGitHub serves the API paths the client touches. The enterprise URL
// option roots the SDK at /api/v3/.
type fakeGitHub struct {
	repos    map[string]map[string]any
	hooks    map[string][]map[string]any
	orgs     map[string]bool
	requests int
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *httptest.Server) {
	f := &fakeGitHub{
		repos: map[string]map[string]any{},
		hooks: map[string][]map[string]any{},
		orgs:  map[string]bool{"acme": true},
	}
	mux := http.NewServeMux()
	count := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.requests++
			next(w, r)
		}
	}

	mux.HandleFunc("GET /api/v3/user", count(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"login": "launcher", "avatar_url": "https://github.com/avatar.png"})
	}))
	mux.HandleFunc("GET /api/v3/orgs/{org}", count(func(w http.ResponseWriter, r *http.Request) {
		if !f.orgs[r.PathValue("org")] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"login": r.PathValue("org")})
	}))
	mux.HandleFunc("POST /api/v3/user/repos", count(func(w http.ResponseWriter, r *http.Request) {
		f.createRepo(w, r, "launcher")
	}))
	mux.HandleFunc("POST /api/v3/orgs/{org}/repos", count(func(w http.ResponseWriter, r *http.Request) {
		f.createRepo(w, r, r.PathValue("org"))
	}))
	mux.HandleFunc("GET /api/v3/repos/{owner}/{repo}", count(func(w http.ResponseWriter, r *http.Request) {
		repo, ok := f.repos[r.PathValue("owner")+"/"+r.PathValue("repo")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, repo)
	}))
	mux.HandleFunc("POST /api/v3/repos/{owner}/{repo}/hooks", count(func(w http.ResponseWriter, r *http.Request) {
		full := r.PathValue("owner") + "/" + r.PathValue("repo")
		var in struct {
			Events []string `json:"events"`
			Config struct {
				URL string `json:"url"`
			} `json:"config"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		hook := map[string]any{
			"id":     len(f.hooks[full]) + 1,
			"events": in.Events,
			"config": map[string]any{"url": in.Config.URL},
		}
		f.hooks[full] = append(f.hooks[full], hook)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, hook)
	}))
	mux.HandleFunc("GET /api/v3/repos/{owner}/{repo}/hooks", count(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.hooks[r.PathValue("owner")+"/"+r.PathValue("repo")])
	}))
	mux.HandleFunc("DELETE /api/v3/repos/{owner}/{repo}/hooks/{id}", count(func(w http.ResponseWriter, r *http.Request) {
		full := r.PathValue("owner") + "/" + r.PathValue("repo")
		kept := f.hooks[full][:0]
		for _, h := range f.hooks[full] {
			if strconv.Itoa(h["id"].(int)) != r.PathValue("id") {
				kept = append(kept, h)
			}
		}
		f.hooks[full] = kept
		w.WriteHeader(http.StatusNoContent)
	}))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeGitHub) createRepo(w http.ResponseWriter, r *http.Request, owner string) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	json.NewDecoder(r.Body).Decode(&in)
	full := owner + "/" + in.Name
	repo := map[string]any{
		"full_name": full,
		"name":      in.Name,
		"html_url":  "https://github.com/" + full,
		"clone_url": "https://github.com/" + full + ".git",
	}
	f.repos[full] = repo
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, repo)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestClient_GetLoggedUser(t *testing.T) {
	_, server := newFakeGitHub(t)
	svc, err := githubinfra.New("ghp-test", server.URL)
	gt.NoError(t, err)

	user, err := svc.GetLoggedUser(context.Background())
	gt.NoError(t, err)
	gt.Value(t, user.Login).Equal("launcher")
	gt.Value(t, user.AvatarURL).Equal("https://github.com/avatar.png")
}

func TestClient_CreateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and waits for read-back visibility", func(t *testing.T) {
		_, server := newFakeGitHub(t)
		svc, err := githubinfra.New("ghp-test", server.URL)
		gt.NoError(t, err)

		repo, err := svc.CreateRepository(ctx, nil, "demo-app", "a demo")
		gt.NoError(t, err)
		gt.Value(t, repo.FullName).Equal("launcher/demo-app")
		gt.Value(t, repo.CloneURL).Equal("https://github.com/launcher/demo-app.git")
	})

	t.Run("under an organization", func(t *testing.T) {
		_, server := newFakeGitHub(t)
		svc, err := githubinfra.New("ghp-test", server.URL)
		gt.NoError(t, err)

		repo, err := svc.CreateRepository(ctx, &model.GitOrganization{Name: "acme"}, "demo-app", "a demo")
		gt.NoError(t, err)
		gt.Value(t, repo.FullName).Equal("acme/demo-app")
	})

	t.Run("unknown organization", func(t *testing.T) {
		_, server := newFakeGitHub(t)
		svc, err := githubinfra.New("ghp-test", server.URL)
		gt.NoError(t, err)

		_, err = svc.CreateRepository(ctx, &model.GitOrganization{Name: "ghost"}, "demo-app", "a demo")
		if !errors.Is(err, types.ErrNoSuchOrganization) {
			t.Errorf("error = %v, want ErrNoSuchOrganization", err)
		}
	})

	t.Run("invalid input fails with zero remote calls", func(t *testing.T) {
		fake, server := newFakeGitHub(t)
		svc, err := githubinfra.New("ghp-test", server.URL)
		gt.NoError(t, err)

		_, err = svc.CreateRepository(ctx, nil, "-bad-", "a demo")
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
		_, err = svc.CreateRepository(ctx, nil, "demo-app", "")
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
		gt.Value(t, fake.requests).Equal(0)
	})
}

func TestClient_Hooks(t *testing.T) {
	ctx := context.Background()
	fake, server := newFakeGitHub(t)
	svc, err := githubinfra.New("ghp-test", server.URL)
	gt.NoError(t, err)

	repo := model.GitRepository{FullName: "launcher/demo-app"}
	fake.repos[repo.FullName] = map[string]any{"full_name": repo.FullName}

	hook, err := svc.CreateHook(ctx, repo, "s3cret", "https://launch.example.com/hooks/catapult")
	gt.NoError(t, err)
	gt.NotNil(t, hook)
	// Generic kinds translated to GitHub's names and mapped back on read
	gt.Value(t, hook.Events).Equal([]string{"issues", "merge_requests", "push"})

	found, err := svc.GetHook(ctx, repo, "HTTPS://launch.example.com/HOOKS/catapult")
	gt.NoError(t, err)
	gt.NotNil(t, found)
	gt.Value(t, found.ID).Equal(hook.ID)

	gt.NoError(t, svc.DeleteHook(ctx, repo, *hook))
	hooks, err := svc.GetHooks(ctx, repo)
	gt.NoError(t, err)
	gt.Value(t, len(hooks)).Equal(0)
}
