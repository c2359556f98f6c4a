package gitlab_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/catapult-sh/catapult/pkg/domain/model"
	"github.com/catapult-sh/catapult/pkg/domain/types"
	"github.com/catapult-sh/catapult/pkg/infra/git/gitlab"
)

// fakeGitLab serves just enough of the api/v4 surface for the client
type fakeGitLab struct {
	mu       *testing.T
	token    string
	projects map[string]map[string]any // keyed by full name
	hooks    map[string][]map[string]any
	groups   map[string]int
	requests []string
}

func newFakeGitLab(t *testing.T) (*fakeGitLab, *httptest.Server) {
	f := &fakeGitLab{
		mu:       t,
		token:    "glpat-test",
		projects: map[string]map[string]any{},
		hooks:    map[string][]map[string]any{},
		groups:   map[string]int{"acme": 42},
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v4/user", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"username": "launcher", "avatar_url": "https://gitlab.com/avatar.png"})
	}))
	mux.HandleFunc("GET /api/v4/groups", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"path": "zeta"}, {"path": "acme"}})
	}))
	mux.HandleFunc("GET /api/v4/groups/{name}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		id, ok := f.groups[r.PathValue("name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"id": id})
	}))
	mux.HandleFunc("POST /api/v4/projects", f.authed(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		name := r.PostFormValue("name")
		owner := "launcher"
		if r.PostFormValue("namespace_id") == "42" {
			owner = "acme"
		}
		full := owner + "/" + name
		project := map[string]any{
			"path_with_namespace": full,
			"web_url":             "https://gitlab.com/" + full,
			"http_url_to_repo":    "https://gitlab.com/" + full + ".git",
		}
		f.projects[full] = project
		writeJSON(w, project)
	}))
	mux.HandleFunc("GET /api/v4/projects/{full}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		project, ok := f.projects[r.PathValue("full")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, project)
	}))
	mux.HandleFunc("DELETE /api/v4/projects/{full}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		delete(f.projects, r.PathValue("full"))
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("POST /api/v4/projects/{full}/hooks", f.authed(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		full := r.PathValue("full")
		hook := map[string]any{
			"id":  len(f.hooks[full]) + 1,
			"url": r.PostFormValue("url"),
		}
		for _, field := range []string{"push_events", "merge_requests_events", "issues_events"} {
			if r.PostFormValue(field) == "true" {
				hook[field] = true
			}
		}
		f.hooks[full] = append(f.hooks[full], hook)
		writeJSON(w, hook)
	}))
	mux.HandleFunc("GET /api/v4/projects/{full}/hooks", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.hooks[r.PathValue("full")])
	}))
	mux.HandleFunc("DELETE /api/v4/projects/{full}/hooks/{id}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		full := r.PathValue("full")
		kept := f.hooks[full][:0]
		for _, h := range f.hooks[full] {
			if fmt.Sprint(h["id"]) != r.PathValue("id") {
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

func (f *fakeGitLab) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		if r.Header.Get("Private-Token") != f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestClient_GetLoggedUser(t *testing.T) {
	_, server := newFakeGitLab(t)
	svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

	user, err := svc.GetLoggedUser(context.Background())
	gt.NoError(t, err)
	gt.Value(t, user.Login).Equal("launcher")
	gt.Value(t, user.AvatarURL).Equal("https://gitlab.com/avatar.png")
}

func TestClient_GetLoggedUser_BadToken(t *testing.T) {
	_, server := newFakeGitLab(t)
	svc := gitlab.New("wrong", gitlab.WithBaseURL(server.URL))

	_, err := svc.GetLoggedUser(context.Background())
	if !errors.Is(err, types.ErrRemote) {
		t.Errorf("error = %v, want ErrRemote", err)
	}
}

func TestClient_GetOrganizations(t *testing.T) {
	_, server := newFakeGitLab(t)
	svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

	orgs, err := svc.GetOrganizations(context.Background())
	gt.NoError(t, err)
	gt.Value(t, len(orgs)).Equal(2)
	// Ordered by name regardless of response order
	gt.Value(t, orgs[0].Name).Equal("acme")
	gt.Value(t, orgs[1].Name).Equal("zeta")
}

func TestClient_CreateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("under the logged-in user", func(t *testing.T) {
		_, server := newFakeGitLab(t)
		svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

		repo, err := svc.CreateRepository(ctx, nil, "demo-app", "a demo")
		gt.NoError(t, err)
		gt.Value(t, repo.FullName).Equal("launcher/demo-app")
		gt.Value(t, repo.CloneURL).Equal("https://gitlab.com/launcher/demo-app.git")

		// Visible through read-back
		found, err := svc.GetRepository(ctx, "launcher/demo-app")
		gt.NoError(t, err)
		gt.Value(t, found.FullName).Equal(repo.FullName)
	})

	t.Run("under an organization", func(t *testing.T) {
		_, server := newFakeGitLab(t)
		svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

		repo, err := svc.CreateRepository(ctx, &model.GitOrganization{Name: "acme"}, "demo-app", "a demo")
		gt.NoError(t, err)
		gt.Value(t, repo.FullName).Equal("acme/demo-app")
	})

	t.Run("unknown organization", func(t *testing.T) {
		_, server := newFakeGitLab(t)
		svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

		_, err := svc.CreateRepository(ctx, &model.GitOrganization{Name: "ghost"}, "demo-app", "a demo")
		if !errors.Is(err, types.ErrNoSuchOrganization) {
			t.Errorf("error = %v, want ErrNoSuchOrganization", err)
		}
	})

	t.Run("validation happens before any remote call", func(t *testing.T) {
		fake, server := newFakeGitLab(t)
		svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

		_, err := svc.CreateRepository(ctx, nil, "", "a demo")
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
		_, err = svc.CreateRepository(ctx, nil, "demo-app", "")
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
		gt.Value(t, len(fake.requests)).Equal(0)
	})
}

func TestClient_GetRepository(t *testing.T) {
	ctx := context.Background()
	fake, server := newFakeGitLab(t)
	svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

	fake.projects["launcher/demo-app"] = map[string]any{
		"path_with_namespace": "launcher/demo-app",
		"web_url":             "https://gitlab.com/launcher/demo-app",
		"http_url_to_repo":    "https://gitlab.com/launcher/demo-app.git",
	}

	t.Run("bare name resolves against the logged-in user", func(t *testing.T) {
		repo, err := svc.GetRepository(ctx, "demo-app")
		gt.NoError(t, err)
		gt.Value(t, repo.FullName).Equal("launcher/demo-app")
	})

	t.Run("full name", func(t *testing.T) {
		repo, err := svc.GetRepository(ctx, "launcher/demo-app")
		gt.NoError(t, err)
		gt.Value(t, repo.FullName).Equal("launcher/demo-app")
	})

	t.Run("absent repository returns nil without error", func(t *testing.T) {
		repo, err := svc.GetRepository(ctx, "launcher/nope")
		gt.NoError(t, err)
		gt.Nil(t, repo)
	})

	t.Run("empty name fails without a remote call", func(t *testing.T) {
		before := len(fake.requests)
		_, err := svc.GetRepository(ctx, "")
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
		gt.Value(t, len(fake.requests)).Equal(before)
	})
}

func TestClient_Hooks(t *testing.T) {
	ctx := context.Background()
	fake, server := newFakeGitLab(t)
	svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

	repo := model.GitRepository{FullName: "launcher/demo-app"}
	fake.projects[repo.FullName] = map[string]any{
		"path_with_namespace": repo.FullName,
		"web_url":             "https://gitlab.com/" + repo.FullName,
		"http_url_to_repo":    "https://gitlab.com/" + repo.FullName + ".git",
	}

	hook, err := svc.CreateHook(ctx, repo, "s3cret", "https://launch.example.com/hooks/catapult")
	gt.NoError(t, err)
	gt.NotNil(t, hook)
	gt.Value(t, hook.URL).Equal("https://launch.example.com/hooks/catapult")
	// Default event set applied and read back from the *_events flags
	gt.Value(t, hook.Events).Equal([]string{"issues", "merge_requests", "push"})

	t.Run("lookup by URL is case-insensitive", func(t *testing.T) {
		found, err := svc.GetHook(ctx, repo, "HTTPS://LAUNCH.EXAMPLE.COM/hooks/catapult")
		gt.NoError(t, err)
		gt.NotNil(t, found)
		gt.Value(t, found.ID).Equal(hook.ID)
	})

	t.Run("unknown URL returns nil", func(t *testing.T) {
		found, err := svc.GetHook(ctx, repo, "https://elsewhere.example.com")
		gt.NoError(t, err)
		gt.Nil(t, found)
	})

	t.Run("delete removes by identifier", func(t *testing.T) {
		gt.NoError(t, svc.DeleteHook(ctx, repo, *hook))
		hooks, err := svc.GetHooks(ctx, repo)
		gt.NoError(t, err)
		gt.Value(t, len(hooks)).Equal(0)
	})
}

func TestClient_DeleteRepository(t *testing.T) {
	ctx := context.Background()
	fake, server := newFakeGitLab(t)
	svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

	fake.projects["launcher/demo-app"] = map[string]any{
		"path_with_namespace": "launcher/demo-app",
		"web_url":             "https://gitlab.com/launcher/demo-app",
		"http_url_to_repo":    "https://gitlab.com/launcher/demo-app.git",
	}

	gt.NoError(t, svc.DeleteRepository(ctx, "launcher/demo-app"))
	// Idempotent from the caller's perspective
	gt.NoError(t, svc.DeleteRepository(ctx, "launcher/demo-app"))
}

func TestClient_GetRepositories(t *testing.T) {
	ctx := context.Background()
	_, server := newFakeGitLab(t)
	svc := gitlab.New("glpat-test", gitlab.WithBaseURL(server.URL))

	t.Run("unknown organization fails typed", func(t *testing.T) {
		_, err := svc.GetRepositories(ctx, model.GitRepositoryFilter{
			Organization: &model.GitOrganization{Name: "ghost"},
		})
		if !errors.Is(err, types.ErrNoSuchOrganization) {
			t.Errorf("error = %v, want ErrNoSuchOrganization", err)
		}
	})
}
