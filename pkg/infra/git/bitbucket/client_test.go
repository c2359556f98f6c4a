package bitbucket_test

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
	"github.com/catapult-sh/catapult/pkg/infra/git/bitbucket"
)

type fakeBitbucket struct {
	repos    map[string]map[string]any
	hooks    map[string][]map[string]any
	requests int
}

func repoJSON(full string) map[string]any {
	return map[string]any{
		"full_name": full,
		"links": map[string]any{
			"html": map[string]any{"href": "https://bitbucket.org/" + full},
			"clone": []map[string]any{
				{"name": "ssh", "href": "git@bitbucket.org:" + full + ".git"},
				{"name": "https", "href": "https://bitbucket.org/" + full + ".git"},
			},
		},
	}
}

func newFakeBitbucket(t *testing.T) (*fakeBitbucket, *httptest.Server) {
	f := &fakeBitbucket{
		repos: map[string]map[string]any{},
		hooks: map[string][]map[string]any{},
	}
	mux := http.NewServeMux()
	count := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.requests++
			next(w, r)
		}
	}

	mux.HandleFunc("GET /2.0/user", count(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"username": "launcher",
			"links":    map[string]any{"avatar": map[string]any{"href": "https://bitbucket.org/avatar.png"}},
		})
	}))
	mux.HandleFunc("GET /2.0/workspaces", count(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"values": []map[string]any{{"slug": "acme"}}})
	}))
	mux.HandleFunc("GET /2.0/workspaces/{name}", count(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "acme" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"slug": "acme"})
	}))
	mux.HandleFunc("POST /2.0/repositories/{owner}/{name}", count(func(w http.ResponseWriter, r *http.Request) {
		full := r.PathValue("owner") + "/" + r.PathValue("name")
		f.repos[full] = repoJSON(full)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, f.repos[full])
	}))
	mux.HandleFunc("GET /2.0/repositories/{owner}/{name}", count(func(w http.ResponseWriter, r *http.Request) {
		repo, ok := f.repos[r.PathValue("owner")+"/"+r.PathValue("name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, repo)
	}))
	mux.HandleFunc("POST /2.0/repositories/{owner}/{name}/hooks", count(func(w http.ResponseWriter, r *http.Request) {
		full := r.PathValue("owner") + "/" + r.PathValue("name")
		var in struct {
			URL    string   `json:"url"`
			Events []string `json:"events"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		hook := map[string]any{
			"uuid":   fmt.Sprintf("{hook-%d}", len(f.hooks[full])+1),
			"url":    in.URL,
			"events": in.Events,
		}
		f.hooks[full] = append(f.hooks[full], hook)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, hook)
	}))
	mux.HandleFunc("GET /2.0/repositories/{owner}/{name}/hooks", count(func(w http.ResponseWriter, r *http.Request) {
		full := r.PathValue("owner") + "/" + r.PathValue("name")
		writeJSON(w, map[string]any{"values": f.hooks[full]})
	}))
	mux.HandleFunc("DELETE /2.0/repositories/{owner}/{name}/hooks/{id}", count(func(w http.ResponseWriter, r *http.Request) {
		full := r.PathValue("owner") + "/" + r.PathValue("name")
		kept := f.hooks[full][:0]
		for _, h := range f.hooks[full] {
			if h["uuid"] != r.PathValue("id") {
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

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestClient_GetLoggedUser(t *testing.T) {
	_, server := newFakeBitbucket(t)
	svc := bitbucket.New("bb-test", bitbucket.WithBaseURL(server.URL))

	user, err := svc.GetLoggedUser(context.Background())
	gt.NoError(t, err)
	gt.Value(t, user.Login).Equal("launcher")
	gt.Value(t, user.AvatarURL).Equal("https://bitbucket.org/avatar.png")
}

func TestClient_GetOrganizations(t *testing.T) {
	_, server := newFakeBitbucket(t)
	svc := bitbucket.New("bb-test", bitbucket.WithBaseURL(server.URL))

	orgs, err := svc.GetOrganizations(context.Background())
	gt.NoError(t, err)
	gt.Value(t, len(orgs)).Equal(1)
	gt.Value(t, orgs[0].Name).Equal("acme")
}

func TestClient_CreateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("under the logged-in user", func(t *testing.T) {
		_, server := newFakeBitbucket(t)
		svc := bitbucket.New("bb-test", bitbucket.WithBaseURL(server.URL))

		repo, err := svc.CreateRepository(ctx, nil, "demo-app", "a demo")
		gt.NoError(t, err)
		gt.Value(t, repo.FullName).Equal("launcher/demo-app")
		gt.Value(t, repo.CloneURL).Equal("https://bitbucket.org/launcher/demo-app.git")
	})

	t.Run("under a workspace", func(t *testing.T) {
		_, server := newFakeBitbucket(t)
		svc := bitbucket.New("bb-test", bitbucket.WithBaseURL(server.URL))

		repo, err := svc.CreateRepository(ctx, &model.GitOrganization{Name: "acme"}, "demo-app", "a demo")
		gt.NoError(t, err)
		gt.Value(t, repo.FullName).Equal("acme/demo-app")
	})

	t.Run("unknown workspace", func(t *testing.T) {
		_, server := newFakeBitbucket(t)
		svc := bitbucket.New("bb-test", bitbucket.WithBaseURL(server.URL))

		_, err := svc.CreateRepository(ctx, &model.GitOrganization{Name: "ghost"}, "demo-app", "a demo")
		if !errors.Is(err, types.ErrNoSuchOrganization) {
			t.Errorf("error = %v, want ErrNoSuchOrganization", err)
		}
	})

	t.Run("invalid input fails with zero remote calls", func(t *testing.T) {
		fake, server := newFakeBitbucket(t)
		svc := bitbucket.New("bb-test", bitbucket.WithBaseURL(server.URL))

		_, err := svc.CreateRepository(ctx, nil, "", "a demo")
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
		gt.Value(t, fake.requests).Equal(0)
	})
}

func TestClient_Hooks(t *testing.T) {
	ctx := context.Background()
	fake, server := newFakeBitbucket(t)
	svc := bitbucket.New("bb-test", bitbucket.WithBaseURL(server.URL))

	repo := model.GitRepository{FullName: "launcher/demo-app"}
	fake.repos[repo.FullName] = repoJSON(repo.FullName)

	hook, err := svc.CreateHook(ctx, repo, "s3cret", "https://launch.example.com/hooks/catapult")
	gt.NoError(t, err)
	gt.NotNil(t, hook)
	// Namespaced provider events mapped back to generic kinds
	gt.Value(t, hook.Events).Equal([]string{"issues", "merge_requests", "push"})

	found, err := svc.GetHook(ctx, repo, "https://LAUNCH.example.com/hooks/catapult")
	gt.NoError(t, err)
	gt.NotNil(t, found)
	gt.Value(t, found.ID).Equal(hook.ID)

	gt.NoError(t, svc.DeleteHook(ctx, repo, *hook))
	hooks, err := svc.GetHooks(ctx, repo)
	gt.NoError(t, err)
	gt.Value(t, len(hooks)).Equal(0)
}
