package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/model"
)

// HookHandler receives webhook deliveries from the repositories catapult
// provisions. Provider header conventions differ, so the handler detects
// the sender, verifies the shared secret in that provider's scheme, and
// normalizes the delivery before logging it.
type HookHandler struct {
	secret string
}

// NewHookHandler creates a HookHandler
func NewHookHandler(secret string) *HookHandler {
	return &HookHandler{secret: secret}
}

// Handle processes POST /hooks/catapult
func (h *HookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read webhook body", "error", err)
		writeError(w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	delivery, err := h.parseDelivery(r, body)
	if err != nil {
		logger.Warn("unrecognized webhook delivery", "error", err)
		writeError(w, err, http.StatusBadRequest)
		return
	}

	if !h.verify(r, body, delivery.Provider) {
		logger.Warn("webhook signature verification failed", "provider", delivery.Provider)
		writeError(w, goerr.New("invalid signature"), http.StatusUnauthorized)
		return
	}

	if !delivery.IsSubscribedEvent() {
		logger.Debug("ignoring unsubscribed webhook event",
			"provider", delivery.Provider,
			"delivery_id", delivery.ID,
		)
		writeStatus(w, "ignored")
		return
	}

	logger.Info("webhook delivery received",
		"provider", delivery.Provider,
		"event", delivery.Event,
		"repository", delivery.Repository,
		"delivery_id", delivery.ID,
	)
	writeStatus(w, "accepted")
}

// parseDelivery detects the sending provider from its event header and
// maps the provider event name back to the generic kind
func (h *HookHandler) parseDelivery(r *http.Request, body []byte) (*model.HookDelivery, error) {
	delivery := &model.HookDelivery{
		ReceivedAt: time.Now(),
		RawPayload: body,
	}

	switch {
	case r.Header.Get("X-GitHub-Event") != "":
		delivery.Provider = model.ProviderGitHub
		delivery.ID = r.Header.Get("X-GitHub-Delivery")
		delivery.Event = mapHookEvent(r.Header.Get("X-GitHub-Event"), map[string]model.HookEvent{
			"push":         model.HookEventPush,
			"pull_request": model.HookEventMergeRequests,
			"issues":       model.HookEventIssues,
		})
	case r.Header.Get("X-Gitlab-Event") != "":
		delivery.Provider = model.ProviderGitLab
		delivery.ID = r.Header.Get("X-Gitlab-Event-UUID")
		delivery.Event = mapHookEvent(r.Header.Get("X-Gitlab-Event"), map[string]model.HookEvent{
			"Push Hook":          model.HookEventPush,
			"Merge Request Hook": model.HookEventMergeRequests,
			"Issue Hook":         model.HookEventIssues,
		})
	case r.Header.Get("X-Event-Key") != "":
		delivery.Provider = model.ProviderBitbucket
		delivery.ID = r.Header.Get("X-Request-UUID")
		delivery.Event = mapHookEvent(r.Header.Get("X-Event-Key"), map[string]model.HookEvent{
			"repo:push":           model.HookEventPush,
			"pullrequest:created": model.HookEventMergeRequests,
			"issue:created":       model.HookEventIssues,
		})
	default:
		return nil, goerr.New("no provider event header present")
	}

	delivery.Repository = repositoryFromPayload(body)
	return delivery, nil
}

func mapHookEvent(name string, table map[string]model.HookEvent) model.HookEvent {
	if kind, ok := table[name]; ok {
		return kind
	}
	return model.HookEvent(strings.ToLower(name))
}

// repositoryFromPayload pulls the repository full name out of the
// payload, tolerating each provider's field naming
func repositoryFromPayload(body []byte) string {
	var payload struct {
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
		Project struct {
			PathWithNamespace string `json:"path_with_namespace"`
		} `json:"project"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Repository.FullName != "" {
		return payload.Repository.FullName
	}
	return payload.Project.PathWithNamespace
}

// verify checks the delivery against the shared webhook secret. GitHub
// and Bitbucket sign the body with HMAC-SHA256; GitLab echoes the secret
// as a token header.
func (h *HookHandler) verify(r *http.Request, body []byte, provider model.HookProvider) bool {
	if h.secret == "" {
		return true
	}

	if provider == model.ProviderGitLab {
		token := r.Header.Get("X-Gitlab-Token")
		return token != "" && hmac.Equal([]byte(token), []byte(h.secret))
	}

	signature := strings.TrimPrefix(r.Header.Get("X-Hub-Signature-256"), "sha256=")
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
