package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/interfaces"
	"github.com/catapult-sh/catapult/pkg/domain/model"
	"github.com/catapult-sh/catapult/pkg/domain/types"
	"github.com/catapult-sh/catapult/pkg/infra/git"
	"github.com/catapult-sh/catapult/pkg/infra/scaffold"
	"github.com/catapult-sh/catapult/pkg/utils/async"
	"github.com/catapult-sh/catapult/pkg/utils/broker"
	"github.com/catapult-sh/catapult/pkg/utils/reaper"
)

// maxUploadBytes bounds the accepted project archive size
const maxUploadBytes = 32 << 20

// LaunchHandler accepts launch requests, acknowledges them immediately,
// and runs the pipeline in the background. The projectile's directory is
// deleted exactly once after orchestration reaches a terminal state.
type LaunchHandler struct {
	launcher interfaces.LaunchUseCase
	preparer interfaces.Preparer
	events   *broker.Broker
	cleaner  *reaper.Reaper
	metrics  *Metrics
}

// NewLaunchHandler creates a LaunchHandler
func NewLaunchHandler(
	launcher interfaces.LaunchUseCase,
	preparer interfaces.Preparer,
	events *broker.Broker,
	cleaner *reaper.Reaper,
	metrics *Metrics,
) *LaunchHandler {
	return &LaunchHandler{
		launcher: launcher,
		preparer: preparer,
		events:   events,
		cleaner:  cleaner,
		metrics:  metrics,
	}
}

type launchRequest struct {
	Mission         string `json:"mission"`
	Booster         string `json:"booster"`
	ProjectName     string `json:"projectName"`
	GitOrganization string `json:"gitOrganization"`
	GitRepository   string `json:"gitRepository"`
	StartOfStep     string `json:"startOfStep"`
}

type launchAck struct {
	UUID       string                  `json:"uuid"`
	EventTypes []model.StatusEventKind `json:"eventTypes"`
}

func (in *launchRequest) validate() (model.LaunchStep, error) {
	if err := git.CheckRepositoryName(in.GitRepository); err != nil {
		return "", err
	}
	return model.ParseLaunchStep(in.StartOfStep)
}

// HandleLaunch runs a launch from a JSON request, materializing the
// project from the default template
func (h *LaunchHandler) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in launchRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, goerr.Wrap(types.ErrInvalidArgument, "invalid JSON payload"), http.StatusBadRequest)
		return
	}
	step, err := in.validate()
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	projectName := in.ProjectName
	if projectName == "" {
		projectName = in.GitRepository
	}
	dir, err := h.preparer.Prepare(ctx, model.PrepareInput{
		Mission:     in.Mission,
		Booster:     in.Booster,
		ProjectName: projectName,
	})
	if err != nil {
		ctxlog.From(ctx).Error("failed to materialize project", "error", err)
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	h.accept(w, r, dir, in, step)
}

// HandleUpload runs a launch from an uploaded zip archive carrying the
// project content
func (h *LaunchHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, goerr.Wrap(types.ErrInvalidArgument, "invalid multipart request"), http.StatusBadRequest)
		return
	}
	in := launchRequest{
		Mission:         r.FormValue("mission"),
		Booster:         r.FormValue("booster"),
		ProjectName:     r.FormValue("projectName"),
		GitOrganization: r.FormValue("gitOrganization"),
		GitRepository:   r.FormValue("gitRepository"),
		StartOfStep:     r.FormValue("startOfStep"),
	}
	step, err := in.validate()
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, goerr.Wrap(types.ErrInvalidArgument, "project archive must be attached as \"file\""), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, goerr.Wrap(err, "failed to read project archive"), http.StatusBadRequest)
		return
	}
	dir, err := scaffold.Extract(ctx, data)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	h.accept(w, r, dir, in, step)
}

// accept builds the projectile, writes the acknowledgment, and only then
// hands orchestration to the background. The ack carries the job ID and
// every event kind the caller may observe; it never reports failures.
func (h *LaunchHandler) accept(w http.ResponseWriter, r *http.Request, dir string, in launchRequest, step model.LaunchStep) {
	ctx := r.Context()

	projectile, err := model.NewProjectile(dir, in.GitOrganization, in.GitRepository, in.ProjectName, step, h.events.Send)
	if err != nil {
		h.cleaner.Delete(ctx, dir)
		writeError(w, err, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(launchAck{
		UUID:       projectile.ID.String(),
		EventTypes: model.StatusEventKinds(),
	}); err != nil {
		ctxlog.From(ctx).Error("failed to encode launch acknowledgment", "error", err)
	}
	// The caller must hold the job ID before the first event can fire
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	h.dispatch(ctx, projectile)
}

func (h *LaunchHandler) dispatch(ctx context.Context, p *model.Projectile) {
	async.Dispatch(ctx, func(ctx context.Context) error {
		defer h.cleaner.Delete(ctx, p.ProjectLocation)

		start := time.Now()
		outcome := "failed"
		defer func() {
			if rec := recover(); rec != nil {
				p.EventSink(model.NewFailureEvent(p.ID, fmt.Errorf("launch aborted: %v", rec)))
			}
			h.metrics.RecordLaunchResult(outcome)
			ctxlog.From(ctx).Info("launch finished",
				"job_id", p.ID,
				"outcome", outcome,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		}()

		if err := h.launcher.Launch(ctx, p); err != nil {
			return err
		}
		outcome = "launched"
		return nil
	})
}
