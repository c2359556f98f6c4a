package usecase

import (
	"context"
	"fmt"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/interfaces"
	"github.com/catapult-sh/catapult/pkg/domain/model"
	"github.com/catapult-sh/catapult/pkg/domain/types"
)

// MissionControl drives a projectile through the launch pipeline:
// repository creation, webhook registration, then deployment. Each
// completed stage emits one event through the projectile's sink, and
// exactly one terminal event is emitted before Launch returns.
type MissionControl struct {
	git      interfaces.GitService
	deployer interfaces.Deployer

	webhookURL    string
	webhookSecret string
	namespace     string
}

// Option is a functional option for MissionControl
type Option func(*MissionControl)

// WithWebhook registers a webhook on every created repository pointing
// at the given receiver URL. Without it the hook stage is skipped.
func WithWebhook(url, secret string) Option {
	return func(mc *MissionControl) {
		mc.webhookURL = url
		mc.webhookSecret = secret
	}
}

// WithNamespace sets the target environment namespace deployments are
// created in
func WithNamespace(ns string) Option {
	return func(mc *MissionControl) {
		mc.namespace = ns
	}
}

// New creates a MissionControl over the given provider client and
// deployer
func New(git interfaces.GitService, deployer interfaces.Deployer, opts ...Option) *MissionControl {
	mc := &MissionControl{
		git:       git,
		deployer:  deployer,
		namespace: "default",
	}
	for _, opt := range opts {
		opt(mc)
	}
	return mc
}

var _ interfaces.LaunchUseCase = (*MissionControl)(nil)

// Launch runs the pipeline from the projectile's starting step. Stages
// before the starting step are assumed complete and are not re-executed,
// except that the repository is still resolved because later stages need
// it. Any stage failure emits the terminal FAILED event and returns the
// cause.
func (mc *MissionControl) Launch(ctx context.Context, p *model.Projectile) error {
	logger := ctxlog.From(ctx).With("job_id", p.ID, "repository", p.GitRepository)
	ctx = ctxlog.With(ctx, logger)

	if err := mc.launch(ctx, p); err != nil {
		logger.Error("launch failed", "error", err)
		p.EventSink(model.NewFailureEvent(p.ID, err))
		return err
	}

	logger.Info("launch completed")
	p.EventSink(model.NewStatusEvent(p.ID, model.StatusLaunched, nil))
	return nil
}

func (mc *MissionControl) launch(ctx context.Context, p *model.Projectile) error {
	repo, err := mc.ensureRepository(ctx, p)
	if err != nil {
		return err
	}
	if p.StartOfStep.Includes(model.StepCreateRepository) {
		p.EventSink(model.NewStatusEvent(p.ID, model.StatusCreatingRepository, map[string]string{
			"location": repo.Homepage,
		}))
	}

	if p.StartOfStep.Includes(model.StepRegisterHook) && mc.webhookURL != "" {
		if err := mc.ensureHook(ctx, *repo); err != nil {
			return err
		}
		p.EventSink(model.NewStatusEvent(p.ID, model.StatusRegisteringHook, map[string]string{
			"url": mc.webhookURL,
		}))
	}

	if p.StartOfStep.Includes(model.StepDeploy) {
		req := model.DeploymentRequest{
			Repository: repo.FullName,
			CloneURL:   repo.CloneURL,
			Namespace:  mc.namespace,
		}
		if err := mc.deployer.Trigger(ctx, req); err != nil {
			return err
		}
		p.EventSink(model.NewStatusEvent(p.ID, model.StatusDeploying, map[string]string{
			"namespace": mc.namespace,
		}))
	}

	return nil
}

// ensureRepository resolves the target repository, creating it unless it
// already exists or the pipeline resumes past the creation stage. An
// existing repository with the requested name is reused rather than
// treated as a conflict, so retrying a half-finished launch converges.
func (mc *MissionControl) ensureRepository(ctx context.Context, p *model.Projectile) (*model.GitRepository, error) {
	var org *model.GitOrganization
	if p.GitOrganization != "" {
		org = &model.GitOrganization{Name: p.GitOrganization}
	}

	existing, err := mc.lookupRepository(ctx, org, p.GitRepository)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		ctxlog.From(ctx).Debug("repository already exists, reusing", "full_name", existing.FullName)
		return existing, nil
	}

	if !p.StartOfStep.Includes(model.StepCreateRepository) {
		return nil, goerr.Wrap(types.ErrNoSuchRepository,
			"launch resumed past repository creation but the repository does not exist",
			goerr.V("repository", p.GitRepository),
		)
	}

	description := fmt.Sprintf("Project %s generated by catapult", p.ProjectName)
	if p.ProjectName == "" {
		description = "Project generated by catapult"
	}
	repo, err := mc.git.CreateRepository(ctx, org, p.GitRepository, description)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (mc *MissionControl) lookupRepository(ctx context.Context, org *model.GitOrganization, name string) (*model.GitRepository, error) {
	if org != nil {
		return mc.git.GetRepositoryIn(ctx, *org, name)
	}
	return mc.git.GetRepository(ctx, name)
}

// ensureHook registers the status webhook, tolerating a hook that is
// already present for the same URL. A creation failure is re-checked
// against the hook list before being reported, since providers reject
// duplicate registrations.
func (mc *MissionControl) ensureHook(ctx context.Context, repo model.GitRepository) error {
	existing, err := mc.git.GetHook(ctx, repo, mc.webhookURL)
	if err != nil {
		return err
	}
	if existing != nil {
		ctxlog.From(ctx).Debug("webhook already registered", "hook_url", mc.webhookURL)
		return nil
	}

	if _, err := mc.git.CreateHook(ctx, repo, mc.webhookSecret, mc.webhookURL); err != nil {
		raced, checkErr := mc.git.GetHook(ctx, repo, mc.webhookURL)
		if checkErr == nil && raced != nil {
			ctxlog.From(ctx).Debug("webhook registered concurrently", "hook_url", mc.webhookURL)
			return nil
		}
		return err
	}
	return nil
}
