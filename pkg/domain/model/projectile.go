package model

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/types"
)

// LaunchStep names a pipeline stage a launch may start from, allowing a
// partially completed launch to be resumed past already-finished stages
type LaunchStep string

const (
	StepCreateRepository LaunchStep = "CREATE_REPOSITORY"
	StepRegisterHook     LaunchStep = "REGISTER_HOOK"
	StepDeploy           LaunchStep = "DEPLOY"
)

var stepOrder = map[LaunchStep]int{
	StepCreateRepository: 0,
	StepRegisterHook:     1,
	StepDeploy:           2,
}

// ParseLaunchStep resolves a starting step from request input. An empty
// value means the whole pipeline.
func ParseLaunchStep(s string) (LaunchStep, error) {
	if s == "" {
		return StepCreateRepository, nil
	}
	step := LaunchStep(s)
	if _, ok := stepOrder[step]; !ok {
		return "", goerr.Wrap(types.ErrInvalidArgument, "unknown execution step", goerr.V("step", s))
	}
	return step, nil
}

// Includes reports whether a launch starting at s executes stage other
func (s LaunchStep) Includes(other LaunchStep) bool {
	return stepOrder[s] <= stepOrder[other]
}

// EventSink receives lifecycle events for a single job. Must never block
// the caller.
type EventSink func(StatusMessageEvent)

// Projectile is the in-flight unit of work representing one project
// launch. Built once by the launch endpoint and consumed read-only by
// mission control. The directory at ProjectLocation is exclusively owned
// by this job until the reaper deletes it after the terminal transition.
type Projectile struct {
	ID              uuid.UUID
	ProjectLocation string
	GitOrganization string
	GitRepository   string
	ProjectName     string
	StartOfStep     LaunchStep
	EventSink       EventSink
}

// NewProjectile assigns a fresh job ID and validates the fields mission
// control depends on
func NewProjectile(location, organization, repository, projectName string, start LaunchStep, sink EventSink) (*Projectile, error) {
	if location == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "project location must be specified")
	}
	if repository == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "repository name must be specified")
	}
	if sink == nil {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "event sink must be specified")
	}
	if start == "" {
		start = StepCreateRepository
	}
	return &Projectile{
		ID:              uuid.New(),
		ProjectLocation: location,
		GitOrganization: organization,
		GitRepository:   repository,
		ProjectName:     projectName,
		StartOfStep:     start,
		EventSink:       sink,
	}, nil
}
