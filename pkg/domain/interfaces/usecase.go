package interfaces

import (
	"context"

	"github.com/catapult-sh/catapult/pkg/domain/model"
)

// LaunchUseCase runs a projectile through the launch pipeline to a
// terminal state. The terminal event is always emitted through the
// projectile's event sink before Launch returns.
type LaunchUseCase interface {
	Launch(ctx context.Context, projectile *model.Projectile) error
}

// Preparer materializes a project template into a new exclusively-owned
// directory and returns its path. The caller owns deletion.
type Preparer interface {
	Prepare(ctx context.Context, input model.PrepareInput) (string, error)
}

// Deployer triggers a build and deployment in the target environment.
// A nil error means the request was accepted, not that the deployment
// itself succeeded.
type Deployer interface {
	Trigger(ctx context.Context, req model.DeploymentRequest) error
}
