package git

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sethvargo/go-retry"

	"github.com/catapult-sh/catapult/pkg/domain/model"
	"github.com/catapult-sh/catapult/pkg/domain/types"
)

// Providers may take a moment to index a newly created repository before
// it is readable. These bounds keep the create call's read-back wait
// deterministic.
const (
	waitMaxRetries    = 10
	waitRetryInterval = 500 * time.Millisecond
)

// WaitForRepository polls lookup until the repository becomes visible,
// with a constant backoff and a bounded attempt count. Returns a
// no-such-repository error if the bound is exhausted.
func WaitForRepository(ctx context.Context, fullName string, lookup func(ctx context.Context) (*model.GitRepository, error)) (*model.GitRepository, error) {
	var repo *model.GitRepository

	backoff := retry.WithMaxRetries(waitMaxRetries, retry.NewConstant(waitRetryInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		found, err := lookup(ctx)
		if err != nil {
			return err
		}
		if found == nil {
			return retry.RetryableError(goerr.Wrap(types.ErrNoSuchRepository, "repository not yet visible", goerr.V("fullName", fullName)))
		}
		repo = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}
