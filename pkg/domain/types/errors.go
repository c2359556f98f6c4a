package types

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy shared across layers. Provider clients and usecases wrap
// these sentinels with goerr.Wrap so callers can classify failures with
// errors.Is without depending on a concrete provider.
var (
	// ErrInvalidArgument means the caller passed a bad value (empty name,
	// malformed repository slug, empty description). Raised before any
	// remote call is made.
	ErrInvalidArgument = goerr.New("invalid argument")

	// ErrNoSuchOrganization means the authenticated identity does not
	// belong to the organization, or it does not exist.
	ErrNoSuchOrganization = goerr.New("no such organization")

	// ErrNoSuchRepository means the repository could not be found,
	// including a created repository that never became visible within the
	// bounded wait.
	ErrNoSuchRepository = goerr.New("no such repository")

	// ErrRemote wraps non-2xx responses and transport failures from
	// provider APIs or the deployer.
	ErrRemote = goerr.New("remote call failed")

	// ErrMalformedResponse means a supposedly successful provider response
	// is missing an expected field. Treated as a configuration or
	// programming error, never retried.
	ErrMalformedResponse = goerr.New("malformed provider response")
)
