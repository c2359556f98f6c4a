package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/interfaces"
	"github.com/catapult-sh/catapult/pkg/domain/model"
	"github.com/catapult-sh/catapult/pkg/domain/types"
)

const defaultTimeout = 30 * time.Second

type client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for the deployer client
type Option func(*client)

// WithTimeout overrides the request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		c.httpClient.Timeout = d
	}
}

// New creates a Deployer that posts launch requests to the target
// environment's build service
func New(baseURL string, opts ...Option) interfaces.Deployer {
	c := &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger asks the deployer to build and deploy the repository. Returns
// once the request is accepted; the deployment itself proceeds remotely.
func (c *client) Trigger(ctx context.Context, req model.DeploymentRequest) error {
	if req.Repository == "" {
		return goerr.Wrap(types.ErrInvalidArgument, "deployment repository must be specified")
	}
	if req.Namespace == "" {
		return goerr.Wrap(types.ErrInvalidArgument, "deployment namespace must be specified")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return goerr.Wrap(err, "failed to encode deployment request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/deployments", bytes.NewReader(payload))
	if err != nil {
		return goerr.Wrap(err, "failed to build deployment request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return goerr.Wrap(types.ErrRemote, err.Error(), goerr.V("repository", req.Repository))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return goerr.Wrap(types.ErrRemote,
			fmt.Sprintf("deployer rejected the request with %d", resp.StatusCode),
			goerr.V("repository", req.Repository),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)),
		)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
