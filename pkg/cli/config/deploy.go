package config

import (
	"time"

	"github.com/urfave/cli/v3"
)

// Deploy holds deployment trigger configuration
type Deploy struct {
	URL       string
	Namespace string
	Timeout   time.Duration
}

// Flags returns CLI flags for deployment configuration
func (c *Deploy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "deploy-url",
			Usage:       "Deployment service base URL",
			Required:    true,
			Destination: &c.URL,
			Sources:     cli.EnvVars("CATAPULT_DEPLOY_URL"),
		},
		&cli.StringFlag{
			Name:        "deploy-namespace",
			Usage:       "Target environment namespace for deployments",
			Value:       "default",
			Destination: &c.Namespace,
			Sources:     cli.EnvVars("CATAPULT_DEPLOY_NAMESPACE"),
		},
		&cli.DurationFlag{
			Name:        "deploy-timeout",
			Usage:       "Deployment trigger request timeout",
			Value:       30 * time.Second,
			Destination: &c.Timeout,
			Sources:     cli.EnvVars("CATAPULT_DEPLOY_TIMEOUT"),
		},
	}
}
