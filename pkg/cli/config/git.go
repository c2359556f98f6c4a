package config

import "github.com/urfave/cli/v3"

// Git holds Git provider configuration
type Git struct {
	Provider      string
	Token         string
	BaseURL       string
	WebhookURL    string
	WebhookSecret string
}

// Flags returns CLI flags for Git provider configuration
func (c *Git) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "git-provider",
			Usage:       "Git hosting provider (github, gitlab, bitbucket)",
			Value:       "github",
			Destination: &c.Provider,
			Sources:     cli.EnvVars("CATAPULT_GIT_PROVIDER"),
		},
		&cli.StringFlag{
			Name:        "git-token",
			Usage:       "Git provider API token",
			Required:    true,
			Destination: &c.Token,
			Sources:     cli.EnvVars("CATAPULT_GIT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "git-base-url",
			Usage:       "Git provider API base URL (empty for the public endpoint)",
			Destination: &c.BaseURL,
			Sources:     cli.EnvVars("CATAPULT_GIT_BASE_URL"),
		},
		&cli.StringFlag{
			Name:        "webhook-url",
			Usage:       "URL registered as a webhook on created repositories (empty to skip hook registration)",
			Destination: &c.WebhookURL,
			Sources:     cli.EnvVars("CATAPULT_WEBHOOK_URL"),
		},
		&cli.StringFlag{
			Name:        "webhook-secret",
			Usage:       "Secret shared with provider webhooks",
			Destination: &c.WebhookSecret,
			Sources:     cli.EnvVars("CATAPULT_WEBHOOK_SECRET"),
		},
	}
}
