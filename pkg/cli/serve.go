package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/catapult-sh/catapult/pkg/cli/config"
	controller "github.com/catapult-sh/catapult/pkg/controller/http"
	"github.com/catapult-sh/catapult/pkg/domain/interfaces"
	"github.com/catapult-sh/catapult/pkg/domain/types"
	"github.com/catapult-sh/catapult/pkg/infra/deploy"
	"github.com/catapult-sh/catapult/pkg/infra/git/bitbucket"
	"github.com/catapult-sh/catapult/pkg/infra/git/github"
	"github.com/catapult-sh/catapult/pkg/infra/git/gitlab"
	"github.com/catapult-sh/catapult/pkg/infra/scaffold"
	"github.com/catapult-sh/catapult/pkg/usecase"
	"github.com/catapult-sh/catapult/pkg/utils/broker"
)

func cmdServe() *cli.Command {
	var (
		serverCfg config.Server
		gitCfg    config.Git
		deployCfg config.Deploy
	)

	flags := append(serverCfg.Flags(), gitCfg.Flags()...)
	flags = append(flags, deployCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting catapult server",
				slog.String("addr", serverCfg.Addr),
				slog.String("provider", gitCfg.Provider),
			)

			gitSvc, err := newGitService(gitCfg)
			if err != nil {
				return err
			}
			deployer := deploy.New(deployCfg.URL, deploy.WithTimeout(deployCfg.Timeout))

			missionControl := usecase.New(gitSvc, deployer,
				usecase.WithWebhook(gitCfg.WebhookURL, gitCfg.WebhookSecret),
				usecase.WithNamespace(deployCfg.Namespace),
			)

			events := broker.New()
			defer events.Close()

			server, err := controller.NewServer(
				ctx,
				missionControl,
				scaffold.New(),
				events,
				controller.WithAddr(serverCfg.Addr),
				controller.WithWebhookSecret(gitCfg.WebhookSecret),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}

// newGitService selects the provider client from configuration
func newGitService(cfg config.Git) (interfaces.GitService, error) {
	switch strings.ToLower(cfg.Provider) {
	case "github":
		svc, err := github.New(cfg.Token, cfg.BaseURL)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create GitHub client")
		}
		return svc, nil
	case "gitlab":
		var opts []gitlab.Option
		if cfg.BaseURL != "" {
			opts = append(opts, gitlab.WithBaseURL(cfg.BaseURL))
		}
		return gitlab.New(cfg.Token, opts...), nil
	case "bitbucket":
		var opts []bitbucket.Option
		if cfg.BaseURL != "" {
			opts = append(opts, bitbucket.WithBaseURL(cfg.BaseURL))
		}
		return bitbucket.New(cfg.Token, opts...), nil
	default:
		return nil, goerr.Wrap(types.ErrInvalidArgument, "unknown git provider", goerr.V("provider", cfg.Provider))
	}
}
