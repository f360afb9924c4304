package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	prodfc "github.com/aditya-dange-m0/prod-fc"
	"github.com/aditya-dange-m0/prod-fc/backend"
	"github.com/aditya-dange-m0/prod-fc/backend/anthropic"
	"github.com/aditya-dange-m0/prod-fc/backend/openai"
	"github.com/aditya-dange-m0/prod-fc/config"
	"github.com/aditya-dange-m0/prod-fc/logging"
	"github.com/aditya-dange-m0/prod-fc/server"
	"github.com/aditya-dange-m0/prod-fc/team"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the streaming agent API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(&logging.Config{
		Level:  logLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})

	factory, err := newFactory(cfg.Backend)
	if err != nil {
		return err
	}

	members, err := newMembers(cfg)
	if err != nil {
		return err
	}

	svc := prodfc.New(func(o *prodfc.Options) {
		o.Factory = factory
		o.TeamMembers = members
		o.FailFast = cfg.Team.FailFast
		o.EventBufferSize = cfg.Stream.EventBufferSize
		o.OutcomeHistory = cfg.Registry.OutcomeHistory
		o.Logger = logger
	})

	svc.Registry().StartReaper(ctx, cfg.Registry.SweepInterval, cfg.Registry.IdleTTL)

	srv := server.New(svc, func(o *server.Options) {
		o.CORSOrigins = cfg.Server.CORSOrigins
		o.Logger = logger
	})

	return srv.Run(cfg.Server.Addr())
}

// newFactory builds per-session backend agents for the configured provider.
func newFactory(cfg config.BackendConfig) (backend.Factory, error) {
	switch cfg.Provider {
	case "openai":
		return func(_ context.Context, userID, projectID string) (backend.Agent, error) {
			return openai.New(func(o *openai.Options) {
				o.AgentName = userID + ":" + projectID
				if cfg.Model != "" {
					o.Model = cfg.Model
				}
				o.Instructions = cfg.Instructions
				o.APIKey = cfg.APIKey
				o.BaseURL = cfg.BaseURL
			}), nil
		}, nil
	case "anthropic":
		return func(_ context.Context, userID, projectID string) (backend.Agent, error) {
			return anthropic.New(func(o *anthropic.Options) {
				o.AgentName = userID + ":" + projectID
				if cfg.Model != "" {
					o.Model = cfg.Model
				}
				o.Instructions = cfg.Instructions
				o.APIKey = cfg.APIKey
			}), nil
		}, nil
	case "mock", "":
		return func(_ context.Context, userID, _ string) (backend.Agent, error) {
			return backend.NewMockAgent(userID,
				backend.Step{Kind: backend.StepThinking, Content: "Processing your request..."},
				backend.Step{Kind: backend.StepContent, Content: "Mock response for development"},
			), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}
}

// newMembers builds the team roster from configuration. Each member gets a
// dedicated backend instance with its own instructions.
func newMembers(cfg *config.Config) ([]team.Member, error) {
	memberCfgs := cfg.Team.Members
	if len(memberCfgs) == 0 {
		memberCfgs = []config.MemberConfig{{Name: "specialist"}}
	}

	members := make([]team.Member, 0, len(memberCfgs))
	for _, mc := range memberCfgs {
		memberBackend := cfg.Backend
		if mc.Instructions != "" {
			memberBackend.Instructions = mc.Instructions
		}
		factory, err := newFactory(memberBackend)
		if err != nil {
			return nil, err
		}
		agent, err := factory(context.Background(), mc.Name, "team")
		if err != nil {
			return nil, fmt.Errorf("create team member %s: %w", mc.Name, err)
		}
		members = append(members, team.Member{Name: mc.Name, Agent: agent})
	}

	return members, nil
}

func logLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
