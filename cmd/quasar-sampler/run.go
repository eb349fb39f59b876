package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravito-framework/quasar-sampler/pkg/agent"
	"github.com/gravito-framework/quasar-sampler/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func (c *cli) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sample continuously and publish heartbeats",
		Long: `Run the sampler daemon.

Environment Variables:
  QUASAR_SERVICE              (Required when publishing) Service name identifier
  QUASAR_NAME                 Custom node name (default: hostname)
  QUASAR_REDIS_URL            Redis URL for Zenith transport (default: redis://localhost:6379)
  QUASAR_TRANSPORT_REDIS_URL  Same as QUASAR_REDIS_URL
  QUASAR_INTERVAL             Memory/swap interval, seconds or duration (default: 2s)
  QUASAR_GPU_INTERVAL         GPU interval, seconds or duration (default: 5s)
  QUASAR_GPU_BACKEND          smi, nvml or none (default: smi)
  QUASAR_PUBLISH              false to only log samples`,
		Example: `  QUASAR_SERVICE=render-farm quasar-sampler run
  quasar-sampler run --no-publish --interval 1s --log-level debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			noPublish, _ := cmd.Flags().GetBool("no-publish")
			return c.run(cmd.Context(), noPublish)
		},
	}

	flags := cmd.Flags()
	flags.String("service", "", "service name")
	flags.String("name", "", "node name (default: hostname)")
	flags.String("redis-url", "", "transport Redis URL")
	flags.String("interval", "", "memory/swap sampling interval")
	flags.String("gpu-interval", "", "GPU sampling interval")
	flags.Bool("publish", true, "publish heartbeats to Redis")
	flags.Bool("no-publish", false, "only log samples")

	c.bind(cmd, map[string]string{
		config.KeyService:     "service",
		config.KeyName:        "name",
		config.KeyRedisURL:    "redis-url",
		config.KeyInterval:    "interval",
		config.KeyGPUInterval: "gpu-interval",
		config.KeyPublish:     "publish",
	})

	return cmd
}

func (c *cli) run(ctx context.Context, noPublish bool) error {
	cfg, logger, level, err := c.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	c.watchLogLevel(logger, level)

	if noPublish {
		cfg.Publish = false
	}

	printBanner()

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration error", zap.Error(err))
		return fmt.Errorf("%w (run 'quasar-sampler run --help' for usage)", err)
	}

	a, err := agent.New(cfg, agent.WithLogger(logger), agent.WithVersion(version))
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	if cfg.Publish {
		if err := a.EnableRemoteControl(ctx); err != nil {
			logger.Warn("Failed to enable remote control", zap.Error(err))
		}
	}

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	return a.Stop(context.Background())
}

func printBanner() {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return
	}
	fmt.Fprintf(os.Stderr, `
   ██████  ██    ██  █████  ███████  █████  ██████
  ██    ██ ██    ██ ██   ██ ██      ██   ██ ██   ██
  ██    ██ ██    ██ ███████ ███████ ███████ ██████
  ██ ▄▄ ██ ██    ██ ██   ██      ██ ██   ██ ██   ██
   ██████   ██████  ██   ██ ███████ ██   ██ ██   ██
      ▀▀
  🌌 Quasar Sampler %s (%s)
  Memory, swap and GPU, one tick at a time.

`, version, commit[:min(7, len(commit))])
}
