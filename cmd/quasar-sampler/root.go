package main

import (
	"github.com/fsnotify/fsnotify"
	"github.com/gravito-framework/quasar-sampler/internal/logging"
	"github.com/gravito-framework/quasar-sampler/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type cli struct {
	cfgFile string
	v       *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:          "quasar-sampler",
		Short:        "Memory, swap and GPU sampler for Zenith",
		Long:         `quasar-sampler reads memory, swap and GPU usage and publishes it to Zenith.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (YAML)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: console or json")
	flags.String("gpu-backend", "", "GPU backend: smi, nvml or none")
	flags.String("gpu-command", "", "nvidia-smi binary")
	flags.Int("gpu-index", -1, "GPU index (default: first reported)")

	c.bind(rootCmd, map[string]string{
		config.KeyLogLevel:   "log-level",
		config.KeyLogFormat:  "log-format",
		config.KeyGPUBackend: "gpu-backend",
		config.KeyGPUCommand: "gpu-command",
		config.KeyGPUIndex:   "gpu-index",
	})

	rootCmd.AddCommand(c.newRunCmd(), c.newSampleCmd(), newVersionCmd())
	return rootCmd
}

// bind attaches flags to config keys. A flag only wins when it was set.
func (c *cli) bind(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		cobra.CheckErr(c.v.BindPFlag(key, flag))
	}
}

// load reads the config file and environment on top of the bound flags
func (c *cli) load() (*config.Config, *zap.Logger, zap.AtomicLevel, error) {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return nil, nil, zap.AtomicLevel{}, err
	}
	logger, level, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, level, err
	}
	return cfg, logger, level, nil
}

// watchLogLevel applies log.level edits in the config file without a restart.
// Other keys are read once at startup.
func (c *cli) watchLogLevel(logger *zap.Logger, level zap.AtomicLevel) {
	if c.cfgFile == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if err := logging.SetLevel(level, c.v.GetString(config.KeyLogLevel)); err != nil {
			logger.Warn("Ignoring log level from edited config", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("Log level reloaded", zap.String("file", e.Name), zap.Stringer("level", level.Level()))
	})
	c.v.WatchConfig()
}
