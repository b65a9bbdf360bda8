package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shmookey/coconut/internal/config"
	"github.com/shmookey/coconut/pkg/logger"
)

type rootOpts struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	cmd := &cobra.Command{
		Use:           "coconut",
		Short:         "Schema-directed document store with change history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "config", ".env", "path of a .env file to load")
	flags.String("schema", "", "YAML file declaring the document types")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("SCHEMA_FILE", flags.Lookup("schema"))
	_ = viper.BindPFlag("LOG_LEVEL", flags.Lookup("log-level"))

	cmd.AddCommand(
		newServeCmd(opts),
		newSchemaCmd(),
		newHistoryCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

// load reads configuration and applies the log settings.
func (o *rootOpts) load() (*config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}
