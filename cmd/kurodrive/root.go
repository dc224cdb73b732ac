package main

import (
	"os"

	"github.com/spf13/cobra"

	"kurodrive/internal/config"
	"kurodrive/internal/logging"
)

type rootOptions struct {
	configPath string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cobra.EnableCommandSorting = false

	root := &cobra.Command{
		Use:           "kurodrive",
		Short:         "Multi-tenant file storage service.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to a YAML config file; KURODRIVE_* environment variables override it")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newTokenCommand(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
