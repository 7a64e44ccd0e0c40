package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-doly/internal/config"
)

// options are the flags shared by every subcommand.
type options struct {
	configFile string
	logLevel   string
}

func newRootCmd(version string) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "dolyd",
		Short:         "Doly robot daemon",
		Long:          `dolyd drives the Doly actuators, samples its sensors and serves a dashboard of every event.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"config file (default: ./doly.yaml or ~/.config/doly/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"override log.level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(opts), newConfigCmd(opts))
	return root
}

// load reads the configuration named by the flags.
func (o *options) load() (*config.Loader, config.Config, error) {
	loader, err := config.NewLoader(config.Find(o.configFile))
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return loader, cfg, nil
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, cfg, err := opts.load()
			if err != nil {
				return err
			}
			data, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			if file := loader.File(); file != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", file)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
