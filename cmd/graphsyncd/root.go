package main

import (
	"github.com/spf13/cobra"

	"graphsync/internal/config"
)

// version is overridden at link time.
var version = "dev"

type rootOptions struct {
	configPath string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "graphsyncd",
		Short:         "Object graph persistence service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.AddCommand(
		newServeCmd(opts),
		newGetCmd(opts),
		newPutCmd(opts),
		newPrototypesCmd(opts),
		newVersionCmd(),
	)
	return root
}
