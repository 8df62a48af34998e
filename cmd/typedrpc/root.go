package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mnehpets/typedrpc/config"
	"github.com/mnehpets/typedrpc/rpc"
)

// app is the state shared by subcommands once flags are parsed.
type app struct {
	factories []rpc.Factory
	envFiles  []string
	cfg       *config.Config
	logger    *slog.Logger
}

func newRootCmd(factories []rpc.Factory) *cobra.Command {
	a := &app{factories: factories}
	root := &cobra.Command{
		Use:           "typedrpc",
		Short:         "Typed RPC dispatch server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.envFiles...)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.Logger(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "env files to load, lowest precedence first (default .env, .env.$TYPEDRPC_ENV, .env.local)")

	root.AddCommand(newServeCmd(a), newSchemaCmd(a))
	return root
}

func (a *app) registry() (*rpc.Registry, error) {
	return rpc.NewRegistry(a.factories...)
}
