package main

import (
	"github.com/spf13/cobra"

	"visualgen/internal/bootstrap"
	"visualgen/internal/providers/jimeng"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Follow an already submitted task until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := jimeng.ParseKind(kind)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg, opts)
			client, err := bootstrap.TaskClient(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			poller := bootstrap.Poller(client, cfg, logger, progressPrinter(cmd.ErrOrStderr()))
			out := poller.Await(cmd.Context(), args[0], k)
			return printOutcome(cmd.OutOrStdout(), out, opts.jsonOut)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(jimeng.KindTextToVideo), "generation kind of the task")
	return cmd
}
