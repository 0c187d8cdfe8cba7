package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"visualgen/internal/bootstrap"
	"visualgen/internal/infra/credentials"
)

func newCredentialsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage Volcengine keys stored in DATABASE_URL",
	}

	var keys credentials.VolcengineKeys
	set := &cobra.Command{
		Use:   "set",
		Short: "Store an access key and secret key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			store, release, err := bootstrap.OpenStore(cmd.Context(), cfg, newLogger(cmd, cfg, opts))
			if err != nil {
				return err
			}
			defer release()
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("prepare schema: %w", err)
			}
			if err := store.SetVolcengineKeys(cmd.Context(), keys); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "credentials stored")
			return nil
		},
	}
	set.Flags().StringVar(&keys.AccessKey, "access-key", "", "Volcengine access key id")
	set.Flags().StringVar(&keys.SecretKey, "secret-key", "", "Volcengine secret access key as issued")
	set.Flags().StringVar(&keys.Region, "region", "", "region override")
	set.Flags().StringVar(&keys.Service, "service", "", "service override")
	_ = set.MarkFlagRequired("access-key")
	_ = set.MarkFlagRequired("secret-key")

	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			store, release, err := bootstrap.OpenStore(cmd.Context(), cfg, newLogger(cmd, cfg, opts))
			if err != nil {
				return err
			}
			defer release()
			if err := store.DeleteVolcengineKeys(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "credentials removed")
			return nil
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}
