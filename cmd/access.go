package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"kagami/internal/app"
	"kagami/internal/permission"
)

var requestAccess bool

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "カメラの利用許可を表示する",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		authorizer, err := app.NewAuthorizer(cfg)
		if err != nil {
			return err
		}
		if c, ok := authorizer.(io.Closer); ok {
			defer func() { _ = c.Close() }()
		}

		gate := permission.NewGate(authorizer, permission.Options{
			UsageDescription: cfg.Camera.UsageDescription,
			Production:       cfg.App.Production,
			Alerter:          permission.NewTerminalAlerter(os.Stdin, cmd.OutOrStdout()),
			Logger:           logger,
		})

		state := gate.QueryStatus(cmd.Context())
		if requestAccess && state == permission.StateNotDetermined {
			state = gate.RequestAccess(cmd.Context())
		}
		fmt.Fprintln(cmd.OutOrStdout(), state)
		return nil
	},
}

func init() {
	accessCmd.Flags().BoolVar(&requestAccess, "request", false, "未確認の場合は許可ダイアログを表示する")
	rootCmd.AddCommand(accessCmd)
}
