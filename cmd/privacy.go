package cmd

import (
	"github.com/spf13/cobra"

	"kagami/internal/privacy"
)

var privacyCmd = &cobra.Command{
	Use:   "privacy",
	Short: "OSのプライバシー設定画面を開く",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		return privacy.NewOpener(cfg.Privacy.Commands, logger).Open(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(privacyCmd)
}
