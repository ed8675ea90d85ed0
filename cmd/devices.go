package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kagami/internal/camera"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "接続されているカメラを一覧表示する",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		discovery := camera.NewLinuxDiscovery(cfg.Camera.DevDir, cfg.Camera.SysfsDir, cfg.Camera.ByIDDir)
		registry := camera.NewRegistry(discovery, nil, nil, logger)

		devices, err := registry.Enumerate(cmd.Context())
		if err != nil {
			return fmt.Errorf("デバイスの列挙に失敗しました: %w", err)
		}
		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "カメラが見つかりません")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPATH")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Name, d.Path)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
