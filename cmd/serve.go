package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kagami/internal/app"
	"kagami/internal/config"
)

var (
	host string
	port int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTPサーバーを起動する",
	RunE:  runServe,
}

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&host, "host", "", "サーバーのホスト (デフォルト: 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "サーバーのポート (デフォルト: 8080)")
}

// applyServeFlags はコマンドラインオプションで設定を上書きする
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
		cfg.Server.Host = host
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		cfg.Server.Port = port
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("kagamiを起動します",
		zap.String("addr", cfg.ServerAddress()),
		zap.String("authorizer", cfg.Camera.Authorizer),
	)
	return a.Run(ctx)
}
