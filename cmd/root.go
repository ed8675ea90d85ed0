// Package cmd はkagamiのコマンドラインインターフェース
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kagami/internal/config"
	"kagami/internal/logging"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "kagami",
	Short: "カメラミラー",
	Long:  `kagami - カメラ映像をブラウザに鏡のように表示するユーティリティ`,
	// 引数なしの場合はサーバーを起動する
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "設定ファイル (デフォルト: $XDG_CONFIG_HOME/kagami/kagami.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	addServeFlags(rootCmd)
}

// Execute はコマンドを実行する
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig は設定を読み込み、フラグで上書きして検証する
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFrom(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	applyServeFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

// setup は設定とロガーを用意する
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
