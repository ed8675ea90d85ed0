package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"kagami/internal/config"
)

func TestApplyServeFlags(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}}

	cmd := &cobra.Command{}
	addServeFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--port", "9090"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	applyServeFlags(cmd, cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	// 指定していないフラグは設定を上書きしない
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host to stay 127.0.0.1, got %q", cfg.Server.Host)
	}
}

func TestDevicesCommand_NoCameras(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("KAGAMI_CAMERA_DEV_DIR", t.TempDir())
	t.Setenv("KAGAMI_CAMERA_SYSFS_DIR", t.TempDir())
	t.Setenv("KAGAMI_CAMERA_BY_ID_DIR", t.TempDir())
	t.Setenv("KAGAMI_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"devices"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("devices failed: %v", err)
	}
	if !strings.Contains(out.String(), "カメラが見つかりません") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}
