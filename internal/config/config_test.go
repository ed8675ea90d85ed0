package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate は作業ディレクトリと XDG_CONFIG_HOME を一時ディレクトリに向ける
func isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Expected read timeout 10s, got %v", cfg.Server.ReadTimeout)
	}
	// WriteTimeout は 0（無効）でも正常
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("Expected write timeout 0, got %v", cfg.Server.WriteTimeout)
	}

	// カメラ設定の検証
	if cfg.Camera.Authorizer != AuthorizerPortal {
		t.Errorf("Expected portal authorizer, got %q", cfg.Camera.Authorizer)
	}
	if cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 || cfg.Camera.FPS != 30 {
		t.Errorf("Unexpected camera defaults: %+v", cfg.Camera)
	}
	if cfg.Camera.UsageDescription == "" {
		t.Error("利用目的の説明が設定されていません")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected log level info, got %q", cfg.Log.Level)
	}
}

func TestConfigLoad_File(t *testing.T) {
	dir := isolate(t)

	content := `
server:
  port: 9000
  read_timeout: 5s
camera:
  authorizer: device
  fps: 15
privacy:
  commands:
    - "xdg-open settings://privacy"
log:
  level: debug
  development: true
`
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Server.Port != 9000 || cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.Camera.Authorizer != AuthorizerDevice || cfg.Camera.FPS != 15 {
		t.Errorf("Unexpected camera config: %+v", cfg.Camera)
	}
	// ファイルで指定していない値はデフォルトのまま
	if cfg.Camera.Width != 1280 {
		t.Errorf("Expected default width, got %d", cfg.Camera.Width)
	}
	if len(cfg.Privacy.Commands) != 1 {
		t.Errorf("Expected 1 privacy command, got %v", cfg.Privacy.Commands)
	}
	if !cfg.Log.Development || cfg.Log.Level != "debug" {
		t.Errorf("Unexpected log config: %+v", cfg.Log)
	}
}

func TestConfigLoad_SearchPath(t *testing.T) {
	dir := isolate(t)

	if err := os.MkdirAll(filepath.Join(dir, "kagami"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "kagami", "kagami.yaml"), []byte("server:\n  port: 7000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Expected port from $XDG_CONFIG_HOME/kagami/kagami.yaml, got %d", cfg.Server.Port)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("KAGAMI_SERVER_PORT", "9100")
	t.Setenv("KAGAMI_APP_PRODUCTION", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Expected port 9100 from env, got %d", cfg.Server.Port)
	}
	if !cfg.App.Production {
		t.Error("Expected production from env")
	}
}

func TestConfigLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	if _, err := LoadFrom(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Host: "127.0.0.1", Port: 8080},
			Camera:   CameraConfig{Authorizer: AuthorizerDevice, DevDir: "/dev", Width: 640, Height: 480, FPS: 30},
			Settings: SettingsConfig{Path: "/tmp/settings.yaml"},
		}
	}

	testCases := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"正常", func(*Config) {}, true},
		{"ポート0", func(c *Config) { c.Server.Port = 0 }, false},
		{"ポート範囲外", func(c *Config) { c.Server.Port = 70000 }, false},
		{"負のタイムアウト", func(c *Config) { c.Server.ReadTimeout = -time.Second }, false},
		{"未知の権限バックエンド", func(c *Config) { c.Camera.Authorizer = "macos" }, false},
		{"解像度0", func(c *Config) { c.Camera.Width = 0 }, false},
		{"FPS0", func(c *Config) { c.Camera.FPS = 0 }, false},
		{"保存先なし", func(c *Config) { c.Settings.Path = "" }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tc.valid && err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestServerAddress(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "0.0.0.0", Port: 8080}}
	if got := cfg.ServerAddress(); got != "0.0.0.0:8080" {
		t.Errorf("Expected 0.0.0.0:8080, got %s", got)
	}
}
