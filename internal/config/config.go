package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Settings SettingsConfig `mapstructure:"settings"`
	Privacy  PrivacyConfig  `mapstructure:"privacy"`
	Log      LogConfig      `mapstructure:"log"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `mapstructure:"host"` // リッスンするホスト
	Port int    `mapstructure:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Authorizer       string `mapstructure:"authorizer"`        // portal または device
	AppID            string `mapstructure:"app_id"`            // ポータルの権限ストアで使うアプリID
	UsageDescription string `mapstructure:"usage_description"` // 許可ダイアログに表示する利用目的

	DevDir   string `mapstructure:"dev_dir"`   // デバイスノードのディレクトリ
	SysfsDir string `mapstructure:"sysfs_dir"` // video4linux の sysfs ディレクトリ
	ByIDDir  string `mapstructure:"by_id_dir"` // by-id シンボリックリンクのディレクトリ

	Width  int `mapstructure:"width"`  // 画像幅
	Height int `mapstructure:"height"` // 画像高さ
	FPS    int `mapstructure:"fps"`    // フレームレート (fps)
}

// SettingsConfig はユーザー設定の保存先
type SettingsConfig struct {
	Path string `mapstructure:"path"`
}

// PrivacyConfig はプライバシー設定画面を開くコマンド
type PrivacyConfig struct {
	Commands []string `mapstructure:"commands"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AppConfig はビルド種別の設定
type AppConfig struct {
	Production bool `mapstructure:"production"`
}

const (
	AuthorizerPortal = "portal"
	AuthorizerDevice = "device"
)

// Load は設定ファイル、環境変数、デフォルト値の順に優先して設定を読み込む
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom は path の設定ファイルを読み込む。空の場合は標準の場所を探す
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("kagami")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	// 環境変数 (例: KAGAMI_SERVER_PORT)
	v.SetEnvPrefix("KAGAMI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 設定ファイルがなければデフォルト値を使う
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗: %w", err)
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 0) // ストリーミング用にタイムアウト無効化

	v.SetDefault("camera.authorizer", AuthorizerPortal)
	v.SetDefault("camera.app_id", "")
	v.SetDefault("camera.usage_description", "鏡としてカメラの映像を表示するために使用します")
	v.SetDefault("camera.dev_dir", "/dev")
	v.SetDefault("camera.sysfs_dir", "/sys/class/video4linux")
	v.SetDefault("camera.by_id_dir", "/dev/v4l/by-id")
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.fps", 30)

	v.SetDefault("settings.path", filepath.Join(configDir(), "settings.yaml"))
	v.SetDefault("privacy.commands", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("app.production", false)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.New("タイムアウトに負の値は指定できません")
	}

	switch c.Camera.Authorizer {
	case AuthorizerPortal, AuthorizerDevice:
	default:
		return fmt.Errorf("無効な権限バックエンド: %q", c.Camera.Authorizer)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("無効な解像度: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("無効なフレームレート: %d", c.Camera.FPS)
	}
	if c.Camera.DevDir == "" {
		return errors.New("デバイスディレクトリが設定されていません")
	}

	if c.Settings.Path == "" {
		return errors.New("設定ファイルの保存先が設定されていません")
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// configDir は $XDG_CONFIG_HOME/kagami を返す
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "kagami")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "kagami")
	}
	return "."
}
