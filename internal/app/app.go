// Package app は各コンポーネントを組み立ててアプリケーションを起動する
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"kagami/internal/camera"
	"kagami/internal/config"
	"kagami/internal/permission"
	"kagami/internal/privacy"
	"kagami/internal/server"
	"kagami/internal/session"
	"kagami/internal/settings"
	"kagami/internal/state"
)

// closeTimeout は終了処理でセッションの解放を待つ時間
const closeTimeout = 10 * time.Second

// Components は差し替え可能なOS依存のコンポーネント
// nil のフィールドは設定に従って実装が作られる
type Components struct {
	Authorizer permission.Authorizer
	Alerter    permission.Alerter
	Discovery  camera.Discovery
	Watcher    camera.Watcher
	Opener     camera.Opener
	Settings   settings.Store
}

// App はアプリケーション全体
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store      *state.Store
	gate       *permission.Gate
	registry   *camera.Registry
	hardware   *session.CaptureSession
	controller *session.Controller
	prefs      *settings.Preferences
	server     *server.Server

	// 終了時に閉じるOSリソース
	closers []io.Closer

	watchCancel context.CancelFunc
	watchDone   chan struct{}
	closeOnce   sync.Once
}

// New は設定に従って実装を選び、App を組み立てる
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	return NewWithComponents(cfg, logger, Components{})
}

// NewWithComponents は指定されたコンポーネントを使って App を組み立てる
func NewWithComponents(cfg *config.Config, logger *zap.Logger, comps Components) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{cfg: cfg, logger: logger}
	if err := a.fillDefaults(&comps); err != nil {
		a.closeResources()
		return nil, err
	}

	a.store = state.NewStore(logger)
	a.gate = permission.NewGate(comps.Authorizer, permission.Options{
		UsageDescription: cfg.Camera.UsageDescription,
		Production:       cfg.App.Production,
		Alerter:          comps.Alerter,
		Publisher:        a.store,
		Logger:           logger,
	})
	a.registry = camera.NewRegistry(comps.Discovery, comps.Watcher, a.store, logger)
	a.hardware = session.NewCaptureSession(logger)
	a.controller = session.NewController(a.gate, a.registry, comps.Opener, a.hardware, a.store, logger)
	a.prefs = settings.NewPreferences(comps.Settings, logger)

	a.server = server.New(cfg, server.Deps{
		Store:       a.store,
		Session:     a.controller,
		Access:      a.gate,
		Devices:     a.registry,
		Preferences: a.prefs,
		Privacy:     privacy.NewOpener(cfg.Privacy.Commands, logger),
		Frames:      a.hardware,
		Logger:      logger,
	})

	return a, nil
}

// fillDefaults は未指定のコンポーネントを設定から作る
func (a *App) fillDefaults(comps *Components) error {
	cam := a.cfg.Camera

	if comps.Authorizer == nil {
		authorizer, err := NewAuthorizer(a.cfg)
		if err != nil {
			return err
		}
		if c, ok := authorizer.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
		comps.Authorizer = authorizer
	}
	if comps.Alerter == nil {
		comps.Alerter = permission.NewTerminalAlerter(os.Stdin, os.Stdout)
	}
	if comps.Discovery == nil {
		comps.Discovery = camera.NewLinuxDiscovery(cam.DevDir, cam.SysfsDir, cam.ByIDDir)
	}
	if comps.Opener == nil {
		comps.Opener = camera.NewV4L2Opener(camera.StreamSettings{
			Width:  cam.Width,
			Height: cam.Height,
			FPS:    cam.FPS,
		}, a.logger)
	}
	if comps.Settings == nil {
		store, err := settings.OpenYAMLStore(a.cfg.Settings.Path)
		if err != nil {
			return fmt.Errorf("設定ファイルを開けません: %w", err)
		}
		comps.Settings = store
	}
	// Registry.Stop が閉じるため最後に作る
	if comps.Watcher == nil {
		watcher, err := camera.NewFSNotifyWatcher(cam.DevDir, a.logger)
		if err != nil {
			// ホットプラグ通知なしでも起動時の一覧は使える
			a.logger.Warn("デバイスの監視を開始できません", zap.Error(err))
		} else {
			comps.Watcher = watcher
		}
	}
	return nil
}

// NewAuthorizer は設定された許可バックエンドを作る
func NewAuthorizer(cfg *config.Config) (permission.Authorizer, error) {
	switch cfg.Camera.Authorizer {
	case config.AuthorizerPortal:
		authorizer, err := permission.NewPortalAuthorizer(cfg.Camera.AppID)
		if err != nil {
			return nil, fmt.Errorf("xdg-desktop-portal に接続できません: %w", err)
		}
		return authorizer, nil
	case config.AuthorizerDevice:
		return permission.NewDeviceAccessAuthorizer(cfg.Camera.DevDir), nil
	default:
		return nil, fmt.Errorf("未知の許可バックエンド: %q", cfg.Camera.Authorizer)
	}
}

// Store はセッション状態のストアを返す
func (a *App) Store() *state.Store {
	return a.store
}

// Controller はセッションコントローラーを返す
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Server はHTTPサーバーを返す
func (a *App) Server() *server.Server {
	return a.server
}

// Start はデバイスの列挙と状態の追従を開始する
func (a *App) Start(ctx context.Context) error {
	if err := a.registry.Start(ctx); err != nil {
		return err
	}

	// 起動時の許可状態を反映する。プロンプトは表示しない
	auth := a.gate.QueryStatus(ctx)
	a.logger.Info("カメラの利用許可",
		zap.String("authorization", string(auth)),
		zap.Int("devices", len(a.registry.Devices())),
	)

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	go func() {
		defer close(a.watchDone)
		if err := a.controller.Watch(watchCtx, a.store); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("状態の追従が終了しました", zap.Error(err))
		}
	}()

	return nil
}

// Run は App を開始してHTTPサーバーを起動し、ctx が終了するまで待つ
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	serveErr := a.server.Start(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		a.logger.Error("終了処理に失敗しました", zap.Error(err))
	}
	return serveErr
}

// Close はセッションを解放し、全てのコンポーネントを停止する
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.watchCancel != nil {
			a.watchCancel()
			<-a.watchDone
		}
		if err := a.controller.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("セッションの終了: %w", err))
		}
		if err := a.hardware.Close(); err != nil {
			errs = append(errs, fmt.Errorf("キャプチャセッションの終了: %w", err))
		}
		if err := a.registry.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("デバイス監視の終了: %w", err))
		}
		a.store.Close()
		errs = append(errs, a.closeResources()...)
	})
	return errors.Join(errs...)
}

func (a *App) closeResources() []error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errs
}
