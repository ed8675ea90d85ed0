package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kagami/internal/camera"
	"kagami/internal/config"
	"kagami/internal/permission"
	"kagami/internal/settings"
	"kagami/internal/state"
)

// Session は表示・非表示の要求を受け付ける
type Session interface {
	StartAsync() (<-chan struct{}, error)
	StopAsync() (<-chan struct{}, error)
}

// AccessRequester はカメラ利用許可を求める
type AccessRequester interface {
	RequestAccess(ctx context.Context) permission.State
}

// DeviceSelector はデバイス一覧と選択を扱う
type DeviceSelector interface {
	Devices() camera.DeviceList
	Select(id string) string
}

// Preferences は背景スタイルの設定
type Preferences interface {
	Background() settings.BackgroundStyle
	SetBackground(style settings.BackgroundStyle) error
}

// PrivacyOpener はプライバシー設定画面を開く
type PrivacyOpener interface {
	Open(ctx context.Context) error
}

// FrameSource はプレビュー用のフレームを配信する
type FrameSource interface {
	SubscribeFrames() (<-chan []byte, func())
}

// Deps はハンドラーが使う依存
type Deps struct {
	Store       *state.Store
	Session     Session
	Access      AccessRequester
	Devices     DeviceSelector
	Preferences Preferences
	Privacy     PrivacyOpener
	Frames      FrameSource
	Logger      *zap.Logger
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger

	// Start でリッスンしたアドレス
	addr chan net.Addr

	// 配信中のストリームはシャットダウン時にこれで終了させる
	stopStreams context.CancelFunc
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.App.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		engine: gin.New(),
		logger: logger.Named("server"),
		addr:   make(chan net.Addr, 1),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()

	base, cancel := context.WithCancel(context.Background())
	s.stopStreams = cancel
	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return base },
	}

	return s
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/session", s.handleGetSession)
		api.GET("/session/events", s.handleSessionEvents)
		api.POST("/session/show", s.handleShow)
		api.POST("/session/hide", s.handleHide)
		api.POST("/session/access", s.handleRequestAccess)

		api.GET("/devices", s.handleGetDevices)
		api.PUT("/devices/selected", s.handleSelectDevice)

		api.GET("/backgrounds", s.handleGetBackgrounds)
		api.GET("/background", s.handleGetBackground)
		api.PUT("/background", s.handleSetBackground)

		api.POST("/privacy/open", s.handleOpenPrivacy)

		api.GET("/preview/mjpeg", s.handlePreviewMJPEG)
		api.GET("/preview/ws", s.handlePreviewWebSocket)
	}

	// 操作パネル
	s.engine.GET("/", s.handleIndex)
	if sub, err := staticFS(); err == nil {
		s.engine.StaticFS("/static", http.FS(sub))
	} else {
		s.logger.Warn("静的ファイルを配信できません", zap.Error(err))
	}
}

// Start はサーバーを起動し、ctx が終了するとシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	s.addr <- ln.Addr()

	// シャットダウン用のチャンネル
	serveErr := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("停止要求を受け取りました")
	case err := <-serveErr:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Addr は Start でリッスンを開始したアドレスを待って返す
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case addr := <-s.addr:
		s.addr <- addr
		return addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています")
	s.stopStreams()

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger はリクエストをzapで記録するミドルウェア
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("リクエスト",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
