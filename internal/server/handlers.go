package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kagami/internal/camera"
	"kagami/internal/permission"
	"kagami/internal/session"
	"kagami/internal/settings"
	"kagami/internal/state"
)

// errorResponse はエラー時のレスポンス
type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// sessionResponse はセッション状態のレスポンス
type sessionResponse struct {
	state.Snapshot
	View       state.View               `json:"view"`
	Background settings.BackgroundStyle `json:"background"`
}

type devicesResponse struct {
	Devices    camera.DeviceList `json:"devices"`
	SelectedID string            `json:"selected_id"`
}

type selectDeviceRequest struct {
	ID string `json:"id" binding:"required"`
}

type backgroundInfo struct {
	Style settings.BackgroundStyle `json:"style"`
	Color string                   `json:"color,omitempty"`
}

type setBackgroundRequest struct {
	Style string `json:"style" binding:"required"`
}

type accessResponse struct {
	Authorization permission.State `json:"authorization"`
	View          state.View       `json:"view"`
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleIndex は操作パネルを返す
func (s *Server) handleIndex(c *gin.Context) {
	data, err := indexHTML()
	if err != nil {
		s.logger.Error("操作パネルを読み込めません", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "internal_error", "操作パネルを表示できません")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

// handleGetSession は最新のセッション状態を返す
func (s *Server) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessionResponse(s.deps.Store.Current()))
}

func (s *Server) sessionResponse(snap state.Snapshot) sessionResponse {
	resp := sessionResponse{
		Snapshot:   snap,
		View:       snap.View(),
		Background: settings.BackgroundNone,
	}
	if s.deps.Preferences != nil {
		resp.Background = s.deps.Preferences.Background()
	}
	return resp
}

// handleShow は表示要求を受け付ける。開始の完了は待たない
func (s *Server) handleShow(c *gin.Context) {
	s.enqueue(c, s.deps.Session.StartAsync)
}

// handleHide は非表示要求を受け付ける。停止の完了は待たない
func (s *Server) handleHide(c *gin.Context) {
	s.enqueue(c, s.deps.Session.StopAsync)
}

func (s *Server) enqueue(c *gin.Context, submit func() (<-chan struct{}, error)) {
	if _, err := submit(); err != nil {
		if errors.Is(err, session.ErrQueueClosed) {
			abortWithError(c, http.StatusServiceUnavailable, "shutting_down", "終了処理中のため受け付けられません")
			return
		}
		s.logger.Error("要求を受け付けられません", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// handleRequestAccess は許可ダイアログを表示し、応答を返す
func (s *Server) handleRequestAccess(c *gin.Context) {
	auth := s.deps.Access.RequestAccess(c.Request.Context())
	c.JSON(http.StatusOK, accessResponse{
		Authorization: auth,
		View:          state.Snapshot{Authorization: auth}.View(),
	})
}

// handleGetDevices はデバイス一覧を返す
func (s *Server) handleGetDevices(c *gin.Context) {
	snap := s.deps.Store.Current()
	c.JSON(http.StatusOK, devicesResponse{
		Devices:    snap.Devices,
		SelectedID: snap.SelectedID,
	})
}

// handleSelectDevice は使用するデバイスを選択する
func (s *Server) handleSelectDevice(c *gin.Context) {
	var req selectDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if !s.deps.Devices.Devices().Contains(req.ID) {
		abortWithError(c, http.StatusNotFound, "camera_not_found", "指定されたカメラが見つかりません")
		return
	}

	selected := s.deps.Devices.Select(req.ID)
	c.JSON(http.StatusOK, gin.H{"selected_id": selected})
}

// handleGetBackgrounds は選択できる背景スタイルを返す
func (s *Server) handleGetBackgrounds(c *gin.Context) {
	styles := settings.Backgrounds()
	out := make([]backgroundInfo, 0, len(styles))
	for _, style := range styles {
		out = append(out, backgroundInfo{Style: style, Color: style.Hex()})
	}
	c.JSON(http.StatusOK, gin.H{"backgrounds": out})
}

// handleGetBackground は保存されている背景スタイルを返す
func (s *Server) handleGetBackground(c *gin.Context) {
	style := s.deps.Preferences.Background()
	c.JSON(http.StatusOK, backgroundInfo{Style: style, Color: style.Hex()})
}

// handleSetBackground は背景スタイルを保存する
func (s *Server) handleSetBackground(c *gin.Context) {
	var req setBackgroundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	style := settings.BackgroundStyle(req.Style)
	if !style.Valid() {
		abortWithError(c, http.StatusBadRequest, "unknown_background", "未知の背景スタイルです")
		return
	}

	if err := s.deps.Preferences.SetBackground(style); err != nil {
		s.logger.Error("背景スタイルを保存できません", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "internal_error", "背景スタイルを保存できません")
		return
	}
	c.JSON(http.StatusOK, backgroundInfo{Style: style, Color: style.Hex()})
}

// handleOpenPrivacy はプライバシー設定画面を開く
func (s *Server) handleOpenPrivacy(c *gin.Context) {
	if err := s.deps.Privacy.Open(c.Request.Context()); err != nil {
		s.logger.Warn("プライバシー設定を開けません", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "privacy_unavailable", "プライバシー設定を開けません")
		return
	}
	c.Status(http.StatusNoContent)
}
