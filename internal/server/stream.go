package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// パネルは同じオリジンから配信する
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host
	},
}

// handleSessionEvents はセッション状態をServer-Sent Eventsで配信する
// 接続直後に現在の状態を送り、以降は全ての更新を順に送る
func (s *Server) handleSessionEvents(c *gin.Context) {
	sub := s.deps.Store.Subscribe()
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-sub.C:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{
				Event: "session",
				Id:    strconv.FormatUint(snap.Version, 10),
				Data:  s.sessionResponse(snap),
			})
			return true
		}
	})
}

// handlePreviewMJPEG はプレビュー映像をMJPEGで配信する
func (s *Server) handlePreviewMJPEG(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
	flusher.Flush()

	frames, cancel := s.deps.Frames.SubscribeFrames()
	defer cancel()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := writeMJPEGPart(writer, frame); err != nil {
				return
			}
			// バッファをフラッシュ
			flusher.Flush()
		}
	}
}

func writeMJPEGPart(w io.Writer, frame []byte) error {
	header := "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: " + strconv.Itoa(len(frame)) + "\r\n\r\n"
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// handlePreviewWebSocket はプレビュー映像をWebSocketで配信する
// 1フレームを1つのバイナリメッセージとして送る
func (s *Server) handlePreviewWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("WebSocketへのアップグレードに失敗しました", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// クライアントからの切断を検知する
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	frames, unsubscribe := s.deps.Frames.SubscribeFrames()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return

		case frame, ok := <-frames:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}
