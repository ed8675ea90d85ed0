package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// V4L2Capturer はffmpeg経由でV4L2デバイスからMJPEGフレームを取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
	}
}

// StartStream は連続キャプチャを開始する
//
// ffmpegの起動後すぐに戻り、フレームは frameChan に送られる。
// ctx がキャンセルされるとffmpegは終了し、done が閉じられる
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) (done <-chan struct{}) {
	finished := make(chan struct{})

	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sendError(ctx, errorChan, fmt.Errorf("stdoutパイプの作成に失敗: %w", err))
		close(finished)
		return finished
	}

	if err := cmd.Start(); err != nil {
		sendError(ctx, errorChan, fmt.Errorf("ffmpegの起動に失敗: %w", err))
		close(finished)
		return finished
	}

	go func() {
		defer close(finished)

		readErr := readFrames(ctx, stdout, frameChan)
		waitErr := cmd.Wait()

		// キャンセルによる終了はエラーとしない
		if ctx.Err() != nil {
			return
		}
		if readErr != nil {
			sendError(ctx, errorChan, fmt.Errorf("フレーム読み取りエラー: %w", readErr))
			return
		}
		if waitErr != nil {
			sendError(ctx, errorChan, fmt.Errorf("ffmpegが異常終了しました: %w (stderr: %s)", waitErr, stderr.String()))
			return
		}
		sendError(ctx, errorChan, errors.New("ffmpegのストリームが終了しました"))
	}()

	return finished
}

// readFrames はストリームからJPEGフレームを切り出して送る
func readFrames(ctx context.Context, r io.Reader, frameChan chan<- []byte) error {
	buffer := make([]byte, 256*1024)
	var pending []byte

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			var frames [][]byte
			frames, pending = splitJPEGFrames(append(pending, buffer[:n]...))
			for _, frame := range frames {
				select {
				case frameChan <- frame:
				case <-ctx.Done():
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// splitJPEGFrames は SOI (FF D8) から EOI (FF D9) までを1フレームとして切り出す
// 残りのデータ（未完成のフレーム）は rest として返す
func splitJPEGFrames(data []byte) (frames [][]byte, rest []byte) {
	for {
		start := bytes.Index(data, jpegStart)
		if start == -1 {
			// 開始マーカーがなければ不要なデータ
			return frames, nil
		}

		end := bytes.Index(data[start+2:], jpegEnd)
		if end == -1 {
			// 完全なフレームがまだない
			rest := make([]byte, len(data)-start)
			copy(rest, data[start:])
			return frames, rest
		}

		end += start + 2 + len(jpegEnd)
		frame := make([]byte, end-start)
		copy(frame, data[start:end])
		frames = append(frames, frame)

		data = data[end:]
	}
}

func sendError(ctx context.Context, errorChan chan<- error, err error) {
	select {
	case errorChan <- err:
	case <-ctx.Done():
	default:
		// エラーチャンネルがフルの場合は破棄
	}
}
