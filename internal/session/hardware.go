package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"kagami/internal/camera"
)

// ErrNotConfiguring は構成ブラケットの外で入力を変更しようとした場合のエラー
var ErrNotConfiguring = errors.New("構成中ではありません")

// Hardware はキャプチャセッションの操作
// 呼び出しはコントローラーのキュー上でのみ行う
type Hardware interface {
	// BeginConfiguration と CommitConfiguration の間の入力変更はまとめて反映される
	BeginConfiguration()
	CommitConfiguration(ctx context.Context) error

	CanAddInput(input camera.Input) bool
	AddInput(input camera.Input) error
	RemoveInput(input camera.Input)
	Inputs() []camera.Input

	// StartRunning は入力のストリームが開始してから戻る
	StartRunning(ctx context.Context) error
	StopRunning() error
	IsRunning() bool
}

// CaptureSession は Hardware の実装
// 接続中の入力から受け取ったフレームをプレビューの購読者に配る
type CaptureSession struct {
	logger *zap.Logger

	mu          sync.Mutex
	committed   []camera.Input
	staged      []camera.Input
	configuring int
	running     bool
	commits     int

	frames chan []byte

	subsMu  sync.Mutex
	subs    map[int]chan []byte
	nextSub int

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewCaptureSession は新しい CaptureSession を作成する
func NewCaptureSession(logger *zap.Logger) *CaptureSession {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &CaptureSession{
		logger: logger.Named("capture"),
		frames: make(chan []byte, 8),
		subs:   make(map[int]chan []byte),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.fanOut()
	return s
}

// BeginConfiguration は構成ブラケットを開始する。入れ子にできる
func (s *CaptureSession) BeginConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configuring == 0 {
		s.staged = slices.Clone(s.committed)
	}
	s.configuring++
}

// CommitConfiguration は最も外側のブラケットで変更を反映する
// 動作中であれば外した入力を停止し、加えた入力を開始する
func (s *CaptureSession) CommitConfiguration(ctx context.Context) error {
	s.mu.Lock()
	if s.configuring == 0 {
		s.mu.Unlock()
		return nil
	}
	s.configuring--
	if s.configuring > 0 {
		s.mu.Unlock()
		return nil
	}

	removed := difference(s.committed, s.staged)
	added := difference(s.staged, s.committed)
	s.committed = s.staged
	s.staged = nil
	s.commits++
	running := s.running
	s.mu.Unlock()

	s.logger.Debug("構成を反映しました",
		zap.Int("added", len(added)),
		zap.Int("removed", len(removed)),
	)

	if !running {
		return nil
	}

	for _, in := range removed {
		if err := in.Stop(); err != nil {
			s.logger.Warn("入力の停止に失敗しました", zap.String("device_id", in.Device().ID), zap.Error(err))
		}
	}
	for _, in := range added {
		if err := in.Start(ctx, s.frames); err != nil {
			return fmt.Errorf("%s の開始に失敗: %w", in.Device().Name, err)
		}
	}
	return nil
}

// CanAddInput は入力を追加できるかを返す
// 同時に接続できる入力は1つだけ
func (s *CaptureSession) CanAddInput(input camera.Input) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return input != nil && s.configuring > 0 && len(s.staged) == 0
}

// AddInput は構成中の入力に追加する
func (s *CaptureSession) AddInput(input camera.Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configuring == 0 {
		return ErrNotConfiguring
	}
	if len(s.staged) > 0 {
		return fmt.Errorf("%s を追加できません: 入力は既に接続されています", input.Device().Name)
	}
	s.staged = append(s.staged, input)
	return nil
}

// RemoveInput は構成中の入力から外す
func (s *CaptureSession) RemoveInput(input camera.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configuring == 0 {
		s.logger.Warn("構成ブラケットの外で入力を外そうとしました", zap.String("device_id", input.Device().ID))
		return
	}
	s.staged = slices.DeleteFunc(s.staged, func(in camera.Input) bool { return in == input })
}

// Inputs は反映済みの入力を返す
func (s *CaptureSession) Inputs() []camera.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.committed)
}

// Commits は反映された構成の数を返す
func (s *CaptureSession) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// StartRunning は全ての入力のストリームを開始する
// いずれかが失敗した場合は開始済みの入力を止めてエラーを返す
func (s *CaptureSession) StartRunning(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	inputs := slices.Clone(s.committed)
	s.mu.Unlock()

	for i, in := range inputs {
		if err := in.Start(ctx, s.frames); err != nil {
			for _, started := range inputs[:i] {
				_ = started.Stop()
			}
			return fmt.Errorf("%s の開始に失敗: %w", in.Device().Name, err)
		}
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.logger.Info("キャプチャを開始しました", zap.Int("inputs", len(inputs)))
	return nil
}

// StopRunning は全ての入力のストリームを停止する
func (s *CaptureSession) StopRunning() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	inputs := slices.Clone(s.committed)
	s.mu.Unlock()

	var errs []error
	for _, in := range inputs {
		if err := in.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s の停止に失敗: %w", in.Device().Name, err))
		}
	}

	s.logger.Info("キャプチャを停止しました")
	return errors.Join(errs...)
}

// IsRunning は動作中かを返す
func (s *CaptureSession) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SubscribeFrames はプレビュー用のフレームを購読する
// 読み手が遅れた場合は古いフレームを捨てて最新のものを残す
func (s *CaptureSession) SubscribeFrames() (<-chan []byte, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan []byte, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// Close はキャプチャを停止し、フレームの配信を終了する
// 入力を閉じるのは入力を開いた側の責任
func (s *CaptureSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.StopRunning()
		close(s.stop)
		<-s.done
	})
	return err
}

func (s *CaptureSession) fanOut() {
	defer close(s.done)
	defer s.closeSubscribers()

	for {
		select {
		case <-s.stop:
			return
		case frame := <-s.frames:
			s.broadcast(frame)
		}
	}
}

func (s *CaptureSession) broadcast(frame []byte) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- frame:
		default:
			// 古いフレームを捨てて入れ替える
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
}

func (s *CaptureSession) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// difference は a にあって b にない入力を返す
func difference(a, b []camera.Input) []camera.Input {
	var out []camera.Input
	for _, in := range a {
		if !slices.Contains(b, in) {
			out = append(out, in)
		}
	}
	return out
}
