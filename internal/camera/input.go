package camera

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// VIDIOC_QUERYCAP = _IOR('V', 0, struct v4l2_capability)
const (
	vidiocQueryCap  = 0x80685600
	capVideoCapture = 0x00000001
	capDeviceCaps   = 0x80000000
)

// v4l2Capability は struct v4l2_capability と同じレイアウト
type v4l2Capability struct {
	Driver       [16]uint8
	Card         [32]uint8
	BusInfo      [32]uint8
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

// canCapture は映像キャプチャに対応しているかを返す
func (c v4l2Capability) canCapture() bool {
	caps := c.Capabilities
	if caps&capDeviceCaps != 0 {
		caps = c.DeviceCaps
	}
	return caps&capVideoCapture != 0
}

// StreamSettings はキャプチャの解像度とフレームレート
type StreamSettings struct {
	Width  int
	Height int
	FPS    int
}

// V4L2Opener はV4L2デバイスを入力として開く
type V4L2Opener struct {
	settings     StreamSettings
	startTimeout time.Duration
	logger       *zap.Logger
}

// NewV4L2Opener は新しい V4L2Opener を作成する
func NewV4L2Opener(settings StreamSettings, logger *zap.Logger) *V4L2Opener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &V4L2Opener{
		settings:     settings,
		startTimeout: 10 * time.Second,
		logger:       logger.Named("v4l2"),
	}
}

// Open はデバイスノードを開き、映像キャプチャ対応を確認する
func (o *V4L2Opener) Open(ctx context.Context, device Device) (Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fd, err := unix.Open(device.Path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w (%v)", device.Path, ErrDeviceUnavailable, err)
	}

	var caps v4l2Capability
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(vidiocQueryCap), uintptr(unsafe.Pointer(&caps)))
	if errno != 0 {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%s: VIDIOC_QUERYCAP に失敗: %w", device.Path, errno)
	}

	if !caps.canCapture() {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%s: %w", device.Path, ErrNotCaptureDevice)
	}

	return &v4l2Input{
		device:       device,
		fd:           fd,
		capturer:     NewV4L2Capturer(device.Path, o.settings.Width, o.settings.Height, o.settings.FPS),
		startTimeout: o.startTimeout,
		logger:       o.logger.With(zap.String("device_id", device.ID)),
	}, nil
}

// v4l2Input はV4L2デバイスの入力
// fd はセッションに接続されている間デバイスを保持するために開いておく
type v4l2Input struct {
	device       Device
	fd           int
	capturer     *V4L2Capturer
	startTimeout time.Duration
	logger       *zap.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	finished    <-chan struct{}
	forwardDone chan struct{}
	closed      bool
}

func (in *v4l2Input) Device() Device {
	return in.device
}

// Start はストリームを開始し、最初のフレームを受け取るまで待つ
func (in *v4l2Input) Start(ctx context.Context, frames chan<- []byte) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return fmt.Errorf("%s: %w", in.device.Path, ErrDeviceUnavailable)
	}
	if in.cancel != nil {
		return nil // 既に開始済み
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	internal := make(chan []byte, 4)
	errs := make(chan error, 1)
	finished := in.capturer.StartStream(streamCtx, internal, errs)

	timer := time.NewTimer(in.startTimeout)
	defer timer.Stop()

	var first []byte
	select {
	case first = <-internal:
	case err := <-errs:
		cancel()
		<-finished
		return fmt.Errorf("%s のストリーム開始に失敗: %w", in.device.Name, err)
	case <-timer.C:
		cancel()
		<-finished
		return fmt.Errorf("%s: 最初のフレームを待つ間にタイムアウトしました", in.device.Name)
	case <-ctx.Done():
		cancel()
		<-finished
		return ctx.Err()
	}

	in.cancel = cancel
	in.finished = finished
	in.forwardDone = make(chan struct{})
	go in.forward(streamCtx, first, internal, errs, frames, in.forwardDone)

	return nil
}

// forward はキャプチャからセッションへフレームを転送する
func (in *v4l2Input) forward(ctx context.Context, first []byte, internal <-chan []byte, errs <-chan error, out chan<- []byte, done chan<- struct{}) {
	defer close(done)

	frame := first
	for {
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}

		select {
		case <-ctx.Done():
			return
		case frame = <-internal:
		case err := <-errs:
			in.logger.Warn("ストリームが停止しました", zap.Error(err))
			return
		}
	}
}

// Stop はストリームを停止する
func (in *v4l2Input) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.cancel == nil {
		return nil // 既に停止している
	}

	in.cancel()
	<-in.finished
	<-in.forwardDone
	in.cancel = nil

	return nil
}

// Close はストリームを停止してデバイスを解放する
func (in *v4l2Input) Close() error {
	if err := in.Stop(); err != nil {
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil
	}
	in.closed = true

	if err := unix.Close(in.fd); err != nil {
		return fmt.Errorf("%s のクローズに失敗: %w", in.device.Path, err)
	}
	return nil
}

// MockOpener はテスト用の Opener 実装
type MockOpener struct {
	mu          sync.Mutex
	failures    map[string]error
	startErrors map[string]error
	opens       map[string]int
	inputs      []*MockInput
}

// NewMockOpener は新しい MockOpener を作成する
func NewMockOpener() *MockOpener {
	return &MockOpener{
		failures:    make(map[string]error),
		startErrors: make(map[string]error),
		opens:       make(map[string]int),
	}
}

// Open はモック入力を返す。失敗が設定されていればエラーを返す
func (m *MockOpener) Open(_ context.Context, device Device) (Input, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opens[device.ID]++
	if err, ok := m.failures[device.ID]; ok {
		return nil, err
	}

	input := &MockInput{device: device, startErr: m.startErrors[device.ID]}
	m.inputs = append(m.inputs, input)
	return input, nil
}

// FailDevice は指定デバイスを開けないように設定する
func (m *MockOpener) FailDevice(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = err
}

// FailStart は指定デバイスの入力がストリームを開始できないように設定する
func (m *MockOpener) FailStart(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErrors[id] = err
}

// Opens は指定デバイスが開かれた回数を返す
func (m *MockOpener) Opens(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[id]
}

// Input は指定デバイスで最後に開かれた入力を返す
func (m *MockOpener) Input(id string) *MockInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.inputs) - 1; i >= 0; i-- {
		if m.inputs[i].device.ID == id {
			return m.inputs[i]
		}
	}
	return nil
}

// OpenInputs はまだ閉じられていない入力の数を返す
func (m *MockOpener) OpenInputs() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, in := range m.inputs {
		if !in.IsClosed() {
			count++
		}
	}
	return count
}

// MockInput はテスト用の Input 実装
type MockInput struct {
	device Device

	mu       sync.Mutex
	frames   chan<- []byte
	running  bool
	closed   bool
	starts   int
	startErr error
}

// Device は入力元のデバイスを返す
func (m *MockInput) Device() Device {
	return m.device
}

// Start はフレームの送り先を記録する
func (m *MockInput) Start(_ context.Context, frames chan<- []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}
	if m.running {
		return nil
	}
	m.starts++
	m.frames = frames
	m.running = true
	return nil
}

// Stop は送出を停止する
func (m *MockInput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.frames = nil
	return nil
}

// Close は入力を閉じる
func (m *MockInput) Close() error {
	_ = m.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Push は動作中であればフレームを1枚送る
func (m *MockInput) Push(frame []byte) bool {
	m.mu.Lock()
	frames := m.frames
	m.mu.Unlock()

	if frames == nil {
		return false
	}
	frames <- frame
	return true
}

// Starts はストリームが開始された回数を返す
func (m *MockInput) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// IsRunning は送出中かを返す
func (m *MockInput) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// IsClosed は閉じられたかを返す
func (m *MockInput) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
