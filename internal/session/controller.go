package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"kagami/internal/camera"
	"kagami/internal/permission"
	"kagami/internal/state"
)

// AccessGate はカメラ利用の権限確認
type AccessGate interface {
	QueryStatus(ctx context.Context) permission.State
	RequestAccess(ctx context.Context) permission.State
}

// DeviceSource は現在選択されているデバイスを返す
type DeviceSource interface {
	Selected() (camera.Device, bool)
}

// Publisher はセッションの状態を公開する
type Publisher interface {
	SetSession(running bool, phase state.Phase)
}

// Controller はキャプチャセッションを1つ所有し、全ての変更を SerialQueue 上で行う
//
// phase, running, input はキュー上の操作からのみ読み書きする
type Controller struct {
	gate      AccessGate
	devices   DeviceSource
	opener    camera.Opener
	hardware  Hardware
	publisher Publisher
	queue     *SerialQueue
	logger    *zap.Logger

	phase   state.Phase
	running bool
	input   camera.Input

	// 表示要求が出ているか。権限が後から許可された場合の再開に使う
	visible atomic.Bool
}

// NewController は新しい Controller を作成する
func NewController(gate AccessGate, devices DeviceSource, opener camera.Opener, hardware Hardware, publisher Publisher, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		gate:      gate,
		devices:   devices,
		opener:    opener,
		hardware:  hardware,
		publisher: publisher,
		queue:     NewSerialQueue(context.Background()),
		logger:    logger.Named("session"),
		phase:     state.PhaseIdle,
	}
}

// Hardware は所有しているキャプチャセッションを返す
func (c *Controller) Hardware() Hardware {
	return c.hardware
}

// StartAsync は開始要求をキューに積み、完了時に閉じられるチャンネルを返す
func (c *Controller) StartAsync() (<-chan struct{}, error) {
	c.visible.Store(true)
	return c.queue.Submit(c.start)
}

// Start は開始要求を積んで完了を待つ
func (c *Controller) Start(ctx context.Context) error {
	return wait(ctx, c.StartAsync)
}

// StopAsync は停止要求をキューに積み、完了時に閉じられるチャンネルを返す
func (c *Controller) StopAsync() (<-chan struct{}, error) {
	c.visible.Store(false)
	return c.queue.Submit(c.stop)
}

// Stop は停止要求を積んで完了を待つ
func (c *Controller) Stop(ctx context.Context) error {
	return wait(ctx, c.StopAsync)
}

// ReconfigureAsync は入力の切り替えをキューに積む。device が nil なら入力を外す
func (c *Controller) ReconfigureAsync(device *camera.Device) (<-chan struct{}, error) {
	var target *camera.Device
	if device != nil {
		d := *device
		target = &d
	}
	return c.queue.Submit(func(ctx context.Context) {
		c.reconfigure(ctx, target)
	})
}

// Reconfigure は入力の切り替えを積んで完了を待つ
func (c *Controller) Reconfigure(ctx context.Context, device *camera.Device) error {
	return wait(ctx, func() (<-chan struct{}, error) {
		return c.ReconfigureAsync(device)
	})
}

// Close は停止と入力の解放を積み、キューを閉じる
func (c *Controller) Close(ctx context.Context) error {
	c.visible.Store(false)

	if _, err := c.queue.Submit(c.shutdown); err != nil && !errors.Is(err, ErrQueueClosed) {
		return err
	}
	if err := c.queue.Close(ctx); err != nil {
		return fmt.Errorf("セッションキューの終了待ちに失敗: %w", err)
	}
	return nil
}

// Watch は状態の変化に追従する
// 選択中のデバイスが変わると入力を切り替え、表示中に権限が許可されるか
// 使えるデバイスが選ばれると開始する
func (c *Controller) Watch(ctx context.Context, store *state.Store) error {
	sub := store.Subscribe()
	defer sub.Close()

	var (
		last    state.Snapshot
		started bool
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub.C:
			if !ok {
				return nil
			}
			if !started {
				last, started = snap, true
				continue
			}

			if snap.SelectedID != last.SelectedID {
				var device *camera.Device
				if d, ok := snap.Selected(); ok {
					device = &d
				}
				c.logger.Info("選択中のデバイスが変わりました",
					zap.String("from", last.SelectedID),
					zap.String("to", snap.SelectedID),
				)
				if _, err := c.ReconfigureAsync(device); err != nil {
					return nil
				}
			}

			// 表示中かどうかはキュー上の resume が判定する
			if snap.Authorization == permission.StateAuthorized &&
				last.Authorization != permission.StateAuthorized {
				if _, err := c.queue.Submit(c.resume); err != nil {
					return nil
				}
			}

			last = snap
		}
	}
}

func (c *Controller) start(ctx context.Context) {
	status := c.gate.QueryStatus(ctx)
	if status == permission.StateNotDetermined {
		// 応答を待つ間、他の操作はキューで待機する
		status = c.gate.RequestAccess(ctx)
	}
	if status != permission.StateAuthorized {
		c.logger.Info("カメラの利用が許可されていないため開始しません", zap.String("authorization", string(status)))
		return
	}

	if c.running {
		return
	}

	device, ok := c.devices.Selected()
	if !ok {
		c.logger.Info("選択できるデバイスがないため開始しません")
		return
	}
	c.launch(ctx, device)
}

// resume は表示中で許可済みなら、選択中のデバイスで開始する。プロンプトは出さない
func (c *Controller) resume(ctx context.Context) {
	if !c.canResume(ctx) {
		return
	}
	if device, ok := c.devices.Selected(); ok {
		c.launch(ctx, device)
	}
}

// canResume は停止中かつ表示中で、利用が許可されているかを返す
// visible はキュー上で読むため、先に積まれた非表示要求が反映されている
func (c *Controller) canResume(ctx context.Context) bool {
	if c.running || !c.visible.Load() {
		return false
	}
	return c.gate.QueryStatus(ctx) == permission.StateAuthorized
}

// launch は device を接続してキャプチャを開始する。失敗すると Idle に戻る
func (c *Controller) launch(ctx context.Context, device camera.Device) {
	c.transition(state.PhaseConfiguring)

	if err := c.attach(ctx, device); err != nil {
		c.logger.Warn("入力の接続に失敗しました",
			zap.String("device_id", device.ID),
			zap.String("device_name", device.Name),
			zap.Error(err),
		)
		c.transition(state.PhaseIdle)
		return
	}

	if err := c.hardware.StartRunning(ctx); err != nil {
		c.logger.Warn("キャプチャの開始に失敗しました", zap.String("device_id", device.ID), zap.Error(err))
		c.transition(state.PhaseIdle)
		return
	}

	c.running = true
	c.transition(state.PhaseRunning)
}

func (c *Controller) stop(_ context.Context) {
	if !c.running {
		return
	}

	if err := c.hardware.StopRunning(); err != nil {
		c.logger.Warn("キャプチャの停止に失敗しました", zap.Error(err))
	}
	c.running = false
	c.transition(state.PhaseIdle)
}

func (c *Controller) reconfigure(ctx context.Context, device *camera.Device) {
	if device != nil && c.canResume(ctx) {
		// 表示中に停止していれば、選ばれたデバイスで開始し直す
		c.launch(ctx, *device)
		return
	}
	if c.attached(device) {
		return
	}

	wasRunning := c.running
	if wasRunning {
		c.transition(state.PhaseConfiguring)
	}

	err := c.swapInput(ctx, device)
	if err != nil {
		c.logger.Warn("入力の切り替えに失敗しました", zap.Error(err))
	}

	if !wasRunning {
		return
	}

	if err != nil || c.input == nil {
		if stopErr := c.hardware.StopRunning(); stopErr != nil {
			c.logger.Warn("キャプチャの停止に失敗しました", zap.Error(stopErr))
		}
		c.running = false
		c.transition(state.PhaseIdle)
		return
	}

	c.transition(state.PhaseRunning)
}

func (c *Controller) shutdown(ctx context.Context) {
	c.stop(ctx)
	if err := c.swapInput(ctx, nil); err != nil {
		c.logger.Warn("入力の解放に失敗しました", zap.Error(err))
	}
}

// attach は device の入力が接続されていなければ接続する
func (c *Controller) attach(ctx context.Context, device camera.Device) error {
	if c.attached(&device) {
		return nil
	}
	return c.swapInput(ctx, &device)
}

// attached は device の入力が接続済みかを返す。nil は入力なしを意味する
// 同じIDでもデバイスパスが変わっていれば開き直す
func (c *Controller) attached(device *camera.Device) bool {
	if device == nil || c.input == nil {
		return device == nil && c.input == nil
	}
	current := c.input.Device()
	return current.Same(*device) && current.Path == device.Path
}

// swapInput は1つの構成ブラケットの中で前の入力を外し、新しい入力を接続する
// 新しい入力を開けなかった場合、入力は空のままになる
func (c *Controller) swapInput(ctx context.Context, device *camera.Device) error {
	c.hardware.BeginConfiguration()

	previous := c.input
	if previous != nil {
		c.hardware.RemoveInput(previous)
		c.input = nil
	}

	var attachErr error
	if device != nil {
		attachErr = c.addInput(ctx, *device)
	}

	commitErr := c.hardware.CommitConfiguration(ctx)

	if previous != nil {
		if err := previous.Close(); err != nil {
			c.logger.Warn("入力のクローズに失敗しました", zap.String("device_id", previous.Device().ID), zap.Error(err))
		}
	}

	if commitErr != nil && c.input != nil {
		// 開始できなかった入力は外しておく
		c.hardware.BeginConfiguration()
		c.hardware.RemoveInput(c.input)
		_ = c.hardware.CommitConfiguration(ctx)
		_ = c.input.Close()
		c.input = nil
	}

	return errors.Join(attachErr, commitErr)
}

func (c *Controller) addInput(ctx context.Context, device camera.Device) error {
	input, err := c.opener.Open(ctx, device)
	if err != nil {
		return fmt.Errorf("%s を開けません: %w", device.Name, err)
	}

	if !c.hardware.CanAddInput(input) {
		_ = input.Close()
		return fmt.Errorf("%s をセッションに追加できません", device.Name)
	}
	if err := c.hardware.AddInput(input); err != nil {
		_ = input.Close()
		return err
	}

	c.input = input
	c.logger.Info("入力を接続しました",
		zap.String("device_id", device.ID),
		zap.String("device_name", device.Name),
	)
	return nil
}

// transition は段階を進めて公開する。不正な遷移はプログラムの誤り
func (c *Controller) transition(to state.Phase) {
	if !state.ValidTransition(c.phase, to) {
		c.logger.DPanic("不正な段階遷移です",
			zap.String("from", string(c.phase)),
			zap.String("to", string(to)),
		)
		return
	}

	c.logger.Debug("段階を遷移しました",
		zap.String("from", string(c.phase)),
		zap.String("to", string(to)),
		zap.Bool("running", c.running),
	)
	c.phase = to
	if c.publisher != nil {
		c.publisher.SetSession(c.running, c.phase)
	}
}

func wait(ctx context.Context, submit func() (<-chan struct{}, error)) error {
	done, err := submit()
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
