package camera

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry はデバイス一覧と選択中デバイスを管理する
//
// 一覧はホットプラグ通知のたびに作り直され、Publisher に通知される
type Registry struct {
	discovery Discovery
	watcher   Watcher
	publisher Publisher
	logger    *zap.Logger

	mu       sync.RWMutex
	devices  DeviceList
	selected string

	// 再列挙を直列化する。mu はスキャン中に保持しない
	refreshMu sync.Mutex

	// 制御用
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry は新しい Registry を作成する。watcher は nil でもよい
func NewRegistry(discovery Discovery, watcher Watcher, publisher Publisher, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		discovery: discovery,
		watcher:   watcher,
		publisher: publisher,
		logger:    logger.Named("registry"),
		stopCh:    make(chan struct{}),
	}
}

// Start は初期スキャンを行い、ホットプラグ通知の購読を開始する
func (r *Registry) Start(ctx context.Context) error {
	if r.watcher != nil {
		r.wg.Add(1)
		go r.watch(ctx)
	}

	// 初期スキャンを実行
	if _, err := r.Refresh(ctx); err != nil {
		return fmt.Errorf("初期スキャンに失敗: %w", err)
	}

	return nil
}

// Stop は通知の購読を終了する
func (r *Registry) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.watcher != nil {
			err = r.watcher.Close()
		}
		r.wg.Wait()
	})
	return err
}

// Enumerate はデバイスをスキャンし、ソート済みの一覧を返す
// Registry の状態は変更しない
func (r *Registry) Enumerate(ctx context.Context) (DeviceList, error) {
	devices, err := r.discovery.ScanDevices(ctx)
	if err != nil {
		return nil, err
	}
	return SortDevices(devices), nil
}

// Refresh は再列挙して一覧と選択中デバイスを更新し、通知する
// スキャンに失敗した場合は直前の状態を維持する
func (r *Registry) Refresh(ctx context.Context) (DeviceList, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	list, err := r.Enumerate(ctx)
	if err != nil {
		r.logger.Warn("デバイスの列挙に失敗しました", zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.selected
	r.devices = list
	r.selected = ReconcileSelection(previous, list)

	if previous != "" && r.selected != previous {
		r.logger.Info("選択中のデバイスが見つからないため切り替えます",
			zap.String("from", previous),
			zap.String("to", r.selected),
		)
	}
	r.logger.Debug("デバイス一覧を更新しました", zap.Int("count", len(list)))
	r.publishLocked()

	return list, nil
}

// Select はユーザーが選択したデバイスを設定する
// 一覧にないIDは整合規則に従って置き換える
func (r *Registry) Select(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.selected = ReconcileSelection(id, r.devices)
	r.publishLocked()

	return r.selected
}

// Devices は現在のデバイス一覧を返す
func (r *Registry) Devices() DeviceList {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices
}

// Selected は選択中のデバイスを返す
func (r *Registry) Selected() (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Find(r.selected)
}

func (r *Registry) publishLocked() {
	if r.publisher != nil {
		r.publisher.SetDevices(r.devices, r.selected)
	}
}

// watch はホットプラグ通知を受けて再列挙する
func (r *Registry) watch(ctx context.Context) {
	defer r.wg.Done()

	events := r.watcher.Events()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.logger.Info("デバイスの接続状態が変化しました",
				zap.String("kind", string(ev.Kind)),
				zap.String("path", ev.Path),
			)
			// エラーは Refresh 内でログ出力済み
			_, _ = r.Refresh(ctx)
		}
	}
}
