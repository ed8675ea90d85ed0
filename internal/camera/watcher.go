package camera

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FSNotifyWatcher は /dev を監視して video* ノードの増減を通知する
type FSNotifyWatcher struct {
	watcher *fsnotify.Watcher
	events  chan HotplugEvent
	logger  *zap.Logger

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewFSNotifyWatcher は devDir を監視する FSNotifyWatcher を作成する
func NewFSNotifyWatcher(devDir string, logger *zap.Logger) (*FSNotifyWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ファイル監視の作成に失敗: %w", err)
	}

	if err := fw.Add(devDir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("%s の監視に失敗: %w", devDir, err)
	}

	w := &FSNotifyWatcher{
		watcher: fw,
		events:  make(chan HotplugEvent, 16),
		logger:  logger.Named("hotplug"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()

	return w, nil
}

// Events は通知チャンネルを返す
func (w *FSNotifyWatcher) Events() <-chan HotplugEvent {
	return w.events
}

// Close は監視を終了し、通知チャンネルを閉じる
func (w *FSNotifyWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *FSNotifyWatcher) loop() {
	defer close(w.done)
	defer close(w.events)

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			hp, ok := translateEvent(ev)
			if !ok {
				continue
			}
			select {
			case w.events <- hp:
			case <-w.stop:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("デバイス監視でエラーが発生しました", zap.Error(err))
		}
	}
}

// translateEvent は fsnotify のイベントをホットプラグ通知に変換する
func translateEvent(ev fsnotify.Event) (HotplugEvent, bool) {
	if !strings.HasPrefix(filepath.Base(ev.Name), "video") {
		return HotplugEvent{}, false
	}

	switch {
	case ev.Has(fsnotify.Create):
		return HotplugEvent{Kind: DeviceConnected, Path: ev.Name}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return HotplugEvent{Kind: DeviceDisconnected, Path: ev.Name}, true
	default:
		return HotplugEvent{}, false
	}
}

// MockWatcher はテスト用の Watcher 実装
type MockWatcher struct {
	events    chan HotplugEvent
	closeOnce sync.Once
}

// NewMockWatcher は新しい MockWatcher を作成する
func NewMockWatcher() *MockWatcher {
	return &MockWatcher{events: make(chan HotplugEvent, 16)}
}

// Emit は通知を送る
func (m *MockWatcher) Emit(ev HotplugEvent) {
	m.events <- ev
}

// Events は通知チャンネルを返す
func (m *MockWatcher) Events() <-chan HotplugEvent {
	return m.events
}

// Close は通知チャンネルを閉じる
func (m *MockWatcher) Close() error {
	m.closeOnce.Do(func() { close(m.events) })
	return nil
}
