package camera

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap/zaptest"
)

func TestTranslateEvent(t *testing.T) {
	testCases := []struct {
		name   string
		event  fsnotify.Event
		want   HotplugKind
		wantOK bool
	}{
		{"接続", fsnotify.Event{Name: "/dev/video0", Op: fsnotify.Create}, DeviceConnected, true},
		{"切断", fsnotify.Event{Name: "/dev/video0", Op: fsnotify.Remove}, DeviceDisconnected, true},
		{"リネーム", fsnotify.Event{Name: "/dev/video2", Op: fsnotify.Rename}, DeviceDisconnected, true},
		{"権限変更は無視", fsnotify.Event{Name: "/dev/video0", Op: fsnotify.Chmod}, "", false},
		{"他のノードは無視", fsnotify.Event{Name: "/dev/ttyS0", Op: fsnotify.Create}, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := translateEvent(tc.event)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got.Kind != tc.want {
				t.Errorf("kind = %s, want %s", got.Kind, tc.want)
			}
		})
	}
}

func TestFSNotifyWatcher_ReportsNodes(t *testing.T) {
	dir := t.TempDir()
	watcher, err := NewFSNotifyWatcher(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher failed: %v", err)
	}
	defer func() { _ = watcher.Close() }()

	node := filepath.Join(dir, "video7")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}
	expectEvent(t, watcher.Events(), DeviceConnected, node)

	if err := os.Remove(node); err != nil {
		t.Fatalf("Failed to remove node: %v", err)
	}
	expectEvent(t, watcher.Events(), DeviceDisconnected, node)
}

func TestFSNotifyWatcher_CloseClosesEvents(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(t.TempDir(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher failed: %v", err)
	}
	if err := watcher.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case _, ok := <-watcher.Events():
		if ok {
			t.Error("Expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("events channel was not closed")
	}
}

func expectEvent(t *testing.T, events <-chan HotplugEvent, kind HotplugKind, path string) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			// 書き込みによる重複通知は読み飛ばす
			if ev.Kind == kind && ev.Path == path {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", kind, path)
		}
	}
}
