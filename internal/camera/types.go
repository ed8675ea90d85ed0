package camera

import (
	"context"
	"errors"
)

var (
	// ErrDeviceUnavailable はデバイスが存在しない、または開けない場合のエラー
	ErrDeviceUnavailable = errors.New("デバイスが利用できません")

	// ErrNotCaptureDevice は映像キャプチャに対応していないデバイスのエラー
	ErrNotCaptureDevice = errors.New("映像キャプチャに対応していないデバイスです")
)

// Device は列挙時点のカメラデバイスのスナップショット
// 同一性は ID のみで判定する
type Device struct {
	ID   string `json:"id"`   // 安定した一意識別子
	Name string `json:"name"` // 表示名
	Path string `json:"path"` // デバイスパス（例: /dev/video0）
}

// Same は2つのデバイスが同一かを ID で判定する
func (d Device) Same(other Device) bool {
	return d.ID == other.ID
}

// DeviceList は (Name, ID) 昇順に並んだデバイス一覧
// 列挙のたびに作り直し、既存の一覧を書き換えない
type DeviceList []Device

// Find は指定したIDのデバイスを返す
func (l DeviceList) Find(id string) (Device, bool) {
	for _, d := range l {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// Contains は指定したIDのデバイスが含まれるかを返す
func (l DeviceList) Contains(id string) bool {
	_, ok := l.Find(id)
	return ok
}

// Equal は順序を含めて同じ一覧かを返す
func (l DeviceList) Equal(other DeviceList) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]Device, error)
}

// HotplugKind は接続通知の種類
type HotplugKind string

const (
	DeviceConnected    HotplugKind = "connected"
	DeviceDisconnected HotplugKind = "disconnected"
)

// HotplugEvent はデバイスの接続・切断通知
type HotplugEvent struct {
	Kind HotplugKind
	Path string
}

// Watcher はホットプラグ通知を配信する
type Watcher interface {
	// Events は通知チャンネルを返す。Close 後に閉じられる
	Events() <-chan HotplugEvent

	// Close は監視を終了する
	Close() error
}

// Publisher はデバイス一覧と選択中デバイスの書き込み先
type Publisher interface {
	SetDevices(devices DeviceList, selectedID string)
}

// Input はキャプチャセッションに接続されるデバイス入力
type Input interface {
	// Device は入力元のデバイスを返す
	Device() Device

	// Start はフレームの送出を開始する。最初のフレームを確認してから戻る
	Start(ctx context.Context, frames chan<- []byte) error

	// Stop はフレームの送出を停止する。停止済みなら何もしない
	Stop() error

	// Close はデバイスを解放する
	Close() error
}

// Opener はデバイスを入力として開く
type Opener interface {
	Open(ctx context.Context, device Device) (Input, error)
}
