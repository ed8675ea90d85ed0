package state

import (
	"time"

	"kagami/internal/camera"
	"kagami/internal/permission"
)

// Snapshot はある時点のセッション状態
// 購読者に渡した後は変更しない
type Snapshot struct {
	Version       uint64            `json:"version"`
	Authorization permission.State  `json:"authorization"`
	Devices       camera.DeviceList `json:"devices"`
	SelectedID    string            `json:"selected_id"`
	IsRunning     bool              `json:"is_running"`
	Phase         Phase             `json:"phase"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// View は画面に表示する内容の種類
type View string

const (
	ViewRequestingAccess View = "requesting_access"
	ViewDenied           View = "denied"
	ViewReady            View = "ready"
)

// View は権限状態から表示内容を決める
func (s Snapshot) View() View {
	switch s.Authorization {
	case permission.StateAuthorized:
		return ViewReady
	case permission.StateDenied:
		return ViewDenied
	default:
		return ViewRequestingAccess
	}
}

// Selected は選択中のデバイスを返す
func (s Snapshot) Selected() (camera.Device, bool) {
	return s.Devices.Find(s.SelectedID)
}
