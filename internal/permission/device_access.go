package permission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrNoDevice はデバイスノードが1つもなく、許可状態を判定できない場合のエラー
var ErrNoDevice = errors.New("カメラのデバイスノードがありません")

// DeviceAccessAuthorizer はデバイスノードへのアクセス権で許可状態を判定する
// ポータルが使えない環境向けで、プロンプトは表示できない
type DeviceAccessAuthorizer struct {
	devDir string
}

// NewDeviceAccessAuthorizer は新しい DeviceAccessAuthorizer を作成する
func NewDeviceAccessAuthorizer(devDir string) *DeviceAccessAuthorizer {
	if devDir == "" {
		devDir = "/dev"
	}
	return &DeviceAccessAuthorizer{devDir: devDir}
}

// Status は /dev/video* の読み書き権限を確認する
func (d *DeviceAccessAuthorizer) Status(ctx context.Context) (OSStatus, error) {
	nodes, err := filepath.Glob(filepath.Join(d.devDir, "video*"))
	if err != nil {
		return OSStatusUnknown, fmt.Errorf("デバイスノードの列挙に失敗: %w", err)
	}

	if len(nodes) == 0 {
		return OSStatusNotDetermined, nil
	}

	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return OSStatusUnknown, err
		}
		if unix.Access(node, unix.R_OK|unix.W_OK) == nil {
			return OSStatusAuthorized, nil
		}
	}

	return OSStatusDenied, nil
}

// Request は権限を再確認する。グループ設定はプロセス外でしか変えられない
// デバイスノードがなければ ErrNoDevice を返し、拒否とはしない
func (d *DeviceAccessAuthorizer) Request(ctx context.Context) (bool, error) {
	status, err := d.Status(ctx)
	if err != nil {
		return false, err
	}
	if status == OSStatusNotDetermined {
		return false, ErrNoDevice
	}
	return status == OSStatusAuthorized, nil
}
