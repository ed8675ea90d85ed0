package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	portalBusName      = "org.freedesktop.portal.Desktop"
	portalObjectPath   = "/org/freedesktop/portal/desktop"
	cameraInterface    = "org.freedesktop.portal.Camera"
	requestInterface   = "org.freedesktop.portal.Request"
	permStoreBusName   = "org.freedesktop.impl.portal.PermissionStore"
	permStoreObject    = "/org/freedesktop/impl/portal/PermissionStore"
	permStoreInterface = "org.freedesktop.impl.portal.PermissionStore"
	notFoundError      = "org.freedesktop.portal.Error.NotFound"

	// Response シグナルの応答コード
	responseGranted uint32 = 0
)

// PortalAuthorizer は xdg-desktop-portal を使った Authorizer 実装
type PortalAuthorizer struct {
	conn  *dbus.Conn
	appID string // 非サンドボックスのアプリは空文字列
}

// NewPortalAuthorizer はセッションバスに接続して PortalAuthorizer を作成する
func NewPortalAuthorizer(appID string) (*PortalAuthorizer, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("セッションバスへの接続に失敗: %w", err)
	}

	return &PortalAuthorizer{conn: conn, appID: appID}, nil
}

// Close はD-Bus接続を閉じる
func (p *PortalAuthorizer) Close() error {
	return p.conn.Close()
}

// Status は PermissionStore から camera の許可状態を読み取る
func (p *PortalAuthorizer) Status(ctx context.Context) (OSStatus, error) {
	obj := p.conn.Object(permStoreBusName, permStoreObject)
	call := obj.CallWithContext(ctx, permStoreInterface+".Lookup", 0, "devices", "camera")
	if call.Err != nil {
		if isDBusError(call.Err, notFoundError) {
			// テーブルが未作成 = まだ一度も確認していない
			return OSStatusNotDetermined, nil
		}
		return OSStatusUnknown, fmt.Errorf("許可ストアの参照に失敗: %w", call.Err)
	}

	var (
		perms map[string][]string
		data  dbus.Variant
	)
	if err := call.Store(&perms, &data); err != nil {
		return OSStatusUnknown, fmt.Errorf("許可ストアの応答の解析に失敗: %w", err)
	}

	return statusFromPermissions(perms, p.appID), nil
}

// Request は AccessCamera を呼び出し、Response シグナルを待つ
func (p *PortalAuthorizer) Request(ctx context.Context) (bool, error) {
	token := "kagami_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	expected := requestPath(p.uniqueName(), token)

	// 応答を取りこぼさないよう、呼び出し前にマッチを登録する
	signals := make(chan *dbus.Signal, 4)
	p.conn.Signal(signals)
	defer p.conn.RemoveSignal(signals)

	if err := p.watchResponse(expected); err != nil {
		return false, err
	}
	defer p.unwatchResponse(expected)

	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
	}

	var handle dbus.ObjectPath
	obj := p.conn.Object(portalBusName, portalObjectPath)
	if err := obj.CallWithContext(ctx, cameraInterface+".AccessCamera", 0, options).Store(&handle); err != nil {
		return false, fmt.Errorf("AccessCamera の呼び出しに失敗: %w", err)
	}

	// 古いポータルは handle_token を無視するため、返されたパスも監視する
	if handle != expected {
		if err := p.watchResponse(handle); err != nil {
			return false, err
		}
		defer p.unwatchResponse(handle)
	}

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return false, errors.New("D-Bus接続が閉じられました")
			}
			if sig.Path != handle || sig.Name != requestInterface+".Response" {
				continue
			}
			return parseResponse(sig.Body)
		}
	}
}

func (p *PortalAuthorizer) watchResponse(path dbus.ObjectPath) error {
	err := p.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
	)
	if err != nil {
		return fmt.Errorf("Response シグナルの購読に失敗: %w", err)
	}
	return nil
}

func (p *PortalAuthorizer) unwatchResponse(path dbus.ObjectPath) {
	_ = p.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
	)
}

func (p *PortalAuthorizer) uniqueName() string {
	names := p.conn.Names()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// requestPath はポータルが作成する Request オブジェクトのパスを組み立てる
// 例: ":1.42" + "tok" -> /org/freedesktop/portal/desktop/request/1_42/tok
func requestPath(uniqueName, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath(fmt.Sprintf("%s/request/%s/%s", portalObjectPath, sender, token))
}

// statusFromPermissions は PermissionStore のエントリを OSStatus に変換する
func statusFromPermissions(perms map[string][]string, appID string) OSStatus {
	values, ok := perms[appID]
	if !ok || len(values) == 0 {
		return OSStatusNotDetermined
	}

	switch values[0] {
	case "yes":
		return OSStatusAuthorized
	case "no":
		return OSStatusDenied
	default:
		return OSStatusUnknown
	}
}

// parseResponse は Response シグナルの本体 (u response, a{sv} results) を解釈する
func parseResponse(body []interface{}) (bool, error) {
	if len(body) == 0 {
		return false, errors.New("Response シグナルの本体が空です")
	}

	code, ok := body[0].(uint32)
	if !ok {
		return false, fmt.Errorf("Response コードの型が不正です: %T", body[0])
	}

	return code == responseGranted, nil
}

func isDBusError(err error, name string) bool {
	var byValue dbus.Error
	if errors.As(err, &byValue) {
		return byValue.Name == name
	}
	var byPointer *dbus.Error
	if errors.As(err, &byPointer) {
		return byPointer.Name == name
	}
	return false
}
