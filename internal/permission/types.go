package permission

import "context"

// State はアプリケーションから見たカメラ利用許可の状態
type State string

const (
	StateNotDetermined State = "not_determined" // まだユーザーに確認していない
	StateAuthorized    State = "authorized"     // 利用が許可されている
	StateDenied        State = "denied"         // 利用が拒否・制限されている
)

// OSStatus はOSバックエンドが返す生の許可状態
type OSStatus string

const (
	OSStatusNotDetermined OSStatus = "not_determined"
	OSStatusAuthorized    OSStatus = "authorized"
	OSStatusDenied        OSStatus = "denied"
	OSStatusRestricted    OSStatus = "restricted" // ポリシー等により変更不可
	OSStatusUnknown       OSStatus = "unknown"
)

// Fold はOSステータスを3値の State に変換する
// 未知の値は Denied として扱う
func Fold(status OSStatus) State {
	switch status {
	case OSStatusNotDetermined:
		return StateNotDetermined
	case OSStatusAuthorized:
		return StateAuthorized
	default:
		return StateDenied
	}
}

// Authorizer はOSの許可機構を抽象化するインターフェース
type Authorizer interface {
	// Status は現在の許可状態を返す。プロンプトは表示しない
	Status(ctx context.Context) (OSStatus, error)

	// Request は許可ダイアログを表示し、ユーザーの応答まで待機する
	Request(ctx context.Context) (bool, error)
}

// Publisher は許可状態の書き込み先
type Publisher interface {
	SetAuthorization(state State)
}

// Alerter はボタン1つの確認ダイアログを表示する
// Acknowledge はユーザーが確認するまで戻らない
type Alerter interface {
	Acknowledge(title, message string)
}
