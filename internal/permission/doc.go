// Package permission はOSレベルのカメラ利用許可を扱う
//
// # 責務
// - カメラ利用許可状態の問い合わせ（ユーザーへのプロンプトなし）
// - 未決定時の許可リクエスト（ユーザーの応答まで待機）
// - 許可状態を SessionStateStore へ書き込む唯一の経路
//
// # 仕様
//   - 状態は NotDetermined / Authorized / Denied の3値
//   - 不明なOSステータスやバックエンドのエラーは Denied に畳み込む（fail-closed）
//   - 一度拒否された場合は再プロンプトしない（OS側も再表示しない）
//   - カメラ利用目的の説明文が未設定の場合、プロセス中に1回だけ警告を出す
//
// # バックエンド
//   - PortalAuthorizer: xdg-desktop-portal の Camera インターフェース（D-Bus）
//   - DeviceAccessAuthorizer: /dev/video* への読み書き権限による判定
//     （videoグループへの参加: sudo usermod -a -G video $USER）
package permission
