// Package server は、操作パネル向けのHTTPサーバーを管理します。
//
// このパッケージは、セッション状態の配信、表示・非表示の要求、
// デバイスと背景スタイルの選択、プレビュー映像の配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - セッション状態の取得とServer-Sent Eventsによる配信
//   - プレビュー映像のMJPEGおよびWebSocketでの配信
//   - 埋め込まれた操作パネル（HTML）の配信
//
// ハンドラーは要求をキューに積むだけで、カメラの操作完了を待たない。
package server
