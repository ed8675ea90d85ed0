// Package camera カメラデバイスの列挙とホットプラグ追従を担う
//
// # 責務
// - カメラデバイスの列挙と安定したソート順の維持
// - 接続・切断通知による再列挙（ポーリングなし）
// - 選択中デバイスの整合性維持
// - デバイスを入力として開く処理（Opener）と MJPEG フレームの取得
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 利用可能なカメラ一覧を取得したい
// - カメラの抜き差しに追従したい
// - 選択中のカメラが消えたときに自動で切り替えたい
//
// # 仕様
// - Registry: デバイス一覧と選択中デバイスの唯一の書き込み元
// - Discovery: V4L2デバイスの検出・実名取得（/sys/class/video4linux）
// - Watcher: fsnotify による /dev の監視
// - Opener: VIDIOC_QUERYCAP で映像キャプチャ可能か確認して入力を開く
// - Registry 自身はデバイスを開かない
//
// # 前提要件
//   - v4l-utils: sysfs に名前がない場合のカメラ名取得に使用
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
