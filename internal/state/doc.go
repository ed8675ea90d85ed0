// Package state はセッション状態のスナップショットを保持し、購読者に配信する
//
// 書き込みは権限ゲート、デバイスレジストリ、セッションコントローラーの3者のみが行う。
// 各書き込みでバージョンが1つ進み、全ての購読者に順序通り欠落なく届く。
package state
