// Package session はキャプチャセッションの開始・停止・入力切り替えを管理する
//
// セッションへの変更は全て1つの SerialQueue 上で順番に実行されるため、
// 複数の経路から同時に呼ばれても操作が交錯することはない。
package session
