package permission

import (
	"context"
	"sync"
)

// MockAuthorizer はテスト用の Authorizer 実装
type MockAuthorizer struct {
	mu       sync.Mutex
	status   OSStatus
	grant    bool
	err      error
	requests int
	gate     chan struct{} // nil でなければ Request はこれが閉じるまで待つ
}

// NewMockAuthorizer は指定した状態の MockAuthorizer を作成する
func NewMockAuthorizer(status OSStatus) *MockAuthorizer {
	return &MockAuthorizer{status: status}
}

// Status は設定された状態を返す
func (m *MockAuthorizer) Status(_ context.Context) (OSStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return OSStatusUnknown, m.err
	}
	return m.status, nil
}

// Request はユーザーの応答を模倣する。応答に応じて状態も更新する
func (m *MockAuthorizer) Request(ctx context.Context) (bool, error) {
	m.mu.Lock()
	m.requests++
	wait := m.gate
	m.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.grant {
		m.status = OSStatusAuthorized
	} else {
		m.status = OSStatusDenied
	}
	return m.grant, nil
}

// SetUserAnswer はリクエスト時のユーザーの応答を設定する
func (m *MockAuthorizer) SetUserAnswer(grant bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grant = grant
}

// SetStatus は状態を直接変更する（OS設定の外部変更を模倣）
func (m *MockAuthorizer) SetStatus(status OSStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// SetError はエラーを返すように設定する
func (m *MockAuthorizer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// HoldRequests は ReleaseRequests が呼ばれるまで Request を待機させる
func (m *MockAuthorizer) HoldRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

// ReleaseRequests は待機中の Request を解放する
func (m *MockAuthorizer) ReleaseRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Requests は Request が呼ばれた回数を返す
func (m *MockAuthorizer) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// RecordingAlerter は表示されたアラートを記録するテスト用 Alerter
type RecordingAlerter struct {
	mu     sync.Mutex
	titles []string
}

// Acknowledge はタイトルを記録して即座に戻る
func (r *RecordingAlerter) Acknowledge(title, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
}

// Count は表示された回数を返す
func (r *RecordingAlerter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}
