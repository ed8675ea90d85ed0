package state

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kagami/internal/camera"
	"kagami/internal/permission"
)

// Store はセッション状態を保持する
// permission.Publisher と camera.Publisher を満たす
type Store struct {
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	current     Snapshot
	subscribers map[uuid.UUID]*subscriber
	closed      bool
}

// NewStore は初期状態（権限未確定、デバイスなし、停止中）の Store を作成する
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		logger:      logger.Named("state"),
		now:         time.Now,
		subscribers: make(map[uuid.UUID]*subscriber),
	}
	s.current = Snapshot{
		Authorization: permission.StateNotDetermined,
		Devices:       camera.DeviceList{},
		Phase:         PhaseIdle,
		UpdatedAt:     s.now(),
	}
	return s
}

// Current は最新のスナップショットを返す
func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// View は最新のスナップショットに対応する表示内容を返す
func (s *Store) View() View {
	return s.Current().View()
}

// SetAuthorization は権限状態を更新する
func (s *Store) SetAuthorization(auth permission.State) {
	s.update(func(snap *Snapshot) bool {
		if snap.Authorization == auth {
			return false
		}
		snap.Authorization = auth
		return true
	})
}

// SetDevices はデバイス一覧と選択中デバイスを更新する
func (s *Store) SetDevices(devices camera.DeviceList, selectedID string) {
	list := camera.DeviceList(slices.Clone(devices))
	if list == nil {
		list = camera.DeviceList{}
	}

	s.update(func(snap *Snapshot) bool {
		if snap.SelectedID == selectedID && snap.Devices.Equal(list) {
			return false
		}
		snap.Devices = list
		snap.SelectedID = selectedID
		return true
	})
}

// SetSession は動作状態と段階を更新する
func (s *Store) SetSession(running bool, phase Phase) {
	s.update(func(snap *Snapshot) bool {
		if snap.IsRunning == running && snap.Phase == phase {
			return false
		}
		snap.IsRunning = running
		snap.Phase = phase
		return true
	})
}

// update は変更があればバージョンを進めて全購読者に配信する
func (s *Store) update(apply func(*Snapshot) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if !apply(&next) {
		return
	}
	next.Version++
	next.UpdatedAt = s.now()
	s.current = next

	s.logger.Debug("状態を更新しました",
		zap.Uint64("version", next.Version),
		zap.String("phase", string(next.Phase)),
		zap.Bool("running", next.IsRunning),
		zap.String("authorization", string(next.Authorization)),
	)

	for _, sub := range s.subscribers {
		sub.push(next)
	}
}

// Subscribe は状態の購読を開始する
// 最初に現在のスナップショットが届き、以降は全ての更新が順番通りに届く
func (s *Store) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := newSubscriber()
	if s.closed {
		sub.stop()
	} else {
		s.subscribers[sub.id] = sub
		sub.push(s.current)
	}
	go sub.pump()

	return &Subscription{
		ID: sub.id,
		C:  sub.out,
		close: func() {
			s.mu.Lock()
			delete(s.subscribers, sub.id)
			s.mu.Unlock()
			sub.stop()
		},
	}
}

// Subscribers は購読者の数を返す
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Close は全ての購読を終了する。以降の更新は配信されない
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subscribers {
		sub.stop()
		delete(s.subscribers, id)
	}
}
