package state

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription は状態の購読
// C は Close されるか Store が閉じられると閉じられる
type Subscription struct {
	ID uuid.UUID
	C  <-chan Snapshot

	close func()
	once  sync.Once
}

// Close は購読を終了する
func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// subscriber は購読者ごとの配信キュー
// 書き込み側をブロックしないよう、キューは上限を持たず pump が順に送り出す
type subscriber struct {
	id  uuid.UUID
	out chan Snapshot

	mu    sync.Mutex
	queue []Snapshot
	wake  chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

func newSubscriber() *subscriber {
	return &subscriber{
		id:   uuid.New(),
		out:  make(chan Snapshot),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *subscriber) push(snap Snapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscriber) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = Snapshot{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
