package session

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed は閉じられたキューに操作を積もうとした場合のエラー
var ErrQueueClosed = errors.New("キューは閉じられています")

// Op はキュー上で実行される操作
type Op func(ctx context.Context)

type queuedOp struct {
	op   Op
	done chan struct{}
}

// SerialQueue は操作を1つのワーカーで積まれた順に実行する
// キューに上限はなく、優先度や統合は行わない
type SerialQueue struct {
	ctx context.Context

	mu        sync.Mutex
	pending   []queuedOp
	accepting bool

	wake     chan struct{}
	finished chan struct{}
}

// NewSerialQueue はワーカーを起動した SerialQueue を作成する
// ctx は各操作に渡される。ctx のキャンセルで実行中の操作は中断されない
func NewSerialQueue(ctx context.Context) *SerialQueue {
	q := &SerialQueue{
		ctx:       context.WithoutCancel(ctx),
		accepting: true,
		wake:      make(chan struct{}, 1),
		finished:  make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit は操作を積み、完了時に閉じられるチャンネルを返す
func (q *SerialQueue) Submit(op Op) (<-chan struct{}, error) {
	done := make(chan struct{})

	q.mu.Lock()
	if !q.accepting {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.pending = append(q.pending, queuedOp{op: op, done: done})
	q.mu.Unlock()

	q.signal()
	return done, nil
}

// Run は操作を積み、完了するか ctx が終了するまで待つ
// ctx が先に終了しても操作はキュー上で最後まで実行される
func (q *SerialQueue) Run(ctx context.Context, op Op) error {
	done, err := q.Submit(op)
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len は未実行の操作数を返す
func (q *SerialQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close は新しい操作の受け付けを止め、積まれた操作が全て終わるのを待つ
func (q *SerialQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.accepting = false
	q.mu.Unlock()

	q.signal()

	select {
	case <-q.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SerialQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *SerialQueue) run() {
	defer close(q.finished)

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			accepting := q.accepting
			q.mu.Unlock()
			if !accepting {
				return
			}
			<-q.wake
			continue
		}
		next := q.pending[0]
		q.pending[0] = queuedOp{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		next.op(q.ctx)
		close(next.done)
	}
}
