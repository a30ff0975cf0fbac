package review

import (
	"context"
	"fmt"
	"sync"
)

type command struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

type mailbox struct {
	commands chan command
	pending  int
}

// commandQueue runs commands one at a time per key. Each busy key gets its own
// goroutine, which exits once its mailbox is empty, so commands for different
// keys run concurrently.
type commandQueue struct {
	mu    sync.Mutex
	boxes map[string]*mailbox
}

func newCommandQueue() *commandQueue {
	return &commandQueue{boxes: make(map[string]*mailbox)}
}

// Do runs fn after every command queued earlier for key and returns its error.
// If ctx ends first Do returns ctx.Err(); fn then sees the cancelled context when it runs.
func (q *commandQueue) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	cmd := command{ctx: ctx, run: fn, done: make(chan error, 1)}

	q.mu.Lock()
	box, ok := q.boxes[key]
	if !ok {
		box = &mailbox{commands: make(chan command, 16)}
		q.boxes[key] = box
		go q.drain(key, box)
	}
	box.pending++
	q.mu.Unlock()

	select {
	case box.commands <- cmd:
	case <-ctx.Done():
		q.withdraw(key, box)
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *commandQueue) drain(key string, box *mailbox) {
	for cmd := range box.commands {
		cmd.done <- execute(cmd)

		q.mu.Lock()
		box.pending--
		if box.pending == 0 {
			delete(q.boxes, key)
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
	}
}

// withdraw releases the slot a caller reserved but never filled. When it was
// the last one the mailbox is idle, so its goroutine is stopped.
func (q *commandQueue) withdraw(key string, box *mailbox) {
	q.mu.Lock()
	defer q.mu.Unlock()
	box.pending--
	if box.pending == 0 {
		delete(q.boxes, key)
		close(box.commands)
	}
}

func execute(cmd command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("review command panicked: %v", r)
		}
	}()
	if err := cmd.ctx.Err(); err != nil {
		return err
	}
	return cmd.run(cmd.ctx)
}

// active returns the number of keys with queued or running commands
func (q *commandQueue) active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.boxes)
}

// batchLocks hands out one RWMutex per batch. Cluster commands share the read
// side; whole-batch operations take the write side.
type batchLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newBatchLocks() *batchLocks {
	return &batchLocks{locks: make(map[string]*sync.RWMutex)}
}

func (b *batchLocks) get(batchID string) *sync.RWMutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.locks[batchID]
	if !ok {
		lock = &sync.RWMutex{}
		b.locks[batchID] = lock
	}
	return lock
}
