package review

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestCommandQueue_SerializesPerKey(t *testing.T) {
	q := newCommandQueue()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		running int
		order   []int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Do(ctx, "cluster-1", func(ctx context.Context) error {
				running++
				defer func() { running-- }()
				if running != 1 {
					return stderrors.New("commands overlapped")
				}
				order = append(order, i)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, order, 50)
	assert.Eventually(t, func() bool { return q.active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCommandQueue_KeysRunConcurrently(t *testing.T) {
	q := newCommandQueue()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- q.Do(ctx, "slow", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := q.Do(ctx, "fast", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
}

func TestCommandQueue_ErrorsAndPanics(t *testing.T) {
	q := newCommandQueue()
	ctx := context.Background()

	boom := stderrors.New("boom")
	assert.ErrorIs(t, q.Do(ctx, "k", func(ctx context.Context) error { return boom }), boom)
	assert.ErrorContains(t, q.Do(ctx, "k", func(ctx context.Context) error { panic("bad") }), "panicked")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	ran := false
	err := q.Do(cancelled, "k", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Eventually(t, func() bool { return q.active() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, ran)
}

func TestCommandQueue_CancelledWhileMailboxFull(t *testing.T) {
	q := newCommandQueue()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, q.Do(ctx, "k", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		}))
	}()
	<-started

	queued := func() int {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.boxes["k"].commands)
	}
	q.mu.Lock()
	capacity := cap(q.boxes["k"].commands)
	q.mu.Unlock()
	for i := 0; i < capacity; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Do(ctx, "k", func(ctx context.Context) error { return nil }))
		}()
	}
	require.Eventually(t, func() bool { return queued() == capacity }, time.Second, 5*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	done := make(chan error, 1)
	go func() {
		done <- q.Do(cancelled, "k", func(ctx context.Context) error { return nil })
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller stayed blocked on a full mailbox")
	}

	close(release)
	wg.Wait()
	assert.Eventually(t, func() bool { return q.active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCommandQueue_WithdrawStopsIdleMailbox(t *testing.T) {
	q := newCommandQueue()

	q.mu.Lock()
	box := &mailbox{commands: make(chan command, 1), pending: 1}
	q.boxes["k"] = box
	q.mu.Unlock()

	q.withdraw("k", box)
	assert.Equal(t, 0, q.active())
	_, open := <-box.commands
	assert.False(t, open)
}

func TestNotifiers(t *testing.T) {
	var calls int
	ok := NotifierFunc(func(ctx context.Context, change models.ClusterChange) error {
		calls++
		return nil
	})
	failing := NotifierFunc(func(ctx context.Context, change models.ClusterChange) error {
		calls++
		return stderrors.New("broker down")
	})

	err := Notifiers{ok, nil, failing, ok}.Notify(context.Background(), models.ClusterChange{Type: models.ClusterChangeMerged})
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 3, calls)
}
