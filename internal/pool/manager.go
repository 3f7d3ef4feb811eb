package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coachpo/longport-go/internal/observability"
)

// ErrArenasClosed indicates the manager is shutting down and lends no more arenas.
var ErrArenasClosed = errors.New("arena manager: shutdown in progress")

// ArenaManager lends arenas out of one bounded pool and tracks them so that shutdown
// can wait for them and report leaks.
type ArenaManager struct {
	pool         *BoundedPool
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	inFlight     sync.WaitGroup
	activeCount  atomic.Int64
}

// NewArenaManager builds a manager holding at most capacity arenas.
func NewArenaManager(capacity int) (*ArenaManager, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("arena manager: capacity must be positive, got %d", capacity)
	}
	return &ArenaManager{
		pool:       NewBoundedPool(arenaPool, capacity, NewArena),
		shutdownCh: make(chan struct{}),
	}, nil
}

// Acquire takes an arena, waiting at most timeout when the pool is exhausted. The release
// function returns it; calls after the first do nothing.
func (am *ArenaManager) Acquire(ctx context.Context, timeout time.Duration) (*Arena, func(), error) {
	select {
	case <-am.shutdownCh:
		return nil, nil, ErrArenasClosed
	default:
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	obj, err := am.pool.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("arena manager: acquire: %w", err)
	}
	arena, ok := obj.(*Arena)
	if !ok {
		am.pool.Put(obj)
		return nil, nil, fmt.Errorf("arena manager: unexpected object %T", obj)
	}

	am.inFlight.Add(1)
	am.activeCount.Add(1)
	var once sync.Once
	return arena, func() {
		once.Do(func() {
			defer am.inFlight.Done()
			defer am.activeCount.Add(-1)
			am.pool.Put(arena)
		})
	}, nil
}

// Active returns how many arenas are lent out.
func (am *ArenaManager) Active() int64 { return am.activeCount.Load() }

// Shutdown waits for all lent arenas to be returned or gives up when ctx ends
// (5 seconds when ctx has no deadline). Outstanding arenas are logged.
func (am *ArenaManager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
	}
	if cancel != nil {
		defer cancel()
	}

	am.shutdownOnce.Do(func() {
		close(am.shutdownCh)
	})

	done := make(chan struct{})
	go func() {
		am.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		remaining := am.activeCount.Load()
		am.logOutstanding(remaining)
		return fmt.Errorf("shutdown timeout: %d arenas unreturned", remaining)
	}
}

func (am *ArenaManager) logOutstanding(remaining int64) {
	if remaining <= 0 {
		return
	}
	log := observability.Log()
	log.Error("arena manager: shutdown timed out", observability.F("in_flight", remaining))
	for _, stack := range am.pool.activeStacks() {
		log.Error("arena manager: leak candidate", observability.F("pool", am.pool.name), observability.F("stack", stack))
	}
}
