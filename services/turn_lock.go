package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// TurnLocker serializes conversation turns for one phone
type TurnLocker interface {
	Lock(ctx context.Context, phone string) (unlock func(), err error)
}

// MemoryTurnLocker is a keyed mutex for a single process
type MemoryTurnLocker struct {
	mu    sync.Mutex
	locks map[string]*phoneLock
}

type phoneLock struct {
	ch      chan struct{}
	holders int
}

// NewMemoryTurnLocker creates an in-process turn locker
func NewMemoryTurnLocker() *MemoryTurnLocker {
	return &MemoryTurnLocker{locks: make(map[string]*phoneLock)}
}

// Lock waits for the phone's turn or until ctx is done
func (l *MemoryTurnLocker) Lock(ctx context.Context, phone string) (func(), error) {
	l.mu.Lock()
	pl, ok := l.locks[phone]
	if !ok {
		pl = &phoneLock{ch: make(chan struct{}, 1)}
		l.locks[phone] = pl
	}
	pl.holders++
	l.mu.Unlock()

	select {
	case pl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(phone, pl, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(phone, pl, true) })
	}, nil
}

func (l *MemoryTurnLocker) release(phone string, pl *phoneLock, held bool) {
	if held {
		<-pl.ch
	}
	l.mu.Lock()
	pl.holders--
	if pl.holders == 0 {
		delete(l.locks, phone)
	}
	l.mu.Unlock()
}

// unlockScript deletes the lock only if this holder still owns it
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisTurnLocker serializes turns across replicas with SET NX PX
type RedisTurnLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// NewRedisTurnLocker creates a distributed turn locker; ttl bounds how long a crashed holder blocks a phone
func NewRedisTurnLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisTurnLocker {
	return &RedisTurnLocker{client: client, prefix: prefix + ":turn:", ttl: ttl, poll: 50 * time.Millisecond}
}

// Lock polls until the lock is acquired or ctx is done
func (l *RedisTurnLocker) Lock(ctx context.Context, phone string) (func(), error) {
	key := l.prefix + phone
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire turn lock: %w", err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrTurnLockTimeout, ctx.Err())
		case <-timer.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}

// ErrTurnLockTimeout means another turn for the same phone held the lock too long
var ErrTurnLockTimeout = errors.New("timed out waiting for conversation turn")
