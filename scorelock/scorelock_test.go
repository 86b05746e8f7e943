package scorelock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

func testExclusive(t *testing.T, l Locker, user string) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), user)
			if err != nil {
				t.Error(err)
				return
			}
			defer unlock()
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("%d holders at once", maxSeen)
	}
}

func TestLocalExclusive(t *testing.T) {
	testExclusive(t, NewLocal(), "u1")
}

func TestLocalContext(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "u1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err %v", err)
	}
	// other users are not blocked
	unlock2, err := l.Lock(context.Background(), "u2")
	if err != nil {
		t.Fatal(err)
	}
	unlock2()
	unlock()

	// the abandoned waiter returns the lock
	unlock, err = l.Lock(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	unlock()
}

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("JUDGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("JUDGE_TEST_REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), RedisConfig{Addr: addr, TTL: 5 * time.Second, RetryDelay: 5 * time.Millisecond}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRedisExclusive(t *testing.T) {
	r := newTestRedis(t)
	testExclusive(t, r, uuid.NewString())
}

func TestRedisReleaseKeepsForeignLock(t *testing.T) {
	r := newTestRedis(t)
	user := uuid.NewString()
	ctx := context.Background()

	if err := r.client.Set(ctx, keyPrefix+user, "someone-else", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}
	defer r.client.Del(ctx, keyPrefix+user)

	r.release(keyPrefix+user, "my-token")
	if v, _ := r.client.Get(ctx, keyPrefix+user).Result(); v != "someone-else" {
		t.Fatalf("foreign lock released, value %q", v)
	}
}
