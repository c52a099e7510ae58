package pool_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bdrosen96/aioredis/lib/errors"
	"github.com/bdrosen96/aioredis/lib/pool"
	"github.com/bdrosen96/aioredis/lib/testutil"
)

const testAddress = "localhost:6379"

func newPool(t *testing.T, f *testutil.FakeFactory, minSize, maxSize int) *pool.Pool {
	t.Helper()
	cfg := pool.DefaultConfig()
	cfg.Address = testAddress
	cfg.MinSize = minSize
	cfg.MaxSize = maxSize
	p, err := pool.New(context.Background(), f.Dial, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Close(context.Background())
	})
	return p
}

func fake(t *testing.T, conn pool.Conn) *testutil.FakeConn {
	t.Helper()
	fc, ok := conn.(*testutil.FakeConn)
	require.True(t, ok, "unexpected connection type %T", conn)
	return fc
}

// acquireAsync starts an Acquire in the background.
func acquireAsync(ctx context.Context, p *pool.Pool) <-chan acquireResult {
	ch := make(chan acquireResult, 1)
	go func() {
		conn, err := p.Acquire(ctx)
		ch <- acquireResult{conn, err}
	}()
	return ch
}

type acquireResult struct {
	conn pool.Conn
	err  error
}

func requireBlocked(t *testing.T, ch <-chan acquireResult) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("acquire returned early: conn=%v err=%v", r.conn, r.err)
	case <-time.After(50 * time.Millisecond):
	}
}

func receive(t *testing.T, ch <-chan acquireResult) acquireResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not return")
		return acquireResult{}
	}
}

func TestNewFillsToMinimum(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 3, 5)

	assert.Equal(t, 3, f.Created())
	assert.Equal(t, 3, p.Size())
	assert.Equal(t, 3, p.FreeSize())
	assert.Equal(t, 3, p.MinSize())
	assert.Equal(t, 5, p.MaxSize())
	assert.Equal(t, testAddress, p.Address())
	assert.Equal(t, 0, p.DB())

	for _, opts := range f.Options() {
		assert.Equal(t, testAddress, opts.Address)
		assert.Equal(t, 0, opts.DB)
	}
}

func TestNewPassesDialOptions(t *testing.T) {
	f := testutil.NewFakeFactory()
	cfg := pool.Config{
		Address:  "/tmp/redis.sock",
		DB:       2,
		Password: "secret",
		Encoding: "utf-8",
		MinSize:  1,
		MaxSize:  1,
	}
	p, err := pool.New(context.Background(), f.Dial, cfg)
	require.NoError(t, err)
	defer p.Close(context.Background())

	require.Len(t, f.Options(), 1)
	assert.Equal(t, pool.DialOptions{
		Address:  "/tmp/redis.sock",
		DB:       2,
		Password: "secret",
		Encoding: "utf-8",
	}, f.Options()[0])
	assert.Equal(t, "utf-8", p.Encoding())
	assert.Equal(t, 2, p.DB())
}

func TestNewInvalidConfig(t *testing.T) {
	f := testutil.NewFakeFactory()

	_, err := pool.New(context.Background(), nil, pool.Config{Address: testAddress})
	assert.ErrorIs(t, err, pool.ErrInvalidConfig)

	tests := []struct {
		name string
		cfg  pool.Config
	}{
		{"missing address", pool.Config{MinSize: 1, MaxSize: 1}},
		{"min above max", pool.Config{Address: testAddress, MinSize: 5, MaxSize: 2}},
		{"negative min", pool.Config{Address: testAddress, MinSize: -1, MaxSize: 2}},
		{"negative db", pool.Config{Address: testAddress, DB: -1}},
		{"negative timeout", pool.Config{Address: testAddress, AcquireTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pool.New(context.Background(), f.Dial, tt.cfg)
			assert.ErrorIs(t, err, pool.ErrInvalidConfig)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}
	assert.Zero(t, f.Created())
}

func TestNewFactoryFailureClosesCreated(t *testing.T) {
	f := testutil.NewFakeFactory()
	boom := errors.New("connection refused")
	calls := 0
	factory := func(ctx context.Context, opts pool.DialOptions) (pool.Conn, error) {
		calls++
		if calls == 3 {
			return nil, boom
		}
		return f.Dial(ctx, opts)
	}

	cfg := pool.Config{Address: testAddress, MinSize: 4, MaxSize: 4}
	p, err := pool.New(context.Background(), factory, cfg)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)

	require.Len(t, f.Conns(), 2)
	for _, c := range f.Conns() {
		assert.True(t, c.Closed(), "%v left open", c)
	}
}

func TestAcquireReleaseReuse(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 2)
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, p.FreeSize())
	assert.Equal(t, 1, p.Size())

	require.NoError(t, p.Release(conn))
	assert.Equal(t, 1, p.FreeSize())
	assert.False(t, conn.Closed())

	again, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, fake(t, conn), fake(t, again))
	assert.Equal(t, 1, f.Created())

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.AcquireCount)
	assert.Equal(t, uint64(1), stats.ReleaseCount)
	assert.Equal(t, 1, stats.Leased)
}

func TestAcquireFIFO(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 3, 3)
	ctx := context.Background()

	for _, want := range f.Conns() {
		conn, err := p.Acquire(ctx)
		require.NoError(t, err)
		assert.Same(t, want, fake(t, conn))
	}
}

func TestAcquireSingleConnectionShared(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 1)
	ctx := context.Background()

	first, err := p.Acquire(ctx)
	require.NoError(t, err)

	second := acquireAsync(ctx, p)
	requireBlocked(t, second)

	require.NoError(t, p.Release(first))
	r := receive(t, second)
	require.NoError(t, r.err)
	assert.Same(t, fake(t, first), fake(t, r.conn))
	assert.Equal(t, 1, f.Created())
	assert.Equal(t, uint64(1), p.Stats().AcquireWaits)
}

func TestAcquireGrowsToMaxSize(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 0, 2)
	ctx := context.Background()
	assert.Equal(t, 0, p.Size())

	results := make(chan acquireResult, 3)
	for i := 0; i < 3; i++ {
		go func() {
			conn, err := p.Acquire(ctx)
			results <- acquireResult{conn, err}
		}()
	}

	var held []pool.Conn
	for i := 0; i < 2; i++ {
		r := receive(t, results)
		require.NoError(t, r.err)
		held = append(held, r.conn)
	}
	requireBlocked(t, results)
	assert.Equal(t, 2, f.Created())
	assert.Equal(t, 2, p.Size())

	require.NoError(t, p.Release(held[0]))
	r := receive(t, results)
	require.NoError(t, r.err)
	assert.Same(t, fake(t, held[0]), fake(t, r.conn))
	assert.Equal(t, 2, f.Created())
}

func TestAcquireTopsUpOneAtATime(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 4)
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Created())

	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Created())
	assert.Equal(t, 0, p.FreeSize())

	require.NoError(t, p.Release(a))
	require.NoError(t, p.Release(b))
	assert.Equal(t, 2, p.FreeSize())
	assert.Equal(t, 2, p.Size())
}

func TestAcquirePendingCountsTowardSize(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 0, 1)
	ctx := context.Background()

	release := f.Hold()
	defer release()

	first := acquireAsync(ctx, p)
	require.Eventually(t, func() bool {
		return f.Dialing() == 1
	}, time.Second, 5*time.Millisecond)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Size)

	// The slot is reserved, so a second caller waits instead of dialing.
	second := acquireAsync(ctx, p)
	requireBlocked(t, second)
	assert.Equal(t, 1, f.Dialing())

	release()
	r := receive(t, first)
	require.NoError(t, r.err)
	assert.Equal(t, 0, p.Stats().Pending)

	require.NoError(t, p.Release(r.conn))
	r2 := receive(t, second)
	require.NoError(t, r2.err)
	assert.Equal(t, 1, f.Created())
}

func TestAcquireCreationError(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 0, 1)
	ctx := context.Background()
	boom := errors.New("connection refused")
	f.FailNext(1, boom)

	_, err := p.Acquire(ctx)
	require.Error(t, err)

	var cerr *pool.CreationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, testAddress, cerr.Address)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, apperrors.ErrCreation)
	assert.True(t, apperrors.IsCreation(err))

	stats := p.Stats()
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, uint64(1), stats.CreateFailed)

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestAcquireCreationFailureWakesWaiter(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 0, 1)
	ctx := context.Background()

	release := f.Hold()
	first := acquireAsync(ctx, p)
	require.Eventually(t, func() bool {
		return f.Dialing() == 1
	}, time.Second, 5*time.Millisecond)
	second := acquireAsync(ctx, p)
	requireBlocked(t, second)

	f.FailNext(1, errors.New("boom"))
	release()

	r := receive(t, first)
	require.Error(t, r.err)

	// The waiter takes over the freed slot and dials itself.
	r2 := receive(t, second)
	require.NoError(t, r2.err)
	assert.Equal(t, 1, f.Created())
}

func TestAcquireContextCanceled(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 1)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	waiter := acquireAsync(ctx, p)
	requireBlocked(t, waiter)
	cancel()

	r := receive(t, waiter)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Nil(t, r.conn)

	require.NoError(t, p.Release(held))
	assert.Equal(t, 1, p.FreeSize())
}

func TestAcquireDeadline(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 1)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, pool.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, apperrors.IsTimeout(err))
}

func TestAcquireTimeoutConfig(t *testing.T) {
	f := testutil.NewFakeFactory()
	cfg := pool.Config{
		Address:        testAddress,
		MinSize:        1,
		MaxSize:        1,
		AcquireTimeout: 30 * time.Millisecond,
	}
	p, err := pool.New(context.Background(), f.Dial, cfg)
	require.NoError(t, err)
	defer p.Close(context.Background())

	_, err = p.Acquire(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, pool.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestCanceledWaiterPassesWakeUpOn(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 1)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	canceled := acquireAsync(ctx, p)
	requireBlocked(t, canceled)
	patient := acquireAsync(context.Background(), p)
	requireBlocked(t, patient)

	cancel()
	require.NoError(t, p.Release(held))

	r := receive(t, canceled)
	if r.err == nil {
		// The release won the race; hand the connection back.
		require.NoError(t, p.Release(r.conn))
	}
	r2 := receive(t, patient)
	require.NoError(t, r2.err)
	assert.Same(t, fake(t, held), fake(t, r2.conn))
}

func TestReleaseMisuse(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 1)
	before := p.Stats()

	foreign := testutil.NewFakeConn(99, 0)
	err := p.Release(foreign)
	require.Error(t, err)

	var merr *pool.MisuseError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "release", merr.Op)
	assert.ErrorIs(t, err, pool.ErrNotLeased)
	assert.ErrorIs(t, err, apperrors.ErrMisuse)
	assert.False(t, foreign.Closed())

	after := p.Stats()
	assert.Equal(t, before.Size, after.Size)
	assert.Equal(t, before.Free, after.Free)
	assert.Equal(t, before.ReleaseCount, after.ReleaseCount)

	assert.ErrorIs(t, p.Release(nil), pool.ErrNotLeased)
}

func TestReleaseTwice(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 1)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(conn))

	err = p.Release(conn)
	assert.ErrorIs(t, err, pool.ErrNotLeased)
	assert.Equal(t, 1, p.FreeSize())
}

func TestReleaseFromOtherPool(t *testing.T) {
	p1 := newPool(t, testutil.NewFakeFactory(), 1, 1)
	p2 := newPool(t, testutil.NewFakeFactory(), 1, 1)

	conn, err := p1.Acquire(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, p2.Release(conn), pool.ErrNotLeased)
	assert.NoError(t, p1.Release(conn))
}

func TestReleaseInTransactionCloses(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 1)
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	fake(t, conn).SetInTransaction(true)

	require.NoError(t, p.Release(conn))
	assert.True(t, conn.Closed())
	assert.Equal(t, 0, p.FreeSize())
	assert.Equal(t, uint64(1), p.Stats().RecycleAnomalies)

	next, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, fake(t, conn), fake(t, next))
	assert.Equal(t, 2, f.Created())
}

func TestReleaseClosedConnection(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 1)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.NoError(t, p.Release(conn))
	assert.Equal(t, 0, p.FreeSize())
	assert.Equal(t, 0, p.Size())
	assert.Equal(t, 1, fake(t, conn).CloseCalls())
	assert.Zero(t, p.Stats().RecycleAnomalies)
}

func TestReleaseDatabaseChangedCloses(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 1)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	fake(t, conn).SetDB(7)

	require.NoError(t, p.Release(conn))
	assert.True(t, conn.Closed())
	assert.Equal(t, 0, p.FreeSize())
	assert.Equal(t, uint64(1), p.Stats().RecycleAnomalies)
}

func TestReleaseMaxSizeZeroCloses(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 1, 0)
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(conn))
	assert.True(t, conn.Closed())
	assert.Equal(t, 0, p.FreeSize())

	// The minimum is still honoured on the next acquire.
	next, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, fake(t, conn), fake(t, next))
}

func TestReleaseClosedConnectionSkippedByAcquire(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 2, 2)

	// A free connection that broke while idle.
	require.NoError(t, f.Conns()[0].Close())

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, f.Conns()[1], fake(t, conn))
	assert.False(t, conn.Closed())
}

func TestSelect(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 2, 2)
	ctx := context.Background()

	leased, err := p.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Select(ctx, 1))
	assert.Equal(t, 1, p.DB())
	assert.Equal(t, 0, leased.DB())

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, conn.DB())
	assert.Equal(t, []int{1}, fake(t, conn).Selects())

	// The connection leased before the switch is not recycled.
	require.NoError(t, p.Release(leased))
	assert.True(t, leased.Closed())

	// New connections are dialed on the new database.
	next, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next.DB())
	opts := f.Options()
	assert.Equal(t, 1, opts[len(opts)-1].DB)
}

func TestSelectFailureDropsConnection(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 2, 2)
	ctx := context.Background()
	broken := f.Conns()[0]
	boom := errors.New("select failed")
	broken.FailSelect(boom)

	err := p.Select(ctx, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.True(t, broken.Closed())
	assert.Equal(t, 1, p.FreeSize())
	assert.Equal(t, 3, p.DB())
	assert.Equal(t, 3, f.Conns()[1].DB())
}

func TestSelectInvalid(t *testing.T) {
	p := newPool(t, testutil.NewFakeFactory(), 1, 1)
	assert.ErrorIs(t, p.Select(context.Background(), -1), pool.ErrInvalidConfig)
	assert.Equal(t, 0, p.DB())
}

func TestSelectDuringCreation(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 0, 1)
	ctx := context.Background()

	release := f.Hold()
	res := acquireAsync(ctx, p)
	require.Eventually(t, func() bool {
		return f.Dialing() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Select(ctx, 4))
	release()

	r := receive(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, 4, r.conn.DB())
	assert.Equal(t, 0, f.Options()[0].DB)
}

func TestClear(t *testing.T) {
	f := testutil.NewFakeFactory()
	f.SetCloseDelay(10 * time.Millisecond)
	p := newPool(t, f, 3, 3)
	ctx := context.Background()

	leased, err := p.Acquire(ctx)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, p.Clear(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	assert.Equal(t, 0, p.FreeSize())
	for _, c := range f.Conns() {
		if c == fake(t, leased) {
			assert.False(t, c.Closed())
			continue
		}
		assert.True(t, c.Closed())
	}

	// A leased connection survives and is recycled on release.
	require.NoError(t, p.Release(leased))
	assert.Equal(t, 1, p.FreeSize())
}

func TestClearWaitRespectsContext(t *testing.T) {
	f := testutil.NewFakeFactory()
	f.SetCloseDelay(time.Second)
	p := newPool(t, f, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Clear(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, p.FreeSize())
}

func TestCloseRejectsAcquire(t *testing.T) {
	f := testutil.NewFakeFactory()
	cfg := pool.Config{Address: testAddress, MinSize: 2, MaxSize: 2}
	p, err := pool.New(context.Background(), f.Dial, cfg)
	require.NoError(t, err)
	ctx := context.Background()

	leased, err := p.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Close(ctx))
	assert.True(t, p.Closed())
	assert.Equal(t, 0, p.FreeSize())

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, pool.ErrPoolClosed)
	assert.True(t, apperrors.IsClosed(err))

	assert.ErrorIs(t, p.Select(ctx, 1), pool.ErrPoolClosed)
	assert.ErrorIs(t, p.Close(ctx), pool.ErrPoolClosed)

	require.NoError(t, p.Release(leased))
	assert.True(t, leased.Closed())
	assert.Equal(t, 0, p.Size())
}

func TestCloseWakesWaiters(t *testing.T) {
	f := testutil.NewFakeFactory()
	cfg := pool.Config{Address: testAddress, MinSize: 1, MaxSize: 1}
	p, err := pool.New(context.Background(), f.Dial, cfg)
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	require.NoError(t, err)

	waiter := acquireAsync(context.Background(), p)
	requireBlocked(t, waiter)

	require.NoError(t, p.Close(context.Background()))
	r := receive(t, waiter)
	assert.ErrorIs(t, r.err, pool.ErrPoolClosed)
}

func TestCloseDuringCreation(t *testing.T) {
	f := testutil.NewFakeFactory()
	cfg := pool.Config{Address: testAddress, MinSize: 0, MaxSize: 1}
	p, err := pool.New(context.Background(), f.Dial, cfg)
	require.NoError(t, err)

	release := f.Hold()
	res := acquireAsync(context.Background(), p)
	require.Eventually(t, func() bool {
		return f.Dialing() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close(context.Background()))
	release()

	r := receive(t, res)
	assert.ErrorIs(t, r.err, pool.ErrPoolClosed)
	require.Len(t, f.Conns(), 1)
	assert.True(t, f.Conns()[0].Closed())
	assert.Equal(t, 0, p.Size())
}

func TestConcurrentInvariants(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newPool(t, f, 2, 5)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		inUse = make(map[pool.Conn]bool)
		wg    sync.WaitGroup
	)
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				err := p.Do(ctx, func(conn pool.Conn) error {
					mu.Lock()
					if inUse[conn] {
						mu.Unlock()
						return errors.New("connection leased twice")
					}
					inUse[conn] = true
					mu.Unlock()

					if size := p.Size(); size > 5 {
						return errors.New("pool grew past MaxSize")
					}
					time.Sleep(time.Millisecond / 10)

					mu.Lock()
					delete(inUse, conn)
					mu.Unlock()
					return nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	stats := p.Stats()
	assert.Equal(t, 0, stats.Leased)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, stats.Free, stats.Size)
	assert.LessOrEqual(t, stats.Size, 5)
	assert.GreaterOrEqual(t, stats.Size, 2)
	assert.LessOrEqual(t, f.Created(), 5)
	assert.Equal(t, uint64(1000), stats.AcquireCount)
	assert.Equal(t, uint64(1000), stats.ReleaseCount)
	assert.Equal(t, int(stats.Created-stats.Closed), stats.Size)
}
