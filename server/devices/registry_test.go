package devices_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-alert-web/apiclient/apifake"
	"github.com/jrsteele09/go-alert-web/server/devices"
	"github.com/jrsteele09/go-alert-web/session"
	"github.com/jrsteele09/go-alert-web/storage"
	"github.com/jrsteele09/go-alert-web/users"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	backend *devices.MemoryBackend
	api     *apifake.FakeClient
	mu      sync.Mutex
	now     time.Time
	reg     *devices.Registry
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		backend: devices.NewMemoryBackend(),
		api:     apifake.NewFakeClient(),
		now:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.api.AddAccount(&users.User{ID: "u-1", Username: "alice", Role: users.RoleCitizen, Verified: true}, "Passw0rd!", false)

	factory := func(deviceID string) (*session.Store, error) {
		return devices.NewStore(f.backend, deviceID, f.api, nil)
	}
	f.reg = devices.NewRegistry(factory, devices.WithIdleTTL(time.Hour), devices.WithNowTime(f.clock))
	t.Cleanup(f.reg.Close)
	return f
}

func (f *testFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestGetReusesStore(t *testing.T) {
	f := setupTestFixture(t)

	a, err := f.reg.Get("dev-1")
	require.NoError(t, err)
	b, err := f.reg.Get("dev-1")
	require.NoError(t, err)
	require.Same(t, a, b)

	c, err := f.reg.Get("dev-2")
	require.NoError(t, err)
	require.NotSame(t, a, c)
	require.Equal(t, 2, f.reg.Len())

	_, err = f.reg.Get("")
	require.Error(t, err)
}

func TestStoresAreStarted(t *testing.T) {
	f := setupTestFixture(t)
	s, err := f.reg.Get("dev-1")
	require.NoError(t, err)

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("store never initialised")
	}
	require.Equal(t, session.StatusAnonymous, s.Snapshot().Status)
}

func TestSweepEvictsIdleDevices(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	s, err := f.reg.Get("dev-1")
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Login(ctx, "alice", "Passw0rd!", true))
	_, err = f.reg.Get("dev-2")
	require.NoError(t, err)

	f.advance(30 * time.Minute)
	_, err = f.reg.Get("dev-2")
	require.NoError(t, err)
	f.advance(45 * time.Minute)

	require.Equal(t, 1, f.reg.Sweep())
	require.Equal(t, 1, f.reg.Len())

	durable, _ := f.backend.Open("dev-1")
	require.Equal(t, 0, durable.(*storage.Memory).Watchers(), "evicted store released its watch")

	// the device comes back and restores its session from storage
	again, err := f.reg.Get("dev-1")
	require.NoError(t, err)
	require.NotSame(t, s, again)
	require.NoError(t, again.Initialize(ctx))
	require.True(t, again.Snapshot().Authenticated())
}

func TestGetKeepsDeviceAliveAcrossSweep(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	s, err := f.reg.Get("dev-1")
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))

	f.advance(2 * time.Hour)
	again, err := f.reg.Get("dev-1")
	require.NoError(t, err)
	require.Same(t, s, again)

	require.Equal(t, 0, f.reg.Sweep())
	durable, _ := f.backend.Open("dev-1")
	require.Equal(t, 1, durable.(*storage.Memory).Watchers(), "store returned by Get is still live")
}

func TestConcurrentGetAndSweep(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				f.advance(2 * time.Hour)
				f.reg.Sweep()
			}
		}
	}()

	for range 200 {
		s, err := f.reg.Get("dev-1")
		require.NoError(t, err)
		require.NotNil(t, s)
	}
	close(done)
	wg.Wait()

	s, err := f.reg.Get("dev-1")
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))
	require.Equal(t, 1, f.reg.Len())
	durable, _ := f.backend.Open("dev-1")
	require.Equal(t, 1, durable.(*storage.Memory).Watchers(), "only the registered store watches storage")
}

func TestDeleteClosesStore(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.reg.Get("dev-1")
	require.NoError(t, err)

	f.reg.Delete("dev-1")
	f.reg.Delete("dev-1")
	require.Equal(t, 0, f.reg.Len())
}

func TestRedisBackendSharesDeviceAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	api := apifake.NewFakeClient()
	api.AddAccount(&users.User{ID: "u-1", Username: "alice", Role: users.RoleCitizen, Verified: true}, "Passw0rd!", false)
	backend := devices.NewRedisBackend(client, "test:", time.Hour, 24*time.Hour)

	replica := func() *devices.Registry {
		r := devices.NewRegistry(func(deviceID string) (*session.Store, error) {
			return devices.NewStore(backend, deviceID, api, nil)
		})
		t.Cleanup(r.Close)
		return r
	}
	one, two := replica(), replica()

	a, err := one.Get("dev-1")
	require.NoError(t, err)
	require.NoError(t, a.Initialize(ctx))
	require.NoError(t, a.Login(ctx, "alice", "Passw0rd!", false))

	b, err := two.Get("dev-1")
	require.NoError(t, err)
	require.NoError(t, b.Initialize(ctx))
	require.True(t, b.Snapshot().Authenticated())

	ttl := mr.TTL("test:dev-1:session:auth_token")
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, time.Hour)

	b.Logout(ctx)
	require.Eventually(t, func() bool {
		return a.Snapshot().Status == session.StatusAnonymous
	}, 2*time.Second, 10*time.Millisecond)
}
