package cache_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obrien-tchaleu/ludoserver/internal/cache"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

type fakeStore struct {
	mu    sync.Mutex
	saved map[string]*models.Room
	calls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string]*models.Room{}}
}

func (f *fakeStore) Ping(_ context.Context) error { return nil }

func (f *fakeStore) SaveRoom(_ context.Context, room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	cp := *room
	f.saved[room.ID] = &cp
	return nil
}

func TestMemoryCache_SetGetRoundTrip(t *testing.T) {
	c := cache.NewMemoryCache()
	ctx := context.Background()

	type payload struct{ Value int }
	require.NoError(t, c.SetJSON(ctx, "k1", payload{Value: 42}, time.Minute))

	var out payload
	ok, err := c.GetJSON(ctx, "k1", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, out.Value)
}

func TestMemoryCache_ExpiresAfterTTL(t *testing.T) {
	c := cache.NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.SetJSON(ctx, "k1", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var out string
	ok, err := c.GetJSON(ctx, "k1", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_PushLogTrimsToMax(t *testing.T) {
	c := cache.NewMemoryCache()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, c.PushLog(ctx, "log", i, 3, time.Minute))
	}
	entries, err := c.RecentLog(ctx, "log", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestGameStateCache_RunExclusiveSerializesPerRoom(t *testing.T) {
	store := newFakeStore()
	shared := cache.NewMemoryCache()
	log := logrus.New()
	log.SetOutput(io.Discard)
	gsc := cache.NewGameStateCache(log, store, shared, time.Hour, time.Hour)

	room := &models.Room{ID: "r1", Status: models.RoomWaiting}
	gsc.Put(context.Background(), room)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gsc.RunExclusive(context.Background(), "r1", func(r *models.Room) (*models.Room, error) {
				cp := *r
				cp.CurrentPlayerIndex = r.CurrentPlayerIndex + 1
				return &cp, nil
			})
		}()
	}
	wg.Wait()

	got, ok := gsc.Get("r1")
	require.True(t, ok)
	assert.NotNil(t, got)
	assert.Equal(t, 20, got.CurrentPlayerIndex, "no read-modify-write was lost to interleaving")
}

func TestGameStateCache_ShutdownFlushesDirtyRooms(t *testing.T) {
	store := newFakeStore()
	shared := cache.NewMemoryCache()
	log := logrus.New()
	gsc := cache.NewGameStateCache(log, store, shared, time.Hour, time.Hour)

	gsc.Put(context.Background(), &models.Room{ID: "r1"})
	gsc.Shutdown(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Contains(t, store.saved, "r1")
}

func TestGameStateCache_EvictRemovesState(t *testing.T) {
	store := newFakeStore()
	shared := cache.NewMemoryCache()
	log := logrus.New()
	gsc := cache.NewGameStateCache(log, store, shared, time.Hour, time.Hour)

	gsc.Put(context.Background(), &models.Room{ID: "r1"})
	gsc.Evict(context.Background(), "r1")

	_, ok := gsc.Get("r1")
	assert.False(t, ok)
}
