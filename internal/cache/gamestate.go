package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

// Store is the durable-persistence surface the game state cache
// flushes to. internal/store implements this against MongoDB; the
// room coordinator and tests use an in-memory fake.
type Store interface {
	Ping(ctx context.Context) error
	SaveRoom(ctx context.Context, room *models.Room) error
}

// roomActor holds one room's cached state and the mutex that runs its
// tasks one at a time, so concurrent requests against the same room
// never race while distinct rooms run fully in parallel. Tasks waiting
// on the same room acquire the mutex in no guaranteed order; admission
// is not FIFO.
type roomActor struct {
	mu      sync.Mutex
	room    *models.Room
	dirty   bool
}

// GameStateCache is the in-memory authoritative state for every active
// room, write-behind flushed to durable storage on an interval and
// mirrored to SharedCache so other instances (and reconnecting
// clients) can read current state without hitting the durable store.
type GameStateCache struct {
	log   *logrus.Entry
	store Store
	cache SharedCache

	flushInterval time.Duration
	cacheTTL      time.Duration

	mu     sync.Mutex
	actors map[string]*roomActor

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewGameStateCache(log *logrus.Logger, store Store, shared SharedCache, flushInterval, cacheTTL time.Duration) *GameStateCache {
	c := &GameStateCache{
		log:           log.WithField("component", "gamestate_cache"),
		store:         store,
		cache:         shared,
		flushInterval: flushInterval,
		cacheTTL:      cacheTTL,
		actors:        map[string]*roomActor{},
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go c.flushLoop()
	return c
}

func roomCacheKey(roomID string) string {
	return fmt.Sprintf("room:%s:state", roomID)
}

// Put registers or replaces a room's authoritative in-memory state,
// e.g. right after it is created or loaded from the durable store.
func (c *GameStateCache) Put(ctx context.Context, room *models.Room) {
	actor := c.actorFor(room.ID)
	actor.mu.Lock()
	actor.room = room
	actor.dirty = true
	actor.mu.Unlock()
	_ = c.cache.SetJSON(ctx, roomCacheKey(room.ID), room, c.cacheTTL)
}

func (c *GameStateCache) actorFor(roomID string) *roomActor {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.actors[roomID]
	if !ok {
		a = &roomActor{}
		c.actors[roomID] = a
	}
	return a
}

// RunExclusive runs task against the room's current state with that
// room's actor lock held, guaranteeing at most one outstanding
// mutation per room while other rooms proceed uncontended. task
// receives the current room (nil if unknown) and returns the new room
// state (nil to leave it unchanged) plus any error; a non-nil
// returned room is stamped dirty and mirrored into the shared cache
// before RunExclusive returns.
func (c *GameStateCache) RunExclusive(ctx context.Context, roomID string, task func(*models.Room) (*models.Room, error)) error {
	actor := c.actorFor(roomID)
	actor.mu.Lock()
	defer actor.mu.Unlock()

	next, err := task(actor.room)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	actor.room = next
	actor.dirty = true
	if err := c.cache.SetJSON(ctx, roomCacheKey(roomID), next, c.cacheTTL); err != nil {
		c.log.WithError(err).WithField("room_id", roomID).Warn("shared cache mirror failed, durable flush will still happen")
	}
	return nil
}

// Get returns a room's current in-memory state, or ok=false if the
// cache holds nothing for it (the caller should fall back to the
// durable store).
func (c *GameStateCache) Get(roomID string) (*models.Room, bool) {
	c.mu.Lock()
	a, ok := c.actors[roomID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.room, a.room != nil
}

// Evict drops a room's state entirely, used once a room is deleted or
// has been inactive long enough to reclaim memory for.
func (c *GameStateCache) Evict(ctx context.Context, roomID string) {
	c.mu.Lock()
	delete(c.actors, roomID)
	c.mu.Unlock()
	_ = c.cache.Delete(ctx, roomCacheKey(roomID))
}

func (c *GameStateCache) flushLoop() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flushAll(context.Background())
		case <-c.stopCh:
			c.flushAll(context.Background())
			return
		}
	}
}

func (c *GameStateCache) flushAll(ctx context.Context) {
	c.mu.Lock()
	actors := make(map[string]*roomActor, len(c.actors))
	for id, a := range c.actors {
		actors[id] = a
	}
	c.mu.Unlock()

	for roomID, actor := range actors {
		actor.mu.Lock()
		if !actor.dirty || actor.room == nil {
			actor.mu.Unlock()
			continue
		}
		room := actor.room
		actor.dirty = false
		actor.mu.Unlock()

		if err := c.store.SaveRoom(ctx, room); err != nil {
			c.log.WithError(err).WithField("room_id", roomID).Error("write-behind flush failed")
			actor.mu.Lock()
			actor.dirty = true
			actor.mu.Unlock()
		}
	}
}

// Shared exposes the underlying shared cache so the room coordinator
// can mirror its engagement and taunt snapshots under their own keys.
func (c *GameStateCache) Shared() SharedCache {
	return c.cache
}

// Health reports whether the durable store and the shared cache mirror
// are currently reachable, for the /health endpoint's {dbState,
// cacheConnected} body.
func (c *GameStateCache) Health(ctx context.Context) (dbUp, cacheUp bool) {
	return c.store.Ping(ctx) == nil, c.cache.Ping(ctx) == nil
}

// Shutdown flushes every dirty room synchronously and stops the
// background ticker. Safe to call once.
func (c *GameStateCache) Shutdown(ctx context.Context) {
	_ = ctx
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
	})
}
