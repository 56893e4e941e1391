// Package room is the Room Coordinator: the single stateful layer
// that owns room lifecycle (create/join/leave/ready/slots/teams),
// match lifecycle (start/roll/move/advance-turn), and wires the pure
// rule engine, the engagement dice engine, and the taunt director
// together behind the game state cache's per-room exclusivity.
//
// Every method that changes an existing room runs under
// cache.GameStateCache.RunExclusive, so two such requests against the
// same room never interleave while requests against different rooms run
// fully in parallel. Grounded on the teacher's room/manager.go
// (CreateRoom/JoinRoom/LeaveRoom/SetPlayerReady/CanStart/Start)
// generalized from its single in-process map to the cache-backed,
// multi-instance-aware model spec'd here.
package room

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/obrien-tchaleu/ludoserver/internal/apperr"
	"github.com/obrien-tchaleu/ludoserver/internal/boardcfg"
	"github.com/obrien-tchaleu/ludoserver/internal/cache"
	"github.com/obrien-tchaleu/ludoserver/internal/engagement"
	"github.com/obrien-tchaleu/ludoserver/internal/realtime"
	"github.com/obrien-tchaleu/ludoserver/internal/store"
	"github.com/obrien-tchaleu/ludoserver/internal/taunt"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

// MoveGracePeriod is how long a player has to act on an outstanding
// dice roll before another client may force the turn to advance.
const MoveGracePeriod = 20 * time.Second

// roomRuntime is the never-persisted-as-document state a room carries
// alongside its models.Room: per-seat dice momentum, the room's story
// director and force accounting, and the taunt director's social
// memory. Mutated only from inside that room's RunExclusive task, so it
// needs no locking of its own; snapshots are mirrored to the shared
// cache best-effort after each mutation.
type roomRuntime struct {
	momentum  map[string]*engagement.Momentum
	director  *engagement.StoryDirector
	force     *engagement.ForceState
	taunt     *taunt.RoomState
	seatsByID seatTable
	startedAt time.Time
}

func newRoomRuntime() *roomRuntime {
	return &roomRuntime{
		momentum: map[string]*engagement.Momentum{},
		director: engagement.NewStoryDirector(),
		force:    &engagement.ForceState{},
		taunt:    taunt.NewRoomState(),
	}
}

func (rt *roomRuntime) momentumFor(seatID string) *engagement.Momentum {
	m, ok := rt.momentum[seatID]
	if !ok {
		m = &engagement.Momentum{}
		rt.momentum[seatID] = m
	}
	return m
}

// Coordinator is the full Room Coordinator.
type Coordinator struct {
	log          *logrus.Entry
	cache        *cache.GameStateCache
	store        store.Store
	broadcaster  realtime.Broadcaster
	engagement   *engagement.Engine
	taunt        *taunt.Director
	rng          engagement.RNG

	// engagementEnabled/tauntEnabled gate ENGAGEMENT_DICE_ENABLED and
	// TAUNT_SYSTEM_ENABLED (spec.md §6): when false, RollDice samples a
	// plain uniform face instead of running the weighted pipeline, and
	// MoveToken never evaluates or dispatches a taunt candidate.
	engagementEnabled bool
	tauntEnabled      bool

	runtimeMu sync.Mutex
	runtime   map[string]*roomRuntime
}

func NewCoordinator(log *logrus.Logger, gsc *cache.GameStateCache, st store.Store, bc realtime.Broadcaster, eng *engagement.Engine, td *taunt.Director) *Coordinator {
	return &Coordinator{
		log:               log.WithField("component", "room_coordinator"),
		cache:             gsc,
		store:             st,
		broadcaster:       bc,
		engagement:        eng,
		taunt:             td,
		rng:               engagement.SystemRNG{},
		engagementEnabled: true,
		tauntEnabled:      true,
		runtime:           map[string]*roomRuntime{},
	}
}

// SetRNG overrides the engagement engine's randomness source. Tests
// use this to script deterministic rolls; production never calls it.
func (c *Coordinator) SetRNG(rng engagement.RNG) {
	c.rng = rng
}

// SetFeatureFlags applies the ENGAGEMENT_DICE_ENABLED and
// TAUNT_SYSTEM_ENABLED switches from internal/config. Both default to
// enabled; call this once during wiring if either is turned off.
func (c *Coordinator) SetFeatureFlags(engagementEnabled, tauntEnabled bool) {
	c.engagementEnabled = engagementEnabled
	c.tauntEnabled = tauntEnabled
}

// Health reports durable-store and shared-cache reachability for the
// HTTP health endpoint.
func (c *Coordinator) Health(ctx context.Context) (dbUp, cacheUp bool) {
	return c.cache.Health(ctx)
}

func (c *Coordinator) runtimeFor(roomID string) *roomRuntime {
	c.runtimeMu.Lock()
	defer c.runtimeMu.Unlock()
	rt, ok := c.runtime[roomID]
	if !ok {
		rt = newRoomRuntime()
		c.runtime[roomID] = rt
	}
	return rt
}

func (c *Coordinator) dropRuntime(roomID string) {
	c.runtimeMu.Lock()
	delete(c.runtime, roomID)
	c.runtimeMu.Unlock()
}

// roomCode produces a short, human-typeable join code: six uppercase
// letters (no O/I) matching the external-interface room code format.
func roomCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	b := make([]byte, 6)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// CreateRoom creates a new waiting room with the host seated at their
// selected color, or the first color in the canonical order when no
// preference is given.
func (c *Coordinator) CreateRoom(ctx context.Context, hostUserID, hostUsername string, settings models.RoomSettings, selectedColor boardcfg.Color) (*models.Room, error) {
	if settings.MaxPlayers < 2 || settings.MaxPlayers > 6 {
		return nil, apperr.New(apperr.Validation, "maxPlayers must be between 2 and 6")
	}
	if settings.Mode == models.ModeTeam && settings.MaxPlayers%2 != 0 {
		return nil, apperr.New(apperr.Validation, "team mode requires an even player count")
	}

	roomID := uuid.NewString()
	hostSeatID := uuid.NewString()
	code := roomCode()

	color, position, err := allocateColor(boardcfg.ColorOrder(settings.MaxPlayers), nil, nil, selectedColor)
	if err != nil {
		return nil, err
	}
	hostSeat := &models.Seat{
		ID: hostSeatID, RoomID: roomID, UserID: hostUserID,
		Color:    color,
		Position: position, Status: models.SeatWaiting, Username: hostUsername, JoinedAt: time.Now(),
	}
	if settings.Mode == models.ModeTeam {
		team := boardcfg.TeamIndex(position, settings.MaxPlayers)
		hostSeat.TeamIndex = &team
	}

	room := &models.Room{
		ID: roomID, Code: code, HostSeatID: hostSeatID,
		Settings: settings, Status: models.RoomWaiting,
		Seats: []string{hostSeatID}, CreatedAt: time.Now(),
	}

	if err := c.store.SaveSeat(ctx, hostSeat); err != nil {
		return nil, err
	}
	c.cache.Put(ctx, room)
	c.seatSideTable(roomID)[hostSeatID] = hostSeat
	c.appendEvent(ctx, roomID, models.EventRoomCreated, hostUserID, hostSeatID, 0, nil)

	return room, nil
}

// seats live outside models.Room (which only carries seat IDs in
// order): the authoritative seat documents are the store's roomPlayers
// collection, written on every join/leave/ready/slot change, and the
// side table is this instance's working copy of them — hydrated from
// the store when empty (restart, or a room first touched on another
// instance).
type seatTable map[string]*models.Seat

func (c *Coordinator) seatSideTable(roomID string) seatTable {
	rt := c.runtimeFor(roomID)
	return rt.seats()
}

// seatTableHydrated returns the room's seat table, loading it from the
// durable store when this instance has no copy yet.
func (c *Coordinator) seatTableHydrated(ctx context.Context, roomID string) seatTable {
	table := c.seatSideTable(roomID)
	if len(table) > 0 {
		return table
	}
	seats, err := c.store.ListSeats(ctx, roomID)
	if err != nil {
		c.log.WithError(err).WithField("room_id", roomID).Warn("failed to hydrate seats from store")
		return table
	}
	for _, s := range seats {
		table[s.ID] = s
	}
	return table
}

func (rt *roomRuntime) seats() seatTable {
	if rt.seatsByID == nil {
		rt.seatsByID = seatTable{}
	}
	return rt.seatsByID
}

// allocateColor picks a joining player's color: the requested
// preference when it names a color valid for this room size and still
// unclaimed, otherwise the first free color in the canonical order.
// The returned position is the color's ordinal in that order, which
// turn rotation and team partitioning derive from.
func allocateColor(order []boardcfg.Color, table seatTable, seatIDs []string, preferred boardcfg.Color) (boardcfg.Color, int, error) {
	taken := map[boardcfg.Color]bool{}
	for _, sid := range seatIDs {
		if s := table[sid]; s != nil {
			taken[s.Color] = true
		}
	}
	if preferred != "" {
		idx := -1
		for i, col := range order {
			if col == preferred {
				idx = i
			}
		}
		if idx < 0 {
			return "", 0, apperr.New(apperr.Validation, "selected color is not available at this room size")
		}
		if !taken[preferred] {
			return preferred, idx, nil
		}
	}
	for i, col := range order {
		if !taken[col] {
			return col, i, nil
		}
	}
	return "", 0, apperr.ErrRoomFull
}

// buildTeams derives the denormalized team snapshot from the current
// seats; nil outside team mode.
func buildTeams(room *models.Room, table seatTable) []*models.Team {
	if room.Settings.Mode != models.ModeTeam {
		return nil
	}
	half := room.Settings.MaxPlayers / 2
	teams := make([]*models.Team, half)
	for i := 0; i < half; i++ {
		name := ""
		if i < len(room.Settings.TeamNames) {
			name = room.Settings.TeamNames[i]
		}
		teams[i] = &models.Team{RoomID: room.ID, Index: i, Name: name}
	}
	for _, sid := range room.Seats {
		s := table[sid]
		if s == nil || s.TeamIndex == nil || *s.TeamIndex < 0 || *s.TeamIndex >= half {
			continue
		}
		teams[*s.TeamIndex].SeatIDs = append(teams[*s.TeamIndex].SeatIDs, sid)
	}
	return teams
}

// saveTeamsSnapshot persists the team snapshot, logging rather than
// failing the caller: teams are derived data, rebuildable from seats.
func (c *Coordinator) saveTeamsSnapshot(ctx context.Context, room *models.Room, table seatTable) {
	teams := buildTeams(room, table)
	if teams == nil {
		return
	}
	if err := c.store.SaveTeams(ctx, room.ID, teams); err != nil {
		c.log.WithError(err).WithField("room_id", room.ID).Warn("failed to persist team snapshot")
	}
}

func joinableErr(room *models.Room) error {
	if room.Status != models.RoomWaiting {
		return apperr.ErrRoomNotJoinable
	}
	if len(room.Seats) >= room.Settings.MaxPlayers {
		return apperr.ErrRoomFull
	}
	return nil
}

// JoinRoom seats a new player, honoring their color preference when it
// is free and falling back to the next open color otherwise. The seat
// document is persisted before the room state commits; the store's
// unique (roomId, userId) constraint is the backstop against the same
// user double-joining across instances.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID, userID, username string, selectedColor boardcfg.Color) (*models.Seat, error) {
	var newSeat *models.Seat
	err := c.cache.RunExclusive(ctx, roomID, func(room *models.Room) (*models.Room, error) {
		if room == nil {
			loaded, err := c.store.GetRoom(ctx, roomID)
			if err != nil {
				return nil, err
			}
			room = loaded
		}
		if err := joinableErr(room); err != nil {
			return nil, err
		}
		table := c.seatTableHydrated(ctx, roomID)
		for _, sid := range room.Seats {
			if s := table[sid]; s != nil && s.UserID == userID {
				return nil, apperr.New(apperr.Conflict, "user is already seated in this room")
			}
		}

		color, position, err := allocateColor(boardcfg.ColorOrder(room.Settings.MaxPlayers), table, room.Seats, selectedColor)
		if err != nil {
			return nil, err
		}

		seatID := uuid.NewString()
		seat := &models.Seat{
			ID: seatID, RoomID: roomID, UserID: userID, Color: color,
			Position: position, Status: models.SeatWaiting,
			Username: username, JoinedAt: time.Now(),
		}
		if room.Settings.Mode == models.ModeTeam {
			team := boardcfg.TeamIndex(position, room.Settings.MaxPlayers)
			seat.TeamIndex = &team
		}
		if err := c.store.SaveSeat(ctx, seat); err != nil {
			return nil, err
		}
		table[seatID] = seat
		newSeat = seat

		next := *room
		next.Seats = insertByPosition(room.Seats, seatID, table)
		c.saveTeamsSnapshot(ctx, &next, table)
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	c.appendEvent(ctx, roomID, models.EventPlayerJoined, userID, newSeat.ID, 0, newSeat)
	c.publishPatch(ctx, roomID, models.Patch{})
	return newSeat, nil
}

// insertByPosition returns the seat list with seatID added, kept
// ordered by each seat's color-order position so turn rotation always
// follows the canonical color sequence.
func insertByPosition(seats []string, seatID string, table seatTable) []string {
	out := append([]string{}, seats...)
	out = append(out, seatID)
	pos := func(id string) int {
		if s := table[id]; s != nil {
			return s.Position
		}
		return 0
	}
	for i := len(out) - 1; i > 0 && pos(out[i]) < pos(out[i-1]); i-- {
		out[i], out[i-1] = out[i-1], out[i]
	}
	return out
}

// LeaveRoom removes a seat. If the host leaves, in any room status,
// host privilege transfers to the first remaining seat in board
// (color) order; mid-game,
// a departing seat's tokens remain on the board (spec leaves rejoining
// out of scope) but its turn is skipped going forward.
func (c *Coordinator) LeaveRoom(ctx context.Context, roomID, seatID string) error {
	return c.cache.RunExclusive(ctx, roomID, func(room *models.Room) (*models.Room, error) {
		if room == nil {
			return nil, apperr.New(apperr.NotFound, "room not found")
		}
		idx := indexOf(room.Seats, seatID)
		if idx < 0 {
			return nil, apperr.New(apperr.NotFound, "seat not in room")
		}

		next := *room
		next.Seats = append(append([]string{}, room.Seats[:idx]...), room.Seats[idx+1:]...)
		if room.HostSeatID == seatID && len(next.Seats) > 0 {
			next.HostSeatID = next.Seats[0]
		}
		table := c.seatTableHydrated(ctx, roomID)
		delete(table, seatID)
		if err := c.store.DeleteSeat(ctx, roomID, seatID); err != nil {
			c.log.WithError(err).WithField("room_id", roomID).Warn("failed to delete seat document")
		}

		if len(next.Seats) == 0 {
			c.dropRuntime(roomID)
			_ = c.store.DeleteRoom(ctx, roomID)
			c.cache.Evict(ctx, roomID)
			return nil, nil
		}
		c.saveTeamsSnapshot(ctx, &next, table)
		return &next, nil
	})
}

// SetReady toggles a seat's ready flag while the room is waiting.
func (c *Coordinator) SetReady(ctx context.Context, roomID, seatID string, ready bool) error {
	return c.cache.RunExclusive(ctx, roomID, func(room *models.Room) (*models.Room, error) {
		if room == nil {
			return nil, apperr.New(apperr.NotFound, "room not found")
		}
		seat, ok := c.seatTableHydrated(ctx, roomID)[seatID]
		if !ok {
			return nil, apperr.New(apperr.NotFound, "seat not in room")
		}
		seat.Ready = ready
		if err := c.store.SaveSeat(ctx, seat); err != nil {
			c.log.WithError(err).WithField("room_id", roomID).Warn("failed to persist seat ready flag")
		}
		return room, nil
	})
}

// SetSlot swaps two seats' board-order positions before the game
// starts, used for the pre-game "move to slot N" UI affordance.
func (c *Coordinator) SetSlot(ctx context.Context, roomID, seatID string, newIndex int) error {
	return c.cache.RunExclusive(ctx, roomID, func(room *models.Room) (*models.Room, error) {
		if room == nil {
			return nil, apperr.New(apperr.NotFound, "room not found")
		}
		if room.Status != models.RoomWaiting {
			return nil, apperr.ErrRoomNotJoinable
		}
		curIdx := indexOf(room.Seats, seatID)
		if curIdx < 0 || newIndex < 0 || newIndex >= len(room.Seats) {
			return nil, apperr.New(apperr.Validation, "invalid slot index")
		}
		next := *room
		seats := append([]string{}, room.Seats...)
		seats[curIdx], seats[newIndex] = seats[newIndex], seats[curIdx]
		next.Seats = seats

		order := boardcfg.ColorOrder(room.Settings.MaxPlayers)
		table := c.seatTableHydrated(ctx, roomID)
		for i, sid := range seats {
			s := table[sid]
			if s == nil {
				continue
			}
			s.Position = i
			s.Color = order[i]
			if room.Settings.Mode == models.ModeTeam {
				team := boardcfg.TeamIndex(i, room.Settings.MaxPlayers)
				s.TeamIndex = &team
			}
			if err := c.store.SaveSeat(ctx, s); err != nil {
				c.log.WithError(err).WithField("room_id", roomID).Warn("failed to persist seat slot change")
			}
		}
		c.saveTeamsSnapshot(ctx, &next, table)
		return &next, nil
	})
}

// SetTeamNames updates the display names for team mode (host only).
func (c *Coordinator) SetTeamNames(ctx context.Context, roomID, seatID string, names []string) error {
	return c.cache.RunExclusive(ctx, roomID, func(room *models.Room) (*models.Room, error) {
		if room == nil {
			return nil, apperr.New(apperr.NotFound, "room not found")
		}
		if room.HostSeatID != seatID {
			return nil, apperr.ErrNotHost
		}
		if room.Settings.Mode != models.ModeTeam {
			return nil, apperr.New(apperr.Validation, "team names only apply in team mode")
		}
		next := *room
		next.Settings.TeamNames = append([]string{}, names...)
		c.saveTeamsSnapshot(ctx, &next, c.seatTableHydrated(ctx, roomID))
		return &next, nil
	})
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
