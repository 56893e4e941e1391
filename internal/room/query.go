package room

import (
	"context"

	"github.com/obrien-tchaleu/ludoserver/internal/apperr"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

// RoomView is the read-only projection returned to HTTP clients: the
// room document plus its ordered seat records and, in team mode, the
// denormalized team snapshot.
type RoomView struct {
	Room  *models.Room   `json:"room"`
	Seats []*models.Seat `json:"seats"`
	Teams []*models.Team `json:"teams,omitempty"`
}

// GetRoom returns a room with its seats and teams, preferring the
// in-memory cache and falling back to the durable store for a room
// this instance hasn't touched yet (e.g. after a restart or on another
// node) — seat documents hydrate from the roomPlayers collection in
// that case.
func (c *Coordinator) GetRoom(ctx context.Context, roomID string) (*RoomView, error) {
	room, ok := c.cache.Get(roomID)
	if !ok {
		loaded, err := c.store.GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		room = loaded
		c.cache.Put(ctx, room)
	}
	table := c.seatTableHydrated(ctx, roomID)
	seats := make([]*models.Seat, 0, len(room.Seats))
	for _, sid := range room.Seats {
		if s := table[sid]; s != nil {
			seats = append(seats, s)
		}
	}
	view := &RoomView{Room: room, Seats: seats}
	if room.Settings.Mode == models.ModeTeam {
		teams, err := c.store.ListTeams(ctx, roomID)
		if err != nil {
			c.log.WithError(err).WithField("room_id", roomID).Warn("failed to load team snapshot")
		} else {
			view.Teams = teams
		}
	}
	return view, nil
}

// GetRoomByCode resolves a join code to a room ID via the durable
// store (room codes are not cached separately; lookups happen at join
// time only, which is not hot-path enough to warrant a second cache).
func (c *Coordinator) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return c.store.GetRoomByCode(ctx, code)
}

// ListJoinableRooms returns public rooms still accepting players.
func (c *Coordinator) ListJoinableRooms(ctx context.Context, limit int) ([]*models.Room, error) {
	return c.store.ListJoinableRooms(ctx, limit)
}

// ListEvents returns a room's event log, newest first, paginated by
// the revision cursor the previous page's last event carried.
func (c *Coordinator) ListEvents(ctx context.Context, roomID string, before int64, limit int) ([]*models.GameEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return c.store.ListEvents(ctx, roomID, before, limit)
}

// Leaderboard returns the top players by wins.
func (c *Coordinator) Leaderboard(ctx context.Context, limit int) (any, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	board, err := c.store.GetLeaderboard(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load leaderboard", err)
	}
	return board, nil
}
