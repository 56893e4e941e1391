// Package store is the durable persistence layer: rooms, the
// append-only game event log, user display records, and the
// leaderboard read path. MongoStore is grounded on mongo-driver, the
// document-store client the retrieved pack's services use for the
// same shape of data (the teacher's own MySQL layer used a relational
// schema for an equivalent room/user/stats surface — see DESIGN.md for
// why this repo moved to a document model). MemoryStore backs tests.
package store

import (
	"context"

	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

// LeaderboardEntry is one ranked row of the stats read path.
type LeaderboardEntry struct {
	UserID    string `json:"userId" bson:"_id"`
	Username  string `json:"username" bson:"username"`
	Wins      int    `json:"wins" bson:"wins"`
	Losses    int    `json:"losses" bson:"losses"`
	GamesPlayed int  `json:"gamesPlayed" bson:"gamesPlayed"`
}

// Store is the full durable-persistence surface the room coordinator,
// game state cache, and HTTP stats endpoint depend on.
type Store interface {
	Ping(ctx context.Context) error

	SaveRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ListJoinableRooms(ctx context.Context, limit int) ([]*models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error

	// Seat documents are keyed by seat ID with a uniqueness guarantee
	// on (roomId, userId): SaveSeat rejects a second seat for the same
	// user in the same room with a CONFLICT error.
	SaveSeat(ctx context.Context, seat *models.Seat) error
	DeleteSeat(ctx context.Context, roomID, seatID string) error
	ListSeats(ctx context.Context, roomID string) ([]*models.Seat, error)

	SaveTeams(ctx context.Context, roomID string, teams []*models.Team) error
	ListTeams(ctx context.Context, roomID string) ([]*models.Team, error)

	AppendEvent(ctx context.Context, event *models.GameEvent) error
	ListEvents(ctx context.Context, roomID string, before int64, limit int) ([]*models.GameEvent, error)

	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error

	RecordGameResult(ctx context.Context, winnerUserID string, loserUserIDs []string) error
	GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}
