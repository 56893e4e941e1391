package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/obrien-tchaleu/ludoserver/internal/apperr"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

// MongoStore is the production Store, backed by six collections:
// rooms, roomPlayers (seat docs, unique per (roomId, userId)),
// roomTeams (denormalized team snapshots), gameEvents, users, and
// playerStats (a denormalized win/loss/games-played counter per user,
// updated on every completed game rather than aggregated on read).
type MongoStore struct {
	db     *mongo.Database
	rooms  *mongo.Collection
	seats  *mongo.Collection
	teams  *mongo.Collection
	events *mongo.Collection
	users  *mongo.Collection
	stats  *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:     db,
		rooms:  db.Collection("rooms"),
		seats:  db.Collection("roomPlayers"),
		teams:  db.Collection("roomTeams"),
		events: db.Collection("gameEvents"),
		users:  db.Collection("users"),
		stats:  db.Collection("playerStats"),
	}
}

// Ping reports whether the underlying Mongo connection is reachable,
// used by the /health endpoint's dbState field.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the query patterns above rely on.
// Safe to call on every boot; CreateMany is idempotent for identical
// index specs.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "settings.visibility", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.seats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "position", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.teams.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "index", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return err
	}
	_, err = s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "revision", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.stats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "wins", Value: -1}, {Key: "gamesPlayed", Value: -1}}},
	})
	return err
}

func (s *MongoStore) SaveRoom(ctx context.Context, room *models.Room) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.rooms.ReplaceOne(ctx, bson.M{"_id": room.ID}, room, opts)
	return err
}

func (s *MongoStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := s.rooms.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.New(apperr.NotFound, "room not found")
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *MongoStore) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := s.rooms.FindOne(ctx, bson.M{"code": code}).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.New(apperr.NotFound, "room not found")
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *MongoStore) ListJoinableRooms(ctx context.Context, limit int) ([]*models.Room, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cur, err := s.rooms.Find(ctx, bson.M{
		"status":              models.RoomWaiting,
		"settings.visibility": models.VisibilityPublic,
	}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*models.Room
	for cur.Next(ctx) {
		var r models.Room
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (s *MongoStore) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.rooms.DeleteOne(ctx, bson.M{"_id": roomID}); err != nil {
		return err
	}
	if _, err := s.seats.DeleteMany(ctx, bson.M{"roomId": roomID}); err != nil {
		return err
	}
	if _, err := s.teams.DeleteMany(ctx, bson.M{"roomId": roomID}); err != nil {
		return err
	}
	_, err := s.events.DeleteMany(ctx, bson.M{"roomId": roomID})
	return err
}

// SaveSeat upserts a seat document. The unique (roomId, userId) index
// is the serialization point spec'd for join: a second seat for the
// same user in the same room surfaces as a CONFLICT, not a room-wide
// lock contention.
func (s *MongoStore) SaveSeat(ctx context.Context, seat *models.Seat) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.seats.ReplaceOne(ctx, bson.M{"_id": seat.ID}, seat, opts)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.New(apperr.Conflict, "user is already seated in this room")
	}
	return err
}

func (s *MongoStore) DeleteSeat(ctx context.Context, roomID, seatID string) error {
	_, err := s.seats.DeleteOne(ctx, bson.M{"_id": seatID, "roomId": roomID})
	return err
}

func (s *MongoStore) ListSeats(ctx context.Context, roomID string) ([]*models.Seat, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cur, err := s.seats.Find(ctx, bson.M{"roomId": roomID}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*models.Seat
	for cur.Next(ctx) {
		var seat models.Seat
		if err := cur.Decode(&seat); err != nil {
			return nil, err
		}
		out = append(out, &seat)
	}
	return out, cur.Err()
}

// SaveTeams replaces the room's denormalized team snapshot.
func (s *MongoStore) SaveTeams(ctx context.Context, roomID string, teams []*models.Team) error {
	for _, team := range teams {
		opts := options.Replace().SetUpsert(true)
		if _, err := s.teams.ReplaceOne(ctx, bson.M{"roomId": roomID, "index": team.Index}, team, opts); err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoStore) ListTeams(ctx context.Context, roomID string) ([]*models.Team, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "index", Value: 1}})
	cur, err := s.teams.Find(ctx, bson.M{"roomId": roomID}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*models.Team
	for cur.Next(ctx) {
		var team models.Team
		if err := cur.Decode(&team); err != nil {
			return nil, err
		}
		out = append(out, &team)
	}
	return out, cur.Err()
}

func (s *MongoStore) AppendEvent(ctx context.Context, event *models.GameEvent) error {
	_, err := s.events.InsertOne(ctx, event)
	return err
}

func (s *MongoStore) ListEvents(ctx context.Context, roomID string, before int64, limit int) ([]*models.GameEvent, error) {
	filter := bson.M{"roomId": roomID}
	if before > 0 {
		filter["revision"] = bson.M{"$lt": before}
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "revision", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.events.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*models.GameEvent
	for cur.Next(ctx) {
		var e models.GameEvent
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, cur.Err()
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) UpsertUser(ctx context.Context, user *models.User) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, opts)
	if err != nil {
		return err
	}
	_, err = s.stats.UpdateOne(ctx, bson.M{"_id": user.ID},
		bson.M{"$setOnInsert": bson.M{"_id": user.ID, "wins": 0, "losses": 0, "gamesPlayed": 0},
			"$set": bson.M{"username": user.Username}},
		options.Update().SetUpsert(true))
	return err
}

// RecordGameResult applies a single transactional-shaped update per
// participant (Mongo single-document writes are atomic; a multi-doc
// session transaction is unnecessary here since each player's counter
// update is independent).
func (s *MongoStore) RecordGameResult(ctx context.Context, winnerUserID string, loserUserIDs []string) error {
	if _, err := s.stats.UpdateOne(ctx, bson.M{"_id": winnerUserID},
		bson.M{"$inc": bson.M{"wins": 1, "gamesPlayed": 1}},
		options.Update().SetUpsert(true)); err != nil {
		return err
	}
	for _, id := range loserUserIDs {
		if _, err := s.stats.UpdateOne(ctx, bson.M{"_id": id},
			bson.M{"$inc": bson.M{"losses": 1, "gamesPlayed": 1}},
			options.Update().SetUpsert(true)); err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoStore) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "wins", Value: -1}, {Key: "gamesPlayed", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.stats.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []LeaderboardEntry
	for cur.Next(ctx) {
		var e LeaderboardEntry
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, cur.Err()
}

// Connect dials MongoDB with a bounded startup timeout, grounded on
// the same connect-then-ping pattern the teacher's database layer
// used for MySQL.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, func(context.Context) error, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, nil, err
	}
	return client.Database(dbName), client.Disconnect, nil
}
