package store

import (
	"context"
	"sort"
	"sync"

	"github.com/obrien-tchaleu/ludoserver/internal/apperr"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

// MemoryStore is an in-process Store used by tests and by local
// development runs without a Mongo connection string configured.
type MemoryStore struct {
	mu     sync.Mutex
	rooms  map[string]*models.Room
	seats  map[string]map[string]*models.Seat // roomID -> seatID -> seat
	teams  map[string][]*models.Team
	events map[string][]*models.GameEvent
	users  map[string]*models.User
	stats  map[string]*LeaderboardEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:  map[string]*models.Room{},
		seats:  map[string]map[string]*models.Seat{},
		teams:  map[string][]*models.Team{},
		events: map[string][]*models.GameEvent{},
		users:  map[string]*models.User{},
		stats:  map[string]*LeaderboardEntry{},
	}
}

// Ping always succeeds: the in-memory store has no connection to lose.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryStore) SaveRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *room
	s.rooms[room.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "room not found")
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetRoomByCode(_ context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.Code == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "room not found")
}

func (s *MemoryStore) ListJoinableRooms(_ context.Context, limit int) ([]*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Room
	for _, r := range s.rooms {
		if r.Status == models.RoomWaiting && r.Settings.Visibility == models.VisibilityPublic {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	delete(s.seats, roomID)
	delete(s.teams, roomID)
	delete(s.events, roomID)
	return nil
}

func (s *MemoryStore) SaveSeat(_ context.Context, seat *models.Seat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomSeats, ok := s.seats[seat.RoomID]
	if !ok {
		roomSeats = map[string]*models.Seat{}
		s.seats[seat.RoomID] = roomSeats
	}
	for id, existing := range roomSeats {
		if existing.UserID == seat.UserID && id != seat.ID {
			return apperr.New(apperr.Conflict, "user is already seated in this room")
		}
	}
	cp := *seat
	roomSeats[seat.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteSeat(_ context.Context, roomID, seatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seats[roomID], seatID)
	return nil
}

func (s *MemoryStore) ListSeats(_ context.Context, roomID string) ([]*models.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Seat
	for _, seat := range s.seats[roomID] {
		cp := *seat
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemoryStore) SaveTeams(_ context.Context, roomID string, teams []*models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]*models.Team, len(teams))
	for i, team := range teams {
		t := *team
		cp[i] = &t
	}
	s.teams[roomID] = cp
	return nil
}

func (s *MemoryStore) ListTeams(_ context.Context, roomID string) ([]*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Team, 0, len(s.teams[roomID]))
	for _, team := range s.teams[roomID] {
		cp := *team
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *models.GameEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events[event.RoomID] = append(s.events[event.RoomID], &cp)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, roomID string, before int64, limit int) ([]*models.GameEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.events[roomID]
	var out []*models.GameEvent
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if before > 0 && e.Revision >= before {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	if _, ok := s.stats[user.ID]; !ok {
		s.stats[user.ID] = &LeaderboardEntry{UserID: user.ID, Username: user.Username}
	}
	return nil
}

func (s *MemoryStore) RecordGameResult(_ context.Context, winnerUserID string, loserUserIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bumpStat(winnerUserID, true)
	for _, id := range loserUserIDs {
		s.bumpStat(id, false)
	}
	return nil
}

func (s *MemoryStore) bumpStat(userID string, won bool) {
	entry, ok := s.stats[userID]
	if !ok {
		entry = &LeaderboardEntry{UserID: userID}
		s.stats[userID] = entry
	}
	if u, ok := s.users[userID]; ok {
		entry.Username = u.Username
	}
	entry.GamesPlayed++
	if won {
		entry.Wins++
	} else {
		entry.Losses++
	}
}

func (s *MemoryStore) GetLeaderboard(_ context.Context, limit int) ([]LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LeaderboardEntry, 0, len(s.stats))
	for _, e := range s.stats {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].GamesPlayed > out[j].GamesPlayed
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
