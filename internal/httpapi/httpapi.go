// Package httpapi is the HTTP surface: a chi router exposing room
// lifecycle, match actions, the event log, stats, and the websocket
// upgrade endpoint behind a single {success, data|error} envelope.
//
// Grounded on the chi + uuid room-manager pattern from the retrieved
// pack (request decode -> coordinator call -> typed envelope) and on
// the teacher's own error-message conventions, generalized from its
// raw TCP NetworkMessage frames to HTTP JSON responses.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/obrien-tchaleu/ludoserver/internal/apperr"
	"github.com/obrien-tchaleu/ludoserver/internal/boardcfg"
	"github.com/obrien-tchaleu/ludoserver/internal/realtime"
	"github.com/obrien-tchaleu/ludoserver/internal/room"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

// AuthResolver turns a bearer token into a (userID, username) pair.
// The real implementation lives behind whatever auth provider a
// deployment chooses; tests and local dev use a stub that trusts the
// token verbatim as the user ID.
type AuthResolver interface {
	Resolve(ctx context.Context, token string) (userID, username string, err error)
}

// Server wires the Room Coordinator and realtime hub behind chi.
type Server struct {
	router *chi.Mux
	coord  *room.Coordinator
	hub    *realtime.Hub
	auth   AuthResolver
	log    *logrus.Entry
}

func NewServer(coord *room.Coordinator, hub *realtime.Hub, auth AuthResolver, log *logrus.Logger, corsOrigin string) *Server {
	s := &Server{coord: coord, hub: hub, auth: auth, log: log.WithField("component", "httpapi")}
	s.router = s.buildRouter(corsOrigin)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter(corsOrigin string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(cors(corsOrigin))

	r.Get("/health", s.handleHealth)
	r.Get("/stats/leaderboard", s.handleLeaderboard)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/rooms", s.handleCreateRoom)
		r.Get("/rooms", s.handleListRooms)
		r.Get("/rooms/{roomID}", s.handleGetRoom)
		r.Post("/rooms/join", s.handleJoinByCode)
		r.Post("/rooms/{roomID}/join", s.handleJoinByID)
		r.Delete("/rooms/{roomID}", s.handleLeaveRoom)
		r.Post("/rooms/{roomID}/leave", s.handleLeaveRoom)
		r.Patch("/rooms/{roomID}/ready", s.handleSetReady)
		r.Patch("/rooms/{roomID}/slot", s.handleSetSlot)
		r.Patch("/rooms/{roomID}/team-names", s.handleSetTeamNames)
		r.Post("/rooms/{roomID}/start", s.handleStart)
		r.Post("/rooms/{roomID}/dice", s.handleRollDice)
		r.Post("/rooms/{roomID}/move", s.handleMove)
		r.Post("/rooms/{roomID}/next-turn", s.handleNextTurn)
		r.Get("/rooms/{roomID}/events", s.handleEvents)
		r.Get("/rooms/{roomID}/ws", s.handleWebsocket)
	})

	return r
}

// envelope is the uniform response body every endpoint returns.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *errBody `json:"error,omitempty"`
}

type errBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeOK(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeErr(w http.ResponseWriter, err error) {
	appErr := apperr.As(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.StatusFor(appErr.Kind))
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &errBody{Kind: string(appErr.Kind), Message: appErr.Message}})
}

type ctxKey string

const (
	ctxUserID   ctxKey = "userID"
	ctxUsername ctxKey = "username"
)

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeErr(w, apperr.New(apperr.Unauthorized, "missing bearer token"))
			return
		}
		userID, username, err := s.auth.Resolve(r.Context(), token)
		if err != nil {
			writeErr(w, apperr.Wrap(apperr.Unauthorized, "invalid token", err))
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		ctx = context.WithValue(ctx, ctxUsername, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func userFrom(r *http.Request) (userID, username string) {
	uid, _ := r.Context().Value(ctxUserID).(string)
	uname, _ := r.Context().Value(ctxUsername).(string)
	return uid, uname
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbUp, cacheUp := s.coord.Health(r.Context())
	dbState := "down"
	if dbUp {
		dbState = "up"
	}
	writeOK(w, http.StatusOK, map[string]any{"dbState": dbState, "cacheConnected": cacheUp})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 20)
	board, err := s.coord.Leaderboard(r.Context(), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, board)
}

type createRoomRequest struct {
	MaxPlayers    int               `json:"maxPlayers"`
	Mode          models.RoomMode   `json:"mode"`
	Visibility    models.Visibility `json:"visibility"`
	TauntMode     models.TauntMode  `json:"tauntMode"`
	SelectedColor boardcfg.Color    `json:"selectedColor,omitempty"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	userID, username := userFrom(r)
	settings := models.RoomSettings{MaxPlayers: req.MaxPlayers, Mode: req.Mode, Visibility: req.Visibility, TauntMode: req.TauntMode}
	created, err := s.coord.CreateRoom(r.Context(), userID, username, settings, req.SelectedColor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, created)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	rooms, err := s.coord.ListJoinableRooms(r.Context(), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, rooms)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	view, err := s.coord.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, view)
}

type joinByCodeRequest struct {
	Code          string         `json:"code"`
	SelectedColor boardcfg.Color `json:"selectedColor,omitempty"`
}

func (s *Server) handleJoinByCode(w http.ResponseWriter, r *http.Request) {
	var req joinByCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	target, err := s.coord.GetRoomByCode(r.Context(), req.Code)
	if err != nil {
		writeErr(w, err)
		return
	}
	userID, username := userFrom(r)
	seat, err := s.coord.JoinRoom(r.Context(), target.ID, userID, username, req.SelectedColor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, seat)
}

type joinByIDRequest struct {
	SelectedColor boardcfg.Color `json:"selectedColor,omitempty"`
}

func (s *Server) handleJoinByID(w http.ResponseWriter, r *http.Request) {
	var req joinByIDRequest
	decodeOptionalJSON(r, &req) // body is optional; color preference only
	userID, username := userFrom(r)
	seat, err := s.coord.JoinRoom(r.Context(), chi.URLParam(r, "roomID"), userID, username, req.SelectedColor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, seat)
}

type seatActionRequest struct {
	SeatID string `json:"seatId"`
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req seatActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.coord.LeaveRoom(r.Context(), chi.URLParam(r, "roomID"), req.SeatID); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

type readyRequest struct {
	SeatID string `json:"seatId"`
	Ready  bool   `json:"ready"`
}

func (s *Server) handleSetReady(w http.ResponseWriter, r *http.Request) {
	var req readyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.coord.SetReady(r.Context(), chi.URLParam(r, "roomID"), req.SeatID, req.Ready); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

type slotRequest struct {
	SeatID   string `json:"seatId"`
	NewIndex int    `json:"newIndex"`
}

func (s *Server) handleSetSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.coord.SetSlot(r.Context(), chi.URLParam(r, "roomID"), req.SeatID, req.NewIndex); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

type teamNamesRequest struct {
	SeatID string   `json:"seatId"`
	Names  []string `json:"names"`
}

func (s *Server) handleSetTeamNames(w http.ResponseWriter, r *http.Request) {
	var req teamNamesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.coord.SetTeamNames(r.Context(), chi.URLParam(r, "roomID"), req.SeatID, req.Names); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req seatActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	started, err := s.coord.StartGame(r.Context(), chi.URLParam(r, "roomID"), req.SeatID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, started)
}

func (s *Server) handleRollDice(w http.ResponseWriter, r *http.Request) {
	var req seatActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	result, err := s.coord.RollDice(r.Context(), chi.URLParam(r, "roomID"), req.SeatID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, result)
}

type moveRequest struct {
	SeatID string          `json:"seatId"`
	Move   models.TokenMove `json:"move"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	result, err := s.coord.MoveToken(r.Context(), chi.URLParam(r, "roomID"), req.SeatID, req.Move)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, result)
}

func (s *Server) handleNextTurn(w http.ResponseWriter, r *http.Request) {
	result, err := s.coord.AdvanceTurn(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, result)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	before := int64(intQuery(r, "before", 0))
	events, err := s.coord.ListEvents(r.Context(), chi.URLParam(r, "roomID"), before, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, events)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r)
	roomID := chi.URLParam(r, "roomID")
	if err := s.hub.Upgrade(w, r, roomID, userID); err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
	}
}

// decodeOptionalJSON decodes a body when one is present and silently
// accepts an empty body, for endpoints whose request fields are all
// optional.
func decodeOptionalJSON(r *http.Request, out any) {
	if r.Body == nil {
		return
	}
	defer r.Body.Close()
	_ = json.NewDecoder(r.Body).Decode(out)
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return apperr.New(apperr.Validation, "request body required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.Validation, "malformed request body", err)
	}
	return nil
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start).String(),
			}).Info("request")
		})
	}
}

func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
