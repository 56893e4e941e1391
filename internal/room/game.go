package room

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/obrien-tchaleu/ludoserver/internal/apperr"
	"github.com/obrien-tchaleu/ludoserver/internal/boardcfg"
	"github.com/obrien-tchaleu/ludoserver/internal/engagement"
	"github.com/obrien-tchaleu/ludoserver/internal/realtime"
	"github.com/obrien-tchaleu/ludoserver/internal/rules"
	"github.com/obrien-tchaleu/ludoserver/internal/taunt"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

const (
	gameLogKept = 50

	// maxMatchTime is the horizon the engagement engine's urgency ramp
	// runs against; past it the dice leans hard toward ending the match.
	maxMatchTime = 45 * time.Minute

	runtimeMirrorTTL = time.Hour
)

// StartGame transitions a waiting room to in_progress. Host-only, and
// requires at least two seats, all ready.
func (c *Coordinator) StartGame(ctx context.Context, roomID, seatID string) (*models.Room, error) {
	var result *models.Room
	err := c.cache.RunExclusive(ctx, roomID, func(room *models.Room) (*models.Room, error) {
		if room == nil {
			return nil, apperr.New(apperr.NotFound, "room not found")
		}
		if room.HostSeatID != seatID {
			return nil, apperr.ErrNotHost
		}
		if len(room.Seats) < 2 {
			return nil, apperr.New(apperr.Validation, "at least two seats are required to start")
		}
		table := c.seatTableHydrated(ctx, roomID)
		for _, sid := range room.Seats {
			seat := table[sid]
			if seat == nil {
				return nil, apperr.New(apperr.NotFound, "seat not in room")
			}
			if !seat.Ready {
				return nil, apperr.New(apperr.Validation, "all seats must be ready to start")
			}
		}

		board := &models.GameBoard{Tokens: map[boardcfg.Color][]*models.Token{}}
		for _, sid := range room.Seats {
			seat := table[sid]
			seat.Status = models.SeatPlaying
			board.Tokens[seat.Color] = models.NewTokensForColor(seat.Color)
			if err := c.store.SaveSeat(ctx, seat); err != nil {
				c.log.WithError(err).WithField("room_id", roomID).Warn("failed to persist seat status")
			}
		}
		startIdx := rand.IntN(len(room.Seats))
		board.CurrentPlayerID = room.Seats[startIdx]
		board.Revision = 1
		appendBoardLog(board, "Game started")

		rt := c.runtimeFor(roomID)
		rt.startedAt = time.Now()

		next := *room
		next.Status = models.RoomInProgress
		next.CurrentPlayerIndex = startIdx
		next.GameBoard = board
		c.saveTeamsSnapshot(ctx, &next, table)
		result = &next
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	c.appendEvent(ctx, roomID, models.EventGameStart, "", seatID, result.GameBoard.Revision, nil)
	c.publishPatch(ctx, roomID, models.Patch{Revision: result.GameBoard.Revision, Status: &result.Status, Board: &models.BoardPatch{CurrentPlayerID: &result.GameBoard.CurrentPlayerID}})
	return result, nil
}

// RollDice rolls the engagement-weighted dice for the seat whose turn
// it is. If the roll leaves no legal move at all, the turn advances
// atomically within this same call rather than waiting on a second
// request, and the single emitted patch already names the next player.
func (c *Coordinator) RollDice(ctx context.Context, roomID, seatID string) (*models.Room, error) {
	var result *models.Room
	var advancedNoMove bool
	var autos []taunt.AutoMessage
	var suggestions []taunt.Suggestion
	var actorUserID string
	err := c.cache.RunExclusive(ctx, roomID, func(room *models.Room) (*models.Room, error) {
		room, seat, err := c.requireActiveTurn(ctx, room, roomID, seatID)
		if err != nil {
			return nil, err
		}
		board := room.GameBoard
		if board.DiceValue != nil {
			return nil, apperr.ErrAlreadyRolled
		}
		if room.Settings.Mode == models.ModeIndividual && isWinner(board, seatID) {
			return nil, apperr.ErrWinnerCannotRoll
		}
		actorUserID = seat.UserID

		rt := c.runtimeFor(roomID)
		mom := rt.momentumFor(seatID)

		tokens := toValueTokens(board.Tokens)
		controlled := rules.ControllableColors(seat.Color, room.Settings.Mode, room.Settings.MaxPlayers)
		rank, leaderSeat, chaserSeat := c.computeRanking(room, tokens, seat, rt)
		faces := engagement.AnalyzeFaces(tokens, seat.Color, controlled, mom.RevengeTargetColors)

		var dice int
		var forced bool
		if c.engagementEnabled {
			out := c.engagement.Roll(c.rng, mom, rt.force, rank, rt.director.Phase, faces)
			dice, forced = out.Face, out.Forced
		} else {
			dice = uniformFace(c.rng)
		}

		moves := rules.FindValidMoves(tokens, seat.Color, dice, controlled)
		c.engagement.ReportOutcome(mom, dice, len(moves) > 0, faces.AllInBase, forced)

		next := *room
		nextBoard := *board
		nextBoard.Revision++
		now := time.Now()
		nextBoard.LastRollAt = &now
		nextBoard.ValidMoves = moves

		if len(moves) == 0 {
			nextIdx := rules.AdvanceTurn(room.CurrentPlayerIndex, room.Seats, board.Winners, room.Settings.Mode == models.ModeIndividual)
			nextBoard.DiceValue = nil
			nextBoard.ValidMoves = nil
			nextBoard.LastRollAt = nil
			nextBoard.CurrentPlayerID = room.Seats[nextIdx]
			next.CurrentPlayerIndex = nextIdx
			advancedNoMove = true
			appendBoardLog(&nextBoard, fmt.Sprintf("%s rolled %d, no valid move", seat.Username, dice))
			rt.director.ObserveRoll(leaderSeat, 0, rank)
		} else {
			nextBoard.DiceValue = &dice
		}

		if c.tauntEnabled {
			var events []taunt.Event
			if dice == 6 {
				events = append(events, taunt.Event{Trigger: taunt.TriggerRolledSix, ActorSeatID: seatID, ActorWasLast: rank.IsLast})
			}
			if dice >= 5 && unfinishedSeats(room, &nextBoard) <= 2 {
				events = append(events, taunt.Event{Trigger: taunt.TriggerClutchRoll, ActorSeatID: seatID})
			}
			if rank.IsLast && len(moves) > 0 {
				events = append(events, taunt.Event{Trigger: taunt.TriggerLastPlace, ActorSeatID: seatID, ActorWasLast: true})
			}
			autos, suggestions = c.taunt.Dispatch(events, room.Settings.TauntMode, rt.taunt, leaderSeat, chaserSeat, now)
		}

		c.mirrorRuntime(ctx, roomID, seatID, rt, mom)

		next.GameBoard = &nextBoard
		result = &next
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	c.appendEvent(ctx, roomID, models.EventDiceRoll, actorUserID, seatID, result.GameBoard.Revision, map[string]any{"dice": result.GameBoard.DiceValue, "autoAdvanced": advancedNoMove})
	if advancedNoMove {
		c.appendEvent(ctx, roomID, models.EventTurnAdvance, actorUserID, seatID, result.GameBoard.Revision, nil)
	}
	c.publishPatch(ctx, roomID, models.Patch{
		Revision:           result.GameBoard.Revision,
		CurrentPlayerIndex: &result.CurrentPlayerIndex,
		Board: &models.BoardPatch{
			DiceValue: result.GameBoard.DiceValue, ValidMoves: result.GameBoard.ValidMoves,
			CurrentPlayerID: &result.GameBoard.CurrentPlayerID, LastRollAt: result.GameBoard.LastRollAt,
		},
	})
	c.deliverTaunts(ctx, roomID, autos, suggestions)
	return result, nil
}

// MoveToken applies a move the most recent roll offered, handling
// captures, win detection, extra turns, and taunt triggering.
func (c *Coordinator) MoveToken(ctx context.Context, roomID, seatID string, move models.TokenMove) (*models.Room, error) {
	var result *models.Room
	var autos []taunt.AutoMessage
	var suggestions []taunt.Suggestion
	var actorUserID string
	var winnerUserID string
	var loserUserIDs []string
	err := c.cache.RunExclusive(ctx, roomID, func(room *models.Room) (*models.Room, error) {
		room, seat, err := c.requireActiveTurn(ctx, room, roomID, seatID)
		if err != nil {
			return nil, err
		}
		board := room.GameBoard
		if board.DiceValue == nil {
			return nil, apperr.New(apperr.Conflict, "no dice value outstanding")
		}
		if room.Settings.Mode == models.ModeIndividual && isWinner(board, seatID) {
			return nil, apperr.ErrWinnerCannotMove
		}
		if !containsMove(board.ValidMoves, move) {
			return nil, apperr.ErrInvalidMove
		}
		actorUserID = seat.UserID

		tokens := toValueTokens(board.Tokens)
		controlled := rules.ControllableColors(seat.Color, room.Settings.Mode, room.Settings.MaxPlayers)
		if !containsColor(controlled, move.Color) {
			return nil, apperr.ErrInvalidTeamColor
		}
		movedBefore, _ := tokenByID(tokens[move.Color], move.TokenID)
		res := rules.ApplyMove(tokens, move, *board.DiceValue, controlled)
		movedAfter, _ := tokenByID(res.Tokens[move.Color], move.TokenID)

		next := *room
		nextBoard := *board
		nextBoard.Revision++
		nextBoard.Tokens = toPointerTokens(res.Tokens)
		dice := *board.DiceValue
		nextBoard.DiceValue = nil
		nextBoard.ValidMoves = nil
		nextBoard.LastRollAt = nil

		rt := c.runtimeFor(roomID)
		table := c.seatSideTable(roomID)
		mom := rt.momentumFor(seatID)
		now := time.Now()
		prevLeader := rt.director.LeaderSeatID

		var events []taunt.Event
		if len(res.Captured) > 0 {
			mom.RecordCaptureMade()
			for _, cap := range res.Captured {
				victimSeat := seatForColor(table, room.Seats, cap.Color)
				if victimSeat == "" {
					continue
				}
				rt.momentumFor(victimSeat).RecordCaptured(seat.Color)
				trigger := taunt.TriggerCaptured
				if rt.taunt.IsRevenge(seatID, victimSeat, now, c.taunt.Config.RevengeWindow) {
					trigger = taunt.TriggerRevengeKill
				}
				rt.taunt.RecordCapture(seatID, victimSeat, now)
				events = append(events,
					taunt.Event{Trigger: trigger, ActorSeatID: seatID, TargetSeatID: victimSeat, RevengeActive: trigger == taunt.TriggerRevengeKill, TargetWasLeader: victimSeat == prevLeader},
					taunt.Event{Trigger: taunt.TriggerGotCaptured, ActorSeatID: victimSeat, TargetSeatID: seatID},
				)
				appendBoardLog(&nextBoard, fmt.Sprintf("%s captured a %s token", seat.Username, cap.Color))
			}
		}

		wonMatch := rules.CheckWin(res.Tokens, seat.Color)
		if wonMatch && !isWinner(&nextBoard, seatID) {
			rank := len(nextBoard.Winners) + 1
			nextBoard.Winners = append(append([]models.RankedSeat{}, nextBoard.Winners...), models.RankedSeat{SeatID: seatID, Rank: rank})
			table[seatID].Status = models.SeatFinished
			appendBoardLog(&nextBoard, fmt.Sprintf("%s finished in place %d", seat.Username, rank))
		}

		allDone := len(nextBoard.Winners) >= len(room.Seats)
		if allDone {
			next.Status = models.RoomCompleted
			for _, sid := range room.Seats {
				s := table[sid]
				if s == nil {
					continue
				}
				if len(nextBoard.Winners) > 0 && sid == nextBoard.Winners[0].SeatID {
					winnerUserID = s.UserID
				} else {
					loserUserIDs = append(loserUserIDs, s.UserID)
				}
			}
		}

		keepsTurn := rules.ExtraTurn(dice, len(res.Captured) > 0, res.Finished)
		if !keepsTurn && next.Status != models.RoomCompleted {
			nextIdx := rules.AdvanceTurn(room.CurrentPlayerIndex, room.Seats, nextBoard.Winners, room.Settings.Mode == models.ModeIndividual)
			next.CurrentPlayerIndex = nextIdx
			nextBoard.CurrentPlayerID = room.Seats[nextIdx]
		}

		rank, leaderSeat, chaserSeat := c.computeRanking(&next, res.Tokens, seat, rt)
		rt.director.ObserveRoll(leaderSeat, len(res.Captured), rank)

		if c.tauntEnabled {
			if movedBefore.Status == models.TokenBase && movedAfter.Status == models.TokenActive {
				events = append(events, taunt.Event{Trigger: taunt.TriggerReleasedToken, ActorSeatID: seatID})
			}
			if movedAfter.Status == models.TokenSafe && movedBefore.Status != models.TokenBase {
				events = append(events, taunt.Event{Trigger: taunt.TriggerEnteredSafe, ActorSeatID: seatID})
			}
			if rank.SelfNearWin && !wonMatch {
				events = append(events, taunt.Event{Trigger: taunt.TriggerNearWin, ActorSeatID: seatID})
			}
			if leaderSeat == seatID && prevLeader != "" && prevLeader != seatID {
				events = append(events, taunt.Event{Trigger: taunt.TriggerLeadChange, ActorSeatID: seatID, ActorWasLast: rank.IsLast})
			}
			autos, suggestions = c.taunt.Dispatch(events, room.Settings.TauntMode, rt.taunt, leaderSeat, chaserSeat, now)
		}

		c.mirrorRuntime(ctx, roomID, seatID, rt, mom)

		next.GameBoard = &nextBoard
		result = &next
		return &next, nil
	})
	if err != nil {
		return nil, err
	}

	c.appendEvent(ctx, roomID, models.EventMove, actorUserID, seatID, result.GameBoard.Revision, move)
	c.publishPatch(ctx, roomID, patchFromBoard(result))
	if winnerUserID != "" {
		if err := c.store.RecordGameResult(ctx, winnerUserID, loserUserIDs); err != nil {
			c.log.WithError(err).WithField("room_id", roomID).Warn("failed to record game result for leaderboard")
		}
	}
	c.deliverTaunts(ctx, roomID, autos, suggestions)
	return result, nil
}

// AdvanceTurn forces the current seat's turn to end once the move
// grace period has elapsed without a move being submitted.
func (c *Coordinator) AdvanceTurn(ctx context.Context, roomID string) (*models.Room, error) {
	var result *models.Room
	err := c.cache.RunExclusive(ctx, roomID, func(room *models.Room) (*models.Room, error) {
		if room == nil {
			return nil, apperr.New(apperr.NotFound, "room not found")
		}
		if room.Status != models.RoomInProgress {
			return nil, apperr.ErrGameCompleted
		}
		board := room.GameBoard
		if board.LastRollAt == nil || time.Since(*board.LastRollAt) < MoveGracePeriod {
			return nil, apperr.ErrMoveTimeNotExpired
		}

		next := *room
		nextBoard := *board
		nextBoard.Revision++
		nextBoard.DiceValue = nil
		nextBoard.ValidMoves = nil
		nextBoard.LastRollAt = nil
		nextIdx := rules.AdvanceTurn(room.CurrentPlayerIndex, room.Seats, board.Winners, room.Settings.Mode == models.ModeIndividual)
		next.CurrentPlayerIndex = nextIdx
		nextBoard.CurrentPlayerID = room.Seats[nextIdx]
		next.GameBoard = &nextBoard
		result = &next
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	c.appendEvent(ctx, roomID, models.EventTurnAdvance, "", "", result.GameBoard.Revision, nil)
	c.publishPatch(ctx, roomID, patchFromBoard(result))
	return result, nil
}

// requireActiveTurn resolves the current seat, preferring the board's
// CurrentPlayerID and falling back to the cached index when the ID is
// absent or stale, then checks the caller holds the turn.
func (c *Coordinator) requireActiveTurn(ctx context.Context, room *models.Room, roomID, seatID string) (*models.Room, *models.Seat, error) {
	if room == nil {
		return nil, nil, apperr.New(apperr.NotFound, "room not found")
	}
	if room.Status != models.RoomInProgress {
		return nil, nil, apperr.ErrGameCompleted
	}
	current := room.GameBoard.CurrentPlayerID
	if current == "" || indexOf(room.Seats, current) < 0 {
		idx := room.CurrentPlayerIndex
		if idx < 0 {
			idx = 0
		}
		if idx >= len(room.Seats) {
			idx = len(room.Seats) - 1
		}
		current = room.Seats[idx]
	}
	if current != seatID {
		return nil, nil, apperr.ErrNotYourTurn
	}
	seat, ok := c.seatTableHydrated(ctx, roomID)[seatID]
	if !ok {
		return nil, nil, apperr.New(apperr.NotFound, "seat not in room")
	}
	return room, seat, nil
}

// deliverTaunts publishes auto messages to the room and suggestions to
// each acting player's private topic.
func (c *Coordinator) deliverTaunts(ctx context.Context, roomID string, autos []taunt.AutoMessage, suggestions []taunt.Suggestion) {
	table := c.seatSideTable(roomID)
	for _, a := range autos {
		c.broadcaster.PublishRoom(ctx, roomID, realtime.Envelope{Type: realtime.TypeTauntSaid, Payload: a})
	}
	for _, s := range suggestions {
		seat := table[s.SeatID]
		if seat == nil {
			continue
		}
		c.broadcaster.PublishUser(ctx, seat.UserID, realtime.Envelope{Type: realtime.TypeTauntSuggested, Payload: s})
	}
}

// mirrorRuntime writes best-effort shared-cache snapshots of the seat's
// momentum and the room's director, force and taunt state, so restarts
// and diagnostics can read them. Failures are logged and swallowed; the
// in-memory copies stay authoritative.
func (c *Coordinator) mirrorRuntime(ctx context.Context, roomID, seatID string, rt *roomRuntime, mom *engagement.Momentum) {
	shared := c.cache.Shared()
	type kv struct {
		key string
		val any
	}
	for _, e := range []kv{
		{fmt.Sprintf("engagement:%s:player:%s:momentum", roomID, seatID), mom},
		{fmt.Sprintf("engagement:%s:story-director", roomID), rt.director},
		{fmt.Sprintf("engagement:%s:force-state", roomID), rt.force},
		{fmt.Sprintf("taunt:%s:state", roomID), rt.taunt},
	} {
		if err := shared.SetJSON(ctx, e.key, e.val, runtimeMirrorTTL); err != nil {
			c.log.WithError(err).WithField("key", e.key).Debug("runtime mirror write failed")
			return
		}
	}
}

// uniformFace samples a plain 1-6 face, used when ENGAGEMENT_DICE_ENABLED
// is turned off and the weighted pipeline should not run at all.
func uniformFace(rng engagement.RNG) int {
	return int(rng.Float64()*6) + 1
}

func appendBoardLog(board *models.GameBoard, line string) {
	board.GameLog = append(append([]string{}, board.GameLog...), line)
	if len(board.GameLog) > gameLogKept {
		board.GameLog = board.GameLog[len(board.GameLog)-gameLogKept:]
	}
}

func isWinner(board *models.GameBoard, seatID string) bool {
	for _, w := range board.Winners {
		if w.SeatID == seatID {
			return true
		}
	}
	return false
}

// unfinishedSeats counts seats that have not yet won, the "at most two
// remain" input to the clutch-roll trigger.
func unfinishedSeats(room *models.Room, board *models.GameBoard) int {
	n := 0
	for _, sid := range room.Seats {
		if !isWinner(board, sid) {
			n++
		}
	}
	return n
}

func containsMove(moves []models.TokenMove, m models.TokenMove) bool {
	for _, mv := range moves {
		if mv == m {
			return true
		}
	}
	return false
}

func containsColor(list []boardcfg.Color, c boardcfg.Color) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func tokenByID(list []models.Token, id int) (models.Token, bool) {
	for _, t := range list {
		if t.ID == id {
			return t, true
		}
	}
	return models.Token{}, false
}

func seatForColor(table seatTable, seats []string, color boardcfg.Color) string {
	for _, sid := range seats {
		if s := table[sid]; s != nil && s.Color == color {
			return sid
		}
	}
	return ""
}

func toValueTokens(in map[boardcfg.Color][]*models.Token) map[boardcfg.Color][]models.Token {
	out := make(map[boardcfg.Color][]models.Token, len(in))
	for c, list := range in {
		cp := make([]models.Token, len(list))
		for i, t := range list {
			cp[i] = *t
		}
		out[c] = cp
	}
	return out
}

func toPointerTokens(in map[boardcfg.Color][]models.Token) map[boardcfg.Color][]*models.Token {
	out := make(map[boardcfg.Color][]*models.Token, len(in))
	for c, list := range in {
		cp := make([]*models.Token, len(list))
		for i := range list {
			t := list[i]
			cp[i] = &t
		}
		out[c] = cp
	}
	return out
}

// computeRanking builds the engagement engine's standing snapshot for
// the rolling seat, and resolves the current leader and chaser seats
// for the taunt director's target selection.
func (c *Coordinator) computeRanking(room *models.Room, tokens map[boardcfg.Color][]models.Token, seat *models.Seat, rt *roomRuntime) (engagement.RankingContext, string, string) {
	table := c.seatSideTable(room.ID)

	type standing struct {
		seatID string
		score  int
	}
	var standings []standing
	mine := 0
	maxFinished, selfFinished := 0, 0
	totalTokens, finishedTokens := 0, 0
	var activeSteps []float64

	for _, sid := range room.Seats {
		s := table[sid]
		if s == nil {
			continue
		}
		score := engagement.ColorProgressScore(tokens[s.Color])
		standings = append(standings, standing{seatID: sid, score: score})
		if sid == seat.ID {
			mine = score
		}
		finished := 0
		for _, t := range tokens[s.Color] {
			totalTokens++
			switch {
			case t.Status == models.TokenFinished || t.Status == models.TokenHome:
				finished++
				finishedTokens++
			case t.Status != models.TokenBase:
				activeSteps = append(activeSteps, float64(t.Steps))
			}
		}
		if finished > maxFinished {
			maxFinished = finished
		}
		if sid == seat.ID {
			selfFinished = finished
		}
	}

	best, worst := -1, -1
	leaderSeat, chaserSeat := "", ""
	for _, st := range standings {
		if best == -1 || st.score > best {
			if leaderSeat != "" {
				chaserSeat = leaderSeat
			}
			best = st.score
			leaderSeat = st.seatID
		} else if chaserSeat == "" || st.score > engagement.ColorProgressScore(tokens[table[chaserSeat].Color]) {
			chaserSeat = st.seatID
		}
		if worst == -1 || st.score < worst {
			worst = st.score
		}
	}

	leadGap := best - mine
	behindGap := mine - worst
	behindRatio := 0.0
	if best > 0 {
		behindRatio = clampFloat(float64(leadGap)/float64(best), 0, 1)
	}

	urgency := 0.0
	if !rt.startedAt.IsZero() {
		urgency = clampFloat(time.Since(rt.startedAt).Seconds()/maxMatchTime.Seconds(), 0, 1)
	}

	return engagement.RankingContext{
		Progress: mine, LeaderProgress: best, LastProgress: worst,
		IsLeader: mine == best, IsLast: mine == worst,
		LeadGap: maxInt(leadGap, 0), BehindGap: maxInt(behindGap, 0),
		BehindRatio:      behindRatio,
		MatchPhase:       engagement.ComputeMatchPhase(finishedTokens, totalTokens),
		SpreadHigh:       stddev(activeSteps) > 12,
		AnyPlayerNearWin: maxFinished >= 3,
		SelfNearWin:      selfFinished >= 3,
		CloseChase:       leadGap > 0 && leadGap <= 14,
		Urgency:          urgency,
	}, leaderSeat, chaserSeat
}

func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	variance := 0.0
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(vals)))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func patchFromBoard(room *models.Room) models.Patch {
	b := room.GameBoard
	return models.Patch{
		Revision:           b.Revision,
		CurrentPlayerIndex: &room.CurrentPlayerIndex,
		Status:             &room.Status,
		Board: &models.BoardPatch{
			DiceValue: b.DiceValue, ValidMoves: b.ValidMoves,
			CurrentPlayerID: &b.CurrentPlayerID, LastRollAt: b.LastRollAt,
			Tokens: b.Tokens, Winners: b.Winners,
		},
	}
}

func (c *Coordinator) appendEvent(ctx context.Context, roomID string, typ models.GameEventType, actorUserID, actorSeatID string, revision int64, payload any) {
	ev := &models.GameEvent{
		ID: uuid.NewString(), RoomID: roomID, Type: typ,
		ActorUserID: actorUserID, ActorSeatID: actorSeatID,
		Revision: revision, Payload: payload, CreatedAt: time.Now(),
	}
	if err := c.store.AppendEvent(ctx, ev); err != nil {
		c.log.WithError(err).WithField("room_id", roomID).Warn("failed to append game event")
	}
}

func (c *Coordinator) publishPatch(ctx context.Context, roomID string, patch models.Patch) {
	c.broadcaster.PublishRoom(ctx, roomID, realtime.Envelope{Type: realtime.TypePatch, Payload: patch})
}
