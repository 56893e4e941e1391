// Package rules is the pure Ludo rule engine: legal-move enumeration,
// move application, captures, team blockades, home-entry, turn
// rotation, and win detection. Every function here is deterministic
// given its inputs and performs no I/O; illegal inputs degrade to
// sentinel values (empty move sets, unchanged tokens) rather than
// panicking or returning an error — the caller (internal/room) is the
// one place that turns that into a user-visible error.
//
// Home-run lane resolution: the data model's description of H is
// internally ambiguous between "5 progress cells" and "6 lane cells
// before finish." This engine takes H = boardcfg.HomeRunLen (6): a
// token's lane index runs 0..5 (positions 52..57), and an index of
// exactly H (6) is the finish transition to position 58. This is the
// only reading consistent with both the continue-in-lane formula and
// the data model's explicit enumeration of position 57 as distinct
// from 58. See DESIGN.md.
package rules

import (
	"github.com/obrien-tchaleu/ludoserver/internal/boardcfg"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

// ControllableColors returns the colors a seat may move tokens of.
// Individual mode controls exactly its own color; team mode also
// controls its partner's color (team blockade rules activate only
// when more than one color is controlled).
func ControllableColors(seatColor boardcfg.Color, mode models.RoomMode, maxPlayers int) []boardcfg.Color {
	if mode != models.ModeTeam {
		return []boardcfg.Color{seatColor}
	}
	order := boardcfg.ColorOrder(maxPlayers)
	idx := colorIndex(order, seatColor)
	if idx < 0 {
		return []boardcfg.Color{seatColor}
	}
	partner := order[boardcfg.PartnerIndex(idx, maxPlayers)]
	return []boardcfg.Color{seatColor, partner}
}

func colorIndex(order []boardcfg.Color, c boardcfg.Color) int {
	for i, oc := range order {
		if oc == c {
			return i
		}
	}
	return -1
}

type tokenLoc struct {
	color boardcfg.Color
	idx   int
}

// stackMates returns the indices of other controlled tokens sharing
// token's main-track cell (non-safe), including token itself.
func stackMates(tokens map[boardcfg.Color][]models.Token, controlled []boardcfg.Color, pos int) []tokenLoc {
	var out []tokenLoc
	if pos < 0 || pos >= boardcfg.TotalCells || boardcfg.IsSafeIndex(pos) {
		return out
	}
	for _, c := range controlled {
		for i, t := range tokens[c] {
			if t.Position == pos && (t.Status == models.TokenActive || t.Status == models.TokenSafe) {
				out = append(out, tokenLoc{c, i})
			}
		}
	}
	return out
}

// effectiveDice resolves the forced-stack rule for a token: when two
// or more controlled tokens share a non-safe track cell, they must
// move together at half the rolled dice.
func effectiveDice(tokens map[boardcfg.Color][]models.Token, controlled []boardcfg.Color, pos, dice int) (eff int, forced bool, ok bool) {
	mates := stackMates(tokens, controlled, pos)
	if len(mates) < 2 {
		return dice, false, true
	}
	if dice%2 != 0 || dice/2 < 1 {
		return 0, true, false
	}
	return dice / 2, true, true
}

// FindValidMoves enumerates every (tokenID, color) pair legal for the
// given dice roll.
func FindValidMoves(tokens map[boardcfg.Color][]models.Token, currentColor boardcfg.Color, dice int, controlled []boardcfg.Color) []models.TokenMove {
	var moves []models.TokenMove
	for _, color := range controlled {
		for i, tok := range tokens[color] {
			if legal, _ := isLegalMove(tokens, controlled, color, i, tok, dice); legal {
				moves = append(moves, models.TokenMove{TokenID: tok.ID, Color: color})
			}
		}
	}
	return moves
}

// moveCtx carries the resolved geometry of a single candidate move so
// ApplyMove and FindValidMoves can share the exact same arithmetic.
type moveCtx struct {
	effDice      int
	forcedStack  bool
	enterHome    bool
	newPos       int
	finished     bool
}

func isLegalMove(tokens map[boardcfg.Color][]models.Token, controlled []boardcfg.Color, color boardcfg.Color, idx int, tok models.Token, dice int) (bool, moveCtx) {
	if tok.Status == models.TokenHome || tok.Status == models.TokenFinished {
		return false, moveCtx{}
	}
	if tok.Status == models.TokenBase {
		if dice == 6 {
			return true, moveCtx{effDice: dice}
		}
		return false, moveCtx{}
	}

	eff, _, ok := effectiveDice(tokens, controlled, tok.Position, dice)
	if !ok {
		return false, moveCtx{}
	}

	const H = boardcfg.HomeRunLen

	if tok.Position >= boardcfg.TotalCells {
		// Already in the home run lane.
		curIdx := tok.Position - boardcfg.TotalCells
		nextIdx := curIdx + eff
		if nextIdx > H {
			return false, moveCtx{}
		}
		if nextIdx == H {
			return true, moveCtx{effDice: eff, newPos: boardcfg.FinishedPos, finished: true}
		}
		return true, moveCtx{effDice: eff, newPos: boardcfg.TotalCells + nextIdx}
	}

	// On the main track: continue, or turn into the home run.
	entryAdj := boardcfg.EntryIndexAdjusted(color)
	distanceToArrow := ((entryAdj-tok.Position)%boardcfg.TotalCells + boardcfg.TotalCells) % boardcfg.TotalCells
	completesLap := tok.Steps+distanceToArrow >= boardcfg.RotationThresh

	if completesLap && eff > distanceToArrow {
		overshoot := eff - distanceToArrow
		if overshoot >= 1 && overshoot <= H+1 {
			// Only the approach to the arrow can be blockaded; the home
			// run lane past it is private to this color.
			if pathBlockaded(tokens, controlled, color, tok.Position, 0, distanceToArrow) {
				return false, moveCtx{}
			}
			if overshoot == H+1 {
				return true, moveCtx{effDice: eff, newPos: boardcfg.FinishedPos, finished: true, enterHome: true}
			}
			return true, moveCtx{effDice: eff, newPos: boardcfg.TotalCells + overshoot - 1, enterHome: true}
		}
	}

	// Continue on the main track.
	if pathBlockaded(tokens, controlled, color, tok.Position, 0, eff) {
		return false, moveCtx{}
	}
	newPos := (tok.Position + eff) % boardcfg.TotalCells
	return true, moveCtx{effDice: eff, newPos: newPos}
}

// pathBlockaded checks every intermediate cell the mover crosses (from
// just past startOffset steps out of position, through eff steps) for
// an enemy blockade (>=2 enemy tokens) on a non-safe cell. A stack of
// >=2 controlled tokens may break/cross blockades.
func pathBlockaded(tokens map[boardcfg.Color][]models.Token, controlled []boardcfg.Color, moverColor boardcfg.Color, startPos, fromStep, eff int) bool {
	isStack := len(stackMates(tokens, controlled, startPos)) >= 2
	if isStack {
		return false
	}
	for s := fromStep + 1; s <= eff; s++ {
		cell := (startPos + s) % boardcfg.TotalCells
		if boardcfg.IsSafeIndex(cell) {
			continue
		}
		if hasEnemyBlockade(tokens, controlled, cell) {
			return true
		}
	}
	return false
}

func hasEnemyBlockade(tokens map[boardcfg.Color][]models.Token, controlled []boardcfg.Color, cell int) bool {
	isAllied := func(c boardcfg.Color) bool {
		for _, ac := range controlled {
			if ac == c {
				return true
			}
		}
		return false
	}
	count := 0
	for color, list := range tokens {
		if isAllied(color) {
			continue
		}
		for _, t := range list {
			if t.Position == cell && (t.Status == models.TokenActive || t.Status == models.TokenSafe) {
				count++
			}
		}
	}
	return count >= 2
}

// Captured describes a token returned to base by a move.
type Captured struct {
	TokenID int
	Color   boardcfg.Color
}

// ApplyMoveResult is the outcome of applying one move.
type ApplyMoveResult struct {
	Tokens    map[boardcfg.Color][]models.Token
	Captured  []Captured
	Finished  bool
}

// ApplyMove moves the named token by dice and returns a fresh token
// map (copy-on-write at the color level) plus any captures. It
// degrades to an unchanged copy if the move is not legal — callers
// must check legality with FindValidMoves first.
func ApplyMove(tokens map[boardcfg.Color][]models.Token, move models.TokenMove, dice int, controlled []boardcfg.Color) ApplyMoveResult {
	out := cloneTokens(tokens)

	list, ok := findToken(out, move)
	if !ok {
		return ApplyMoveResult{Tokens: out}
	}
	idx, tok := list.idx, list.tok

	legal, ctx := isLegalMove(tokens, controlled, move.Color, idx, tok, dice)
	if !legal {
		return ApplyMoveResult{Tokens: out}
	}

	movers := []tokenLoc{{move.Color, idx}}
	if tok.Status != models.TokenBase && tok.Position < boardcfg.TotalCells {
		if mates := stackMates(tokens, controlled, tok.Position); len(mates) >= 2 {
			movers = mates
		}
	}

	var allCaptured []Captured
	anyFinished := ctx.finished
	seenCaptured := map[boardcfg.Color]map[int]bool{}

	for _, m := range movers {
		moving := out[m.color][m.idx]
		var mctx moveCtx
		if tok.Status == models.TokenBase && m == movers[0] {
			mctx = ctx
		} else {
			_, mctx = isLegalMove(tokens, controlled, m.color, m.idx, moving, dice)
		}
		if mctx.finished {
			anyFinished = true
		}

		applyOne(out, m, moving, mctx, controlled)

		if mctx.newPos >= 0 && mctx.newPos < boardcfg.TotalCells && !boardcfg.IsSafeIndex(mctx.newPos) {
			captured := captureAt(out, controlled, mctx.newPos, movers)
			for _, c := range captured {
				if seenCaptured[c.Color] == nil {
					seenCaptured[c.Color] = map[int]bool{}
				}
				if !seenCaptured[c.Color][c.TokenID] {
					seenCaptured[c.Color][c.TokenID] = true
					allCaptured = append(allCaptured, c)
				}
			}
		}
	}

	return ApplyMoveResult{Tokens: out, Captured: allCaptured, Finished: anyFinished}
}

func applyOne(out map[boardcfg.Color][]models.Token, loc tokenLoc, tok models.Token, ctx moveCtx, controlled []boardcfg.Color) {
	if tok.Status == models.TokenBase {
		tok.Position = boardcfg.HomeStart(loc.color)
		tok.Steps = 0
		tok.Status = models.TokenActive
		out[loc.color][loc.idx] = tok
		return
	}

	tok.Steps += ctx.effDice
	if ctx.finished {
		tok.Position = boardcfg.FinishedPos
		tok.Status = models.TokenFinished
	} else {
		tok.Position = ctx.newPos
		if tok.Position >= boardcfg.TotalCells {
			tok.Status = models.TokenSafe
		} else if boardcfg.IsSafeIndex(tok.Position) {
			tok.Status = models.TokenSafe
		} else {
			tok.Status = models.TokenActive
		}
	}
	out[loc.color][loc.idx] = tok
}

// captureAt scans for enemy tokens landed on at newPos and returns the
// ones captured: a single enemy token is always captured; a two-token
// enemy blockade is captured only when the mover set is itself a
// stack of >=2 (blockade break); in individual mode a >=2 enemy
// cluster on a cell cannot occur without being a blockade, which stays
// uncapturable by a lone mover.
func captureAt(tokens map[boardcfg.Color][]models.Token, controlled []boardcfg.Color, pos int, movers []tokenLoc) []Captured {
	isAllied := func(c boardcfg.Color) bool {
		for _, ac := range controlled {
			if ac == c {
				return true
			}
		}
		return false
	}

	var enemies []tokenLoc
	for color, list := range tokens {
		if isAllied(color) {
			continue
		}
		for i, t := range list {
			if t.Position == pos && (t.Status == models.TokenActive || t.Status == models.TokenSafe) {
				enemies = append(enemies, tokenLoc{color, i})
			}
		}
	}
	if len(enemies) == 0 {
		return nil
	}
	if len(enemies) == 1 {
		return captureTokens(tokens, enemies)
	}
	// >=2 enemies on this cell: a blockade.
	if len(movers) >= 2 {
		return captureTokens(tokens, enemies)
	}
	return nil
}

func captureTokens(tokens map[boardcfg.Color][]models.Token, locs []tokenLoc) []Captured {
	var out []Captured
	for _, l := range locs {
		t := tokens[l.color][l.idx]
		t.Position = -1
		t.Status = models.TokenBase
		t.Steps = -1
		tokens[l.color][l.idx] = t
		out = append(out, Captured{TokenID: t.ID, Color: l.color})
	}
	return out
}

type found struct {
	idx int
	tok models.Token
}

func findToken(tokens map[boardcfg.Color][]models.Token, move models.TokenMove) (found, bool) {
	for i, t := range tokens[move.Color] {
		if t.ID == move.TokenID {
			return found{idx: i, tok: t}, true
		}
	}
	return found{}, false
}

func cloneTokens(tokens map[boardcfg.Color][]models.Token) map[boardcfg.Color][]models.Token {
	out := make(map[boardcfg.Color][]models.Token, len(tokens))
	for c, list := range tokens {
		cp := make([]models.Token, len(list))
		copy(cp, list)
		out[c] = cp
	}
	return out
}

// CheckWin reports whether every token of color has finished.
func CheckWin(tokens map[boardcfg.Color][]models.Token, color boardcfg.Color) bool {
	for _, t := range tokens[color] {
		if t.Status != models.TokenFinished {
			return false
		}
	}
	return len(tokens[color]) > 0
}

// AdvanceTurn returns the next seat index whose seat is not already a
// winner (unless skipWinners is false, letting a finished teammate's
// partner still take turns in team mode).
func AdvanceTurn(currentIndex int, seatIDs []string, winners []models.RankedSeat, skipWinners bool) int {
	if len(seatIDs) == 0 {
		return currentIndex
	}
	isWinner := map[string]bool{}
	for _, w := range winners {
		isWinner[w.SeatID] = true
	}
	next := (currentIndex + 1) % len(seatIDs)
	if !skipWinners {
		return next
	}
	for i := 0; i < len(seatIDs); i++ {
		if !isWinner[seatIDs[next]] {
			return next
		}
		next = (next + 1) % len(seatIDs)
	}
	return currentIndex
}

// ExtraTurn reports whether the mover keeps the turn: dice was 6, any
// capture occurred, or a token transitioned to finished this move.
func ExtraTurn(dice int, anyCaptured bool, anyFinished bool) bool {
	return dice == 6 || anyCaptured || anyFinished
}
