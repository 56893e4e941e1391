package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/obrien-tchaleu/ludoserver/internal/boardcfg"
	"github.com/obrien-tchaleu/ludoserver/internal/rules"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

func freshTokens(colors ...boardcfg.Color) map[boardcfg.Color][]models.Token {
	out := map[boardcfg.Color][]models.Token{}
	for _, c := range colors {
		toks := make([]models.Token, boardcfg.TokensPerColor)
		for i := range toks {
			toks[i] = models.Token{ID: i, Color: c, Position: -1, Status: models.TokenBase}
		}
		out[c] = toks
	}
	return out
}

func TestFindValidMoves_BaseTokenOnlyMovesOnSix(t *testing.T) {
	tokens := freshTokens(boardcfg.Red)

	moves5 := rules.FindValidMoves(tokens, boardcfg.Red, 5, []boardcfg.Color{boardcfg.Red})
	assert.Empty(t, moves5, "a base token may not leave on anything but a 6")

	moves6 := rules.FindValidMoves(tokens, boardcfg.Red, 6, []boardcfg.Color{boardcfg.Red})
	assert.Len(t, moves6, 4, "all four base tokens are individually eligible to leave on a 6")
}

func TestApplyMove_LeaveBase(t *testing.T) {
	tokens := freshTokens(boardcfg.Red)
	move := models.TokenMove{TokenID: 0, Color: boardcfg.Red}

	res := rules.ApplyMove(tokens, move, 6, []boardcfg.Color{boardcfg.Red})

	tok := res.Tokens[boardcfg.Red][0]
	assert.Equal(t, boardcfg.HomeStart(boardcfg.Red), tok.Position)
	assert.Equal(t, models.TokenActive, tok.Status)
	assert.Empty(t, res.Captured)
}

func TestApplyMove_CaptureLoneEnemy(t *testing.T) {
	tokens := freshTokens(boardcfg.Red, boardcfg.Green)
	// Green token sitting 3 cells ahead of red's entry point, on a non-safe cell.
	tokens[boardcfg.Red][0] = models.Token{ID: 0, Color: boardcfg.Red, Position: boardcfg.HomeStart(boardcfg.Red), Status: models.TokenActive, Steps: 10}
	landOn := (boardcfg.HomeStart(boardcfg.Red) + 3) % boardcfg.TotalCells
	for boardcfg.IsSafeIndex(landOn) {
		landOn = (landOn + 1) % boardcfg.TotalCells
	}
	tokens[boardcfg.Green][0] = models.Token{ID: 0, Color: boardcfg.Green, Position: landOn, Status: models.TokenActive, Steps: 5}
	tokens[boardcfg.Red][0].Position = (landOn - 3 + boardcfg.TotalCells) % boardcfg.TotalCells

	move := models.TokenMove{TokenID: 0, Color: boardcfg.Red}
	res := rules.ApplyMove(tokens, move, 3, []boardcfg.Color{boardcfg.Red})

	if assert.Len(t, res.Captured, 1) {
		assert.Equal(t, boardcfg.Green, res.Captured[0].Color)
	}
	capturedTok := res.Tokens[boardcfg.Green][0]
	assert.Equal(t, models.TokenBase, capturedTok.Status)
	assert.Equal(t, -1, capturedTok.Position)
}

func TestApplyMove_SafeCellNeverCaptures(t *testing.T) {
	tokens := freshTokens(boardcfg.Red, boardcfg.Green)
	var safeCell int
	for c := range boardcfg.SafeIndices {
		safeCell = c
		break
	}
	tokens[boardcfg.Green][0] = models.Token{ID: 0, Color: boardcfg.Green, Position: safeCell, Status: models.TokenSafe, Steps: 5}
	tokens[boardcfg.Red][0] = models.Token{ID: 0, Color: boardcfg.Red, Position: (safeCell - 2 + boardcfg.TotalCells) % boardcfg.TotalCells, Status: models.TokenActive, Steps: 10}

	move := models.TokenMove{TokenID: 0, Color: boardcfg.Red}
	res := rules.ApplyMove(tokens, move, 2, []boardcfg.Color{boardcfg.Red})

	assert.Empty(t, res.Captured)
	assert.Equal(t, models.TokenSafe, res.Tokens[boardcfg.Green][0].Status)
}

func TestCheckWin_AllFourFinished(t *testing.T) {
	tokens := freshTokens(boardcfg.Red)
	for i := range tokens[boardcfg.Red] {
		tokens[boardcfg.Red][i].Status = models.TokenFinished
		tokens[boardcfg.Red][i].Position = boardcfg.FinishedPos
	}
	assert.True(t, rules.CheckWin(tokens, boardcfg.Red))
}

func TestCheckWin_NotYetAllFinished(t *testing.T) {
	tokens := freshTokens(boardcfg.Red)
	tokens[boardcfg.Red][0].Status = models.TokenFinished
	assert.False(t, rules.CheckWin(tokens, boardcfg.Red))
}

func TestAdvanceTurn_SkipsWinners(t *testing.T) {
	seats := []string{"s1", "s2", "s3"}
	winners := []models.RankedSeat{{SeatID: "s2", Rank: 1}}

	next := rules.AdvanceTurn(0, seats, winners, true)
	assert.Equal(t, 2, next, "seat index 1 (s2) has already finished and must be skipped")
}

func TestAdvanceTurn_WrapsAround(t *testing.T) {
	seats := []string{"s1", "s2", "s3"}
	next := rules.AdvanceTurn(2, seats, nil, true)
	assert.Equal(t, 0, next)
}

func TestExtraTurn(t *testing.T) {
	assert.True(t, rules.ExtraTurn(6, false, false))
	assert.True(t, rules.ExtraTurn(3, true, false))
	assert.True(t, rules.ExtraTurn(2, false, true))
	assert.False(t, rules.ExtraTurn(4, false, false))
}

func TestControllableColors_TeamModeIncludesPartner(t *testing.T) {
	colors := rules.ControllableColors(boardcfg.Red, models.ModeTeam, 4)
	assert.ElementsMatch(t, []boardcfg.Color{boardcfg.Red, boardcfg.Yellow}, colors)
}

func TestControllableColors_IndividualModeIsJustSelf(t *testing.T) {
	colors := rules.ControllableColors(boardcfg.Red, models.ModeIndividual, 4)
	assert.Equal(t, []boardcfg.Color{boardcfg.Red}, colors)
}

func TestFindValidMoves_HomeEntryBlockedByBlockadeOnApproach(t *testing.T) {
	// Red's entry arrow sits at adjusted index 50. A red token at 48
	// with a completed lap wants to turn in on a 4 (2 to the arrow,
	// overshoot 2), but a green blockade at 49 sits on the approach.
	tokens := freshTokens(boardcfg.Red, boardcfg.Green)
	tokens[boardcfg.Red][0] = models.Token{ID: 0, Color: boardcfg.Red, Position: 48, Status: models.TokenActive, Steps: 48}
	tokens[boardcfg.Green][0] = models.Token{ID: 0, Color: boardcfg.Green, Position: 49, Status: models.TokenActive, Steps: 5}
	tokens[boardcfg.Green][1] = models.Token{ID: 1, Color: boardcfg.Green, Position: 49, Status: models.TokenActive, Steps: 5}

	moves := rules.FindValidMoves(tokens, boardcfg.Red, 4, []boardcfg.Color{boardcfg.Red})
	assert.Empty(t, moves, "the blockade before the arrow blocks both home entry and continuing")
}

func TestFindValidMoves_HomeEntryIgnoresBlockadePastArrow(t *testing.T) {
	// Same geometry, but the green blockade sits at 51 — past red's
	// arrow at 50. The home run lane is private, so entry must be legal.
	tokens := freshTokens(boardcfg.Red, boardcfg.Green)
	tokens[boardcfg.Red][0] = models.Token{ID: 0, Color: boardcfg.Red, Position: 48, Status: models.TokenActive, Steps: 48}
	tokens[boardcfg.Green][0] = models.Token{ID: 0, Color: boardcfg.Green, Position: 51, Status: models.TokenActive, Steps: 5}
	tokens[boardcfg.Green][1] = models.Token{ID: 1, Color: boardcfg.Green, Position: 51, Status: models.TokenActive, Steps: 5}

	moves := rules.FindValidMoves(tokens, boardcfg.Red, 4, []boardcfg.Color{boardcfg.Red})
	assert.Contains(t, moves, models.TokenMove{TokenID: 0, Color: boardcfg.Red})

	res := rules.ApplyMove(tokens, models.TokenMove{TokenID: 0, Color: boardcfg.Red}, 4, []boardcfg.Color{boardcfg.Red})
	tok := res.Tokens[boardcfg.Red][0]
	assert.Equal(t, boardcfg.TotalCells+1, tok.Position, "overshoot 2 lands on home-run index 1")
	assert.Equal(t, models.TokenSafe, tok.Status)
}

func TestApplyMove_StackMoveResolvesEachMoverAndReportsFinish(t *testing.T) {
	// Two red tokens stacked at 48, one with a completed lap and one
	// without. On a 6 (effective 3 each) the lapped token turns into
	// the home run while its mate continues past the arrow on the main
	// track — each mover resolves its own geometry.
	tokens := freshTokens(boardcfg.Red)
	tokens[boardcfg.Red][0] = models.Token{ID: 0, Color: boardcfg.Red, Position: 48, Status: models.TokenActive, Steps: 48}
	tokens[boardcfg.Red][1] = models.Token{ID: 1, Color: boardcfg.Red, Position: 48, Status: models.TokenActive, Steps: 10}

	res := rules.ApplyMove(tokens, models.TokenMove{TokenID: 1, Color: boardcfg.Red}, 6, []boardcfg.Color{boardcfg.Red})

	lapped := res.Tokens[boardcfg.Red][0]
	fresh := res.Tokens[boardcfg.Red][1]
	assert.Equal(t, boardcfg.TotalCells, lapped.Position, "the lapped stack-mate turns into its home run")
	assert.Equal(t, models.TokenSafe, lapped.Status)
	assert.Equal(t, 51, fresh.Position, "the unlapped mate continues on the main track")
	assert.False(t, res.Finished)

	// Finished must reflect any mover reaching home, not just the
	// token the move named.
	tokens2 := freshTokens(boardcfg.Red)
	tokens2[boardcfg.Red][0] = models.Token{ID: 0, Color: boardcfg.Red, Position: boardcfg.TotalCells + 4, Status: models.TokenSafe, Steps: 55}
	res2 := rules.ApplyMove(tokens2, models.TokenMove{TokenID: 0, Color: boardcfg.Red}, 2, []boardcfg.Color{boardcfg.Red})
	assert.True(t, res2.Finished)
	assert.Equal(t, boardcfg.FinishedPos, res2.Tokens[boardcfg.Red][0].Position)
}

func TestForcedStack_RequiresEvenDice(t *testing.T) {
	tokens := freshTokens(boardcfg.Red)
	pos := 10
	tokens[boardcfg.Red][0] = models.Token{ID: 0, Color: boardcfg.Red, Position: pos, Status: models.TokenActive, Steps: 10}
	tokens[boardcfg.Red][1] = models.Token{ID: 1, Color: boardcfg.Red, Position: pos, Status: models.TokenActive, Steps: 10}

	oddMoves := rules.FindValidMoves(tokens, boardcfg.Red, 3, []boardcfg.Color{boardcfg.Red})
	for _, m := range oddMoves {
		assert.NotEqual(t, 0, m.TokenID, "stacked token cannot move alone on odd dice")
		assert.NotEqual(t, 1, m.TokenID, "stacked token cannot move alone on odd dice")
	}

	evenMoves := rules.FindValidMoves(tokens, boardcfg.Red, 4, []boardcfg.Color{boardcfg.Red})
	assert.Len(t, evenMoves, 2, "both stacked tokens become movable together at half the even roll")
}
