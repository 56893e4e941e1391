package engagement

import (
	"github.com/obrien-tchaleu/ludoserver/internal/boardcfg"
	"github.com/obrien-tchaleu/ludoserver/internal/rules"
	"github.com/obrien-tchaleu/ludoserver/pkg/models"
)

// MatchPhase is the coarse early/mid/late split by how much of the
// board has finished, distinct from the finer-grained StoryPhase.
type MatchPhase string

const (
	MatchEarly MatchPhase = "early"
	MatchMid   MatchPhase = "mid"
	MatchLate  MatchPhase = "late"
)

// ComputeMatchPhase classifies by the fraction of all tokens finished.
func ComputeMatchPhase(finishedTokens, totalTokens int) MatchPhase {
	if totalTokens == 0 {
		return MatchEarly
	}
	frac := float64(finishedTokens) / float64(totalTokens)
	switch {
	case frac < 0.12:
		return MatchEarly
	case frac < 0.55:
		return MatchMid
	default:
		return MatchLate
	}
}

// RankingContext summarizes the rolling seat's standing, computed by
// the room coordinator from per-color progress scores.
type RankingContext struct {
	Progress         int
	LeaderProgress   int
	LastProgress     int
	IsLeader         bool
	IsLast           bool
	LeadGap          int     // LeaderProgress - Progress, >= 0
	BehindGap        int     // Progress - LastProgress, >= 0
	BehindRatio      float64 // LeadGap / LeaderProgress, clamped to [0,1]
	MatchPhase       MatchPhase
	SpreadHigh       bool    // active-token step counts are widely spread
	AnyPlayerNearWin bool    // some seat has 3+ tokens finished
	SelfNearWin      bool    // this seat has 3+ tokens finished
	CloseChase       bool    // trailing the leader by a small, catchable gap
	Urgency          float64 // elapsed / max match time, clamped to [0,1]
}

// ContextFaces describes, for the current board, what each of the six
// dice faces would mean for the rolling seat. Derived by AnalyzeFaces
// from hypothetical rule-engine evaluation of every face.
type ContextFaces struct {
	Playable          [6]bool // index i = face i+1
	Kill              [6]bool // face lets the seat capture an opponent
	LeaderKill        [6]bool // capture whose victim is a current leader color
	LeaderPressure    [6]bool // face lands a token within striking range of a leader token
	Escape            [6]bool // face moves a presently threatened token to safety
	Finish            [6]bool // face finishes a token
	RevengeTargetKill [6]bool // capture whose victim is in the seat's revenge-target set

	AllInBase      bool
	BaseTokenCount int
	TotalTokens    int // tokens across controlled colors
}

// ColorProgressScore is the shared progress metric: finished tokens
// dominate, leaving base and reaching the home run carry fixed bonuses,
// and raw steps break ties.
func ColorProgressScore(list []models.Token) int {
	score := 0
	for _, t := range list {
		switch {
		case t.Status == models.TokenFinished || t.Status == models.TokenHome:
			score += 95
		case t.Position >= boardcfg.TotalCells:
			score += 30 + 14 + t.Steps
		case t.Status != models.TokenBase:
			score += 30
			if t.Steps > 0 {
				score += t.Steps
			}
		}
	}
	return score
}

// AnalyzeFaces evaluates every face 1..6 hypothetically through the
// rule engine and reports which faces are playable and what each one
// would accomplish. revengeTargets is the rolling seat's armed
// revenge-target color set (empty when the window is closed).
func AnalyzeFaces(tokens map[boardcfg.Color][]models.Token, seatColor boardcfg.Color, controlled []boardcfg.Color, revengeTargets []boardcfg.Color) ContextFaces {
	var out ContextFaces

	for _, c := range controlled {
		for _, t := range tokens[c] {
			out.TotalTokens++
			if t.Status == models.TokenBase {
				out.BaseTokenCount++
			}
		}
	}
	out.AllInBase = out.TotalTokens > 0 && out.BaseTokenCount == out.TotalTokens

	leaders := leaderEnemyColors(tokens, controlled)

	for face := 1; face <= 6; face++ {
		moves := rules.FindValidMoves(tokens, seatColor, face, controlled)
		if len(moves) == 0 {
			continue
		}
		out.Playable[face-1] = true

		for _, mv := range moves {
			before, ok := tokenByID(tokens[mv.Color], mv.TokenID)
			if !ok {
				continue
			}
			res := rules.ApplyMove(tokens, mv, face, controlled)
			after, _ := tokenByID(res.Tokens[mv.Color], mv.TokenID)

			if len(res.Captured) > 0 {
				out.Kill[face-1] = true
				for _, cap := range res.Captured {
					if containsColor(leaders, cap.Color) {
						out.LeaderKill[face-1] = true
					}
					if containsColor(revengeTargets, cap.Color) {
						out.RevengeTargetKill[face-1] = true
					}
				}
			}
			if res.Finished {
				out.Finish[face-1] = true
			}
			if threatened(tokens, controlled, before) && !threatened(res.Tokens, controlled, after) {
				out.Escape[face-1] = true
			}
			if pressuresLeader(res.Tokens, after, leaders) {
				out.LeaderPressure[face-1] = true
			}
		}
	}
	return out
}

// leaderEnemyColors returns the enemy color(s) with the best progress
// score, the ones leader-kill and leader-pressure faces aim at.
func leaderEnemyColors(tokens map[boardcfg.Color][]models.Token, controlled []boardcfg.Color) []boardcfg.Color {
	best := -1
	var out []boardcfg.Color
	for c, list := range tokens {
		if containsColor(controlled, c) {
			continue
		}
		s := ColorProgressScore(list)
		if s > best {
			best = s
			out = out[:0]
			out = append(out, c)
		} else if s == best {
			out = append(out, c)
		}
	}
	return out
}

// threatened reports whether a token sits on a non-safe main-track cell
// with an enemy token close enough behind to capture it on a single
// roll.
func threatened(tokens map[boardcfg.Color][]models.Token, controlled []boardcfg.Color, tok models.Token) bool {
	if tok.Position < 0 || tok.Position >= boardcfg.TotalCells || boardcfg.IsSafeIndex(tok.Position) {
		return false
	}
	for c, list := range tokens {
		if containsColor(controlled, c) {
			continue
		}
		for _, e := range list {
			if e.Status != models.TokenActive && e.Status != models.TokenSafe {
				continue
			}
			if e.Position < 0 || e.Position >= boardcfg.TotalCells {
				continue
			}
			d := ((tok.Position - e.Position) + boardcfg.TotalCells) % boardcfg.TotalCells
			if d >= 1 && d <= 6 {
				return true
			}
		}
	}
	return false
}

// pressuresLeader reports whether tok, after its move, sits within one
// roll of catching a leader-color token on a non-safe cell.
func pressuresLeader(tokens map[boardcfg.Color][]models.Token, tok models.Token, leaders []boardcfg.Color) bool {
	if tok.Position < 0 || tok.Position >= boardcfg.TotalCells {
		return false
	}
	for _, lc := range leaders {
		for _, e := range tokens[lc] {
			if e.Status != models.TokenActive && e.Status != models.TokenSafe {
				continue
			}
			if e.Position < 0 || e.Position >= boardcfg.TotalCells || boardcfg.IsSafeIndex(e.Position) {
				continue
			}
			d := ((e.Position - tok.Position) + boardcfg.TotalCells) % boardcfg.TotalCells
			if d >= 1 && d <= 6 {
				return true
			}
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

func containsColor(list []boardcfg.Color, c boardcfg.Color) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}
