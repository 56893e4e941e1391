package engagement

import (
	"github.com/obrien-tchaleu/ludoserver/internal/boardcfg"
)

const (
	recentRollsKept = 10

	// revengeArmedWindow and recentlyKilledWindow are the turn counts a
	// capture stays "hot" for: the victim's dice leans toward hitting
	// the attacker back while armed, and the victim reads as tilted
	// while recently killed.
	revengeArmedWindow   = 6
	recentlyKilledWindow = 4

	maxPowerRollCharges = 3
)

// Momentum is the per-seat rolling history the engine consults on every
// roll and updates after every resolved turn. One instance per seat per
// room, owned by the room coordinator and mutated only inside that
// room's critical section; JSON-tagged so it can be mirrored into the
// shared cache under engagement:{roomId}:player:{seatId}:momentum.
type Momentum struct {
	RecentRolls          []int            `json:"recentRolls"`
	NoMoveStreak         int              `json:"noMoveStreak"`
	TurnsSinceSix        int              `json:"turnsSinceSix"`
	ConsecutiveSixes     int              `json:"consecutiveSixes"`
	TurnsAllTokensInBase int              `json:"turnsAllTokensInBase"`
	LuckDelta            float64          `json:"luckDelta"`
	RevengeArmedTurns    int              `json:"revengeArmedTurns"`
	RevengeTargetColors  []boardcfg.Color `json:"revengeTargetColors,omitempty"`
	RecentlyKilledTurns  int              `json:"recentlyKilledTurns"`
	PowerRollCharges     int              `json:"powerRollCharges"`
	SessionAssistScore   float64          `json:"sessionAssistScore"`
}

// ReportOutcome folds one roll into the momentum: the room coordinator
// invokes it at roll time, before any chosen move is applied, with the
// face that was rolled, whether it offered any legal
// move, whether every controlled token sat in base, and whether the
// engine forced the face. forgiveness is the luck-debt decay factor ρ.
func (m *Momentum) ReportOutcome(rolled int, hadValidMove, allInBase, wasForced bool, forgiveness float64) {
	m.RecentRolls = append(m.RecentRolls, rolled)
	if len(m.RecentRolls) > recentRollsKept {
		m.RecentRolls = m.RecentRolls[len(m.RecentRolls)-recentRollsKept:]
	}

	if rolled == 6 {
		m.TurnsSinceSix = 0
		m.ConsecutiveSixes++
	} else {
		m.TurnsSinceSix++
		m.ConsecutiveSixes = 0
	}

	if hadValidMove {
		m.NoMoveStreak = 0
	} else {
		m.NoMoveStreak++
	}

	if allInBase {
		m.TurnsAllTokensInBase++
	} else {
		m.TurnsAllTokensInBase = 0
	}

	m.LuckDelta = m.LuckDelta*forgiveness + (float64(rolled) - 3.5)

	if m.RevengeArmedTurns > 0 {
		m.RevengeArmedTurns--
		if m.RevengeArmedTurns == 0 {
			m.RevengeTargetColors = nil
		}
	}
	if m.RecentlyKilledTurns > 0 {
		m.RecentlyKilledTurns--
	}
	if m.PowerRollCharges > 0 {
		m.PowerRollCharges--
	}

	m.SessionAssistScore *= 0.9
	if wasForced {
		m.SessionAssistScore += 1
	}
}

// RecordCaptureMade is the attacker-side capture hook: each capture
// banks a power-roll charge, capped.
func (m *Momentum) RecordCaptureMade() {
	if m.PowerRollCharges < maxPowerRollCharges {
		m.PowerRollCharges++
	}
}

// RecordCaptured is the victim-side capture hook: it arms the revenge
// window against the attacker's color and marks the seat as recently
// killed so the anti-tilt adjustments engage.
func (m *Momentum) RecordCaptured(attacker boardcfg.Color) {
	if m.RevengeArmedTurns < revengeArmedWindow {
		m.RevengeArmedTurns = revengeArmedWindow
	}
	if m.RecentlyKilledTurns < recentlyKilledWindow {
		m.RecentlyKilledTurns = recentlyKilledWindow
	}
	for _, c := range m.RevengeTargetColors {
		if c == attacker {
			return
		}
	}
	m.RevengeTargetColors = append(m.RevengeTargetColors, attacker)
}

// RevengeArmed reports whether the revenge window is currently open.
func (m *Momentum) RevengeArmed() bool {
	return m.RevengeArmedTurns > 0
}

// lowRollPatternScore is the fraction of recent rolls that came up 1 or
// 2; a run of tiny faces reads as the dice being "against" the player
// and is what the anti-frustration step corrects.
func (m *Momentum) lowRollPatternScore() float64 {
	if len(m.RecentRolls) == 0 {
		return 0
	}
	low := 0
	for _, r := range m.RecentRolls {
		if r <= 2 {
			low++
		}
	}
	return float64(low) / float64(len(m.RecentRolls))
}

// lastFace returns the most recent roll and how many times in a row it
// has repeated, 0 if no history.
func (m *Momentum) lastFace() (face, repeats int) {
	if len(m.RecentRolls) == 0 {
		return 0, 0
	}
	face = m.RecentRolls[len(m.RecentRolls)-1]
	for i := len(m.RecentRolls) - 1; i >= 0 && m.RecentRolls[i] == face; i-- {
		repeats++
	}
	return face, repeats
}

// band groups a face into low (1-2), mid (3-4), high (5-6).
func band(face int) int {
	switch {
	case face <= 2:
		return 0
	case face <= 4:
		return 1
	default:
		return 2
	}
}

// bandRepeatCount returns how many consecutive recent rolls share the
// most recent roll's band.
func (m *Momentum) bandRepeatCount() int {
	if len(m.RecentRolls) == 0 {
		return 0
	}
	b := band(m.RecentRolls[len(m.RecentRolls)-1])
	n := 0
	for i := len(m.RecentRolls) - 1; i >= 0 && band(m.RecentRolls[i]) == b; i-- {
		n++
	}
	return n
}
