package engagement

// StoryPhase is the per-room director's label for where the match arc
// is, used to nudge the weight pipeline toward whichever flavor of
// drama the room has been building. Aggregate signals (roll count,
// captures, leader changes) only ever grow, but the phase itself may
// move back and forth between fights/leader/hope/chaos as the standings
// shift.
type StoryPhase string

const (
	StoryStart  StoryPhase = "start"
	StorySpread StoryPhase = "spread" // tokens fanning out, no conflict yet
	StoryFights StoryPhase = "fights" // captures trading
	StoryLeader StoryPhase = "leader" // one side pulling away
	StoryHope   StoryPhase = "hope"   // a trailing side closing the gap
	StoryChaos  StoryPhase = "chaos"  // lead keeps flipping
	StoryFinish StoryPhase = "finish" // someone is near the win
)

// StoryDirector is the per-room arc tracker. Mutated only inside the
// room's critical section; JSON-tagged so it can be mirrored into the
// shared cache under engagement:{roomId}:story-director.
type StoryDirector struct {
	TotalRolls     int        `json:"totalRolls"`
	Captures       int        `json:"captures"`
	LeaderChanges  int        `json:"leaderChanges"`
	ComebackPulses int        `json:"comebackPulses"`
	LeaderSeatID   string     `json:"leaderSeatId,omitempty"`
	Phase          StoryPhase `json:"phase"`
}

func NewStoryDirector() *StoryDirector {
	return &StoryDirector{Phase: StoryStart}
}

// ObserveRoll is called once per dice roll after its move resolves. It
// folds the turn's capture count and the current leader into the
// aggregates and reclassifies the phase.
func (d *StoryDirector) ObserveRoll(leaderSeatID string, captures int, rank RankingContext) {
	d.TotalRolls++
	d.Captures += captures
	if leaderSeatID != "" && leaderSeatID != d.LeaderSeatID {
		if d.LeaderSeatID != "" {
			d.LeaderChanges++
		}
		d.LeaderSeatID = leaderSeatID
	}
	if rank.CloseChase && !rank.IsLeader && captures > 0 {
		d.ComebackPulses++
	}
	d.Phase = d.classify(rank)
}

func (d *StoryDirector) classify(rank RankingContext) StoryPhase {
	switch {
	case rank.AnyPlayerNearWin || rank.MatchPhase == MatchLate:
		return StoryFinish
	case d.LeaderChanges >= 3 && d.Captures >= 4:
		return StoryChaos
	case rank.CloseChase && d.ComebackPulses > 0:
		return StoryHope
	case rank.SpreadHigh && !rank.CloseChase:
		return StoryLeader
	case d.Captures >= 2:
		return StoryFights
	case d.TotalRolls >= 8:
		return StorySpread
	default:
		return StoryStart
	}
}

// ForceState is the per-room accounting that stops the engine from
// forcing outcomes too often: a per-match budget plus a minimum roll
// gap between forced values. JSON-tagged for the shared-cache mirror
// under engagement:{roomId}:force-state.
type ForceState struct {
	RollIndex    int `json:"rollIndex"`
	ForcedCount  int `json:"forcedCount"`
	LastForcedAt int `json:"lastForcedAt"` // RollIndex of the most recent forced value
}

// allowForce reports whether one more forced value fits the budget. An
// emergency base lock (every token stuck in base well past the assist
// threshold) overrides both limits, since the alternative is a room
// that visibly cannot progress.
func (f *ForceState) allowForce(budget, minGap int, emergency bool) bool {
	if emergency {
		return true
	}
	if f.ForcedCount >= budget {
		return false
	}
	if f.LastForcedAt > 0 && f.RollIndex-f.LastForcedAt < minGap {
		return false
	}
	return true
}

func (f *ForceState) recordForce() {
	f.ForcedCount++
	f.LastForcedAt = f.RollIndex
}
