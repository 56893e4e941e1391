// Package engagement implements the weighted dice engine: instead of a
// flat 1/6 roll, the six faces are re-weighted on every turn from the
// match context (who is leading, who is starved of sixes, who just got
// captured) before a face is sampled. The reshaping is bounded at every
// step and masked behind an entropy floor and a uniform blend so the
// result still reads as dice, not as scripting.
//
// The engine never panics out of a roll: any internal failure falls
// back to a uniform 1/6 sample over the injected RNG so a bug here can
// never stall a room.
//
// Grounded on the teacher's move-scoring heuristics (capture, escape,
// home-entry and danger weights in its move evaluator) transplanted
// from "score one candidate move" to "score one candidate dice face."
package engagement

import (
	"math"
)

// RNG is the injectable randomness source. Production uses a
// crypto/rand-backed implementation; tests inject a scripted one.
type RNG interface {
	// Float64 returns a value in [0,1).
	Float64() float64
}

// Profile is the fixed bundle of numeric knobs governing the weight
// pipeline. The system ships with one canonical profile; the zero value
// is not meaningful.
type Profile struct {
	// Six pity and participation.
	PityStartAt     int     // turnsSinceSix before the pity boost engages
	PityRamp        float64 // per-turn escalation of the pity multiplier
	ForceSixAt      int     // turnsSinceSix at which six is forced outright
	BaseAssistAt    int     // turnsAllTokensInBase before six is strongly boosted
	BaseAssistBoost float64
	BaseForceAt     int // turnsAllTokensInBase at which six is forced outright

	// Luck-debt balancing.
	LuckDebtThreshold float64 // |luckDelta| beyond which correction engages
	LuckDebtBoost     float64
	LuckForgiveness   float64 // EMA decay ρ applied in ReportOutcome

	// Tempo and tactics.
	TempoLateBoost   float64 // playable/high faces late in the match
	TempoUrgentBoost float64 // playable/high faces as urgency approaches 1
	PlayableBoost    float64
	NonPlayableDamp  float64
	KillBoost        float64
	FinishBoost      float64
	LeaderKillBoost  float64 // extra on captures of the leader, for trailing seats
	LeaderPressure   float64
	RevengeKillBoost float64
	EscapeBoost      float64 // for trailing or recently-killed seats

	// Pacing correctives.
	AntiSnowballDamp float64 // leader's 5/6 damping when far ahead
	LastPlaceHope    float64
	RubberBand       float64
	DeadTurnRescue   float64
	EmotionRecovery  float64
	SessionAssist    float64

	// Anti-frustration.
	LowPatternThreshold float64 // fraction of recent rolls <= 2
	LowFaceDamp         float64
	HighFaceBoost       float64
	RepeatFaceShave     float64
	RepeatBandShave     float64

	// Drama.
	ClutchVolatility float64 // lift on faces 1 and 6 in close endgames
	UrgencyFloorDamp float64 // push on low faces as time runs out
	UrgencyFloorLift float64

	// Distribution shaping.
	NoiseSpan    float64 // entropy noise multiplier range half-width
	EntropyFloor float64 // minimum probability any face keeps
	MaxFaceProb  float64 // perception-masking probability ceiling
	BlendMin     float64 // uniform-blend alpha range
	BlendMax     float64

	// Six-run and force control.
	MinSixBase        float64
	MinSixAllInBase   float64
	MinSixMostlyBase  float64
	MinSixNoMove      float64
	MinSixUrgent      float64
	TripleSixResample float64 // probability a second consecutive six is resampled away
	ForceBudget       int     // forced values allowed per match
	ForceGap          int     // minimum rolls between forced values
}

// DefaultProfile is the canonical tuning.
func DefaultProfile() Profile {
	return Profile{
		PityStartAt:     6,
		PityRamp:        0.22,
		ForceSixAt:      12,
		BaseAssistAt:    3,
		BaseAssistBoost: 2.6,
		BaseForceAt:     6,

		LuckDebtThreshold: 2.5,
		LuckDebtBoost:     0.18,
		LuckForgiveness:   0.85,

		TempoLateBoost:   1.3,
		TempoUrgentBoost: 1.25,
		PlayableBoost:    1.3,
		NonPlayableDamp:  0.74,
		KillBoost:        1.24,
		FinishBoost:      1.2,
		LeaderKillBoost:  1.35,
		LeaderPressure:   1.15,
		RevengeKillBoost: 1.3,
		EscapeBoost:      1.24,

		AntiSnowballDamp: 0.85,
		LastPlaceHope:    1.12,
		RubberBand:       1.1,
		DeadTurnRescue:   1.15,
		EmotionRecovery:  1.12,
		SessionAssist:    1.08,

		LowPatternThreshold: 0.5,
		LowFaceDamp:         0.82,
		HighFaceBoost:       1.18,
		RepeatFaceShave:     0.85,
		RepeatBandShave:     0.88,

		ClutchVolatility: 1.08,
		UrgencyFloorDamp: 0.65,
		UrgencyFloorLift: 1.3,

		NoiseSpan:    0.03,
		EntropyFloor: 0.05,
		MaxFaceProb:  0.46,
		BlendMin:     0.06,
		BlendMax:     0.14,

		MinSixBase:        0.10,
		MinSixAllInBase:   0.34,
		MinSixMostlyBase:  0.24,
		MinSixNoMove:      0.20,
		MinSixUrgent:      0.16,
		TripleSixResample: 0.85,
		ForceBudget:       6,
		ForceGap:          4,
	}
}

// Outcome is the result of one weighted roll. Probabilities is the
// final distribution the face was sampled from, kept for diagnostics
// and the property tests.
type Outcome struct {
	Face          int
	Probabilities [6]float64
	Forced        bool
}

// Engine computes and samples weighted dice rolls. It is stateless
// aside from the Profile: Momentum, ForceState and the story phase are
// passed in per call and owned by the caller, so a single Engine is
// safe to share across every room.
type Engine struct {
	Profile Profile
}

func New(profile Profile) *Engine {
	return &Engine{Profile: profile}
}

// ReportOutcome folds a resolved roll into the seat's momentum using
// the profile's luck-debt forgiveness. The room coordinator calls it
// exactly once per roll, from RollDice, as soon as the roll's legal
// moves are known and before any chosen move is applied.
func (e *Engine) ReportOutcome(mom *Momentum, rolled int, hadValidMove, allInBase, wasForced bool) {
	mom.ReportOutcome(rolled, hadValidMove, allInBase, wasForced, e.Profile.LuckForgiveness)
}

// Roll samples a face for the current turn. force is the room's force
// accounting; story is the room director's current phase.
func (e *Engine) Roll(rng RNG, mom *Momentum, force *ForceState, rank RankingContext, story StoryPhase, ctx ContextFaces) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = uniformOutcome(rng)
		}
	}()

	force.RollIndex++

	if face, ok := e.tryForce(mom, force, ctx); ok {
		return Outcome{Face: face, Probabilities: singleFace(face), Forced: true}
	}

	probs := e.buildDistribution(rng, mom, rank, story, ctx)
	if !validDistribution(probs) {
		return uniformOutcome(rng)
	}

	face := sample(rng, probs)
	face = e.suppressSixRun(rng, face, probs, mom, rank)

	return Outcome{Face: face, Probabilities: probs}
}

// tryForce handles the two hard-force paths: the progressive six pity
// reaching its ceiling, and the participation guarantee when every
// token has been locked in base for too long. Both are gated by the
// per-match force budget unless the emergency base lock holds.
func (e *Engine) tryForce(mom *Momentum, force *ForceState, ctx ContextFaces) (int, bool) {
	p := e.Profile
	wantForce := mom.TurnsSinceSix >= p.ForceSixAt ||
		(ctx.AllInBase && mom.TurnsAllTokensInBase >= p.BaseForceAt)
	if !wantForce {
		return 0, false
	}
	emergency := ctx.AllInBase && mom.TurnsAllTokensInBase >= p.BaseAssistAt+2
	if !force.allowForce(p.ForceBudget, p.ForceGap, emergency) {
		return 0, false
	}
	force.recordForce()
	return 6, true
}

// buildDistribution runs the full weight pipeline and returns a
// normalized probability vector.
func (e *Engine) buildDistribution(rng RNG, mom *Momentum, rank RankingContext, story StoryPhase, ctx ContextFaces) [6]float64 {
	p := e.Profile
	w := [6]float64{1, 1, 1, 1, 1, 1}

	// Progressive six pity.
	if mom.TurnsSinceSix >= p.PityStartAt {
		over := float64(mom.TurnsSinceSix - p.PityStartAt + 1)
		w[5] *= 1 + p.PityRamp*over
	}

	// Participation guarantee (pre-force escalation).
	if ctx.AllInBase && mom.TurnsAllTokensInBase >= p.BaseAssistAt {
		w[5] *= p.BaseAssistBoost
	}

	// Luck-debt balancing.
	if mom.LuckDelta < -p.LuckDebtThreshold {
		for i := range w {
			if ctx.Playable[i] {
				w[i] *= 1 + p.LuckDebtBoost
			}
		}
	} else if mom.LuckDelta > p.LuckDebtThreshold {
		w[4] *= 1 - p.LuckDebtBoost
		w[5] *= 1 - p.LuckDebtBoost
	}

	// Tempo by match phase and urgency.
	tempo := 1.0
	if rank.MatchPhase == MatchLate {
		tempo *= p.TempoLateBoost
	}
	if rank.Urgency > 0 {
		tempo *= 1 + (p.TempoUrgentBoost-1)*clamp01(rank.Urgency)
	}
	if tempo != 1.0 {
		for i := range w {
			if ctx.Playable[i] || i >= 3 {
				w[i] *= tempo
			}
		}
	}

	// Tactical relevance.
	for i := range w {
		if ctx.Playable[i] {
			w[i] *= p.PlayableBoost
		} else {
			w[i] *= p.NonPlayableDamp
		}
		if ctx.Kill[i] {
			w[i] *= p.KillBoost
		}
		if ctx.Finish[i] {
			w[i] *= p.FinishBoost
		}
	}

	// Kill and leader pressure.
	for i := range w {
		if ctx.LeaderKill[i] && !rank.IsLeader {
			w[i] *= p.LeaderKillBoost
		}
		if ctx.LeaderPressure[i] {
			w[i] *= p.LeaderPressure
		}
		if ctx.RevengeTargetKill[i] && mom.RevengeArmed() {
			w[i] *= p.RevengeKillBoost
		}
	}

	// Escape preservation for trailing or tilted seats.
	if !rank.IsLeader || mom.RecentlyKilledTurns > 0 {
		for i := range w {
			if ctx.Escape[i] {
				w[i] *= p.EscapeBoost
			}
		}
	}

	// Anti-snowball: heat on the leader, never help for free.
	if rank.IsLeader && rank.SpreadHigh {
		w[4] *= p.AntiSnowballDamp
		w[5] *= p.AntiSnowballDamp
		for i := range w {
			if ctx.Escape[i] {
				w[i] *= 0.92
			}
			if ctx.LeaderPressure[i] {
				w[i] *= 1.1
			}
		}
	}

	// Last-place hope.
	if rank.IsLast && !rank.IsLeader {
		for i := range w {
			if ctx.Playable[i] {
				w[i] *= p.LastPlaceHope
			}
		}
		w[0] *= 0.94
		w[1] *= 0.94
	}

	e.applyStoryPhase(&w, story, ctx)

	// Spread awareness.
	if rank.SpreadHigh {
		anyKill := false
		for i := range w {
			if ctx.Kill[i] {
				anyKill = true
				w[i] *= 1.1
			}
		}
		if !anyKill {
			for i := range w {
				if ctx.Playable[i] {
					w[i] *= 1.06
				}
			}
		}
	}

	// Rubber band, dead-turn rescue, emotion recovery, session assist —
	// each a small bounded lift that only fires under its condition.
	if rank.CloseChase && !rank.IsLeader {
		for i := range w {
			if ctx.Playable[i] {
				w[i] *= p.RubberBand
			}
		}
	}
	if mom.NoMoveStreak >= 2 {
		for i := range w {
			if ctx.Playable[i] {
				w[i] *= p.DeadTurnRescue
			}
		}
	}
	if mom.RecentlyKilledTurns > 0 {
		for i := range w {
			if ctx.Escape[i] || ctx.Playable[i] {
				w[i] *= p.EmotionRecovery
			}
		}
	}
	if mom.SessionAssistScore < 0.5 && rank.BehindRatio > 0.5 {
		for i := range w {
			if ctx.Playable[i] {
				w[i] *= p.SessionAssist
			}
		}
	}

	// Anti-frustration: low-roll pattern correction and repeat shaving.
	if mom.lowRollPatternScore() >= p.LowPatternThreshold {
		w[0] *= p.LowFaceDamp
		w[1] *= p.LowFaceDamp
		w[3] *= p.HighFaceBoost
		w[4] *= p.HighFaceBoost
		w[5] *= p.HighFaceBoost
	}
	if face, repeats := mom.lastFace(); repeats >= 2 && face >= 1 {
		w[face-1] *= p.RepeatFaceShave
	}
	if mom.bandRepeatCount() >= 3 {
		b := band(mom.RecentRolls[len(mom.RecentRolls)-1])
		for f := 1; f <= 6; f++ {
			if band(f) == b {
				w[f-1] *= p.RepeatBandShave
			}
		}
	}

	// Drama and clutch.
	if mom.RevengeArmed() {
		for i := range w {
			if ctx.Kill[i] {
				w[i] *= 1.1
			}
		}
	}
	if rank.CloseChase || rank.AnyPlayerNearWin {
		w[0] *= p.ClutchVolatility
		w[5] *= p.ClutchVolatility
	}

	// Urgency hard floor.
	if u := clamp01(rank.Urgency); u > 0 {
		low := 1 - (1-p.UrgencyFloorDamp)*u
		high := 1 + (p.UrgencyFloorLift-1)*u
		w[0] *= low
		w[1] *= low
		w[4] *= high
		w[5] *= high
	}

	// Entropy noise.
	for i := range w {
		w[i] *= 1 - p.NoiseSpan + 2*p.NoiseSpan*rng.Float64()
	}

	// Normalization with entropy floor.
	normalize(&w)
	floorAndRenormalize(&w, p.EntropyFloor)

	// Perception masking.
	e.mask(rng, &w, mom)

	// Minimum-six probability guard.
	e.guardSix(&w, mom, rank, ctx)

	return w
}

func (e *Engine) applyStoryPhase(w *[6]float64, story StoryPhase, ctx ContextFaces) {
	switch story {
	case StoryStart:
		w[5] *= 1.08 // help tokens out of base early
	case StorySpread:
		for i := 2; i < 6; i++ {
			w[i] *= 1.04
		}
	case StoryFights:
		for i := range w {
			if ctx.Kill[i] {
				w[i] *= 1.1
			}
		}
	case StoryLeader:
		for i := range w {
			if ctx.LeaderKill[i] || ctx.LeaderPressure[i] {
				w[i] *= 1.08
			}
		}
	case StoryHope:
		for i := range w {
			if ctx.Playable[i] {
				w[i] *= 1.06
			}
		}
	case StoryChaos:
		w[0] *= 1.05
		w[5] *= 1.05
	case StoryFinish:
		for i := range w {
			if ctx.Finish[i] {
				w[i] *= 1.1
			}
		}
	}
}

// mask blends the distribution toward uniform by a random alpha, caps
// the dominant face, and shaves a still-dominant repeated value, so the
// shaped dice cannot be distinguished from fair dice by eye.
func (e *Engine) mask(rng RNG, w *[6]float64, mom *Momentum) {
	p := e.Profile
	alpha := p.BlendMin + (p.BlendMax-p.BlendMin)*rng.Float64()
	for i := range w {
		w[i] = (1-alpha)*w[i] + alpha/6
	}

	capMax(w, p.MaxFaceProb)

	if face, repeats := mom.lastFace(); repeats >= 2 && face >= 1 {
		maxIdx := 0
		for i := range w {
			if w[i] > w[maxIdx] {
				maxIdx = i
			}
		}
		if maxIdx == face-1 {
			w[maxIdx] *= 0.9
		}
	}

	// Micro-jitter, then settle.
	for i := range w {
		w[i] *= 1 + 0.01*(rng.Float64()-0.5)
	}
	normalize(w)
	floorAndRenormalize(w, p.EntropyFloor)
}

// guardSix enforces the minimum probability of rolling a six, tiered by
// how badly the seat needs one.
func (e *Engine) guardSix(w *[6]float64, mom *Momentum, rank RankingContext, ctx ContextFaces) {
	p := e.Profile
	floor := p.MinSixBase
	if ctx.AllInBase {
		floor = math.Max(floor, p.MinSixAllInBase)
	} else if ctx.TotalTokens > 0 && float64(ctx.BaseTokenCount)/float64(ctx.TotalTokens) >= 0.75 {
		floor = math.Max(floor, p.MinSixMostlyBase)
	}
	if mom.NoMoveStreak >= 2 {
		floor = math.Max(floor, p.MinSixNoMove)
	}
	if rank.Urgency >= 0.9 {
		floor = math.Max(floor, p.MinSixUrgent)
	}
	if rank.IsLeader && rank.SelfNearWin {
		floor *= 0.8
	}

	if w[5] >= floor {
		return
	}
	deficit := floor - w[5]
	pool := 1 - w[5]
	if pool <= 0 {
		return
	}
	scale := (pool - deficit) / pool
	for i := 0; i < 5; i++ {
		w[i] *= scale
	}
	w[5] = floor
}

// suppressSixRun re-rolls a sampled six when the seat is already on a
// six streak: a third consecutive six is always resampled away, a
// second one usually is, with the suppression relaxed for seats in a
// genuine comeback.
func (e *Engine) suppressSixRun(rng RNG, face int, probs [6]float64, mom *Momentum, rank RankingContext) int {
	if face != 6 || mom.ConsecutiveSixes == 0 {
		return face
	}
	if mom.ConsecutiveSixes >= 2 {
		return resampleWithoutSix(rng, probs)
	}
	chance := e.Profile.TripleSixResample
	if rank.CloseChase || rank.IsLast {
		chance *= 0.7
	}
	if rng.Float64() < chance {
		return resampleWithoutSix(rng, probs)
	}
	return face
}

func resampleWithoutSix(rng RNG, probs [6]float64) int {
	var w [6]float64
	copy(w[:], probs[:])
	w[5] = 0
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		return 1 + int(rng.Float64()*5)
	}
	for i := range w {
		w[i] /= sum
	}
	return sample(rng, w)
}

func sample(rng RNG, probs [6]float64) int {
	r := rng.Float64()
	cum := 0.0
	for i, p := range probs {
		cum += p
		if r < cum {
			return i + 1
		}
	}
	return 6
}

func uniformOutcome(rng RNG) Outcome {
	var u [6]float64
	for i := range u {
		u[i] = 1.0 / 6
	}
	face := 1 + int(rng.Float64()*6)
	if face > 6 {
		face = 6
	}
	return Outcome{Face: face, Probabilities: u}
}

func singleFace(face int) [6]float64 {
	var w [6]float64
	w[face-1] = 1
	return w
}

func normalize(w *[6]float64) {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		for i := range w {
			w[i] = 1.0 / 6
		}
		return
	}
	for i := range w {
		w[i] /= sum
	}
}

// floorAndRenormalize lifts every face to at least floor, scaling the
// remainder down proportionally so the vector still sums to one.
func floorAndRenormalize(w *[6]float64, floor float64) {
	deficit := 0.0
	surplus := 0.0
	for _, v := range w {
		if v < floor {
			deficit += floor - v
		} else {
			surplus += v - floor
		}
	}
	if deficit == 0 || surplus <= 0 {
		return
	}
	scale := (surplus - deficit) / surplus
	for i := range w {
		if w[i] < floor {
			w[i] = floor
		} else {
			w[i] = floor + (w[i]-floor)*scale
		}
	}
}

// capMax clamps the largest probability to ceiling and spreads the
// excess across the other faces proportionally.
func capMax(w *[6]float64, ceiling float64) {
	for pass := 0; pass < 2; pass++ {
		maxIdx := 0
		for i := range w {
			if w[i] > w[maxIdx] {
				maxIdx = i
			}
		}
		excess := w[maxIdx] - ceiling
		if excess <= 0 {
			return
		}
		w[maxIdx] = ceiling
		rest := 0.0
		for i := range w {
			if i != maxIdx {
				rest += w[i]
			}
		}
		if rest <= 0 {
			return
		}
		for i := range w {
			if i != maxIdx {
				w[i] += excess * w[i] / rest
			}
		}
	}
}

func validDistribution(w [6]float64) bool {
	sum := 0.0
	for _, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) < 1e-6
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
