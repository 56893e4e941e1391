package taunt

// Trigger is a game moment the director reacts to, emitted by the room
// coordinator as roll and move resolution produce them.
type Trigger string

const (
	TriggerRolledSix     Trigger = "rolled_six"
	TriggerReleasedToken Trigger = "released_token"
	TriggerCaptured      Trigger = "captured"
	TriggerGotCaptured   Trigger = "got_captured"
	TriggerEnteredSafe   Trigger = "entered_safe"
	TriggerNearWin       Trigger = "near_win"
	TriggerLeadChange    Trigger = "lead_change"
	TriggerLastPlace     Trigger = "last_place"
	TriggerRevengeKill   Trigger = "revenge_kill"
	TriggerClutchRoll    Trigger = "clutch_roll"
)

// Emotion buckets the catalog so a capture and a narrow escape never
// draw from the same pool.
type Emotion string

const (
	EmotionDominance     Emotion = "dominance"
	EmotionRevenge       Emotion = "revenge"
	EmotionMockEscape    Emotion = "mock_escape"
	EmotionAppreciation  Emotion = "appreciation"
	EmotionPanicReaction Emotion = "panic_reaction"
	EmotionPressure      Emotion = "pressure"
	EmotionComeback      Emotion = "comeback"
	EmotionClutch        Emotion = "clutch"
)

// emotionsByTrigger is the fixed trigger-to-candidate-emotion table.
// Event metadata (actorWasLast, revengeActive, targetWasLeader) adds
// further candidates at evaluation time.
var emotionsByTrigger = map[Trigger][]Emotion{
	TriggerRolledSix:     {EmotionAppreciation, EmotionPressure},
	TriggerReleasedToken: {EmotionPressure, EmotionAppreciation},
	TriggerCaptured:      {EmotionDominance, EmotionPressure},
	TriggerGotCaptured:   {EmotionPanicReaction},
	TriggerEnteredSafe:   {EmotionMockEscape, EmotionAppreciation},
	TriggerNearWin:       {EmotionPressure, EmotionDominance},
	TriggerLeadChange:    {EmotionComeback, EmotionPressure},
	TriggerLastPlace:     {EmotionComeback, EmotionPanicReaction},
	TriggerRevengeKill:   {EmotionRevenge, EmotionDominance},
	TriggerClutchRoll:    {EmotionClutch, EmotionAppreciation},
}

// Line is one catalog entry: the text plus the triggers and emotions it
// is appropriate for, and its relative selection weight.
type Line struct {
	ID       string
	Text     string
	Triggers []Trigger
	Emotions []Emotion
	Weight   int
}

// DefaultCatalog ships a workable base set. Operators can layer more
// through Config.ExtraLines.
var DefaultCatalog = []Line{
	{ID: "dom-1", Text: "Back to base you go.", Triggers: []Trigger{TriggerCaptured}, Emotions: []Emotion{EmotionDominance}, Weight: 3},
	{ID: "dom-2", Text: "Didn't even see it coming.", Triggers: []Trigger{TriggerCaptured}, Emotions: []Emotion{EmotionDominance}, Weight: 2},
	{ID: "dom-3", Text: "This board belongs to me.", Triggers: []Trigger{TriggerCaptured, TriggerNearWin}, Emotions: []Emotion{EmotionDominance, EmotionPressure}, Weight: 1},
	{ID: "rev-1", Text: "Payback.", Triggers: []Trigger{TriggerRevengeKill}, Emotions: []Emotion{EmotionRevenge}, Weight: 3},
	{ID: "rev-2", Text: "Remembered that one.", Triggers: []Trigger{TriggerRevengeKill}, Emotions: []Emotion{EmotionRevenge}, Weight: 2},
	{ID: "rev-3", Text: "We're even now. Almost.", Triggers: []Trigger{TriggerRevengeKill}, Emotions: []Emotion{EmotionRevenge, EmotionDominance}, Weight: 1},
	{ID: "esc-1", Text: "Missed me.", Triggers: []Trigger{TriggerEnteredSafe}, Emotions: []Emotion{EmotionMockEscape}, Weight: 3},
	{ID: "esc-2", Text: "That's what safe cells are for.", Triggers: []Trigger{TriggerEnteredSafe}, Emotions: []Emotion{EmotionMockEscape}, Weight: 2},
	{ID: "app-1", Text: "Six! Here we go.", Triggers: []Trigger{TriggerRolledSix, TriggerReleasedToken}, Emotions: []Emotion{EmotionAppreciation}, Weight: 3},
	{ID: "app-2", Text: "Fresh legs on the board.", Triggers: []Trigger{TriggerReleasedToken}, Emotions: []Emotion{EmotionAppreciation, EmotionPressure}, Weight: 2},
	{ID: "pan-1", Text: "Oh, come on.", Triggers: []Trigger{TriggerGotCaptured}, Emotions: []Emotion{EmotionPanicReaction}, Weight: 3},
	{ID: "pan-2", Text: "Right back to square one.", Triggers: []Trigger{TriggerGotCaptured}, Emotions: []Emotion{EmotionPanicReaction}, Weight: 2},
	{ID: "prs-1", Text: "Might want to catch up.", Triggers: []Trigger{TriggerNearWin, TriggerLeadChange}, Emotions: []Emotion{EmotionPressure}, Weight: 2},
	{ID: "prs-2", Text: "Feeling the heat yet?", Triggers: []Trigger{TriggerNearWin}, Emotions: []Emotion{EmotionPressure, EmotionDominance}, Weight: 2},
	{ID: "cbk-1", Text: "Not over yet.", Triggers: []Trigger{TriggerLeadChange, TriggerLastPlace}, Emotions: []Emotion{EmotionComeback}, Weight: 3},
	{ID: "cbk-2", Text: "Told you I'd be back.", Triggers: []Trigger{TriggerLeadChange}, Emotions: []Emotion{EmotionComeback}, Weight: 2},
	{ID: "clt-1", Text: "Ice in the veins.", Triggers: []Trigger{TriggerClutchRoll}, Emotions: []Emotion{EmotionClutch}, Weight: 3},
	{ID: "clt-2", Text: "Right when it matters.", Triggers: []Trigger{TriggerClutchRoll}, Emotions: []Emotion{EmotionClutch, EmotionAppreciation}, Weight: 2},
}
