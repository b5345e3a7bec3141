package main

import (
	"sort"

	"github.com/jonboulle/clockwork"
)

var allLevels = []int{1, 2, 3}

// levelConfig is the last-applied level descriptor. The raw message is
// kept verbatim for rebroadcast and replay; the parsed fields are what
// the scoring and timer paths need.
type levelConfig struct {
	mode      string
	level     int
	timeLimit int
	url       string
	raw       map[string]any
}

func parseLevelConfig(raw map[string]any) *levelConfig {
	lc := &levelConfig{raw: raw}
	if v, ok := raw["mode"].(string); ok {
		lc.mode = v
	}
	if v, ok := raw["level"].(float64); ok {
		lc.level = int(v)
	}
	if v, ok := raw["timeLimit"].(float64); ok {
		lc.timeLimit = int(v)
	}
	if v, ok := raw["url"].(string); ok {
		lc.url = v
	}
	return lc
}

// sessionState is the single authoritative record for the running game.
// It is owned by the hub goroutine and only ever mutated inside a
// message-handling turn, so none of it is locked.
type sessionState struct {
	teamNames       map[teamKey]string
	totals          map[teamKey]int
	roundScores     map[teamKey]int
	scoredThisRound map[teamKey]bool
	levelScores     map[teamKey]map[int]int
	completedLevels map[teamKey]map[int]bool

	timer *timerSync
	level *levelConfig
	image *imageMessage

	puzzleStates map[teamKey]*puzzleSnapshot
	memoryStates map[teamKey]*memorySnapshot
	wordStates   map[teamKey]*wordSnapshot

	// signature of the last game appended to history, so repeated
	// roundComplete frames for a finished game log it only once
	lastLoggedSignature string
}

func newSessionState(clock clockwork.Clock) *sessionState {
	s := &sessionState{
		teamNames: map[teamKey]string{teamA: "A", teamB: "B"},
		timer:     newTimerSync(clock),
	}
	s.resetAllScores()
	s.resetLiveBoards()
	return s
}

func (s *sessionState) displayName(team teamKey) string {
	if name := s.teamNames[team]; name != "" {
		return name
	}
	return string(team)
}

func (s *sessionState) teamTotal(team teamKey) int {
	total := 0
	for _, level := range allLevels {
		total += s.levelScores[team][level]
	}
	return total
}

func (s *sessionState) allLevelsComplete(team teamKey) bool {
	for _, level := range allLevels {
		if !s.completedLevels[team][level] {
			return false
		}
	}
	return true
}

func (s *sessionState) canDeclareWinner() bool {
	return s.allLevelsComplete(teamA) && s.allLevelsComplete(teamB)
}

// winnerSummary resolves the final outcome. It stays pending until both
// teams have finalized all three levels; equal totals are a tie with no
// winner key.
func (s *sessionState) winnerSummary() (key, name string) {
	if !s.canDeclareWinner() {
		return "", "Pending (complete all 3 levels)"
	}
	totalA, totalB := s.teamTotal(teamA), s.teamTotal(teamB)
	switch {
	case totalA > totalB:
		return "A", s.displayName(teamA)
	case totalB > totalA:
		return "B", s.displayName(teamB)
	}
	return "", "No winner (Tie)"
}

func (s *sessionState) levelScoresCopy() map[teamKey]map[int]int {
	out := make(map[teamKey]map[int]int, 2)
	for _, team := range []teamKey{teamA, teamB} {
		byLevel := make(map[int]int, len(allLevels))
		for _, level := range allLevels {
			byLevel[level] = s.levelScores[team][level]
		}
		out[team] = byLevel
	}
	return out
}

func (s *sessionState) completedLevelsList() map[teamKey][]int {
	out := make(map[teamKey][]int, 2)
	for _, team := range []teamKey{teamA, teamB} {
		levels := make([]int, 0, len(s.completedLevels[team]))
		for level := range s.completedLevels[team] {
			levels = append(levels, level)
		}
		sort.Ints(levels)
		out[team] = levels
	}
	return out
}

func (s *sessionState) totalsCopy() map[teamKey]int {
	return map[teamKey]int{teamA: s.totals[teamA], teamB: s.totals[teamB]}
}

func (s *sessionState) namesCopy() map[teamKey]string {
	return map[teamKey]string{teamA: s.teamNames[teamA], teamB: s.teamNames[teamB]}
}

// ---- reset operations ----

// resetRoundScores clears round-only bookkeeping at round boundaries.
// Cumulative level scores and totals are untouched.
func (s *sessionState) resetRoundScores() {
	s.roundScores = map[teamKey]int{teamA: 0, teamB: 0}
	s.scoredThisRound = map[teamKey]bool{}
}

func (s *sessionState) resetLiveBoards() {
	s.puzzleStates = map[teamKey]*puzzleSnapshot{}
	s.memoryStates = map[teamKey]*memorySnapshot{}
	s.wordStates = map[teamKey]*wordSnapshot{}
}

// resetAllScores wipes every cumulative counter for a fresh game cycle.
func (s *sessionState) resetAllScores() {
	s.totals = map[teamKey]int{teamA: 0, teamB: 0}
	s.resetRoundScores()
	s.levelScores = map[teamKey]map[int]int{
		teamA: {1: 0, 2: 0, 3: 0},
		teamB: {1: 0, 2: 0, 3: 0},
	}
	s.completedLevels = map[teamKey]map[int]bool{
		teamA: {},
		teamB: {},
	}
}

// ---- outbound payload builders ----

func (s *sessionState) buildScoreUpdate() scoreUpdateMessage {
	winnerKey, winnerName := s.winnerSummary()
	return scoreUpdateMessage{
		Type:            "scoreUpdate",
		Totals:          s.totalsCopy(),
		TotalFinal:      s.totalsCopy(),
		LevelScores:     s.levelScoresCopy(),
		CompletedLevels: s.completedLevelsList(),
		Names:           s.namesCopy(),
		WinnerKey:       winnerKey,
		WinnerName:      winnerName,
	}
}

func (s *sessionState) buildGameState() gameStateMessage {
	winnerKey, winnerName := s.winnerSummary()
	remaining := s.timer.remaining()

	var level map[string]any
	if s.level != nil {
		level = s.level.raw
	}
	var imageURL *string
	if s.image != nil && s.image.URL != "" {
		imageURL = &s.image.URL
	}

	return gameStateMessage{
		Type:     "gameState",
		Level:    level,
		ImageURL: imageURL,
		Timer: timerStatus{
			Running:   s.timer.running() && !s.timer.paused && remaining != nil && *remaining > 0,
			Paused:    s.timer.paused,
			Remaining: remaining,
			TimeLimit: s.timer.timeLimit,
			Start:     s.timer.startPtr(),
		},
		Scores:          s.totalsCopy(),
		TotalFinal:      s.totalsCopy(),
		LevelScores:     s.levelScoresCopy(),
		CompletedLevels: s.completedLevelsList(),
		WinnerKey:       winnerKey,
		WinnerName:      winnerName,
		Names:           s.namesCopy(),
	}
}
