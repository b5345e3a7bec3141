package main

import (
	"math"
	"strings"
)

// finalizeOutcome reports what a roundComplete finalize actually did, so
// the dispatcher knows which follow-up broadcasts to emit.
type finalizeOutcome struct {
	level         int
	bonus         int
	finalScore    int
	firstFinisher bool
	duplicate     bool
	roundEnded    bool // first finisher on a race level stopped the round
}

// isTimedRaceLevel reports whether completion order matters for bonus
// eligibility. Levels 1 and 2 race against the clock; the word challenge
// never does.
func isTimedRaceLevel(level int, mode string) bool {
	if level == 1 || level == 2 {
		return true
	}
	m := strings.ToLower(mode)
	return m == "puzzle" || m == "memory"
}

func validLevel(level int) bool {
	return level >= 1 && level <= 3
}

// resolveLevel picks the level for a finalize: the explicit payload
// value wins, then the active session level, then a guess from the mode.
func (s *sessionState) resolveLevel(payloadLevel int, mode string) int {
	if payloadLevel > 0 {
		return payloadLevel
	}
	if s.level != nil && s.level.level > 0 {
		return s.level.level
	}
	switch strings.ToLower(mode) {
	case "memory":
		return 2
	case "word":
		return 3
	}
	return 1
}

// finalizeRound permanently records a team's score for the current
// round, applying the speed-bonus and first-finisher rules. A second
// finalize for the same team within one round is a no-op for scoring;
// the caller still rebroadcasts it so every page converges.
//
// When the first finisher completes a timed race level, the round ends
// for both teams at once: the timer window is cleared and the opponent
// is finalized from its last live progress snapshot, so both teams
// always hold an entry for the level.
func (s *sessionState) finalizeRound(team teamKey, p *roundCompletePayload) finalizeOutcome {
	if s.scoredThisRound[team] {
		p.Team = string(team)
		p.TeamDisplay = s.displayName(team)
		return finalizeOutcome{duplicate: true}
	}

	p.Team = string(team)
	p.TeamDisplay = s.displayName(team)

	mode := strings.ToLower(p.Mode)
	if mode == "" && s.level != nil {
		mode = strings.ToLower(s.level.mode)
	}
	level := s.resolveLevel(p.Level, mode)

	firstFinisher := len(s.scoredThisRound) == 0

	bonus := 0
	if firstFinisher && isTimedRaceLevel(level, mode) && strings.ToLower(p.Reason) == "complete" {
		bonus = s.speedBonus(p)
	}

	p.Level = level
	if mode != "" {
		p.Mode = mode
	}
	p.Bonus = bonus

	finalScore := max(0, int(p.Score)+bonus)
	if validLevel(level) {
		s.levelScores[team][level] = finalScore
		s.completedLevels[team][level] = true
	}

	roundEnded := false
	if firstFinisher && isTimedRaceLevel(level, mode) {
		roundEnded = true
		s.timer.clearWindow()

		// Finalize the opponent from its latest progress snapshot so
		// round totals are complete before the losing client submits.
		opponent := team.other()
		if !s.scoredThisRound[opponent] {
			base := max(0, s.roundScores[opponent])
			if validLevel(level) {
				s.levelScores[opponent][level] = base
				s.completedLevels[opponent][level] = true
			}
			s.scoredThisRound[opponent] = true
			s.roundScores[opponent] = 0
			s.totals[opponent] = s.teamTotal(opponent)
		}
	}

	s.scoredThisRound[team] = true
	s.roundScores[team] = 0
	s.totals[team] = s.teamTotal(team)

	return finalizeOutcome{
		level:         level,
		bonus:         bonus,
		finalScore:    finalScore,
		firstFinisher: firstFinisher,
		roundEnded:    roundEnded,
	}
}

// speedBonus awards the remaining seconds at finish, but only when at
// least half of the level's time limit was left. The client-reported
// remaining wins over the server-computed one when present.
func (s *sessionState) speedBonus(p *roundCompletePayload) int {
	var remaining float64
	haveRemaining := false
	if p.Remaining != nil && !math.IsNaN(*p.Remaining) && !math.IsInf(*p.Remaining, 0) {
		remaining = *p.Remaining
		haveRemaining = true
	} else if r := s.timer.remaining(); r != nil {
		remaining = float64(*r)
		haveRemaining = true
	}
	if !haveRemaining {
		return 0
	}

	limit := 0
	if p.TimeLimit != nil {
		limit = int(*p.TimeLimit)
	}
	if limit == 0 && s.level != nil {
		limit = s.level.timeLimit
	}
	if limit == 0 {
		limit = s.timer.timeLimit
	}
	if limit == 0 {
		limit = defaultTimeLimit
	}
	limit = max(1, limit)

	halfTime := (limit + 1) / 2
	if remaining >= float64(halfTime) {
		return max(0, int(math.Floor(remaining)))
	}
	return 0
}

// applyProgress credits a live progress update to the in-round score,
// unless the team already finalized this round. Each match is worth ten
// points.
func (s *sessionState) applyProgress(team teamKey, matched int) {
	if s.scoredThisRound[team] {
		return
	}
	s.roundScores[team] = max(0, matched*10)
}
