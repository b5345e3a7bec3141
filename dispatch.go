package main

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

// handleMessage routes one inbound frame. Known types mutate the session
// and emit their follow-up broadcasts; anything else is forwarded to all
// clients verbatim.
func (h *Hub) handleMessage(c *Client, msgType string, raw []byte) {
	switch msgType {
	case "stateRequest":
		h.replayStateTo(c)

	case "updateTeamName":
		h.handleUpdateTeamName(raw)

	case "progress":
		h.handleProgress(raw)

	case "puzzleState":
		h.handlePuzzleState(raw)

	case "memoryState":
		h.handleMemoryState(raw)

	case "wordState":
		h.handleWordState(raw)

	case "deleteHistoryEntry":
		h.handleDeleteHistoryEntry(raw)

	case "roundComplete":
		h.handleRoundComplete(raw)

	case "start":
		h.handleStart(raw)

	case "resetAll":
		h.handleResetAll(raw)

	case "pause", "level", "image", "next", "reset":
		h.handleControl(msgType, raw)

	default:
		// Pass-through: admin and team pages exchange their own side
		// channels (forceEnd, requestNextLevel, ...) through us.
		log.Debug().Str("type", msgType).Msg("forwarding unrecognized message")
		h.broadcast(json.RawMessage(raw))
	}
}

func (h *Hub) emitGameState() {
	h.broadcast(h.state.buildGameState())
}

func (h *Hub) emitScoreUpdate() {
	h.broadcast(h.state.buildScoreUpdate())
}

func (h *Hub) handleUpdateTeamName(raw []byte) {
	var req updateTeamNameRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	team := normalizeTeamKey(req.Team, h.state.teamNames)
	if team.valid() {
		if name := strings.TrimSpace(req.Name); name != "" {
			h.state.teamNames[team] = name
			log.Info().Str("team", string(team)).Str("name", name).Msg("team renamed")
		}
	}

	h.broadcast(updateTeamNameMessage{Type: "updateTeamName", Team: req.Team, Name: req.Name})
	h.emitScoreUpdate()
	h.emitGameState()
}

func (h *Hub) handleProgress(raw []byte) {
	var req progressRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	p := req.Payload
	if team := normalizeTeamKey(p.Team, h.state.teamNames); team.valid() {
		p.Team = string(team)
		p.TeamDisplay = h.state.displayName(team)
		h.state.applyProgress(team, p.Matched)
	}

	h.broadcast(teamProgressMessage{Type: "teamProgress", Payload: p})
	h.emitScoreUpdate()
	h.emitGameState()
}

func (h *Hub) handlePuzzleState(raw []byte) {
	var req puzzleStateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	team := normalizeTeamKey(firstNonEmpty(req.Payload.Team, req.Team), h.state.teamNames)
	if !team.valid() || len(req.Payload.Layout) == 0 {
		return
	}

	snapshot := &puzzleSnapshot{
		Team:        team,
		TeamDisplay: h.state.displayName(team),
		Layout:      req.Payload.Layout,
		Timestamp:   h.clock.Now().UnixMilli(),
	}
	h.state.puzzleStates[team] = snapshot
	h.broadcast(puzzleStateMessage{Type: "puzzleState", Payload: snapshot})
}

func (h *Hub) handleMemoryState(raw []byte) {
	var req memoryStateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	team := normalizeTeamKey(firstNonEmpty(req.Payload.Team, req.Team), h.state.teamNames)
	if !team.valid() || len(req.Payload.Cards) == 0 {
		return
	}

	snapshot := &memorySnapshot{
		Team:        team,
		TeamDisplay: h.state.displayName(team),
		Pairs:       max(0, req.Payload.Pairs),
		Matched:     max(0, req.Payload.Matched),
		Cards:       req.Payload.Cards,
		Timestamp:   h.clock.Now().UnixMilli(),
	}
	h.state.memoryStates[team] = snapshot
	h.broadcast(memoryStateMessage{Type: "memoryState", Payload: snapshot})
}

func (h *Hub) handleWordState(raw []byte) {
	var req wordStateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	team := normalizeTeamKey(firstNonEmpty(req.Payload.Team, req.Team), h.state.teamNames)
	letter := strings.ToUpper(req.Payload.Letter)
	if !team.valid() || letter == "" {
		return
	}

	total := req.Payload.Total
	if total <= 0 {
		total = len(req.Payload.Categories)
	}
	if total <= 0 {
		total = len(req.Payload.Inputs)
	}

	snapshot := &wordSnapshot{
		Team:         team,
		TeamDisplay:  h.state.displayName(team),
		Letter:       letter,
		Categories:   req.Payload.Categories,
		Inputs:       req.Payload.Inputs,
		CorrectCount: max(0, req.Payload.CorrectCount),
		Total:        max(0, total),
		Status:       req.Payload.Status,
		Finished:     req.Payload.Finished,
		Timestamp:    h.clock.Now().UnixMilli(),
	}
	h.state.wordStates[team] = snapshot
	h.broadcast(wordStateMessage{Type: "wordState", Payload: snapshot})
}

func (h *Hub) handleDeleteHistoryEntry(raw []byte) {
	var req deleteHistoryRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	if req.EntryID == nil {
		return
	}

	if h.history.deleteEntry(req.EntryID) {
		// A structurally identical future game may be logged again.
		h.state.lastLoggedSignature = ""
	}

	h.broadcast(gameHistoryMessage{Type: "gameHistory", History: h.history.entries})
}

func (h *Hub) handleRoundComplete(raw []byte) {
	var req roundCompleteRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	p := req.Payload
	team := normalizeTeamKey(firstNonEmpty(p.Team, req.Team), h.state.teamNames)
	if team.valid() {
		outcome := h.state.finalizeRound(team, &p)
		if outcome.duplicate {
			// Idempotent replay: no re-scoring, but the pages still
			// need the event to converge.
			h.broadcast(roundCompleteMessage{Type: "roundComplete", Payload: p})
			h.emitGameState()
			return
		}

		log.Info().
			Str("team", string(team)).
			Int("level", outcome.level).
			Int("score", outcome.finalScore).
			Int("bonus", outcome.bonus).
			Bool("first", outcome.firstFinisher).
			Msg("round finalized")

		if outcome.roundEnded {
			h.broadcast(timerFinishedMessage{
				Type:       "timerFinished",
				Reason:     "opponentComplete",
				WinnerTeam: string(team),
				Level:      outcome.level,
			})
		}

		h.maybeLogCompletedGame()
	}

	h.broadcast(roundCompleteMessage{Type: "roundComplete", Payload: p})
	h.emitScoreUpdate()
	h.emitGameState()
}

func (h *Hub) handleStart(raw []byte) {
	h.state.resetRoundScores()
	h.state.resetLiveBoards()
	h.cancelCountdownNotify()
	h.state.timer.clearWindow()

	var req startRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	limit := req.TimeLimit
	if limit <= 0 {
		limit = defaultTimeLimit
	}

	seconds := h.cfg.countdown
	if req.CountdownSeconds != nil {
		seconds = *req.CountdownSeconds
	}

	if seconds <= 0 {
		// Countdown disabled: the round starts immediately.
		h.startTimer(h.state.timer.nowMs(), limit)
		h.emitGameState()
		return
	}

	endsAt := h.state.timer.beginCountdown(seconds, limit)
	h.broadcast(startCountdownMessage{
		Type:      "startCountdown",
		Seconds:   seconds,
		EndsAt:    endsAt,
		TimeLimit: limit,
	})
	h.emitGameState()
}

// finishStartCountdown fires when the pre-round countdown elapses.
func (h *Hub) finishStartCountdown() {
	limit := h.state.timer.countdownTimeLimit
	h.state.timer.cancelCountdown()
	h.startTimer(h.state.timer.nowMs(), limit)
	h.emitGameState()
}

// startTimer opens the window, emits the first tick, and announces the
// start so all clients share the same deadline.
func (h *Hub) startTimer(startMs int64, limit int) {
	h.state.timer.begin(startMs, limit)
	h.broadcastTimerTick()
	h.broadcast(startMessage{Type: "start", Start: startMs, TimeLimit: h.state.timer.timeLimit})
	log.Info().Int("timeLimit", h.state.timer.timeLimit).Msg("round timer started")
}

// broadcastTimerTick emits the current countdown. When it hits zero the
// window is cleared, so the terminal timerFinished fires exactly once
// per window.
func (h *Hub) broadcastTimerTick() {
	remaining := h.state.timer.remaining()
	if remaining == nil {
		return
	}

	status := "running"
	switch {
	case *remaining <= 0:
		status = "finished"
	case h.state.timer.paused:
		status = "paused"
	}

	h.broadcast(timerMessage{
		Type:      "timer",
		Remaining: *remaining,
		TimeLimit: h.state.timer.timeLimit,
		Start:     h.state.timer.startPtr(),
		Status:    status,
	})

	if *remaining <= 0 {
		h.state.timer.clearWindow()
		h.broadcast(timerFinishedMessage{Type: "timerFinished", Reason: "timeout"})
		h.emitGameState()
	}
}

func (h *Hub) handleResetAll(raw []byte) {
	h.cancelCountdownNotify()
	h.state.resetLiveBoards()
	h.state.resetAllScores()
	h.state.lastLoggedSignature = ""
	h.state.timer.clearWindow()

	h.broadcast(json.RawMessage(raw))
	h.emitScoreUpdate()
	h.emitGameState()
	log.Info().Msg("all scores reset")
}

// handleControl covers the round-boundary control messages that are
// rebroadcast (possibly with a rewritten image URL) after mutating the
// session. Each of them aborts a pending start countdown.
func (h *Hub) handleControl(msgType string, raw []byte) {
	switch msgType {
	case "level", "image", "next", "reset":
		h.state.resetRoundScores()
		h.state.resetLiveBoards()
	}

	h.cancelCountdownNotify()

	out := json.RawMessage(raw)

	switch msgType {
	case "pause":
		h.state.timer.pause()

	case "image":
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return
		}
		if url, ok := body["url"].(string); ok && url != "" {
			shared := url
			if strings.HasPrefix(url, "data:image/") {
				if saved, ok := saveDataURLImage(h.cfg, h.hosts, url); ok {
					shared = saved
				}
			} else {
				shared = normalizeSharedImageURL(url, h.hosts.get())
			}
			body["url"] = shared
			h.state.image = &imageMessage{Type: "image", URL: shared}
			if data, err := json.Marshal(body); err == nil {
				out = data
			}
		}

	case "level":
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return
		}
		if mode, _ := body["mode"].(string); mode == "puzzle" {
			if url, ok := body["url"].(string); ok && url != "" {
				shared := normalizeSharedImageURL(url, h.hosts.get())
				body["url"] = shared
				h.state.image = &imageMessage{Type: "image", URL: shared}
			}
		}
		h.state.level = parseLevelConfig(body)
		if data, err := json.Marshal(body); err == nil {
			out = data
		}

	case "next":
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err == nil {
			if url, ok := body["url"].(string); ok && url != "" {
				h.state.image = &imageMessage{Type: "image", URL: url}
			}
		}

	case "reset":
		h.state.timer.clearWindow()
	}

	h.broadcast(out)
	h.emitGameState()
}

func (h *Hub) cancelCountdownNotify() {
	if h.state.timer.cancelCountdown() {
		h.broadcast(startCountdownCancelMessage{Type: "startCountdownCancel"})
	}
}

// maybeLogCompletedGame appends a history entry once both teams have
// finalized all three levels, deduplicated by content signature so
// repeated roundComplete frames never double-log the same game.
func (h *Hub) maybeLogCompletedGame() {
	if !h.state.canDeclareWinner() {
		return
	}

	entry := buildHistoryEntry(h.state, h.clock.Now())
	signature := gameSignature(entry)
	if signature == h.state.lastLoggedSignature {
		return
	}

	h.state.lastLoggedSignature = signature
	h.history.append(entry)
	h.broadcast(gameLoggedMessage{Type: "gameLogged", Entry: entry, History: h.history.entries})
	log.Info().Str("winner", entry.WinnerName).Msg("game logged to history")
}

// replayStateTo sends the full state sequence to one client, in an
// order that lets it reconstruct the exact server state without racing
// live broadcasts.
func (h *Hub) replayStateTo(c *Client) {
	s := h.state

	h.sendTo(c, s.buildGameState())

	h.sendTo(c, updateTeamNameMessage{Type: "updateTeamName", Team: "A", Name: s.displayName(teamA)})
	h.sendTo(c, updateTeamNameMessage{Type: "updateTeamName", Team: "B", Name: s.displayName(teamB)})

	h.sendTo(c, s.buildScoreUpdate())
	h.sendTo(c, gameHistoryMessage{Type: "gameHistory", History: h.history.entries})

	if s.level != nil {
		h.sendTo(c, s.level.raw)
	}
	if s.image != nil {
		h.sendTo(c, s.image)
	}

	if s.timer.running() {
		h.sendTo(c, startMessage{Type: "start", Start: s.timer.start, TimeLimit: s.timer.timeLimit})
	} else if s.timer.countdownPending() {
		limit := s.timer.countdownTimeLimit
		if limit <= 0 {
			limit = s.timer.timeLimit
		}
		h.sendTo(c, startCountdownMessage{
			Type:      "startCountdown",
			Seconds:   s.timer.countdownRemainingSeconds(),
			EndsAt:    s.timer.countdownEndAt,
			TimeLimit: limit,
		})
	}

	if s.timer.paused {
		h.sendTo(c, pauseMessage{Type: "pause"})
	}

	if remaining := s.timer.remaining(); remaining != nil {
		status := "running"
		switch {
		case *remaining <= 0:
			status = "finished"
		case s.timer.paused:
			status = "paused"
		}
		h.sendTo(c, timerMessage{
			Type:      "timer",
			Remaining: *remaining,
			TimeLimit: s.timer.timeLimit,
			Start:     s.timer.startPtr(),
			Status:    status,
		})
	}

	for _, team := range []teamKey{teamA, teamB} {
		if snapshot := s.puzzleStates[team]; snapshot != nil && len(snapshot.Layout) > 0 {
			h.sendTo(c, puzzleStateMessage{Type: "puzzleState", Payload: snapshot})
		}
	}
	for _, team := range []teamKey{teamA, teamB} {
		if snapshot := s.memoryStates[team]; snapshot != nil && len(snapshot.Cards) > 0 {
			h.sendTo(c, memoryStateMessage{Type: "memoryState", Payload: snapshot})
		}
	}
	for _, team := range []teamKey{teamA, teamB} {
		if snapshot := s.wordStates[team]; snapshot != nil && snapshot.Letter != "" {
			h.sendTo(c, wordStateMessage{Type: "wordState", Payload: snapshot})
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
