package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestHub(t *testing.T) (*Hub, *Client, *clockwork.FakeClock) {
	t.Helper()

	dir := t.TempDir()
	cfg := &Config{
		bind:        "0.0.0.0",
		port:        8000,
		countdown:   5,
		historyFile: filepath.Join(dir, "history.json"),
		uploadDir:   dir,
		pagesDir:    dir,
	}

	clock := clockwork.NewFakeClock()
	h := newHub(cfg, clock, loadHistory(cfg.historyFile), newHostTracker(cfg))

	c := &Client{id: "test", send: make(chan any, 256)}
	h.clients[c] = true

	return h, c, clock
}

func drain(c *Client) []any {
	var out []any
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func typeOf(t *testing.T, msg any) string {
	t.Helper()

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal message: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("failed to parse message: %v", err)
	}
	return env.Type
}

func typesOf(t *testing.T, msgs []any) []string {
	t.Helper()

	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, typeOf(t, msg))
	}
	return out
}

func findMessage[T any](t *testing.T, msgs []any) (T, bool) {
	t.Helper()

	for _, msg := range msgs {
		if typed, ok := msg.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

func TestStartWithoutCountdownOpensWindow(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "start", []byte(`{"type":"start","timeLimit":120,"countdownSeconds":0}`))

	if !h.state.timer.running() {
		t.Fatal("expected an open timer window")
	}
	if h.state.timer.timeLimit != 120 {
		t.Fatalf("expected timeLimit 120, got %d", h.state.timer.timeLimit)
	}

	msgs := drain(c)
	types := typesOf(t, msgs)
	if !strings.Contains(strings.Join(types, ","), "timer,start,gameState") {
		t.Fatalf("unexpected broadcast sequence: %v", types)
	}

	tick, ok := findMessage[timerMessage](t, msgs)
	if !ok {
		t.Fatal("expected an initial timer tick")
	}
	if tick.Remaining != 120 || tick.Status != "running" {
		t.Fatalf("unexpected initial tick: %+v", tick)
	}
}

func TestStartCountdownFlow(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "start", []byte(`{"type":"start","timeLimit":60}`))

	if h.state.timer.running() {
		t.Fatal("timer must not run during the countdown")
	}
	if !h.state.timer.countdownPending() {
		t.Fatal("expected a pending countdown")
	}

	countdown, ok := findMessage[startCountdownMessage](t, drain(c))
	if !ok {
		t.Fatal("expected a startCountdown broadcast")
	}
	if countdown.Seconds != 5 || countdown.TimeLimit != 60 {
		t.Fatalf("unexpected countdown: %+v", countdown)
	}

	// Any control message aborts the countdown and tells clients.
	h.handleMessage(c, "pause", []byte(`{"type":"pause"}`))

	if h.state.timer.countdownPending() {
		t.Fatal("expected countdown cancelled by pause")
	}
	if _, ok := findMessage[startCountdownCancelMessage](t, drain(c)); !ok {
		t.Fatal("expected a startCountdownCancel broadcast")
	}
}

func TestCountdownCompletionStartsTimer(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "start", []byte(`{"type":"start","timeLimit":90,"countdownSeconds":3}`))
	drain(c)

	h.finishStartCountdown()

	if !h.state.timer.running() {
		t.Fatal("expected timer running after countdown elapsed")
	}
	if h.state.timer.timeLimit != 90 {
		t.Fatalf("expected timeLimit 90, got %d", h.state.timer.timeLimit)
	}

	start, ok := findMessage[startMessage](t, drain(c))
	if !ok {
		t.Fatal("expected a start broadcast")
	}
	if start.TimeLimit != 90 {
		t.Fatalf("unexpected start message: %+v", start)
	}
}

func TestRaceFinishEndToEnd(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "level", []byte(`{"type":"level","mode":"puzzle","level":1,"timeLimit":120}`))
	h.handleMessage(c, "start", []byte(`{"type":"start","timeLimit":120,"countdownSeconds":0}`))
	h.handleMessage(c, "progress", []byte(`{"type":"progress","payload":{"team":"B","matched":3,"pairs":16,"remaining":80}}`))
	drain(c)

	h.handleMessage(c, "roundComplete", []byte(`{"type":"roundComplete","payload":{"team":"A","level":1,"mode":"puzzle","reason":"complete","score":40,"remaining":70,"timeLimit":120}}`))

	if got := h.state.levelScores[teamA][1]; got != 110 {
		t.Fatalf("expected A scored 110 (40 + 70 bonus), got %d", got)
	}
	if got := h.state.levelScores[teamB][1]; got != 30 {
		t.Fatalf("expected B auto-finalized from progress at 30, got %d", got)
	}
	if h.state.timer.running() {
		t.Fatal("expected timer stopped after first finisher")
	}

	msgs := drain(c)

	finished, ok := findMessage[timerFinishedMessage](t, msgs)
	if !ok {
		t.Fatal("expected a timerFinished broadcast")
	}
	if finished.Reason != "opponentComplete" || finished.WinnerTeam != "A" || finished.Level != 1 {
		t.Fatalf("unexpected timerFinished: %+v", finished)
	}

	complete, ok := findMessage[roundCompleteMessage](t, msgs)
	if !ok {
		t.Fatal("expected the roundComplete rebroadcast")
	}
	if complete.Payload.Bonus != 70 || complete.Payload.Team != "A" {
		t.Fatalf("unexpected roundComplete payload: %+v", complete.Payload)
	}

	score, ok := findMessage[scoreUpdateMessage](t, msgs)
	if !ok {
		t.Fatal("expected a scoreUpdate broadcast")
	}
	if score.Totals[teamA] != 110 || score.Totals[teamB] != 30 {
		t.Fatalf("unexpected totals: %+v", score.Totals)
	}
}

func TestDuplicateRoundCompleteIsIdempotent(t *testing.T) {
	h, c, _ := newTestHub(t)

	finalize := []byte(`{"type":"roundComplete","payload":{"team":"A","level":3,"mode":"word","reason":"complete","score":50}}`)
	h.handleMessage(c, "roundComplete", finalize)
	drain(c)

	h.handleMessage(c, "roundComplete", []byte(`{"type":"roundComplete","payload":{"team":"A","level":3,"mode":"word","reason":"complete","score":999}}`))

	if got := h.state.levelScores[teamA][3]; got != 50 {
		t.Fatalf("duplicate must not re-score, got %d", got)
	}

	msgs := drain(c)
	if _, ok := findMessage[roundCompleteMessage](t, msgs); !ok {
		t.Fatal("duplicate must still be rebroadcast")
	}
}

func TestUnknownTypePassesThrough(t *testing.T) {
	h, c, _ := newTestHub(t)

	raw := []byte(`{"type":"forceEnd","team":"A"}`)
	h.handleMessage(c, "forceEnd", raw)

	msgs := drain(c)
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one forwarded message, got %d", len(msgs))
	}
	forwarded, ok := msgs[0].(json.RawMessage)
	if !ok {
		t.Fatalf("expected verbatim forward, got %T", msgs[0])
	}
	if string(forwarded) != string(raw) {
		t.Fatalf("payload altered in pass-through: %s", forwarded)
	}
}

func playFullGame(t *testing.T, h *Hub, c *Client) {
	t.Helper()

	rounds := []string{
		`{"type":"roundComplete","payload":{"team":"A","level":3,"mode":"word","reason":"complete","score":50}}`,
		`{"type":"roundComplete","payload":{"team":"B","level":3,"mode":"word","reason":"complete","score":40}}`,
	}
	for _, raw := range rounds {
		h.handleMessage(c, "roundComplete", []byte(raw))
	}

	// Race levels: A's finish auto-finalizes B each time.
	h.handleMessage(c, "next", []byte(`{"type":"next"}`))
	h.handleMessage(c, "roundComplete", []byte(`{"type":"roundComplete","payload":{"team":"A","level":1,"mode":"puzzle","reason":"complete","score":40,"remaining":10,"timeLimit":120}}`))

	h.handleMessage(c, "next", []byte(`{"type":"next"}`))
	h.handleMessage(c, "roundComplete", []byte(`{"type":"roundComplete","payload":{"team":"A","level":2,"mode":"memory","reason":"complete","score":60,"remaining":10,"timeLimit":60}}`))
}

func TestCompletedGameLoggedOnce(t *testing.T) {
	h, c, _ := newTestHub(t)

	playFullGame(t, h, c)

	if len(h.history.entries) != 1 {
		t.Fatalf("expected exactly one history entry, got %d", len(h.history.entries))
	}
	if _, ok := findMessage[gameLoggedMessage](t, drain(c)); !ok {
		t.Fatal("expected a gameLogged broadcast")
	}

	// Repeating the final message must not double-log.
	h.handleMessage(c, "roundComplete", []byte(`{"type":"roundComplete","payload":{"team":"A","level":2,"mode":"memory","reason":"complete","score":60}}`))
	if len(h.history.entries) != 1 {
		t.Fatalf("identical finished game logged twice: %d entries", len(h.history.entries))
	}

	// The file was rewritten on append.
	if _, err := os.Stat(h.cfg.historyFile); err != nil {
		t.Fatalf("expected history file on disk: %v", err)
	}
}

func TestDeleteHistoryEntryClearsDedupSignature(t *testing.T) {
	h, c, _ := newTestHub(t)

	playFullGame(t, h, c)
	drain(c)

	entryID := h.history.entries[0].ID
	h.handleMessage(c, "deleteHistoryEntry", fmt.Appendf(nil, `{"type":"deleteHistoryEntry","entryId":%d}`, entryID))

	if len(h.history.entries) != 0 {
		t.Fatalf("expected entry deleted, got %d", len(h.history.entries))
	}
	if _, ok := findMessage[gameHistoryMessage](t, drain(c)); !ok {
		t.Fatal("expected a gameHistory broadcast after delete")
	}
	if h.state.lastLoggedSignature != "" {
		t.Fatal("expected dedup signature cleared by delete")
	}

	// The same finished game may now be logged again.
	h.maybeLogCompletedGame()
	if len(h.history.entries) != 1 {
		t.Fatalf("expected identical game re-logged after delete, got %d", len(h.history.entries))
	}
}

func TestUpdateTeamNameResolvesFutureMessages(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "updateTeamName", []byte(`{"type":"updateTeamName","team":"A","name":" Rockets "}`))

	if h.state.teamNames[teamA] != "Rockets" {
		t.Fatalf("expected trimmed rename, got %q", h.state.teamNames[teamA])
	}
	drain(c)

	h.handleMessage(c, "progress", []byte(`{"type":"progress","payload":{"team":"Rockets","matched":2,"pairs":8}}`))

	if h.state.roundScores[teamA] != 20 {
		t.Fatalf("expected display-name team to resolve, round score %d", h.state.roundScores[teamA])
	}

	progress, ok := findMessage[teamProgressMessage](t, drain(c))
	if !ok {
		t.Fatal("expected a teamProgress broadcast")
	}
	if progress.Payload.Team != "A" || progress.Payload.TeamDisplay != "Rockets" {
		t.Fatalf("unexpected progress payload: %+v", progress.Payload)
	}
}

func TestTimerFinishedEmittedOncePerWindow(t *testing.T) {
	h, c, clock := newTestHub(t)

	h.handleMessage(c, "start", []byte(`{"type":"start","timeLimit":2,"countdownSeconds":0}`))
	drain(c)

	clock.Advance(3 * time.Second)
	h.broadcastTimerTick()

	msgs := drain(c)
	finished, ok := findMessage[timerFinishedMessage](t, msgs)
	if !ok {
		t.Fatal("expected timerFinished on expiry")
	}
	if finished.Reason != "timeout" {
		t.Fatalf("unexpected reason: %q", finished.Reason)
	}

	// The window is cleared, so another tick must emit nothing.
	h.broadcastTimerTick()
	if msgs := drain(c); len(msgs) != 0 {
		t.Fatalf("expected silence after window cleared, got %v", typesOf(t, msgs))
	}
}

func TestResetAllWipesScores(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "roundComplete", []byte(`{"type":"roundComplete","payload":{"team":"A","level":3,"mode":"word","reason":"complete","score":50}}`))
	drain(c)

	h.handleMessage(c, "resetAll", []byte(`{"type":"resetAll"}`))

	if h.state.totals[teamA] != 0 || h.state.levelScores[teamA][3] != 0 {
		t.Fatal("expected all scores wiped")
	}

	msgs := drain(c)
	types := typesOf(t, msgs)
	if len(types) != 3 || types[0] != "resetAll" || types[1] != "scoreUpdate" || types[2] != "gameState" {
		t.Fatalf("unexpected resetAll sequence: %v", types)
	}
}

func TestBoardSnapshotsNormalized(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "wordState", []byte(`{"type":"wordState","payload":{"team":"a","letter":"k","categories":["City","Animal"],"inputs":[{"value":"Kyiv"}],"correctCount":1,"status":"playing"}}`))

	snapshot := h.state.wordStates[teamA]
	if snapshot == nil {
		t.Fatal("expected word snapshot stored")
	}
	if snapshot.Letter != "K" {
		t.Fatalf("expected letter upper-cased, got %q", snapshot.Letter)
	}
	if snapshot.Total != 2 {
		t.Fatalf("expected total defaulted to category count, got %d", snapshot.Total)
	}

	if _, ok := findMessage[wordStateMessage](t, drain(c)); !ok {
		t.Fatal("expected a wordState broadcast")
	}

	// Snapshots without a resolvable team or content are dropped.
	h.handleMessage(c, "puzzleState", []byte(`{"type":"puzzleState","payload":{"team":"nobody","layout":["1"]}}`))
	h.handleMessage(c, "memoryState", []byte(`{"type":"memoryState","payload":{"team":"B","cards":[]}}`))
	if len(drain(c)) != 0 {
		t.Fatal("invalid snapshots must not broadcast")
	}
	if h.state.memoryStates[teamB] != nil {
		t.Fatal("empty memory snapshot must not be stored")
	}
}

func TestInlineImagePersisted(t *testing.T) {
	h, c, _ := newTestHub(t)

	// 1x1 transparent gif
	data := "data:image/gif;base64,R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7"
	raw, _ := json.Marshal(map[string]any{"type": "image", "url": data})

	h.handleMessage(c, "image", raw)

	if h.state.image == nil {
		t.Fatal("expected shared image stored")
	}
	if !strings.Contains(h.state.image.URL, "/uploads/") {
		t.Fatalf("expected inline image rewritten to an upload URL, got %q", h.state.image.URL)
	}

	files, err := os.ReadDir(h.cfg.uploadDir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range files {
		if strings.HasSuffix(f.Name(), ".gif") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the decoded image on disk")
	}
}

func TestReplayOrdering(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "level", []byte(`{"type":"level","mode":"puzzle","level":1,"timeLimit":120,"url":"http://localhost:8000/uploads/cat.png"}`))
	h.handleMessage(c, "start", []byte(`{"type":"start","timeLimit":120,"countdownSeconds":0}`))
	h.handleMessage(c, "puzzleState", []byte(`{"type":"puzzleState","payload":{"team":"A","layout":["1","2",null]}}`))
	h.handleMessage(c, "pause", []byte(`{"type":"pause"}`))
	drain(c)

	h.replayStateTo(c)

	types := typesOf(t, drain(c))
	want := []string{
		"gameState",
		"updateTeamName", "updateTeamName",
		"scoreUpdate",
		"gameHistory",
		"level",
		"image",
		"start",
		"pause",
		"timer",
		"puzzleState",
	}
	if len(types) != len(want) {
		t.Fatalf("expected %d replay messages, got %d: %v", len(want), len(types), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("replay order mismatch at %d: got %v, want %v", i, types, want)
		}
	}
}

func TestReplayIncludesPendingCountdown(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "start", []byte(`{"type":"start","timeLimit":60}`))
	drain(c)

	h.replayStateTo(c)

	countdown, ok := findMessage[startCountdownMessage](t, drain(c))
	if !ok {
		t.Fatal("expected the pending countdown in the replay")
	}
	if countdown.TimeLimit != 60 {
		t.Fatalf("unexpected replayed countdown: %+v", countdown)
	}
}

func TestStateRequestTriggersReplay(t *testing.T) {
	h, c, _ := newTestHub(t)

	h.handleMessage(c, "stateRequest", []byte(`{"type":"stateRequest"}`))

	types := typesOf(t, drain(c))
	if len(types) == 0 || types[0] != "gameState" {
		t.Fatalf("expected replay starting with gameState, got %v", types)
	}
}
