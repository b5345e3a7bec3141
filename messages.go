package main

// Wire format: every frame is a JSON object with a "type" discriminator.
// Inbound shapes mirror what the admin and team pages send; outbound
// shapes are what every connected page consumes. Unknown inbound types
// are rebroadcast verbatim, so only the types the coordinator actually
// interprets are modeled here.

// ---- inbound ----

type envelope struct {
	Type string `json:"type"`
}

type updateTeamNameRequest struct {
	Team string `json:"team"`
	Name string `json:"name"`
}

type progressRequest struct {
	Payload progressPayload `json:"payload"`
}

type progressPayload struct {
	Team        string   `json:"team"`
	TeamDisplay string   `json:"teamDisplay,omitempty"`
	Matched     int      `json:"matched"`
	Pairs       int      `json:"pairs"`
	Remaining   *float64 `json:"remaining,omitempty"`
}

type puzzleStateRequest struct {
	Team    string        `json:"team"`
	Payload puzzlePayload `json:"payload"`
}

type puzzlePayload struct {
	Team   string    `json:"team"`
	Layout []*string `json:"layout"`
}

type memoryStateRequest struct {
	Team    string        `json:"team"`
	Payload memoryPayload `json:"payload"`
}

type memoryPayload struct {
	Team    string       `json:"team"`
	Pairs   int          `json:"pairs"`
	Matched int          `json:"matched"`
	Cards   []memoryCard `json:"cards"`
}

type memoryCard struct {
	Val      string `json:"val"`
	Revealed bool   `json:"revealed"`
	Matched  bool   `json:"matched"`
}

type wordStateRequest struct {
	Team    string      `json:"team"`
	Payload wordPayload `json:"payload"`
}

type wordPayload struct {
	Team         string      `json:"team"`
	Letter       string      `json:"letter"`
	Categories   []string    `json:"categories"`
	Inputs       []wordInput `json:"inputs"`
	CorrectCount int         `json:"correctCount"`
	Total        int         `json:"total"`
	Status       string      `json:"status"`
	Finished     bool        `json:"finished"`
}

type wordInput struct {
	Value   string `json:"value"`
	Invalid bool   `json:"invalid"`
	Skipped bool   `json:"skipped"`
}

type roundCompleteRequest struct {
	Team    string               `json:"team"`
	Payload roundCompletePayload `json:"payload"`
}

// roundCompletePayload doubles as the rebroadcast shape: the dispatcher
// fills in Team, TeamDisplay, Level, Mode, and Bonus before fanning the
// finalize back out.
type roundCompletePayload struct {
	Team        string   `json:"team"`
	TeamDisplay string   `json:"teamDisplay,omitempty"`
	Level       int      `json:"level,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Reason      string   `json:"reason"`
	Score       float64  `json:"score"`
	Remaining   *float64 `json:"remaining,omitempty"`
	TimeLimit   *float64 `json:"timeLimit,omitempty"`
	Bonus       int      `json:"bonus"`
}

type startRequest struct {
	Start            int64 `json:"start,omitempty"`
	TimeLimit        int   `json:"timeLimit"`
	CountdownSeconds *int  `json:"countdownSeconds,omitempty"`
}

type deleteHistoryRequest struct {
	EntryID any `json:"entryId"`
}

// ---- outbound ----

type updateTeamNameMessage struct {
	Type string `json:"type"`
	Team string `json:"team"`
	Name string `json:"name"`
}

type teamProgressMessage struct {
	Type    string          `json:"type"`
	Payload progressPayload `json:"payload"`
}

type puzzleStateMessage struct {
	Type    string          `json:"type"`
	Payload *puzzleSnapshot `json:"payload"`
}

type memoryStateMessage struct {
	Type    string          `json:"type"`
	Payload *memorySnapshot `json:"payload"`
}

type wordStateMessage struct {
	Type    string        `json:"type"`
	Payload *wordSnapshot `json:"payload"`
}

type roundCompleteMessage struct {
	Type    string               `json:"type"`
	Payload roundCompletePayload `json:"payload"`
}

type scoreUpdateMessage struct {
	Type            string                  `json:"type"`
	Totals          map[teamKey]int         `json:"totals"`
	TotalFinal      map[teamKey]int         `json:"totalFinal"`
	LevelScores     map[teamKey]map[int]int `json:"levelScores"`
	CompletedLevels map[teamKey][]int       `json:"completedLevels"`
	Names           map[teamKey]string      `json:"names"`
	WinnerKey       string                  `json:"winnerKey"`
	WinnerName      string                  `json:"winnerName"`
}

type timerStatus struct {
	Running   bool   `json:"running"`
	Paused    bool   `json:"paused"`
	Remaining *int   `json:"remaining"`
	TimeLimit int    `json:"timeLimit"`
	Start     *int64 `json:"start"`
}

type gameStateMessage struct {
	Type            string                  `json:"type"`
	Level           map[string]any          `json:"level"`
	ImageURL        *string                 `json:"imageUrl"`
	Timer           timerStatus             `json:"timer"`
	Scores          map[teamKey]int         `json:"scores"`
	TotalFinal      map[teamKey]int         `json:"totalFinal"`
	LevelScores     map[teamKey]map[int]int `json:"levelScores"`
	CompletedLevels map[teamKey][]int       `json:"completedLevels"`
	WinnerKey       string                  `json:"winnerKey"`
	WinnerName      string                  `json:"winnerName"`
	Names           map[teamKey]string      `json:"names"`
}

type timerMessage struct {
	Type      string `json:"type"`
	Remaining int    `json:"remaining"`
	TimeLimit int    `json:"timeLimit"`
	Start     *int64 `json:"start"`
	Status    string `json:"status"`
}

type timerFinishedMessage struct {
	Type       string `json:"type"`
	Reason     string `json:"reason"`
	WinnerTeam string `json:"winnerTeam,omitempty"`
	Level      int    `json:"level,omitempty"`
}

type startMessage struct {
	Type      string `json:"type"`
	Start     int64  `json:"start"`
	TimeLimit int    `json:"timeLimit"`
}

type startCountdownMessage struct {
	Type      string `json:"type"`
	Seconds   int    `json:"seconds"`
	EndsAt    int64  `json:"endsAt"`
	TimeLimit int    `json:"timeLimit"`
}

type startCountdownCancelMessage struct {
	Type string `json:"type"`
}

type gameLoggedMessage struct {
	Type    string         `json:"type"`
	Entry   historyEntry   `json:"entry"`
	History []historyEntry `json:"history"`
}

type gameHistoryMessage struct {
	Type    string         `json:"type"`
	History []historyEntry `json:"history"`
}

type pauseMessage struct {
	Type string `json:"type"`
}

// imageMessage is both the stored shared-image reference and the frame
// replayed to late joiners.
type imageMessage struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ---- live board snapshots ----

type puzzleSnapshot struct {
	Team        teamKey   `json:"team"`
	TeamDisplay string    `json:"teamDisplay"`
	Layout      []*string `json:"layout"`
	Timestamp   int64     `json:"timestamp"`
}

type memorySnapshot struct {
	Team        teamKey      `json:"team"`
	TeamDisplay string       `json:"teamDisplay"`
	Pairs       int          `json:"pairs"`
	Matched     int          `json:"matched"`
	Cards       []memoryCard `json:"cards"`
	Timestamp   int64        `json:"timestamp"`
}

type wordSnapshot struct {
	Team         teamKey     `json:"team"`
	TeamDisplay  string      `json:"teamDisplay"`
	Letter       string      `json:"letter"`
	Categories   []string    `json:"categories"`
	Inputs       []wordInput `json:"inputs"`
	CorrectCount int         `json:"correctCount"`
	Total        int         `json:"total"`
	Status       string      `json:"status"`
	Finished     bool        `json:"finished"`
	Timestamp    int64       `json:"timestamp"`
}
