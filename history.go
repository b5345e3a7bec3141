/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const historyLimit = 500

type historyEntry struct {
	ID          int64                   `json:"id"`
	PlayedAt    string                  `json:"playedAt"`
	Teams       map[teamKey]string      `json:"teams"`
	LevelScores map[teamKey]map[int]int `json:"levelScores"`
	Totals      map[teamKey]int         `json:"totals"`
	WinnerKey   string                  `json:"winnerKey"`
	WinnerName  string                  `json:"winnerName"`
}

// historyLog is the append-only record of finished games, rewritten in
// full to a JSON array file on every mutation. Persistence is
// best-effort: a failed write never interrupts gameplay, and a missing
// or corrupt file at startup just means an empty history.
type historyLog struct {
	path    string
	entries []historyEntry
}

func loadHistory(path string) *historyLog {
	l := &historyLog{
		path:    path,
		entries: []historyEntry{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("failed to read game history")
		}
		return l
	}

	var entries []historyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to parse game history")
		return l
	}
	if entries != nil {
		l.entries = entries
	}

	return l
}

func (l *historyLog) persist() {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to encode game history")
		return
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", l.path).Msg("failed to write game history")
	}
}

// append records a finished game, evicting the oldest entries beyond the
// cap before persisting.
func (l *historyLog) append(entry historyEntry) {
	l.entries = append(l.entries, entry)
	if len(l.entries) > historyLimit {
		l.entries = l.entries[len(l.entries)-historyLimit:]
	}
	l.persist()
}

// deleteEntry removes the entry whose id matches, comparing as strings
// since clients may send the id as either a number or a string. Returns
// whether anything was removed; the file is only rewritten on change.
func (l *historyLog) deleteEntry(rawID any) bool {
	target := normalizeEntryID(rawID)
	if target == "" {
		return false
	}

	dst := l.entries[:0]
	changed := false
	for _, entry := range l.entries {
		if strconv.FormatInt(entry.ID, 10) == target {
			changed = true
			continue
		}
		dst = append(dst, entry)
	}
	l.entries = dst

	if changed {
		l.persist()
	}
	return changed
}

func normalizeEntryID(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	}
	return ""
}

// buildHistoryEntry snapshots the current session as a finished game.
func buildHistoryEntry(s *sessionState, now time.Time) historyEntry {
	winnerKey, winnerName := s.winnerSummary()
	return historyEntry{
		ID:          now.UnixMilli(),
		PlayedAt:    now.UTC().Format(time.RFC3339Nano),
		Teams:       map[teamKey]string{teamA: s.displayName(teamA), teamB: s.displayName(teamB)},
		LevelScores: s.levelScoresCopy(),
		Totals:      s.totalsCopy(),
		WinnerKey:   winnerKey,
		WinnerName:  winnerName,
	}
}

// gameSignature is the content identity used to deduplicate history
// appends: two structurally identical finished games produce the same
// signature. Map keys marshal in sorted order, so this is deterministic.
func gameSignature(entry historyEntry) string {
	sig := struct {
		Teams       map[teamKey]string      `json:"teams"`
		LevelScores map[teamKey]map[int]int `json:"levelScores"`
		Totals      map[teamKey]int         `json:"totals"`
	}{entry.Teams, entry.LevelScores, entry.Totals}

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Sprintf("%v", sig)
	}
	return string(data)
}
