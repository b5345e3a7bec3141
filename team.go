/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"strings"
)

// teamKey is the canonical identity of a side. Every message handler
// resolves raw team values into one of these before touching state;
// nothing else branches on raw strings.
type teamKey string

const (
	teamA    teamKey = "A"
	teamB    teamKey = "B"
	teamNone teamKey = ""
)

func (t teamKey) valid() bool {
	return t == teamA || t == teamB
}

func (t teamKey) other() teamKey {
	switch t {
	case teamA:
		return teamB
	case teamB:
		return teamA
	}
	return teamNone
}

// normalizeTeamKey maps whatever a client calls a team ("a", "Team B",
// "teamA", or the current display name) to its canonical key. Display
// names are admin-mutable, so the match runs against the live session
// names on every call.
func normalizeTeamKey(raw string, names map[teamKey]string) teamKey {
	value := strings.TrimSpace(raw)
	if value == "" {
		return teamNone
	}

	lower := strings.ToLower(value)
	switch lower {
	case "a", "team a", "teama":
		return teamA
	case "b", "team b", "teamb":
		return teamB
	}

	if name := strings.ToLower(strings.TrimSpace(names[teamA])); name != "" && lower == name {
		return teamA
	}
	if name := strings.ToLower(strings.TrimSpace(names[teamB])); name != "" && lower == name {
		return teamB
	}

	return teamNone
}
