package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testEntry(id int64) historyEntry {
	return historyEntry{
		ID:       id,
		PlayedAt: time.UnixMilli(id).UTC().Format(time.RFC3339Nano),
		Teams:    map[teamKey]string{teamA: "A", teamB: "B"},
		LevelScores: map[teamKey]map[int]int{
			teamA: {1: 10, 2: 20, 3: 30},
			teamB: {1: 5, 2: 15, 3: 25},
		},
		Totals:     map[teamKey]int{teamA: 60, teamB: 45},
		WinnerKey:  "A",
		WinnerName: "A",
	}
}

func TestLoadHistoryMissingFile(t *testing.T) {
	l := loadHistory(filepath.Join(t.TempDir(), "missing.json"))

	if l.entries == nil || len(l.entries) != 0 {
		t.Fatalf("expected empty history, got %v", l.entries)
	}
}

func TestLoadHistoryCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := loadHistory(path)
	if len(l.entries) != 0 {
		t.Fatalf("corrupt file should load as empty, got %d entries", len(l.entries))
	}
}

func TestHistoryAppendRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	l := loadHistory(path)
	l.append(testEntry(1000))
	l.append(testEntry(2000))

	reloaded := loadHistory(path)
	if len(reloaded.entries) != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", len(reloaded.entries))
	}
	if reloaded.entries[0].ID != 1000 || reloaded.entries[1].ID != 2000 {
		t.Fatalf("entries out of order: %v", reloaded.entries)
	}
	if reloaded.entries[0].Totals[teamA] != 60 {
		t.Fatalf("totals lost in round trip: %v", reloaded.entries[0].Totals)
	}
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	l := loadHistory(path)

	l.entries = make([]historyEntry, 0, historyLimit)
	for i := 0; i < historyLimit; i++ {
		l.entries = append(l.entries, testEntry(int64(i)))
	}

	l.append(testEntry(9999))

	if len(l.entries) != historyLimit {
		t.Fatalf("expected history capped at %d, got %d", historyLimit, len(l.entries))
	}
	if l.entries[0].ID != 1 {
		t.Fatalf("expected oldest entry evicted, first id is %d", l.entries[0].ID)
	}
	if l.entries[len(l.entries)-1].ID != 9999 {
		t.Fatal("expected newest entry kept")
	}
}

func TestHistoryDeleteByStringOrNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	l := loadHistory(path)
	l.append(testEntry(1000))
	l.append(testEntry(2000))

	if !l.deleteEntry("1000") {
		t.Fatal("expected delete by string id to succeed")
	}
	if !l.deleteEntry(float64(2000)) {
		t.Fatal("expected delete by numeric id to succeed")
	}
	if len(l.entries) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(l.entries))
	}

	if l.deleteEntry("1000") {
		t.Fatal("deleting an absent id should report no change")
	}
	if l.deleteEntry(nil) {
		t.Fatal("nil id should report no change")
	}
}

func TestGameSignatureIdentity(t *testing.T) {
	a := gameSignature(testEntry(1000))
	b := gameSignature(testEntry(2000))
	if a != b {
		t.Fatal("signature must ignore id and timestamp")
	}

	changed := testEntry(1000)
	changed.Totals = map[teamKey]int{teamA: 61, teamB: 45}
	if gameSignature(changed) == a {
		t.Fatal("signature must reflect totals")
	}

	renamed := testEntry(1000)
	renamed.Teams = map[teamKey]string{teamA: "Rockets", teamB: "B"}
	if gameSignature(renamed) == a {
		t.Fatal("signature must reflect team names")
	}
}
