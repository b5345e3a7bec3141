// Package games documents the three levels coordinated by the matchup
// server. Two teams play them in sequence, each on its own machine,
// while an admin drives the rounds and a dashboard shows live
// standings.
//
// Levels:
//   - Level 1: tile puzzle, rebuild a shared image from shuffled tiles
//   - Level 2: memory match, find all pairs on a card grid
//   - Level 3: word challenge, fill categories with words for a letter
//
// Scoring:
//   - Each match or placement during a round is worth 10 live points
//   - The first team to finish level 1 or 2 ends the round for both
//     sides and may earn the remaining seconds as a speed bonus, when
//     at least half the time limit was left
//   - The word challenge never races the opponent and earns no bonus
//   - A team's total is the sum of its three finalized level scores
//   - A winner is declared only once both teams finish all levels
//
// Flow: the admin uploads or picks a puzzle image, selects the level,
// and presses start; an optional short countdown runs before the timer
// opens. Team pages report progress and completion over the shared
// socket, and finished games land in the history log shown on the
// dashboard.
package games
