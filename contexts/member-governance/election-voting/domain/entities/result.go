package entities

import "time"

// EliminationRound is one ranked-choice round recorded for transparency.
// Tallies map candidate id to first-preference count among ballots still
// live that round; Exhausted counts ballots whose top choice had already
// left the pool.
type EliminationRound struct {
	Round      int            `json:"round"`
	Tallies    map[string]int `json:"tallies"`
	Winners    []string       `json:"winners,omitempty"`
	Eliminated []string       `json:"eliminated,omitempty"`
	Exhausted  int            `json:"exhausted"`
}

// ElectionResult is one tally row. Rows are fully recomputed
// (delete-then-insert) on every calculation, never patched in place.
type ElectionResult struct {
	ResultID     string
	ElectionID   string
	CandidateID  string           // empty for referendum rows
	Choice       ReferendumChoice // set for referendum rows only
	Label        string
	TotalVotes   float64
	Percentage   float64
	IsWinner     bool
	Rank         int
	Rounds       []EliminationRound // ranked-choice only
	CalculatedAt time.Time
}
