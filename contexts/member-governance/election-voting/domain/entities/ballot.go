package entities

import "time"

// ReferendumChoice is the closed set of referendum answers.
type ReferendumChoice string

const (
	ChoiceYes     ReferendumChoice = "yes"
	ChoiceNo      ReferendumChoice = "no"
	ChoiceAbstain ReferendumChoice = "abstain"
)

func (c ReferendumChoice) Valid() bool {
	switch c {
	case ChoiceYes, ChoiceNo, ChoiceAbstain:
		return true
	}
	return false
}

// Ballot is one member's recorded choice in one election. Created once,
// never mutated, never deleted. At most one ballot exists per
// (election, member); the persistence layer enforces that with a unique
// index, the application pre-checks are advisory.
type Ballot struct {
	BallotID          string
	ElectionID        string
	MemberID          string
	CandidateID       string // empty for abstain and referendum ballots
	Choice            ReferendumChoice
	IsAbstain         bool
	Rankings          map[string]int // candidate id -> rank, ranked-choice only
	Weight            float64
	IPAddress         string
	DeviceFingerprint string
	VotedAt           time.Time
}

// BallotInput is the raw ballot payload handed in by the surrounding
// application before any validation has run.
type BallotInput struct {
	CandidateID string
	Choice      string
	IsAbstain   bool
	Rankings    map[string]int
}
