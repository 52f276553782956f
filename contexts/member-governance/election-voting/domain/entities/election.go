package entities

import "time"

// ElectionType is a closed enum over the shapes an election can take.
// Branching on it is always an exhaustive switch; an unknown value is a
// configuration error, never a silent default.
type ElectionType string

const (
	ElectionTypeSingleCandidate ElectionType = "single_candidate"
	ElectionTypeMultiPosition   ElectionType = "multi_position"
	ElectionTypeReferendum      ElectionType = "referendum"
)

// VotingMechanism selects how recorded ballots are tallied.
type VotingMechanism string

const (
	MechanismMajority     VotingMechanism = "majority"
	MechanismRankedChoice VotingMechanism = "ranked_choice"
	MechanismWeighted     VotingMechanism = "weighted"
)

type ElectionStatus string

const (
	ElectionStatusDraft  ElectionStatus = "draft"
	ElectionStatusActive ElectionStatus = "active"
	ElectionStatusClosed ElectionStatus = "closed"
)

// PrivacyMode controls how much voter-level detail result reads expose.
// Who counts as an admin caller is decided by the surrounding application;
// this core only branches on the flag it is handed.
type PrivacyMode string

const (
	PrivacyModePrivate PrivacyMode = "private"
	PrivacyModePublic  PrivacyMode = "public"
	PrivacyModeHybrid  PrivacyMode = "hybrid"
)

// Position is the board seat an election fills. RequiredRole gates
// candidacy; whether it also gates the right to vote is a policy flag
// that defaults to off.
type Position struct {
	PositionID   string
	Name         string
	RequiredRole string
	MaxWinners   int
}

type Election struct {
	ElectionID     string
	TenantID       string
	Title          string
	Type           ElectionType
	Mechanism      VotingMechanism
	Status         ElectionStatus
	StartDate      time.Time
	EndDate        time.Time
	PrivacyMode    PrivacyMode
	AllowAbstain   bool
	WeightedVoting bool
	Position       *Position
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WindowOpen reports whether now lies inside the election's voting window.
func (e Election) WindowOpen(now time.Time) bool {
	return !now.Before(e.StartDate) && !now.After(e.EndDate)
}

// MaxWinners is the number of seats to fill: the linked position's
// max_winners for multi-position elections, one seat otherwise.
func (e Election) MaxWinners() int {
	if e.Type == ElectionTypeMultiPosition && e.Position != nil && e.Position.MaxWinners > 0 {
		return e.Position.MaxWinners
	}
	return 1
}

// Candidate is owned by its election. Candidates are soft-disabled rather
// than deleted once ballots reference them.
type Candidate struct {
	CandidateID string
	ElectionID  string
	MemberID    string
	DisplayName string
	IsActive    bool
	CreatedAt   time.Time
}
