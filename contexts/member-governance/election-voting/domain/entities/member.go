package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

// Member is the cooperative-member read model. It is owned by the
// surrounding back office and is read-only inside this core.
type Member struct {
	MemberID       string
	TenantID       string
	Status         MemberStatus
	Roles          []string
	JoinedAt       time.Time
	SavingsBalance decimal.Decimal
}

func (m Member) IsActive() bool {
	return m.Status == MemberStatusActive
}

func (m Member) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// VotingWeight derives a member's ballot weight for weighted elections:
// one base vote, plus one per full year of membership, plus one per 1000
// of savings, floored at 1.
func VotingWeight(m Member, now time.Time) float64 {
	weight := 1 + monthsBetween(m.JoinedAt, now)/12 + int(m.SavingsBalance.Div(decimal.NewFromInt(1000)).IntPart())
	if weight < 1 {
		weight = 1
	}
	return float64(weight)
}

// monthsBetween counts whole calendar months elapsed from a to b.
func monthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
