package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"intellicash/contexts/member-governance/election-voting/application"
	"intellicash/contexts/member-governance/election-voting/domain/entities"
	"intellicash/contexts/member-governance/election-voting/ports"
)

// Policy names, stable across audit entries and caller-facing reports.
const (
	PolicyElectionStatus       = "election_status"
	PolicyVotingWindow         = "voting_window"
	PolicyMemberEligibility    = "member_eligibility"
	PolicyBallotShape          = "ballot_shape"
	PolicyCandidateEligibility = "candidate_eligibility"
	PolicyMechanismRules       = "mechanism_rules"
	PolicyPrivacyMode          = "privacy_mode"
	PolicyAuditRequirement     = "audit_requirement"
)

// Result is the outcome of one policy evaluation.
type Result struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Report aggregates all policies for one enforcement run. The compliance
// score is the rounded share of policies that passed.
type Report struct {
	AllAllowed      bool
	Policies        map[string]Result
	ComplianceScore int
}

// Enforcer validates election shape and ballot shape independently of the
// security gate. Both layers must agree before a ballot is persisted; the
// deliberately duplicated checks (window, eligibility, duplicate vote)
// each read their own source of truth.
type Enforcer struct {
	Elections ports.ElectionRepository
	Ballots   ports.BallotRepository
	Audit     ports.AuditSink
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func (e Enforcer) Enforce(
	ctx context.Context,
	election entities.Election,
	member entities.Member,
	input entities.BallotInput,
) (Report, error) {
	logger := application.ResolveLogger(e.Logger)
	now := e.now()

	candidates, err := e.Elections.ListCandidates(ctx, election.ElectionID)
	if err != nil {
		return Report{}, err
	}

	policies := map[string]Result{
		PolicyElectionStatus:       checkElectionStatus(election),
		PolicyVotingWindow:         checkVotingWindow(election, now),
		PolicyMemberEligibility:    e.checkMemberEligibility(ctx, election, member),
		PolicyBallotShape:          checkBallotShape(election, input),
		PolicyCandidateEligibility: checkCandidateEligibility(election, candidates, input),
		PolicyMechanismRules:       checkMechanismRules(election, member, candidates, input, now),
		PolicyPrivacyMode:          Result{Passed: true, Message: fmt.Sprintf("privacy mode %q recorded", election.PrivacyMode)},
		PolicyAuditRequirement:     Result{Passed: true, Message: "audit trail is mandatory"},
	}

	report := Report{AllAllowed: true, Policies: policies}
	passed := 0
	for _, result := range policies {
		if result.Passed {
			passed++
			continue
		}
		report.AllAllowed = false
	}
	report.ComplianceScore = int(float64(passed)/float64(len(policies))*100 + 0.5)

	entryID, err := e.IDGen.NewID(ctx)
	if err != nil {
		return Report{}, err
	}
	if err := e.Audit.Append(ctx, entities.AuditEntry{
		EntryID:     entryID,
		ElectionID:  election.ElectionID,
		MemberID:    member.MemberID,
		Action:      entities.ActionPolicyEnforcement,
		Details:     auditDetails(policies, report.AllAllowed, report.ComplianceScore),
		PerformedBy: member.MemberID,
		CreatedAt:   now,
	}); err != nil {
		return Report{}, err
	}

	if !report.AllAllowed {
		logger.Warn("policy enforcement rejected ballot",
			"event", "voting_policy_rejected",
			"module", "member-governance/election-voting",
			"layer", "application",
			"election_id", election.ElectionID,
			"member_id", member.MemberID,
			"compliance_score", report.ComplianceScore,
		)
	}
	return report, nil
}

func checkElectionStatus(election entities.Election) Result {
	if election.Status != entities.ElectionStatusActive {
		return Result{Passed: false, Message: fmt.Sprintf("election is %s, not active", election.Status)}
	}
	return Result{Passed: true, Message: "election is active"}
}

func checkVotingWindow(election entities.Election, now time.Time) Result {
	if now.Before(election.StartDate) {
		return Result{Passed: false, Message: "voting has not started"}
	}
	if now.After(election.EndDate) {
		return Result{Passed: false, Message: "voting has ended"}
	}
	return Result{Passed: true, Message: "within voting window"}
}

func (e Enforcer) checkMemberEligibility(ctx context.Context, election entities.Election, member entities.Member) Result {
	if !member.IsActive() {
		return Result{Passed: false, Message: "member is not active"}
	}
	if member.TenantID != election.TenantID {
		return Result{Passed: false, Message: "member belongs to a different tenant"}
	}
	_, found, err := e.Ballots.GetBallotByMember(ctx, election.ElectionID, member.MemberID)
	if err != nil {
		return Result{Passed: false, Message: "ballot lookup unavailable"}
	}
	if found {
		return Result{Passed: false, Message: "member has already voted in this election"}
	}
	return Result{Passed: true, Message: "member eligible"}
}

func checkBallotShape(election entities.Election, input entities.BallotInput) Result {
	switch election.Type {
	case entities.ElectionTypeReferendum:
		choice := entities.ReferendumChoice(input.Choice)
		if input.Choice == "" {
			return Result{Passed: false, Message: "referendum ballot requires a choice"}
		}
		if !choice.Valid() {
			return Result{Passed: false, Message: fmt.Sprintf("choice %q is not one of yes/no/abstain", input.Choice)}
		}
		return Result{Passed: true, Message: "referendum choice present"}
	case entities.ElectionTypeSingleCandidate, entities.ElectionTypeMultiPosition:
		if input.CandidateID != "" {
			return Result{Passed: true, Message: "candidate selection present"}
		}
		// Rankings stand in for a candidate selection only where the
		// mechanism will actually tally them.
		if election.Mechanism == entities.MechanismRankedChoice && len(input.Rankings) > 0 {
			return Result{Passed: true, Message: "ranked candidate selection present"}
		}
		if input.IsAbstain {
			if !election.AllowAbstain {
				return Result{Passed: false, Message: "election does not allow abstention"}
			}
			return Result{Passed: true, Message: "abstention recorded"}
		}
		return Result{Passed: false, Message: "ballot names no candidate and is not an abstention"}
	default:
		return Result{Passed: false, Message: fmt.Sprintf("unknown election type %q", election.Type)}
	}
}

func checkCandidateEligibility(election entities.Election, candidates []entities.Candidate, input entities.BallotInput) Result {
	if election.Type == entities.ElectionTypeReferendum {
		return Result{Passed: true, Message: "not applicable to referendums"}
	}
	if input.IsAbstain && input.CandidateID == "" {
		return Result{Passed: true, Message: "abstention names no candidate"}
	}
	if input.CandidateID == "" && len(input.Rankings) > 0 {
		// Ranked ballots are validated candidate-by-candidate by the
		// mechanism rules.
		return Result{Passed: true, Message: "ranked ballot names no single candidate"}
	}
	for _, candidate := range candidates {
		if candidate.CandidateID != input.CandidateID {
			continue
		}
		if !candidate.IsActive {
			return Result{Passed: false, Message: "candidate is no longer active"}
		}
		return Result{Passed: true, Message: "candidate eligible"}
	}
	return Result{Passed: false, Message: "candidate does not belong to this election"}
}

func checkMechanismRules(
	election entities.Election,
	member entities.Member,
	candidates []entities.Candidate,
	input entities.BallotInput,
	now time.Time,
) Result {
	switch election.Mechanism {
	case entities.MechanismMajority:
		return Result{Passed: true, Message: "single choice suffices for majority voting"}
	case entities.MechanismRankedChoice:
		if election.Type == entities.ElectionTypeReferendum {
			return Result{Passed: true, Message: "referendum choice suffices"}
		}
		if input.IsAbstain && len(input.Rankings) == 0 {
			return Result{Passed: true, Message: "abstention carries no rankings"}
		}
		return checkRankings(candidates, input.Rankings)
	case entities.MechanismWeighted:
		if entities.VotingWeight(member, now) <= 0 {
			return Result{Passed: false, Message: "member resolves to zero voting weight"}
		}
		return Result{Passed: true, Message: "member carries positive voting weight"}
	default:
		return Result{Passed: false, Message: fmt.Sprintf("unknown voting mechanism %q", election.Mechanism)}
	}
}

// checkRankings requires a ranking for every active candidate, each rank
// value used exactly once.
func checkRankings(candidates []entities.Candidate, rankings map[string]int) Result {
	active := 0
	for _, candidate := range candidates {
		if candidate.IsActive {
			active++
		}
	}
	if len(rankings) == 0 {
		return Result{Passed: false, Message: "ranked-choice ballot requires rankings"}
	}
	if len(rankings) != active {
		return Result{Passed: false, Message: fmt.Sprintf("rankings cover %d of %d candidates", len(rankings), active)}
	}
	seenRanks := make(map[int]bool, len(rankings))
	for _, candidate := range candidates {
		if !candidate.IsActive {
			continue
		}
		rank, ok := rankings[candidate.CandidateID]
		if !ok {
			return Result{Passed: false, Message: fmt.Sprintf("candidate %s is unranked", candidate.CandidateID)}
		}
		if seenRanks[rank] {
			return Result{Passed: false, Message: fmt.Sprintf("rank %d used more than once", rank)}
		}
		seenRanks[rank] = true
	}
	return Result{Passed: true, Message: "rankings cover every candidate exactly once"}
}

func auditDetails(policies map[string]Result, allowed bool, score int) map[string]any {
	details := map[string]any{
		"all_allowed":      allowed,
		"compliance_score": score,
	}
	for name, result := range policies {
		details[name] = map[string]any{
			"passed":  result.Passed,
			"message": result.Message,
		}
	}
	return details
}

func (e Enforcer) now() time.Time {
	if e.Clock != nil {
		return e.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
