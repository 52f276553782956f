package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"intellicash/contexts/member-governance/election-voting/application"
	"intellicash/contexts/member-governance/election-voting/application/policy"
	"intellicash/contexts/member-governance/election-voting/application/security"
	"intellicash/contexts/member-governance/election-voting/domain/entities"
	domainerrors "intellicash/contexts/member-governance/election-voting/domain/errors"
	"intellicash/contexts/member-governance/election-voting/ports"
)

// Pipeline stages surfaced to callers on rejection.
const (
	StageSecurity    = "security"
	StagePolicy      = "policy"
	StagePersistence = "persistence"
)

// CastVoteCommand is the write-model input for one vote submission.
type CastVoteCommand struct {
	ElectionID string
	MemberID   string
	Ballot     entities.BallotInput
	Request    ports.RequestContext
}

// CastVoteResult reports acceptance or the specific stage and checks
// that rejected the submission. Rejections are expected outcomes, not
// errors; the error return is reserved for infrastructure failures.
type CastVoteResult struct {
	Accepted     bool
	FailingStage string
	Details      map[string]any
	Ballot       entities.Ballot
}

// VoteUseCase sequences the voting pipeline:
// security gate -> policy enforcement -> ballot persistence -> audit.
// No stage failure leaves a partial ballot behind; the storage unique
// index on (election, member) is the authoritative duplicate guard.
type VoteUseCase struct {
	Elections ports.ElectionRepository
	Ballots   ports.BallotRepository
	Audit     ports.AuditSink
	Gate      security.Gate
	Policy    policy.Enforcer
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func (uc VoteUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if cmd.ElectionID == "" || cmd.MemberID == "" {
		return CastVoteResult{}, domainerrors.ErrInvalidBallotInput
	}

	election, err := uc.Elections.GetElection(ctx, cmd.ElectionID)
	if err != nil {
		return CastVoteResult{}, err
	}
	member, err := uc.Elections.GetMember(ctx, cmd.MemberID)
	if err != nil {
		return CastVoteResult{}, err
	}

	gateReport, err := uc.Gate.Evaluate(ctx, cmd.Request, election, member)
	if err != nil {
		return CastVoteResult{}, err
	}
	if !gateReport.Allowed {
		return CastVoteResult{
			FailingStage: StageSecurity,
			Details:      securityDetails(gateReport),
		}, nil
	}

	policyReport, err := uc.Policy.Enforce(ctx, election, member, cmd.Ballot)
	if err != nil {
		return CastVoteResult{}, err
	}
	if !policyReport.AllAllowed {
		return CastVoteResult{
			FailingStage: StagePolicy,
			Details:      policyDetails(policyReport),
		}, nil
	}

	now := uc.now()
	ballot, err := uc.buildBallot(ctx, election, member, cmd, now)
	if err != nil {
		return CastVoteResult{}, err
	}

	if err := uc.Ballots.InsertBallot(ctx, ballot); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyVoted) {
			// Concurrent submission lost the race; the unique index
			// resolved it. An ordinary rejection, not a system error.
			return CastVoteResult{
				FailingStage: StagePersistence,
				Details:      map[string]any{"reason": domainerrors.ErrAlreadyVoted.Error()},
			}, nil
		}
		return CastVoteResult{}, err
	}

	entryID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastVoteResult{}, err
	}
	if err := uc.Audit.Append(ctx, entities.AuditEntry{
		EntryID:    entryID,
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Action:     entities.ActionVoteCreated,
		Details: map[string]any{
			"ballot_id":        ballot.BallotID,
			"mechanism":        string(election.Mechanism),
			"weight":           ballot.Weight,
			"is_abstain":       ballot.IsAbstain,
			"security_score":   gateReport.Score,
			"compliance_score": policyReport.ComplianceScore,
		},
		IPAddress:   cmd.Request.IPAddress,
		UserAgent:   cmd.Request.UserAgent,
		PerformedBy: member.MemberID,
		CreatedAt:   now,
	}); err != nil {
		return CastVoteResult{}, err
	}

	logger.Info("ballot recorded",
		"event", "voting_ballot_recorded",
		"module", "member-governance/election-voting",
		"layer", "application",
		"election_id", election.ElectionID,
		"member_id", member.MemberID,
		"ballot_id", ballot.BallotID,
		"mechanism", string(election.Mechanism),
		"weight", ballot.Weight,
	)
	return CastVoteResult{Accepted: true, Ballot: ballot}, nil
}

// VerifyVote lets a member confirm their ballot was recorded; each
// lookup is itself audited.
func (uc VoteUseCase) VerifyVote(
	ctx context.Context,
	electionID string,
	memberID string,
	req ports.RequestContext,
) (entities.Ballot, bool, error) {
	ballot, found, err := uc.Ballots.GetBallotByMember(ctx, electionID, memberID)
	if err != nil {
		return entities.Ballot{}, false, err
	}

	entryID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Ballot{}, false, err
	}
	if err := uc.Audit.Append(ctx, entities.AuditEntry{
		EntryID:    entryID,
		ElectionID: electionID,
		MemberID:   memberID,
		Action:     entities.ActionVoteVerified,
		Details: map[string]any{
			"found": found,
		},
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		PerformedBy: memberID,
		CreatedAt:   uc.now(),
	}); err != nil {
		return entities.Ballot{}, false, err
	}
	return ballot, found, nil
}

func (uc VoteUseCase) buildBallot(
	ctx context.Context,
	election entities.Election,
	member entities.Member,
	cmd CastVoteCommand,
	now time.Time,
) (entities.Ballot, error) {
	ballotID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Ballot{}, err
	}

	fingerprint, _ := security.ResolveDeviceFingerprint(cmd.Request)
	ballot := entities.Ballot{
		BallotID:          ballotID,
		ElectionID:        election.ElectionID,
		MemberID:          member.MemberID,
		IsAbstain:         cmd.Ballot.IsAbstain,
		Weight:            1,
		IPAddress:         cmd.Request.IPAddress,
		DeviceFingerprint: fingerprint,
		VotedAt:           now,
	}
	if election.Mechanism == entities.MechanismWeighted {
		ballot.Weight = entities.VotingWeight(member, now)
	}

	switch election.Type {
	case entities.ElectionTypeReferendum:
		ballot.Choice = entities.ReferendumChoice(cmd.Ballot.Choice)
		ballot.IsAbstain = ballot.Choice == entities.ChoiceAbstain
	default:
		if !cmd.Ballot.IsAbstain {
			ballot.CandidateID = cmd.Ballot.CandidateID
		}
		if election.Mechanism == entities.MechanismRankedChoice {
			ballot.Rankings = cmd.Ballot.Rankings
		}
	}
	return ballot, nil
}

func securityDetails(report security.Report) map[string]any {
	details := map[string]any{"score": report.Score}
	failed := map[string]string{}
	for name, check := range report.Checks {
		if !check.Passed {
			failed[name] = check.Message
		}
	}
	details["failed_checks"] = failed
	return details
}

func policyDetails(report policy.Report) map[string]any {
	details := map[string]any{"compliance_score": report.ComplianceScore}
	failed := map[string]string{}
	for name, result := range report.Policies {
		if !result.Passed {
			failed[name] = result.Message
		}
	}
	details["failed_policies"] = failed
	return details
}

func (uc VoteUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
