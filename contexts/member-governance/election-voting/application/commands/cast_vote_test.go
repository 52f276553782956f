package commands

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"intellicash/contexts/member-governance/election-voting/adapters/memory"
	"intellicash/contexts/member-governance/election-voting/application/policy"
	"intellicash/contexts/member-governance/election-voting/application/security"
	"intellicash/contexts/member-governance/election-voting/domain/entities"
	domainerrors "intellicash/contexts/member-governance/election-voting/domain/errors"
	"intellicash/contexts/member-governance/election-voting/ports"
)

var voteNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newVoteFixture(mechanism entities.VotingMechanism) (VoteUseCase, *memory.Store, entities.Election, entities.Member) {
	store := memory.NewStore()
	store.NowFunc = func() time.Time { return voteNow }

	election := entities.Election{
		ElectionID:   "election-1",
		TenantID:     "tenant-1",
		Title:        "Board Chair 2026",
		Type:         entities.ElectionTypeSingleCandidate,
		Mechanism:    mechanism,
		Status:       entities.ElectionStatusActive,
		StartDate:    voteNow.Add(-24 * time.Hour),
		EndDate:      voteNow.Add(24 * time.Hour),
		PrivacyMode:  entities.PrivacyModePrivate,
		AllowAbstain: true,
	}
	member := entities.Member{
		MemberID:       "member-1",
		TenantID:       "tenant-1",
		Status:         entities.MemberStatusActive,
		JoinedAt:       voteNow.AddDate(-2, 0, 0),
		SavingsBalance: decimal.NewFromInt(2500),
	}
	store.SetElection(election)
	store.SetMember(member)
	store.SetCandidate(entities.Candidate{CandidateID: "candidate-1", ElectionID: election.ElectionID, DisplayName: "Amina", IsActive: true})
	store.SetCandidate(entities.Candidate{CandidateID: "candidate-2", ElectionID: election.ElectionID, DisplayName: "Bashir", IsActive: true})

	uc := VoteUseCase{
		Elections: store,
		Ballots:   store,
		Audit:     store,
		Gate:      security.Gate{Ballots: store, Store: store, Audit: store, Clock: store, IDGen: store},
		Policy:    policy.Enforcer{Elections: store, Ballots: store, Audit: store, Clock: store, IDGen: store},
		Clock:     store,
		IDGen:     store,
	}
	return uc, store, election, member
}

func voteRequest() ports.RequestContext {
	return ports.RequestContext{
		IPAddress:      "203.0.113.7",
		UserAgent:      "mozilla/5.0",
		AcceptLanguage: "en-US",
		AcceptEncoding: "gzip",
	}
}

func TestCastVoteAccepted(t *testing.T) {
	uc, store, election, member := newVoteFixture(entities.MechanismMajority)

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-1"},
		Request:    voteRequest(),
	})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected acceptance, got stage %q details %+v", result.FailingStage, result.Details)
	}
	if result.Ballot.BallotID == "" {
		t.Fatal("ballot id not assigned")
	}
	if result.Ballot.Weight != 1 {
		t.Fatalf("majority ballot weight = %v, want 1", result.Ballot.Weight)
	}
	if !result.Ballot.VotedAt.Equal(voteNow) {
		t.Fatalf("voted_at = %v, want %v", result.Ballot.VotedAt, voteNow)
	}

	stored, found, err := store.GetBallotByMember(context.Background(), election.ElectionID, member.MemberID)
	if err != nil || !found {
		t.Fatalf("ballot not persisted: found=%v err=%v", found, err)
	}
	if stored.CandidateID != "candidate-1" {
		t.Fatalf("stored candidate = %q", stored.CandidateID)
	}

	entries, err := store.ListByElection(context.Background(), election.ElectionID)
	if err != nil {
		t.Fatalf("ListByElection: %v", err)
	}
	// One security, one policy, one creation entry.
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Action != entities.ActionVoteCreated {
		t.Fatalf("last audit action = %q", last.Action)
	}
	if last.Details["ballot_id"] != result.Ballot.BallotID {
		t.Fatalf("audit ballot_id = %v", last.Details["ballot_id"])
	}
}

func TestCastVoteFreezesWeightedWeight(t *testing.T) {
	uc, _, election, member := newVoteFixture(entities.MechanismWeighted)

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-1"},
		Request:    voteRequest(),
	})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected acceptance, got %+v", result.Details)
	}
	// 1 base + 2 full years of tenure + 2 per 1000 of savings.
	if result.Ballot.Weight != 5 {
		t.Fatalf("weighted ballot weight = %v, want 5", result.Ballot.Weight)
	}
}

func TestCastVoteSecurityStageRejection(t *testing.T) {
	uc, store, election, member := newVoteFixture(entities.MechanismMajority)
	election.EndDate = voteNow.Add(-time.Minute)
	store.SetElection(election)

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-1"},
		Request:    voteRequest(),
	})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if result.Accepted {
		t.Fatal("expected rejection after window end")
	}
	if result.FailingStage != StageSecurity {
		t.Fatalf("failing stage = %q, want %q", result.FailingStage, StageSecurity)
	}
	failed, ok := result.Details["failed_checks"].(map[string]string)
	if !ok {
		t.Fatalf("missing failed_checks in %+v", result.Details)
	}
	if _, present := failed[security.CheckVotingWindow]; !present {
		t.Fatalf("voting_window not reported: %+v", failed)
	}
}

func TestCastVotePolicyStageRejection(t *testing.T) {
	uc, _, election, member := newVoteFixture(entities.MechanismMajority)

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-99"},
		Request:    voteRequest(),
	})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if result.Accepted {
		t.Fatal("expected rejection for an unknown candidate")
	}
	if result.FailingStage != StagePolicy {
		t.Fatalf("failing stage = %q, want %q", result.FailingStage, StagePolicy)
	}
	failed, ok := result.Details["failed_policies"].(map[string]string)
	if !ok {
		t.Fatalf("missing failed_policies in %+v", result.Details)
	}
	if _, present := failed[policy.PolicyCandidateEligibility]; !present {
		t.Fatalf("candidate_eligibility not reported: %+v", failed)
	}
}

func TestCastVoteRankingsOnlyMajorityBallotRejected(t *testing.T) {
	uc, store, election, member := newVoteFixture(entities.MechanismMajority)

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{Rankings: map[string]int{"candidate-1": 1, "candidate-2": 2}},
		Request:    voteRequest(),
	})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if result.Accepted {
		t.Fatal("a rankings-only ballot must not be accepted in a majority election")
	}
	if result.FailingStage != StagePolicy {
		t.Fatalf("failing stage = %q, want %q", result.FailingStage, StagePolicy)
	}
	failed, ok := result.Details["failed_policies"].(map[string]string)
	if !ok {
		t.Fatalf("missing failed_policies in %+v", result.Details)
	}
	if _, present := failed[policy.PolicyBallotShape]; !present {
		t.Fatalf("ballot_shape not reported: %+v", failed)
	}

	// The rejection must not burn the member's one vote.
	if _, found, err := store.GetBallotByMember(context.Background(), election.ElectionID, member.MemberID); err != nil || found {
		t.Fatalf("rejected ballot persisted: found=%v err=%v", found, err)
	}
	second, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-1"},
		Request:    voteRequest(),
	})
	if err != nil {
		t.Fatalf("follow-up CastVote: %v", err)
	}
	if !second.Accepted {
		t.Fatalf("member must still be able to vote properly: stage %q details %+v", second.FailingStage, second.Details)
	}
}

func TestCastVoteSecondBallotRejected(t *testing.T) {
	uc, store, election, member := newVoteFixture(entities.MechanismMajority)

	first, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-1"},
		Request:    voteRequest(),
	})
	if err != nil || !first.Accepted {
		t.Fatalf("first CastVote: accepted=%v err=%v", first.Accepted, err)
	}

	second, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-2"},
		Request:    voteRequest(),
	})
	if err != nil {
		t.Fatalf("second CastVote: %v", err)
	}
	if second.Accepted {
		t.Fatal("second ballot must be rejected")
	}
	// The advisory duplicate check catches it first.
	if second.FailingStage != StageSecurity {
		t.Fatalf("failing stage = %q, want %q", second.FailingStage, StageSecurity)
	}

	ballots, err := store.ListBallots(context.Background(), election.ElectionID)
	if err != nil {
		t.Fatalf("ListBallots: %v", err)
	}
	if len(ballots) != 1 {
		t.Fatalf("expected exactly one stored ballot, got %d", len(ballots))
	}
	if ballots[0].CandidateID != "candidate-1" {
		t.Fatalf("original ballot was replaced: %+v", ballots[0])
	}
}

// racingBallots hides any prior ballot from the advisory checks but
// rejects the insert, mimicking a concurrent submission that wins the
// race between check and write.
type racingBallots struct {
	*memory.Store
}

func (r racingBallots) GetBallotByMember(context.Context, string, string) (entities.Ballot, bool, error) {
	return entities.Ballot{}, false, nil
}

func (r racingBallots) InsertBallot(context.Context, entities.Ballot) error {
	return domainerrors.ErrAlreadyVoted
}

func TestCastVoteLostRaceRejectedAtPersistence(t *testing.T) {
	uc, store, election, member := newVoteFixture(entities.MechanismMajority)
	racing := racingBallots{Store: store}
	uc.Ballots = racing
	uc.Gate.Ballots = racing
	uc.Policy.Ballots = racing

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-1"},
		Request:    voteRequest(),
	})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if result.Accepted {
		t.Fatal("losing the insert race must reject the submission")
	}
	if result.FailingStage != StagePersistence {
		t.Fatalf("failing stage = %q, want %q", result.FailingStage, StagePersistence)
	}
}

func TestCastVoteReferendumBallot(t *testing.T) {
	uc, store, election, member := newVoteFixture(entities.MechanismMajority)
	election.Type = entities.ElectionTypeReferendum
	store.SetElection(election)

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{Choice: "abstain"},
		Request:    voteRequest(),
	})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected acceptance, got %+v", result.Details)
	}
	if result.Ballot.Choice != entities.ChoiceAbstain {
		t.Fatalf("ballot choice = %q", result.Ballot.Choice)
	}
	if !result.Ballot.IsAbstain {
		t.Fatal("abstain choice must mark the ballot abstaining")
	}
	if result.Ballot.CandidateID != "" {
		t.Fatalf("referendum ballot carries candidate %q", result.Ballot.CandidateID)
	}
}

func TestCastVoteValidatesIdentifiers(t *testing.T) {
	uc, _, _, _ := newVoteFixture(entities.MechanismMajority)

	if _, err := uc.CastVote(context.Background(), CastVoteCommand{MemberID: "member-1"}); err != domainerrors.ErrInvalidBallotInput {
		t.Fatalf("missing election id: err = %v", err)
	}
	if _, err := uc.CastVote(context.Background(), CastVoteCommand{ElectionID: "election-1"}); err != domainerrors.ErrInvalidBallotInput {
		t.Fatalf("missing member id: err = %v", err)
	}
}

func TestCastVoteUnknownElection(t *testing.T) {
	uc, _, _, member := newVoteFixture(entities.MechanismMajority)

	_, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: "election-99",
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-1"},
		Request:    voteRequest(),
	})
	if err != domainerrors.ErrElectionNotFound {
		t.Fatalf("err = %v, want ErrElectionNotFound", err)
	}
}

func TestVerifyVote(t *testing.T) {
	uc, store, election, member := newVoteFixture(entities.MechanismMajority)

	_, found, err := uc.VerifyVote(context.Background(), election.ElectionID, member.MemberID, voteRequest())
	if err != nil {
		t.Fatalf("VerifyVote: %v", err)
	}
	if found {
		t.Fatal("no ballot should be found before voting")
	}

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID: election.ElectionID,
		MemberID:   member.MemberID,
		Ballot:     entities.BallotInput{CandidateID: "candidate-1"},
		Request:    voteRequest(),
	})
	if err != nil || !result.Accepted {
		t.Fatalf("CastVote: accepted=%v err=%v", result.Accepted, err)
	}

	ballot, found, err := uc.VerifyVote(context.Background(), election.ElectionID, member.MemberID, voteRequest())
	if err != nil {
		t.Fatalf("VerifyVote: %v", err)
	}
	if !found {
		t.Fatal("recorded ballot must be found")
	}
	if ballot.BallotID != result.Ballot.BallotID {
		t.Fatalf("verified ballot id = %q, want %q", ballot.BallotID, result.Ballot.BallotID)
	}

	entries, err := store.ListByElection(context.Background(), election.ElectionID)
	if err != nil {
		t.Fatalf("ListByElection: %v", err)
	}
	verifications := 0
	for _, entry := range entries {
		if entry.Action == entities.ActionVoteVerified {
			verifications++
		}
	}
	if verifications != 2 {
		t.Fatalf("expected 2 VOTE_VERIFIED entries, got %d", verifications)
	}
}
