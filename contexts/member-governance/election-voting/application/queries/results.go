package queries

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"intellicash/contexts/member-governance/election-voting/application"
	"intellicash/contexts/member-governance/election-voting/domain/entities"
	domainerrors "intellicash/contexts/member-governance/election-voting/domain/errors"
	"intellicash/contexts/member-governance/election-voting/ports"
)

// ResultsUseCase recomputes and serves election tallies. Every
// calculation is a full delete-then-insert, serialized per election by
// the recompute lock; concurrent readers during a recompute may observe
// a transient empty set, never a partial one being patched.
type ResultsUseCase struct {
	Elections ports.ElectionRepository
	Ballots   ports.BallotRepository
	Results   ports.ResultRepository
	Audit     ports.AuditSink
	Lock      ports.RecomputeLock
	LockTTL   time.Duration
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

// Calculate recomputes all result rows for an election. Safe to re-run:
// an unchanged ballot set produces identical totals, ranks and winners.
func (uc ResultsUseCase) Calculate(ctx context.Context, electionID string) error {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	election, err := uc.Elections.GetElection(ctx, electionID)
	if err != nil {
		return err
	}

	if uc.Lock != nil {
		release, err := uc.Lock.Acquire(ctx, electionID, uc.resolveLockTTL())
		if err != nil {
			return err
		}
		defer func() {
			if releaseErr := release(ctx); releaseErr != nil {
				logger.Warn("recompute lock release failed",
					"event", "voting_results_lock_release_failed",
					"module", "member-governance/election-voting",
					"layer", "application",
					"election_id", electionID,
					"error", releaseErr.Error(),
				)
			}
		}()
	}

	rows, err := uc.compute(ctx, election, now)
	if err != nil {
		uc.auditCalculation(ctx, election, entities.ActionResultsCalculationFailed, map[string]any{
			"mechanism": string(election.Mechanism),
			"error":     err.Error(),
		}, now)
		return err
	}

	if err := uc.Results.ReplaceResults(ctx, electionID, rows); err != nil {
		uc.auditCalculation(ctx, election, entities.ActionResultsCalculationFailed, map[string]any{
			"mechanism": string(election.Mechanism),
			"error":     err.Error(),
		}, now)
		return err
	}

	uc.auditCalculation(ctx, election, entities.ActionResultsCalculated, map[string]any{
		"mechanism": string(election.Mechanism),
		"rows":      len(rows),
	}, now)
	logger.Info("election results calculated",
		"event", "voting_results_calculated",
		"module", "member-governance/election-voting",
		"layer", "application",
		"election_id", electionID,
		"mechanism", string(election.Mechanism),
		"rows", len(rows),
	)
	return nil
}

func (uc ResultsUseCase) compute(ctx context.Context, election entities.Election, now time.Time) ([]entities.ElectionResult, error) {
	candidates, err := uc.Elections.ListCandidates(ctx, election.ElectionID)
	if err != nil {
		return nil, err
	}
	ballots, err := uc.Ballots.ListBallots(ctx, election.ElectionID)
	if err != nil {
		return nil, err
	}

	var rows []entities.ElectionResult
	switch election.Mechanism {
	case entities.MechanismMajority, entities.MechanismWeighted:
		// Weighted elections tally exactly like majority ones; the
		// tenure/savings weight was derived and frozen at cast time.
		if election.Type == entities.ElectionTypeReferendum {
			rows = referendumTally(election, ballots, now)
		} else {
			rows = candidateTally(election, candidates, ballots, now)
		}
	case entities.MechanismRankedChoice:
		if election.Type == entities.ElectionTypeReferendum {
			rows = referendumTally(election, ballots, now)
		} else {
			rows = rankedChoiceTally(election, candidates, ballots, now)
		}
	default:
		return nil, domainerrors.ErrUnknownMechanism
	}

	for i := range rows {
		id, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return nil, err
		}
		rows[i].ResultID = id
	}
	return rows, nil
}

// candidateTally groups non-abstain ballots by candidate, summing ballot
// weight. Every candidate appears even with zero votes.
func candidateTally(
	election entities.Election,
	candidates []entities.Candidate,
	ballots []entities.Ballot,
	calculatedAt time.Time,
) []entities.ElectionResult {
	totals := make(map[string]float64, len(candidates))
	labels := make(map[string]string, len(candidates))
	for _, candidate := range candidates {
		totals[candidate.CandidateID] = 0
		labels[candidate.CandidateID] = candidateLabel(candidate)
	}

	totalWeight := 0.0
	for _, ballot := range ballots {
		if ballot.IsAbstain || ballot.CandidateID == "" {
			continue
		}
		if _, known := totals[ballot.CandidateID]; !known {
			continue
		}
		totals[ballot.CandidateID] += ballot.Weight
		totalWeight += ballot.Weight
	}

	rows := make([]entities.ElectionResult, 0, len(candidates))
	for _, candidate := range candidates {
		row := entities.ElectionResult{
			ElectionID:   election.ElectionID,
			CandidateID:  candidate.CandidateID,
			Label:        labels[candidate.CandidateID],
			TotalVotes:   totals[candidate.CandidateID],
			CalculatedAt: calculatedAt,
		}
		if totalWeight > 0 {
			row.Percentage = row.TotalVotes / totalWeight * 100
		}
		rows = append(rows, row)
	}
	sortRows(rows)
	assignDenseRanks(rows)
	markWinners(rows, election.MaxWinners())
	return rows
}

// referendumTally always yields the three choice rows; "yes" is the
// semantic winner when it outweighs "no". Callers interpret the
// percentage against any quorum threshold they apply.
func referendumTally(election entities.Election, ballots []entities.Ballot, calculatedAt time.Time) []entities.ElectionResult {
	totals := map[entities.ReferendumChoice]float64{
		entities.ChoiceYes:     0,
		entities.ChoiceNo:      0,
		entities.ChoiceAbstain: 0,
	}
	totalWeight := 0.0
	for _, ballot := range ballots {
		choice := ballot.Choice
		if choice == "" && ballot.IsAbstain {
			choice = entities.ChoiceAbstain
		}
		if _, known := totals[choice]; !known {
			continue
		}
		totals[choice] += ballot.Weight
		totalWeight += ballot.Weight
	}

	rows := make([]entities.ElectionResult, 0, len(totals))
	for _, choice := range []entities.ReferendumChoice{entities.ChoiceYes, entities.ChoiceNo, entities.ChoiceAbstain} {
		row := entities.ElectionResult{
			ElectionID:   election.ElectionID,
			Choice:       choice,
			Label:        string(choice),
			TotalVotes:   totals[choice],
			CalculatedAt: calculatedAt,
		}
		if totalWeight > 0 {
			row.Percentage = row.TotalVotes / totalWeight * 100
		}
		if choice == entities.ChoiceYes {
			row.IsWinner = totals[entities.ChoiceYes] > totals[entities.ChoiceNo] && totals[entities.ChoiceYes] > 0
		}
		rows = append(rows, row)
	}
	sortRows(rows)
	assignDenseRanks(rows)
	return rows
}

// sortRows orders descending by total votes with the label as a stable
// tie-break so recomputation is deterministic.
func sortRows(rows []entities.ElectionResult) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalVotes == rows[j].TotalVotes {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].TotalVotes > rows[j].TotalVotes
	})
}

// assignDenseRanks gives tied totals the same rank: 1, 2, 2, 3.
func assignDenseRanks(rows []entities.ElectionResult) {
	rank := 0
	for i := range rows {
		if i == 0 || rows[i].TotalVotes != rows[i-1].TotalVotes {
			rank++
		}
		rows[i].Rank = rank
	}
}

func markWinners(rows []entities.ElectionResult, maxWinners int) {
	winners := 0
	for i := range rows {
		if winners >= maxWinners || rows[i].TotalVotes <= 0 {
			return
		}
		rows[i].IsWinner = true
		winners++
	}
}

func candidateLabel(candidate entities.Candidate) string {
	if candidate.DisplayName != "" {
		return candidate.DisplayName
	}
	return candidate.CandidateID
}

func (uc ResultsUseCase) auditCalculation(
	ctx context.Context,
	election entities.Election,
	action entities.AuditAction,
	details map[string]any,
	now time.Time,
) {
	logger := application.ResolveLogger(uc.Logger)
	entryID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		logger.Error("audit id generation failed",
			"event", "voting_results_audit_failed",
			"module", "member-governance/election-voting",
			"layer", "application",
			"election_id", election.ElectionID,
			"error", err.Error(),
		)
		return
	}
	if err := uc.Audit.Append(ctx, entities.AuditEntry{
		EntryID:     entryID,
		ElectionID:  election.ElectionID,
		Action:      action,
		Details:     details,
		PerformedBy: "system",
		CreatedAt:   now,
	}); err != nil {
		logger.Error("audit append failed",
			"event", "voting_results_audit_failed",
			"module", "member-governance/election-voting",
			"layer", "application",
			"election_id", election.ElectionID,
			"error", err.Error(),
		)
	}
}

func (uc ResultsUseCase) resolveLockTTL() time.Duration {
	if uc.LockTTL > 0 {
		return uc.LockTTL
	}
	return 30 * time.Second
}

func (uc ResultsUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
