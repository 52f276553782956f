package queries

import (
	"context"
	"time"

	"intellicash/contexts/member-governance/election-voting/domain/entities"
)

// ResultRow is one aggregate tally line ordered by rank.
type ResultRow struct {
	Label       string
	CandidateID string
	Choice      string
	TotalVotes  float64
	Percentage  float64
	IsWinner    bool
	Rank        int
	Rounds      []entities.EliminationRound
}

// VoterRecord is the per-voter breakdown exposed only where the privacy
// mode allows it.
type VoterRecord struct {
	MemberID string
	Label    string
	Weight   float64
	VotedAt  string
}

// ResultsView is what callers receive when reading election results.
// Voters is nil whenever the election's privacy mode withholds the
// breakdown from the caller.
type ResultsView struct {
	ElectionID  string
	Title       string
	Status      string
	Mechanism   string
	PrivacyMode string
	Items       []ResultRow
	Voters      []VoterRecord
}

// ElectionResults serves the stored tallies filtered by privacy mode.
// adminCaller is decided by the surrounding application; this core only
// branches on it: private and hybrid-non-admin callers get aggregates,
// public and hybrid-admin callers also get the per-voter breakdown.
func (uc ResultsUseCase) ElectionResults(ctx context.Context, electionID string, adminCaller bool) (ResultsView, error) {
	election, err := uc.Elections.GetElection(ctx, electionID)
	if err != nil {
		return ResultsView{}, err
	}
	rows, err := uc.Results.ListResults(ctx, electionID)
	if err != nil {
		return ResultsView{}, err
	}

	view := ResultsView{
		ElectionID:  election.ElectionID,
		Title:       election.Title,
		Status:      string(election.Status),
		Mechanism:   string(election.Mechanism),
		PrivacyMode: string(election.PrivacyMode),
		Items:       make([]ResultRow, 0, len(rows)),
	}
	for _, row := range rows {
		view.Items = append(view.Items, ResultRow{
			Label:       row.Label,
			CandidateID: row.CandidateID,
			Choice:      string(row.Choice),
			TotalVotes:  row.TotalVotes,
			Percentage:  row.Percentage,
			IsWinner:    row.IsWinner,
			Rank:        row.Rank,
			Rounds:      row.Rounds,
		})
	}

	if !voterBreakdownAllowed(election.PrivacyMode, adminCaller) {
		return view, nil
	}

	ballots, err := uc.Ballots.ListBallots(ctx, electionID)
	if err != nil {
		return ResultsView{}, err
	}
	candidates, err := uc.Elections.ListCandidates(ctx, electionID)
	if err != nil {
		return ResultsView{}, err
	}
	labels := make(map[string]string, len(candidates))
	for _, candidate := range candidates {
		labels[candidate.CandidateID] = candidateLabel(candidate)
	}

	view.Voters = make([]VoterRecord, 0, len(ballots))
	for _, ballot := range ballots {
		view.Voters = append(view.Voters, VoterRecord{
			MemberID: ballot.MemberID,
			Label:    ballotLabel(ballot, labels),
			Weight:   ballot.Weight,
			VotedAt:  ballot.VotedAt.UTC().Format(time.RFC3339),
		})
	}
	return view, nil
}

func voterBreakdownAllowed(mode entities.PrivacyMode, adminCaller bool) bool {
	switch mode {
	case entities.PrivacyModePublic:
		return true
	case entities.PrivacyModeHybrid:
		return adminCaller
	default:
		return false
	}
}

func ballotLabel(ballot entities.Ballot, candidateLabels map[string]string) string {
	switch {
	case ballot.IsAbstain:
		return "abstain"
	case ballot.Choice != "":
		return string(ballot.Choice)
	case ballot.CandidateID != "":
		if label, ok := candidateLabels[ballot.CandidateID]; ok {
			return label
		}
		return ballot.CandidateID
	default:
		return "ranked"
	}
}
