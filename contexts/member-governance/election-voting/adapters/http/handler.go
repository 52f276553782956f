package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"intellicash/contexts/member-governance/election-voting/application/commands"
	"intellicash/contexts/member-governance/election-voting/application/queries"
	"intellicash/contexts/member-governance/election-voting/domain/entities"
	"intellicash/contexts/member-governance/election-voting/ports"
	httptransport "intellicash/contexts/member-governance/election-voting/transport/http"
)

type Handler struct {
	Votes   commands.VoteUseCase
	Results queries.ResultsUseCase
	Audit   ports.AuditSink
	Logger  *slog.Logger
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	electionID string,
	memberID string,
	reqCtx ports.RequestContext,
	req httptransport.CastVoteRequest,
) (httptransport.CastVoteResponse, error) {
	result, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		ElectionID: electionID,
		MemberID:   memberID,
		Ballot: entities.BallotInput{
			CandidateID: req.CandidateID,
			Choice:      req.Choice,
			IsAbstain:   req.IsAbstain,
			Rankings:    req.Rankings,
		},
		Request: reqCtx,
	})
	if err != nil {
		return httptransport.CastVoteResponse{}, err
	}
	resp := httptransport.CastVoteResponse{
		Accepted:     result.Accepted,
		FailingStage: result.FailingStage,
		Details:      result.Details,
	}
	if result.Accepted {
		resp.BallotID = result.Ballot.BallotID
		resp.Weight = result.Ballot.Weight
		resp.VotedAt = result.Ballot.VotedAt.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

func (h Handler) VerifyVoteHandler(
	ctx context.Context,
	electionID string,
	memberID string,
	reqCtx ports.RequestContext,
) (httptransport.VerifyVoteResponse, error) {
	ballot, found, err := h.Votes.VerifyVote(ctx, electionID, memberID, reqCtx)
	if err != nil {
		return httptransport.VerifyVoteResponse{}, err
	}
	resp := httptransport.VerifyVoteResponse{Found: found}
	if found {
		resp.BallotID = ballot.BallotID
		resp.VotedAt = ballot.VotedAt.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

func (h Handler) ResultsHandler(
	ctx context.Context,
	electionID string,
	adminCaller bool,
) (httptransport.ResultsResponse, error) {
	view, err := h.Results.ElectionResults(ctx, electionID, adminCaller)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	resp := httptransport.ResultsResponse{
		ElectionID:  view.ElectionID,
		Title:       view.Title,
		Status:      view.Status,
		Mechanism:   view.Mechanism,
		PrivacyMode: view.PrivacyMode,
		Items:       make([]httptransport.ResultItem, 0, len(view.Items)),
	}
	for _, item := range view.Items {
		resp.Items = append(resp.Items, httptransport.ResultItem{
			Label:       item.Label,
			CandidateID: item.CandidateID,
			Choice:      item.Choice,
			TotalVotes:  item.TotalVotes,
			Percentage:  item.Percentage,
			IsWinner:    item.IsWinner,
			Rank:        item.Rank,
			Rounds:      mapRounds(item.Rounds),
		})
	}
	for _, voter := range view.Voters {
		resp.Voters = append(resp.Voters, httptransport.VoterItem{
			MemberID: voter.MemberID,
			Label:    voter.Label,
			Weight:   voter.Weight,
			VotedAt:  voter.VotedAt,
		})
	}
	return resp, nil
}

func (h Handler) RecomputeResultsHandler(ctx context.Context, electionID string) error {
	return h.Results.Calculate(ctx, electionID)
}

func (h Handler) AuditTrailHandler(ctx context.Context, electionID string) (httptransport.AuditTrailResponse, error) {
	entries, err := h.Audit.ListByElection(ctx, electionID)
	if err != nil {
		return httptransport.AuditTrailResponse{}, err
	}
	resp := httptransport.AuditTrailResponse{
		Items: make([]httptransport.AuditEntryItem, 0, len(entries)),
	}
	for _, entry := range entries {
		resp.Items = append(resp.Items, httptransport.AuditEntryItem{
			EntryID:     entry.EntryID,
			ElectionID:  entry.ElectionID,
			MemberID:    entry.MemberID,
			Action:      string(entry.Action),
			Details:     entry.Details,
			IPAddress:   entry.IPAddress,
			PerformedBy: entry.PerformedBy,
			CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp, nil
}

func mapRounds(rounds []entities.EliminationRound) []httptransport.EliminationRound {
	if len(rounds) == 0 {
		return nil
	}
	items := make([]httptransport.EliminationRound, 0, len(rounds))
	for _, round := range rounds {
		items = append(items, httptransport.EliminationRound{
			Round:      round.Round,
			Tallies:    round.Tallies,
			Winners:    round.Winners,
			Eliminated: round.Eliminated,
			Exhausted:  round.Exhausted,
		})
	}
	return items
}
