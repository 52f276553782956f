package workers

import (
	"context"
	"log/slog"
	"time"

	"intellicash/contexts/member-governance/election-voting/application"
	"intellicash/contexts/member-governance/election-voting/domain/entities"
	"intellicash/contexts/member-governance/election-voting/ports"
)

// ResultCalculator is the slice of the results use case the worker needs.
type ResultCalculator interface {
	Calculate(ctx context.Context, electionID string) error
}

// ElectionCloser sweeps active elections whose voting window has ended,
// transitions them to closed, and computes their final results.
type ElectionCloser struct {
	Elections ports.ElectionRepository
	Results   ResultCalculator
	Clock     ports.Clock
	Logger    *slog.Logger
}

func (j ElectionCloser) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	now := time.Now().UTC()
	if j.Clock != nil {
		now = j.Clock.Now().UTC()
	}

	due, err := j.Elections.ListElectionsDueForClosing(ctx, now)
	if err != nil {
		logger.Error("election close sweep failed",
			"event", "election_close_sweep_failed",
			"module", "member-governance/election-voting",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	closed := 0
	for _, election := range due {
		if err := j.Elections.TransitionElectionStatus(
			ctx, election.ElectionID, entities.ElectionStatusClosed, now,
		); err != nil {
			// Another instance may have closed it between list and
			// transition; log and keep sweeping.
			logger.Warn("election close transition failed",
				"event", "election_close_transition_failed",
				"module", "member-governance/election-voting",
				"layer", "worker",
				"election_id", election.ElectionID,
				"error", err.Error(),
			)
			continue
		}
		closed++

		if j.Results == nil {
			continue
		}
		if err := j.Results.Calculate(ctx, election.ElectionID); err != nil {
			logger.Error("final result calculation failed",
				"event", "election_final_results_failed",
				"module", "member-governance/election-voting",
				"layer", "worker",
				"election_id", election.ElectionID,
				"error", err.Error(),
			)
		}
	}

	if closed > 0 {
		logger.Info("election close sweep completed",
			"event", "election_close_sweep_completed",
			"module", "member-governance/election-voting",
			"layer", "worker",
			"closed_count", closed,
		)
	}
	return nil
}
