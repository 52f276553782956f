package workers

import (
	"context"
	"testing"
	"time"

	"intellicash/contexts/member-governance/election-voting/adapters/memory"
	"intellicash/contexts/member-governance/election-voting/application/queries"
	"intellicash/contexts/member-governance/election-voting/domain/entities"
)

var closerNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newCloserFixture() (ElectionCloser, *memory.Store) {
	store := memory.NewStore()
	store.NowFunc = func() time.Time { return closerNow }

	closer := ElectionCloser{
		Elections: store,
		Results: queries.ResultsUseCase{
			Elections: store,
			Ballots:   store,
			Results:   store,
			Audit:     store,
			Lock:      store,
			Clock:     store,
			IDGen:     store,
		},
		Clock: store,
	}
	return closer, store
}

func seedElection(store *memory.Store, id string, status entities.ElectionStatus, endDate time.Time) {
	store.SetElection(entities.Election{
		ElectionID: id,
		TenantID:   "tenant-1",
		Title:      "Board Chair " + id,
		Type:       entities.ElectionTypeSingleCandidate,
		Mechanism:  entities.MechanismMajority,
		Status:     status,
		StartDate:  endDate.Add(-48 * time.Hour),
		EndDate:    endDate,
	})
	store.SetCandidate(entities.Candidate{
		CandidateID: "candidate-" + id,
		ElectionID:  id,
		DisplayName: "Amina",
		IsActive:    true,
	})
}

func TestRunOnceClosesDueElections(t *testing.T) {
	closer, store := newCloserFixture()
	seedElection(store, "due-1", entities.ElectionStatusActive, closerNow.Add(-time.Hour))
	seedElection(store, "due-2", entities.ElectionStatusActive, closerNow.Add(-time.Minute))

	if err := closer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	for _, id := range []string{"due-1", "due-2"} {
		election, err := store.GetElection(context.Background(), id)
		if err != nil {
			t.Fatalf("GetElection %s: %v", id, err)
		}
		if election.Status != entities.ElectionStatusClosed {
			t.Fatalf("%s status = %q, want closed", id, election.Status)
		}
		rows, err := store.ListResults(context.Background(), id)
		if err != nil {
			t.Fatalf("ListResults %s: %v", id, err)
		}
		if len(rows) == 0 {
			t.Fatalf("%s has no final results", id)
		}
	}
}

func TestRunOnceLeavesOpenElectionsUntouched(t *testing.T) {
	closer, store := newCloserFixture()
	seedElection(store, "open-1", entities.ElectionStatusActive, closerNow.Add(time.Hour))
	seedElection(store, "draft-1", entities.ElectionStatusDraft, closerNow.Add(-time.Hour))

	if err := closer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	open, err := store.GetElection(context.Background(), "open-1")
	if err != nil {
		t.Fatalf("GetElection: %v", err)
	}
	if open.Status != entities.ElectionStatusActive {
		t.Fatalf("open election status = %q", open.Status)
	}
	draft, err := store.GetElection(context.Background(), "draft-1")
	if err != nil {
		t.Fatalf("GetElection: %v", err)
	}
	if draft.Status != entities.ElectionStatusDraft {
		t.Fatalf("draft election status = %q", draft.Status)
	}
	if rows, _ := store.ListResults(context.Background(), "open-1"); len(rows) != 0 {
		t.Fatalf("open election gained results: %+v", rows)
	}
}

func TestRunOnceWithoutCalculatorStillCloses(t *testing.T) {
	closer, store := newCloserFixture()
	closer.Results = nil
	seedElection(store, "due-1", entities.ElectionStatusActive, closerNow.Add(-time.Hour))

	if err := closer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	election, err := store.GetElection(context.Background(), "due-1")
	if err != nil {
		t.Fatalf("GetElection: %v", err)
	}
	if election.Status != entities.ElectionStatusClosed {
		t.Fatalf("status = %q, want closed", election.Status)
	}
	if rows, _ := store.ListResults(context.Background(), "due-1"); len(rows) != 0 {
		t.Fatalf("unexpected results without a calculator: %+v", rows)
	}
}
