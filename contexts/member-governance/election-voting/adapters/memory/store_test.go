package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"intellicash/contexts/member-governance/election-voting/domain/entities"
	domainerrors "intellicash/contexts/member-governance/election-voting/domain/errors"
)

func TestInsertBallotEnforcesUniqueness(t *testing.T) {
	store := NewStore()
	ballot := entities.Ballot{
		BallotID:   "ballot-1",
		ElectionID: "election-1",
		MemberID:   "member-1",
		Weight:     1,
		VotedAt:    time.Now().UTC(),
	}
	if err := store.InsertBallot(context.Background(), ballot); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	ballot.BallotID = "ballot-2"
	if err := store.InsertBallot(context.Background(), ballot); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("second insert err = %v, want ErrAlreadyVoted", err)
	}

	// A different member of the same election is unaffected.
	ballot.BallotID = "ballot-3"
	ballot.MemberID = "member-2"
	if err := store.InsertBallot(context.Background(), ballot); err != nil {
		t.Fatalf("other member insert: %v", err)
	}
}

func TestCounterExpiry(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.NowFunc = func() time.Time { return now }

	for i := int64(1); i <= 3; i++ {
		count, err := store.Increment(context.Background(), "attempts", time.Minute)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if count != i {
			t.Fatalf("count = %d, want %d", count, i)
		}
	}

	now = now.Add(2 * time.Minute)
	count, err := store.Increment(context.Background(), "attempts", time.Minute)
	if err != nil {
		t.Fatalf("Increment after expiry: %v", err)
	}
	if count != 1 {
		t.Fatalf("expired counter restarted at %d, want 1", count)
	}
}

func TestValueExpiry(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.NowFunc = func() time.Time { return now }

	stored, err := store.SetIfAbsent(context.Background(), "key", "first", time.Minute)
	if err != nil || !stored {
		t.Fatalf("SetIfAbsent: stored=%v err=%v", stored, err)
	}
	stored, err = store.SetIfAbsent(context.Background(), "key", "second", time.Minute)
	if err != nil || stored {
		t.Fatalf("live key must not be replaced: stored=%v err=%v", stored, err)
	}

	now = now.Add(2 * time.Minute)
	if _, found, err := store.Get(context.Background(), "key"); err != nil || found {
		t.Fatalf("expired key still visible: found=%v err=%v", found, err)
	}
	stored, err = store.SetIfAbsent(context.Background(), "key", "second", time.Minute)
	if err != nil || !stored {
		t.Fatalf("expired key must be replaceable: stored=%v err=%v", stored, err)
	}
}

func TestRecomputeLock(t *testing.T) {
	store := NewStore()
	release, err := store.Acquire(context.Background(), "election-1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := store.Acquire(context.Background(), "election-1", time.Second); !errors.Is(err, domainerrors.ErrRecomputeInProgress) {
		t.Fatalf("second Acquire err = %v, want ErrRecomputeInProgress", err)
	}
	// A different election is locked independently.
	other, err := store.Acquire(context.Background(), "election-2", time.Second)
	if err != nil {
		t.Fatalf("Acquire other election: %v", err)
	}
	if err := other(context.Background()); err != nil {
		t.Fatalf("release other: %v", err)
	}

	if err := release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	release, err = store.Acquire(context.Background(), "election-1", time.Second)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if err := release(context.Background()); err != nil {
		t.Fatalf("final release: %v", err)
	}
}
