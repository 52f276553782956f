package ports

import (
	"context"
	"time"

	"intellicash/contexts/member-governance/election-voting/domain/entities"
)

// RequestContext carries the per-request signals the surrounding
// application extracts from the transport layer. Latitude/Longitude are
// the raw header values; absence is represented by the empty string.
type RequestContext struct {
	IPAddress         string
	UserAgent         string
	AcceptLanguage    string
	AcceptEncoding    string
	SessionID         string
	DeviceFingerprint string
	Latitude          string
	Longitude         string
}

// ElectionRepository is the election/candidate/member read model plus the
// status transitions the lifecycle worker needs.
type ElectionRepository interface {
	GetElection(ctx context.Context, electionID string) (entities.Election, error)
	ListCandidates(ctx context.Context, electionID string) ([]entities.Candidate, error)
	GetMember(ctx context.Context, memberID string) (entities.Member, error)
	ListElectionsDueForClosing(ctx context.Context, now time.Time) ([]entities.Election, error)
	TransitionElectionStatus(ctx context.Context, electionID string, to entities.ElectionStatus, at time.Time) error
}

// BallotRepository persists immutable ballots. InsertBallot must be an
// atomic conditional insert: a second ballot for the same
// (election, member) returns ErrAlreadyVoted, enforced by the storage
// layer and not only by pre-checks.
type BallotRepository interface {
	InsertBallot(ctx context.Context, ballot entities.Ballot) error
	GetBallotByMember(ctx context.Context, electionID string, memberID string) (entities.Ballot, bool, error)
	ListBallots(ctx context.Context, electionID string) ([]entities.Ballot, error)
	CountBallotsByIPSince(ctx context.Context, ip string, since time.Time) (int64, error)
}

// ResultRepository stores computed tallies. ReplaceResults deletes every
// existing row for the election and inserts the new set in one
// transaction.
type ResultRepository interface {
	ReplaceResults(ctx context.Context, electionID string, results []entities.ElectionResult) error
	ListResults(ctx context.Context, electionID string) ([]entities.ElectionResult, error)
}

// AuditSink is the append-only compliance log.
type AuditSink interface {
	Append(ctx context.Context, entry entities.AuditEntry) error
	ListByElection(ctx context.Context, electionID string) ([]entities.AuditEntry, error)
}

// RateStore is the shared key-value store backing rate counters, session
// fingerprints, device-to-IP tracking and temporary IP blocks. All keys
// carry a TTL; exactly-once counting is not required.
type RateStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// AddToSet adds member to the set at key, refreshes the TTL and
	// returns the resulting cardinality.
	AddToSet(ctx context.Context, key string, member string, ttl time.Duration) (int64, error)
}

// RecomputeLock serializes result recomputation per election.
// Acquire returns ErrRecomputeInProgress when another holder is active.
type RecomputeLock interface {
	Acquire(ctx context.Context, electionID string, ttl time.Duration) (release func(ctx context.Context) error, err error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
