package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"intellicash/contexts/member-governance/election-voting/domain/entities"
	domainerrors "intellicash/contexts/member-governance/election-voting/domain/errors"
	"intellicash/contexts/member-governance/election-voting/ports"

	"github.com/google/uuid"
)

type counterRecord struct {
	value     int64
	expiresAt time.Time
}

type valueRecord struct {
	value     string
	expiresAt time.Time
}

type setRecord struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// Store is the in-memory backing used by NewInMemoryModule and the test
// suites. It implements every port of the context, including the
// rate-limit store and the recompute lock that the deployed module
// backs with Redis.
type Store struct {
	mu sync.RWMutex

	elections  map[string]entities.Election
	candidates map[string][]entities.Candidate
	members    map[string]entities.Member
	ballots    map[string]entities.Ballot
	results    map[string][]entities.ElectionResult
	audit      map[string][]entities.AuditEntry

	counters map[string]counterRecord
	values   map[string]valueRecord
	sets     map[string]setRecord
	locks    map[string]struct{}

	// rateErr, when set, makes every rate-store operation fail. Used to
	// exercise the fail-closed paths of the security gate.
	rateErr error

	// NowFunc overrides the wall clock for TTL expiry and Clock.
	NowFunc func() time.Time
}

func NewStore() *Store {
	return &Store{
		elections:  make(map[string]entities.Election),
		candidates: make(map[string][]entities.Candidate),
		members:    make(map[string]entities.Member),
		ballots:    make(map[string]entities.Ballot),
		results:    make(map[string][]entities.ElectionResult),
		audit:      make(map[string][]entities.AuditEntry),
		counters:   make(map[string]counterRecord),
		values:     make(map[string]valueRecord),
		sets:       make(map[string]setRecord),
		locks:      make(map[string]struct{}),
	}
}

func (s *Store) SetElection(election entities.Election) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elections[strings.TrimSpace(election.ElectionID)] = election
}

func (s *Store) SetCandidate(candidate entities.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	electionID := strings.TrimSpace(candidate.ElectionID)
	for i, existing := range s.candidates[electionID] {
		if existing.CandidateID == candidate.CandidateID {
			s.candidates[electionID][i] = candidate
			return
		}
	}
	s.candidates[electionID] = append(s.candidates[electionID], candidate)
}

func (s *Store) SetMember(member entities.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[strings.TrimSpace(member.MemberID)] = member
}

// FailRateStore injects err into every subsequent rate-store call.
// Pass nil to clear.
func (s *Store) FailRateStore(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateErr = err
}

func (s *Store) GetElection(_ context.Context, electionID string) (entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	election, ok := s.elections[strings.TrimSpace(electionID)]
	if !ok {
		return entities.Election{}, domainerrors.ErrElectionNotFound
	}
	return election, nil
}

func (s *Store) ListCandidates(_ context.Context, electionID string) ([]entities.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := append([]entities.Candidate(nil), s.candidates[strings.TrimSpace(electionID)]...)
	sort.Slice(items, func(i, j int) bool {
		return items[i].CandidateID < items[j].CandidateID
	})
	return items, nil
}

func (s *Store) GetMember(_ context.Context, memberID string) (entities.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, ok := s.members[strings.TrimSpace(memberID)]
	if !ok {
		return entities.Member{}, domainerrors.ErrMemberNotFound
	}
	return member, nil
}

func (s *Store) ListElectionsDueForClosing(_ context.Context, now time.Time) ([]entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Election, 0)
	for _, election := range s.elections {
		if election.Status != entities.ElectionStatusActive {
			continue
		}
		if election.EndDate.After(now.UTC()) {
			continue
		}
		items = append(items, election)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].EndDate.Before(items[j].EndDate)
	})
	return items, nil
}

func (s *Store) TransitionElectionStatus(
	_ context.Context,
	electionID string,
	to entities.ElectionStatus,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	election, ok := s.elections[strings.TrimSpace(electionID)]
	if !ok {
		return domainerrors.ErrElectionNotFound
	}
	if election.Status == to {
		return nil
	}
	election.Status = to
	election.UpdatedAt = at.UTC()
	s.elections[election.ElectionID] = election
	return nil
}

func ballotKey(electionID, memberID string) string {
	return strings.TrimSpace(electionID) + "|" + strings.TrimSpace(memberID)
}

func (s *Store) InsertBallot(_ context.Context, ballot entities.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ballotKey(ballot.ElectionID, ballot.MemberID)
	if _, exists := s.ballots[key]; exists {
		return domainerrors.ErrAlreadyVoted
	}
	s.ballots[key] = ballot
	return nil
}

func (s *Store) GetBallotByMember(
	_ context.Context,
	electionID string,
	memberID string,
) (entities.Ballot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ballot, ok := s.ballots[ballotKey(electionID, memberID)]
	if !ok {
		return entities.Ballot{}, false, nil
	}
	return ballot, true, nil
}

func (s *Store) ListBallots(_ context.Context, electionID string) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	electionID = strings.TrimSpace(electionID)
	items := make([]entities.Ballot, 0)
	for _, ballot := range s.ballots {
		if ballot.ElectionID == electionID {
			items = append(items, ballot)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].VotedAt.Before(items[j].VotedAt)
	})
	return items, nil
}

func (s *Store) CountBallotsByIPSince(_ context.Context, ip string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ip = strings.TrimSpace(ip)
	var count int64
	for _, ballot := range s.ballots {
		if ballot.IPAddress == ip && !ballot.VotedAt.Before(since.UTC()) {
			count++
		}
	}
	return count, nil
}

func (s *Store) ReplaceResults(
	_ context.Context,
	electionID string,
	results []entities.ElectionResult,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[strings.TrimSpace(electionID)] = append([]entities.ElectionResult(nil), results...)
	return nil
}

func (s *Store) ListResults(_ context.Context, electionID string) ([]entities.ElectionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.ElectionResult(nil), s.results[strings.TrimSpace(electionID)]...), nil
}

func (s *Store) Append(_ context.Context, entry entities.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	electionID := strings.TrimSpace(entry.ElectionID)
	s.audit[electionID] = append(s.audit[electionID], entry)
	return nil
}

func (s *Store) ListByElection(_ context.Context, electionID string) ([]entities.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.AuditEntry(nil), s.audit[strings.TrimSpace(electionID)]...), nil
}

func (s *Store) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateErr != nil {
		return 0, s.rateErr
	}
	now := s.now()
	record, ok := s.counters[key]
	if !ok || !record.expiresAt.After(now) {
		record = counterRecord{expiresAt: now.Add(ttl)}
	}
	record.value++
	s.counters[key] = record
	return record.value, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateErr != nil {
		return "", false, s.rateErr
	}
	record, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	if !record.expiresAt.After(s.now()) {
		delete(s.values, key)
		return "", false, nil
	}
	return record.value, true, nil
}

func (s *Store) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateErr != nil {
		return s.rateErr
	}
	s.values[key] = valueRecord{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) SetIfAbsent(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateErr != nil {
		return false, s.rateErr
	}
	record, ok := s.values[key]
	if ok && record.expiresAt.After(s.now()) {
		return false, nil
	}
	s.values[key] = valueRecord{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *Store) AddToSet(_ context.Context, key string, member string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateErr != nil {
		return 0, s.rateErr
	}
	now := s.now()
	record, ok := s.sets[key]
	if !ok || !record.expiresAt.After(now) {
		record = setRecord{members: make(map[string]struct{})}
	}
	record.members[member] = struct{}{}
	record.expiresAt = now.Add(ttl)
	s.sets[key] = record
	return int64(len(record.members)), nil
}

func (s *Store) Acquire(
	_ context.Context,
	electionID string,
	_ time.Duration,
) (func(ctx context.Context) error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(electionID)
	if _, held := s.locks[key]; held {
		return nil, domainerrors.ErrRecomputeInProgress
	}
	s.locks[key] = struct{}{}
	release := func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.locks, key)
		return nil
	}
	return release, nil
}

func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}

var (
	_ ports.ElectionRepository = (*Store)(nil)
	_ ports.BallotRepository   = (*Store)(nil)
	_ ports.ResultRepository   = (*Store)(nil)
	_ ports.AuditSink          = (*Store)(nil)
	_ ports.RateStore          = (*Store)(nil)
	_ ports.RecomputeLock      = (*Store)(nil)
	_ ports.Clock              = (*Store)(nil)
	_ ports.IDGenerator        = (*Store)(nil)
)
