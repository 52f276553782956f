package security

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"intellicash/contexts/member-governance/election-voting/application"
	"intellicash/contexts/member-governance/election-voting/domain/entities"
	"intellicash/contexts/member-governance/election-voting/ports"
)

// Check names, stable across audit entries and caller-facing reports.
const (
	CheckRateLimit         = "rate_limit"
	CheckIPReputation      = "ip_reputation"
	CheckSessionIntegrity  = "session_integrity"
	CheckDeviceFingerprint = "device_fingerprint"
	CheckVotingWindow      = "voting_window"
	CheckMemberEligibility = "member_eligibility"
	CheckDuplicateVote     = "duplicate_vote"
	CheckGeolocation       = "geolocation"
)

// Config holds the anti-abuse thresholds. Zero values fall back to the
// defaults the cooperative product has always shipped with.
type Config struct {
	MaxAttempts           int           // per-member and per-IP attempts per window
	AttemptWindow         time.Duration // rate-limit cooldown window
	RecentVoteGrace       time.Duration // suppress rate-limit failures this long after a recorded ballot
	IPReputationThreshold int           // ballots per IP across all elections before blocking
	IPReputationWindow    time.Duration
	IPBlockTTL            time.Duration
	SessionWindow         time.Duration
	FingerprintMaxIPs     int
	FingerprintWindow     time.Duration

	// EnforceVoterRoleRestriction gates voting on the linked position's
	// required role. The schema supports it but policy keeps it off:
	// role requirements restrict candidacy, not the right to vote.
	EnforceVoterRoleRestriction bool
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = 2 * time.Minute
	}
	if c.RecentVoteGrace <= 0 {
		c.RecentVoteGrace = 10 * time.Minute
	}
	if c.IPReputationThreshold <= 0 {
		c.IPReputationThreshold = 20
	}
	if c.IPReputationWindow <= 0 {
		c.IPReputationWindow = 24 * time.Hour
	}
	if c.IPBlockTTL <= 0 {
		c.IPBlockTTL = 24 * time.Hour
	}
	if c.SessionWindow <= 0 {
		c.SessionWindow = 2 * time.Hour
	}
	if c.FingerprintMaxIPs <= 0 {
		c.FingerprintMaxIPs = 5
	}
	if c.FingerprintWindow <= 0 {
		c.FingerprintWindow = 24 * time.Hour
	}
	return c
}

// CheckResult is the outcome of one independent security check.
type CheckResult struct {
	Passed   bool           `json:"passed"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Report aggregates all checks for one evaluation. Allowed is true only
// when every check passed.
type Report struct {
	Allowed bool
	Checks  map[string]CheckResult
	Score   int
}

// Gate runs the eight independent anti-abuse checks ahead of any policy
// validation. A RateStore failure on a security-critical check fails
// closed: the check is reported as failed rather than skipped.
type Gate struct {
	Ballots ports.BallotRepository
	Store   ports.RateStore
	Audit   ports.AuditSink
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Config  Config
	Logger  *slog.Logger
}

func (g Gate) Evaluate(
	ctx context.Context,
	req ports.RequestContext,
	election entities.Election,
	member entities.Member,
) (Report, error) {
	logger := application.ResolveLogger(g.Logger)
	cfg := g.Config.withDefaults()
	now := g.now()

	checks := map[string]CheckResult{
		CheckRateLimit:         g.checkRateLimit(ctx, cfg, election, member, req, now),
		CheckIPReputation:      g.checkIPReputation(ctx, cfg, req, now),
		CheckSessionIntegrity:  g.checkSessionIntegrity(ctx, cfg, req),
		CheckDeviceFingerprint: g.checkDeviceFingerprint(ctx, cfg, req),
		CheckVotingWindow:      checkVotingWindow(election, now),
		CheckMemberEligibility: checkMemberEligibility(cfg, election, member),
		CheckDuplicateVote:     g.checkDuplicateVote(ctx, election, member),
		CheckGeolocation:       checkGeolocation(req),
	}

	report := Report{Allowed: true, Checks: checks}
	passed := 0
	for _, result := range checks {
		if result.Passed {
			passed++
			continue
		}
		report.Allowed = false
	}
	report.Score = int(float64(passed)/float64(len(checks))*100 + 0.5)

	entryID, err := g.IDGen.NewID(ctx)
	if err != nil {
		return Report{}, err
	}
	if err := g.Audit.Append(ctx, entities.AuditEntry{
		EntryID:     entryID,
		ElectionID:  election.ElectionID,
		MemberID:    member.MemberID,
		Action:      entities.ActionSecurityValidation,
		Details:     auditDetails(checks, report.Allowed, report.Score),
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		PerformedBy: member.MemberID,
		CreatedAt:   now,
	}); err != nil {
		return Report{}, err
	}

	if !report.Allowed {
		logger.Warn("security gate rejected vote attempt",
			"event", "voting_security_gate_rejected",
			"module", "member-governance/election-voting",
			"layer", "application",
			"election_id", election.ElectionID,
			"member_id", member.MemberID,
			"score", report.Score,
			"failed_checks", failedNames(checks),
		)
	}
	return report, nil
}

func (g Gate) checkRateLimit(
	ctx context.Context,
	cfg Config,
	election entities.Election,
	member entities.Member,
	req ports.RequestContext,
	now time.Time,
) CheckResult {
	memberCount, err := g.Store.Increment(ctx, "vote_attempts:member:"+member.MemberID, cfg.AttemptWindow)
	if err != nil {
		return failClosed("rate counter unavailable")
	}
	ipCount := int64(0)
	if req.IPAddress != "" {
		ipCount, err = g.Store.Increment(ctx, "vote_attempts:ip:"+req.IPAddress, cfg.AttemptWindow)
		if err != nil {
			return failClosed("rate counter unavailable")
		}
	}

	if memberCount <= int64(cfg.MaxAttempts) && ipCount <= int64(cfg.MaxAttempts) {
		return CheckResult{Passed: true, Message: "within rate limits", Metadata: map[string]any{
			"member_attempts": memberCount,
			"ip_attempts":     ipCount,
		}}
	}

	// A member whose ballot is already recorded may still be retried by
	// the UI; treat the limit as already resolved within the grace window.
	if ballot, found, err := g.Ballots.GetBallotByMember(ctx, election.ElectionID, member.MemberID); err == nil && found {
		if now.Sub(ballot.VotedAt) <= cfg.RecentVoteGrace {
			return CheckResult{Passed: true, Message: "rate limit suppressed, ballot already recorded", Metadata: map[string]any{
				"ballot_recorded_at": ballot.VotedAt,
			}}
		}
	}
	return CheckResult{Passed: false, Message: "too many voting attempts, retry later", Metadata: map[string]any{
		"member_attempts": memberCount,
		"ip_attempts":     ipCount,
		"max_attempts":    cfg.MaxAttempts,
	}}
}

func (g Gate) checkIPReputation(ctx context.Context, cfg Config, req ports.RequestContext, now time.Time) CheckResult {
	if req.IPAddress == "" {
		return CheckResult{Passed: false, Message: "request carries no source address"}
	}
	blockKey := "ip_block:" + req.IPAddress
	if _, blocked, err := g.Store.Get(ctx, blockKey); err != nil {
		return failClosed("reputation store unavailable")
	} else if blocked {
		return CheckResult{Passed: false, Message: "address is temporarily blocked"}
	}

	count, err := g.Ballots.CountBallotsByIPSince(ctx, req.IPAddress, now.Add(-cfg.IPReputationWindow))
	if err != nil {
		return failClosed("ballot history unavailable")
	}
	if count >= int64(cfg.IPReputationThreshold) {
		if err := g.Store.Set(ctx, blockKey, "abuse", cfg.IPBlockTTL); err != nil {
			return failClosed("reputation store unavailable")
		}
		return CheckResult{Passed: false, Message: "address exceeded ballot volume threshold", Metadata: map[string]any{
			"ballots_in_window": count,
			"threshold":         cfg.IPReputationThreshold,
		}}
	}
	return CheckResult{Passed: true, Message: "address reputation acceptable", Metadata: map[string]any{
		"ballots_in_window": count,
	}}
}

func (g Gate) checkSessionIntegrity(ctx context.Context, cfg Config, req ports.RequestContext) CheckResult {
	if req.SessionID == "" {
		return CheckResult{Passed: true, Message: "no session to bind"}
	}
	fingerprint := SessionFingerprint(req)
	key := "session_fp:" + req.SessionID
	stored, err := g.Store.SetIfAbsent(ctx, key, fingerprint, cfg.SessionWindow)
	if err != nil {
		return failClosed("session store unavailable")
	}
	if stored {
		return CheckResult{Passed: true, Message: "session fingerprint recorded"}
	}
	previous, found, err := g.Store.Get(ctx, key)
	if err != nil {
		return failClosed("session store unavailable")
	}
	if found && previous != fingerprint {
		return CheckResult{Passed: false, Message: "session fingerprint mismatch, possible hijack"}
	}
	return CheckResult{Passed: true, Message: "session fingerprint verified"}
}

func (g Gate) checkDeviceFingerprint(ctx context.Context, cfg Config, req ports.RequestContext) CheckResult {
	fingerprint, generated := ResolveDeviceFingerprint(req)
	if isAdversarialFingerprint(fingerprint) {
		return CheckResult{Passed: false, Message: "fingerprint rejected as adversarial"}
	}
	if req.IPAddress != "" {
		distinct, err := g.Store.AddToSet(ctx, "device_ips:"+fingerprint, req.IPAddress, cfg.FingerprintWindow)
		if err != nil {
			return failClosed("fingerprint store unavailable")
		}
		if distinct > int64(cfg.FingerprintMaxIPs) {
			return CheckResult{Passed: false, Message: "device seen from too many addresses", Metadata: map[string]any{
				"distinct_ips": distinct,
				"max_ips":      cfg.FingerprintMaxIPs,
			}}
		}
	}
	return CheckResult{Passed: true, Message: "device fingerprint accepted", Metadata: map[string]any{
		"generated": generated,
	}}
}

func checkVotingWindow(election entities.Election, now time.Time) CheckResult {
	if now.Before(election.StartDate) {
		return CheckResult{Passed: false, Message: "voting has not started"}
	}
	if now.After(election.EndDate) {
		return CheckResult{Passed: false, Message: "voting has ended"}
	}
	return CheckResult{Passed: true, Message: "within voting window"}
}

func checkMemberEligibility(cfg Config, election entities.Election, member entities.Member) CheckResult {
	if !member.IsActive() {
		return CheckResult{Passed: false, Message: "member is not active"}
	}
	if member.TenantID != election.TenantID {
		return CheckResult{Passed: false, Message: "member belongs to a different tenant"}
	}
	if cfg.EnforceVoterRoleRestriction && election.Position != nil && election.Position.RequiredRole != "" {
		if !member.HasRole(election.Position.RequiredRole) {
			return CheckResult{Passed: false, Message: "member lacks the required role for this position"}
		}
	}
	return CheckResult{Passed: true, Message: "member eligible"}
}

func (g Gate) checkDuplicateVote(ctx context.Context, election entities.Election, member entities.Member) CheckResult {
	_, found, err := g.Ballots.GetBallotByMember(ctx, election.ElectionID, member.MemberID)
	if err != nil {
		return failClosed("ballot lookup unavailable")
	}
	if found {
		return CheckResult{Passed: false, Message: "member has already voted in this election"}
	}
	return CheckResult{Passed: true, Message: "no prior ballot"}
}

func checkGeolocation(req ports.RequestContext) CheckResult {
	if req.Latitude == "" && req.Longitude == "" {
		return CheckResult{Passed: true, Message: "no geolocation supplied"}
	}
	lat, latErr := strconv.ParseFloat(req.Latitude, 64)
	lon, lonErr := strconv.ParseFloat(req.Longitude, 64)
	if latErr != nil || lonErr != nil {
		return CheckResult{Passed: false, Message: "geolocation headers are not numeric"}
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return CheckResult{Passed: false, Message: "geolocation out of range"}
	}
	return CheckResult{Passed: true, Message: "geolocation plausible", Metadata: map[string]any{
		"latitude":  lat,
		"longitude": lon,
	}}
}

func failClosed(message string) CheckResult {
	return CheckResult{Passed: false, Message: message, Metadata: map[string]any{
		"fail_closed": true,
	}}
}

func auditDetails(checks map[string]CheckResult, allowed bool, score int) map[string]any {
	details := map[string]any{
		"allowed": allowed,
		"score":   score,
	}
	for name, result := range checks {
		details[name] = map[string]any{
			"passed":  result.Passed,
			"message": result.Message,
		}
	}
	return details
}

func failedNames(checks map[string]CheckResult) []string {
	var names []string
	for name, result := range checks {
		if !result.Passed {
			names = append(names, name)
		}
	}
	return names
}

func (g Gate) now() time.Time {
	if g.Clock != nil {
		return g.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
