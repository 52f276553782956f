package entities

import "time"

// AuditAction enumerates the compliance events this core records.
type AuditAction string

const (
	ActionSecurityValidation       AuditAction = "SECURITY_VALIDATION"
	ActionPolicyEnforcement        AuditAction = "POLICY_ENFORCEMENT"
	ActionResultsCalculated        AuditAction = "RESULTS_CALCULATED"
	ActionResultsCalculationFailed AuditAction = "RESULTS_CALCULATION_FAILED"
	ActionVoteCreated              AuditAction = "VOTE_CREATED"
	ActionVoteVerified             AuditAction = "VOTE_VERIFIED"
)

// AuditEntry is an append-only compliance record. Entries are never
// updated or deleted.
type AuditEntry struct {
	EntryID     string
	ElectionID  string
	MemberID    string
	Action      AuditAction
	Details     map[string]any
	IPAddress   string
	UserAgent   string
	PerformedBy string
	CreatedAt   time.Time
}
