package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CastVoteRequest struct {
	CandidateID string         `json:"candidate_id,omitempty"`
	Choice      string         `json:"choice,omitempty"`
	IsAbstain   bool           `json:"is_abstain,omitempty"`
	Rankings    map[string]int `json:"rankings,omitempty"`
}

type CastVoteResponse struct {
	Accepted     bool           `json:"accepted"`
	FailingStage string         `json:"failing_stage,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	BallotID     string         `json:"ballot_id,omitempty"`
	Weight       float64        `json:"weight,omitempty"`
	VotedAt      string         `json:"voted_at,omitempty"`
}

type VerifyVoteResponse struct {
	Found    bool   `json:"found"`
	BallotID string `json:"ballot_id,omitempty"`
	VotedAt  string `json:"voted_at,omitempty"`
}

type ResultItem struct {
	Label       string             `json:"label"`
	CandidateID string             `json:"candidate_id,omitempty"`
	Choice      string             `json:"choice,omitempty"`
	TotalVotes  float64            `json:"total_votes"`
	Percentage  float64            `json:"percentage"`
	IsWinner    bool               `json:"is_winner"`
	Rank        int                `json:"rank"`
	Rounds      []EliminationRound `json:"rounds,omitempty"`
}

type EliminationRound struct {
	Round      int            `json:"round"`
	Tallies    map[string]int `json:"tallies"`
	Winners    []string       `json:"winners,omitempty"`
	Eliminated []string       `json:"eliminated,omitempty"`
	Exhausted  int            `json:"exhausted"`
}

type VoterItem struct {
	MemberID string  `json:"member_id"`
	Label    string  `json:"label"`
	Weight   float64 `json:"weight"`
	VotedAt  string  `json:"voted_at"`
}

type ResultsResponse struct {
	ElectionID  string       `json:"election_id"`
	Title       string       `json:"title"`
	Status      string       `json:"status"`
	Mechanism   string       `json:"mechanism"`
	PrivacyMode string       `json:"privacy_mode"`
	Items       []ResultItem `json:"items"`
	Voters      []VoterItem  `json:"voters,omitempty"`
}

type AuditEntryItem struct {
	EntryID     string         `json:"entry_id"`
	ElectionID  string         `json:"election_id"`
	MemberID    string         `json:"member_id,omitempty"`
	Action      string         `json:"action"`
	Details     map[string]any `json:"details,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	PerformedBy string         `json:"performed_by,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

type AuditTrailResponse struct {
	Items []AuditEntryItem `json:"items"`
}
