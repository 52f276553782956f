package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"intellicash/contexts/member-governance/election-voting/domain/entities"
	domainerrors "intellicash/contexts/member-governance/election-voting/domain/errors"
	"intellicash/contexts/member-governance/election-voting/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the schema owned by this context.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&positionModel{},
		&electionModel{},
		&candidateModel{},
		&memberModel{},
		&ballotModel{},
		&resultModel{},
		&auditModel{},
	)
}

func (r *Repository) GetElection(ctx context.Context, electionID string) (entities.Election, error) {
	var row electionModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(electionID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Election{}, domainerrors.ErrElectionNotFound
		}
		return entities.Election{}, r.logError("election_repo_get_election_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}

	election := row.toEntity()
	if row.PositionID != nil {
		var position positionModel
		err := r.db.WithContext(ctx).
			Where("id = ?", *row.PositionID).
			First(&position).
			Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Election{}, r.logError("election_repo_get_position_failed", err,
				"election_id", strings.TrimSpace(electionID),
				"position_id", *row.PositionID,
			)
		}
		if err == nil {
			election.Position = &entities.Position{
				PositionID:   position.ID,
				Name:         position.Name,
				RequiredRole: position.RequiredRole,
				MaxWinners:   position.MaxWinners,
			}
		}
	}
	return election, nil
}

func (r *Repository) ListCandidates(ctx context.Context, electionID string) ([]entities.Candidate, error) {
	var rows []candidateModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_candidates_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	items := make([]entities.Candidate, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetMember(ctx context.Context, memberID string) (entities.Member, error) {
	var row memberModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(memberID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Member{}, domainerrors.ErrMemberNotFound
		}
		return entities.Member{}, r.logError("election_repo_get_member_failed", err,
			"member_id", strings.TrimSpace(memberID),
		)
	}
	return row.toEntity()
}

func (r *Repository) ListElectionsDueForClosing(ctx context.Context, now time.Time) ([]entities.Election, error) {
	var rows []electionModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.ElectionStatusActive)).
		Where("end_date <= ?", now.UTC()).
		Order("end_date ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_due_for_closing_failed", err)
	}
	items := make([]entities.Election, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) TransitionElectionStatus(
	ctx context.Context,
	electionID string,
	to entities.ElectionStatus,
	at time.Time,
) error {
	result := r.db.WithContext(ctx).
		Model(&electionModel{}).
		Where("id = ?", strings.TrimSpace(electionID)).
		Where("status <> ?", string(to)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return r.logError("election_repo_transition_status_failed", result.Error,
			"election_id", strings.TrimSpace(electionID),
			"to_status", string(to),
		)
	}
	if result.RowsAffected == 0 {
		// Already in the target status, or unknown id. The sweep treats
		// both as settled.
		return nil
	}
	return nil
}

func (r *Repository) InsertBallot(ctx context.Context, ballot entities.Ballot) error {
	row, err := ballotModelFromEntity(ballot)
	if err != nil {
		return r.logError("election_repo_insert_ballot_marshal_failed", err,
			"ballot_id", strings.TrimSpace(ballot.BallotID),
		)
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyVoted
		}
		return r.logError("election_repo_insert_ballot_failed", err,
			"ballot_id", strings.TrimSpace(ballot.BallotID),
			"election_id", strings.TrimSpace(ballot.ElectionID),
			"member_id", strings.TrimSpace(ballot.MemberID),
		)
	}
	return nil
}

func (r *Repository) GetBallotByMember(
	ctx context.Context,
	electionID string,
	memberID string,
) (entities.Ballot, bool, error) {
	var row ballotModel
	err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Where("member_id = ?", strings.TrimSpace(memberID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Ballot{}, false, nil
		}
		return entities.Ballot{}, false, r.logError("election_repo_get_ballot_failed", err,
			"election_id", strings.TrimSpace(electionID),
			"member_id", strings.TrimSpace(memberID),
		)
	}
	ballot, err := row.toEntity()
	if err != nil {
		return entities.Ballot{}, false, r.logError("election_repo_get_ballot_decode_failed", err,
			"ballot_id", row.ID,
		)
	}
	return ballot, true, nil
}

func (r *Repository) ListBallots(ctx context.Context, electionID string) ([]entities.Ballot, error) {
	var rows []ballotModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Order("voted_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_ballots_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	items := make([]entities.Ballot, 0, len(rows))
	for _, row := range rows {
		ballot, err := row.toEntity()
		if err != nil {
			return nil, r.logError("election_repo_list_ballots_decode_failed", err,
				"ballot_id", row.ID,
			)
		}
		items = append(items, ballot)
	}
	return items, nil
}

func (r *Repository) CountBallotsByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ballotModel{}).
		Where("ip_address = ?", strings.TrimSpace(ip)).
		Where("voted_at >= ?", since.UTC()).
		Count(&count).Error; err != nil {
		return 0, r.logError("election_repo_count_ballots_by_ip_failed", err,
			"ip_address", strings.TrimSpace(ip),
		)
	}
	return count, nil
}

func (r *Repository) ReplaceResults(
	ctx context.Context,
	electionID string,
	results []entities.ElectionResult,
) error {
	rows := make([]resultModel, 0, len(results))
	for _, item := range results {
		row, err := resultModelFromEntity(item)
		if err != nil {
			return r.logError("election_repo_replace_results_marshal_failed", err,
				"election_id", strings.TrimSpace(electionID),
			)
		}
		rows = append(rows, row)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("election_id = ?", strings.TrimSpace(electionID)).
			Delete(&resultModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return r.logError("election_repo_replace_results_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	return nil
}

func (r *Repository) ListResults(ctx context.Context, electionID string) ([]entities.ElectionResult, error) {
	var rows []resultModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_results_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	items := make([]entities.ElectionResult, 0, len(rows))
	for _, row := range rows {
		item, err := row.toEntity()
		if err != nil {
			return nil, r.logError("election_repo_list_results_decode_failed", err,
				"result_id", row.ID,
			)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Repository) Append(ctx context.Context, entry entities.AuditEntry) error {
	row, err := auditModelFromEntity(entry)
	if err != nil {
		return r.logError("election_repo_append_audit_marshal_failed", err,
			"entry_id", strings.TrimSpace(entry.EntryID),
		)
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("election_repo_append_audit_failed", err,
			"entry_id", strings.TrimSpace(entry.EntryID),
			"action", string(entry.Action),
		)
	}
	return nil
}

func (r *Repository) ListByElection(ctx context.Context, electionID string) ([]entities.AuditEntry, error) {
	var rows []auditModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_audit_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	items := make([]entities.AuditEntry, 0, len(rows))
	for _, row := range rows {
		item, err := row.toEntity()
		if err != nil {
			return nil, r.logError("election_repo_list_audit_decode_failed", err,
				"entry_id", row.ID,
			)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "member-governance/election-voting",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("election repository operation failed", fields...)
	return err
}

type positionModel struct {
	ID           string `gorm:"column:id;primaryKey"`
	Name         string `gorm:"column:name"`
	RequiredRole string `gorm:"column:required_role"`
	MaxWinners   int    `gorm:"column:max_winners"`
}

func (positionModel) TableName() string {
	return "positions"
}

type electionModel struct {
	ID             string    `gorm:"column:id;primaryKey"`
	TenantID       string    `gorm:"column:tenant_id;index"`
	Title          string    `gorm:"column:title"`
	Type           string    `gorm:"column:type"`
	Mechanism      string    `gorm:"column:mechanism"`
	Status         string    `gorm:"column:status;index"`
	StartDate      time.Time `gorm:"column:start_date"`
	EndDate        time.Time `gorm:"column:end_date;index"`
	PrivacyMode    string    `gorm:"column:privacy_mode"`
	AllowAbstain   bool      `gorm:"column:allow_abstain"`
	WeightedVoting bool      `gorm:"column:weighted_voting"`
	PositionID     *string   `gorm:"column:position_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (electionModel) TableName() string {
	return "elections"
}

func (m electionModel) toEntity() entities.Election {
	return entities.Election{
		ElectionID:     m.ID,
		TenantID:       m.TenantID,
		Title:          m.Title,
		Type:           entities.ElectionType(m.Type),
		Mechanism:      entities.VotingMechanism(m.Mechanism),
		Status:         entities.ElectionStatus(m.Status),
		StartDate:      m.StartDate.UTC(),
		EndDate:        m.EndDate.UTC(),
		PrivacyMode:    entities.PrivacyMode(m.PrivacyMode),
		AllowAbstain:   m.AllowAbstain,
		WeightedVoting: m.WeightedVoting,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type candidateModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ElectionID  string    `gorm:"column:election_id;index"`
	MemberID    string    `gorm:"column:member_id"`
	DisplayName string    `gorm:"column:display_name"`
	IsActive    bool      `gorm:"column:is_active"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (candidateModel) TableName() string {
	return "election_candidates"
}

func (m candidateModel) toEntity() entities.Candidate {
	return entities.Candidate{
		CandidateID: m.ID,
		ElectionID:  m.ElectionID,
		MemberID:    m.MemberID,
		DisplayName: m.DisplayName,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type memberModel struct {
	ID             string          `gorm:"column:id;primaryKey"`
	TenantID       string          `gorm:"column:tenant_id;index"`
	Status         string          `gorm:"column:status"`
	Roles          []byte          `gorm:"column:roles;type:jsonb"`
	JoinedAt       time.Time       `gorm:"column:joined_at"`
	SavingsBalance decimal.Decimal `gorm:"column:savings_balance;type:numeric(18,2)"`
}

func (memberModel) TableName() string {
	return "members"
}

func (m memberModel) toEntity() (entities.Member, error) {
	var roles []string
	if len(m.Roles) > 0 {
		if err := json.Unmarshal(m.Roles, &roles); err != nil {
			return entities.Member{}, err
		}
	}
	return entities.Member{
		MemberID:       m.ID,
		TenantID:       m.TenantID,
		Status:         entities.MemberStatus(m.Status),
		Roles:          roles,
		JoinedAt:       m.JoinedAt.UTC(),
		SavingsBalance: m.SavingsBalance,
	}, nil
}

type ballotModel struct {
	ID                string    `gorm:"column:id;primaryKey"`
	ElectionID        string    `gorm:"column:election_id;uniqueIndex:idx_election_votes_member;index"`
	MemberID          string    `gorm:"column:member_id;uniqueIndex:idx_election_votes_member"`
	CandidateID       *string   `gorm:"column:candidate_id"`
	Choice            string    `gorm:"column:choice"`
	IsAbstain         bool      `gorm:"column:is_abstain"`
	Rankings          []byte    `gorm:"column:rankings;type:jsonb"`
	Weight            float64   `gorm:"column:weight"`
	IPAddress         string    `gorm:"column:ip_address;index"`
	DeviceFingerprint string    `gorm:"column:device_fingerprint"`
	VotedAt           time.Time `gorm:"column:voted_at"`
}

func (ballotModel) TableName() string {
	return "election_votes"
}

func ballotModelFromEntity(ballot entities.Ballot) (ballotModel, error) {
	row := ballotModel{
		ID:                strings.TrimSpace(ballot.BallotID),
		ElectionID:        strings.TrimSpace(ballot.ElectionID),
		MemberID:          strings.TrimSpace(ballot.MemberID),
		Choice:            string(ballot.Choice),
		IsAbstain:         ballot.IsAbstain,
		Weight:            ballot.Weight,
		IPAddress:         strings.TrimSpace(ballot.IPAddress),
		DeviceFingerprint: strings.TrimSpace(ballot.DeviceFingerprint),
		VotedAt:           ballot.VotedAt.UTC(),
	}
	if strings.TrimSpace(ballot.CandidateID) != "" {
		candidateID := strings.TrimSpace(ballot.CandidateID)
		row.CandidateID = &candidateID
	}
	if len(ballot.Rankings) > 0 {
		payload, err := json.Marshal(ballot.Rankings)
		if err != nil {
			return ballotModel{}, err
		}
		row.Rankings = payload
	}
	if row.VotedAt.IsZero() {
		row.VotedAt = time.Now().UTC()
	}
	return row, nil
}

func (m ballotModel) toEntity() (entities.Ballot, error) {
	candidateID := ""
	if m.CandidateID != nil {
		candidateID = strings.TrimSpace(*m.CandidateID)
	}
	var rankings map[string]int
	if len(m.Rankings) > 0 {
		if err := json.Unmarshal(m.Rankings, &rankings); err != nil {
			return entities.Ballot{}, err
		}
	}
	return entities.Ballot{
		BallotID:          m.ID,
		ElectionID:        m.ElectionID,
		MemberID:          m.MemberID,
		CandidateID:       candidateID,
		Choice:            entities.ReferendumChoice(m.Choice),
		IsAbstain:         m.IsAbstain,
		Rankings:          rankings,
		Weight:            m.Weight,
		IPAddress:         m.IPAddress,
		DeviceFingerprint: m.DeviceFingerprint,
		VotedAt:           m.VotedAt.UTC(),
	}, nil
}

type resultModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	ElectionID   string    `gorm:"column:election_id;index"`
	CandidateID  *string   `gorm:"column:candidate_id"`
	Choice       string    `gorm:"column:choice"`
	Label        string    `gorm:"column:label"`
	TotalVotes   float64   `gorm:"column:total_votes"`
	Percentage   float64   `gorm:"column:percentage"`
	IsWinner     bool      `gorm:"column:is_winner"`
	Position     int       `gorm:"column:position"`
	Rounds       []byte    `gorm:"column:rounds;type:jsonb"`
	CalculatedAt time.Time `gorm:"column:calculated_at"`
}

func (resultModel) TableName() string {
	return "election_results"
}

func resultModelFromEntity(item entities.ElectionResult) (resultModel, error) {
	row := resultModel{
		ID:           strings.TrimSpace(item.ResultID),
		ElectionID:   strings.TrimSpace(item.ElectionID),
		Choice:       string(item.Choice),
		Label:        strings.TrimSpace(item.Label),
		TotalVotes:   item.TotalVotes,
		Percentage:   item.Percentage,
		IsWinner:     item.IsWinner,
		Position:     item.Rank,
		CalculatedAt: item.CalculatedAt.UTC(),
	}
	if strings.TrimSpace(item.CandidateID) != "" {
		candidateID := strings.TrimSpace(item.CandidateID)
		row.CandidateID = &candidateID
	}
	if len(item.Rounds) > 0 {
		payload, err := json.Marshal(item.Rounds)
		if err != nil {
			return resultModel{}, err
		}
		row.Rounds = payload
	}
	return row, nil
}

func (m resultModel) toEntity() (entities.ElectionResult, error) {
	candidateID := ""
	if m.CandidateID != nil {
		candidateID = strings.TrimSpace(*m.CandidateID)
	}
	var rounds []entities.EliminationRound
	if len(m.Rounds) > 0 {
		if err := json.Unmarshal(m.Rounds, &rounds); err != nil {
			return entities.ElectionResult{}, err
		}
	}
	return entities.ElectionResult{
		ResultID:     m.ID,
		ElectionID:   m.ElectionID,
		CandidateID:  candidateID,
		Choice:       entities.ReferendumChoice(m.Choice),
		Label:        m.Label,
		TotalVotes:   m.TotalVotes,
		Percentage:   m.Percentage,
		IsWinner:     m.IsWinner,
		Rank:         m.Position,
		Rounds:       rounds,
		CalculatedAt: m.CalculatedAt.UTC(),
	}, nil
}

type auditModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ElectionID  string    `gorm:"column:election_id;index"`
	MemberID    string    `gorm:"column:member_id"`
	Action      string    `gorm:"column:action"`
	Details     []byte    `gorm:"column:details;type:jsonb"`
	IPAddress   string    `gorm:"column:ip_address"`
	UserAgent   string    `gorm:"column:user_agent"`
	PerformedBy string    `gorm:"column:performed_by"`
	CreatedAt   time.Time `gorm:"column:created_at;index"`
}

func (auditModel) TableName() string {
	return "voting_audit_logs"
}

func auditModelFromEntity(entry entities.AuditEntry) (auditModel, error) {
	row := auditModel{
		ID:          strings.TrimSpace(entry.EntryID),
		ElectionID:  strings.TrimSpace(entry.ElectionID),
		MemberID:    strings.TrimSpace(entry.MemberID),
		Action:      string(entry.Action),
		IPAddress:   strings.TrimSpace(entry.IPAddress),
		UserAgent:   strings.TrimSpace(entry.UserAgent),
		PerformedBy: strings.TrimSpace(entry.PerformedBy),
		CreatedAt:   entry.CreatedAt.UTC(),
	}
	if len(entry.Details) > 0 {
		payload, err := json.Marshal(entry.Details)
		if err != nil {
			return auditModel{}, err
		}
		row.Details = payload
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row, nil
}

func (m auditModel) toEntity() (entities.AuditEntry, error) {
	var details map[string]any
	if len(m.Details) > 0 {
		if err := json.Unmarshal(m.Details, &details); err != nil {
			return entities.AuditEntry{}, err
		}
	}
	return entities.AuditEntry{
		EntryID:     m.ID,
		ElectionID:  m.ElectionID,
		MemberID:    m.MemberID,
		Action:      entities.AuditAction(m.Action),
		Details:     details,
		IPAddress:   m.IPAddress,
		UserAgent:   m.UserAgent,
		PerformedBy: m.PerformedBy,
		CreatedAt:   m.CreatedAt.UTC(),
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.ElectionRepository = (*Repository)(nil)
var _ ports.BallotRepository = (*Repository)(nil)
var _ ports.ResultRepository = (*Repository)(nil)
var _ ports.AuditSink = (*Repository)(nil)
