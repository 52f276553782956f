package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	electionvoting "intellicash/contexts/member-governance/election-voting"
	votingerrors "intellicash/contexts/member-governance/election-voting/domain/errors"
	"intellicash/contexts/member-governance/election-voting/ports"
	votinghttp "intellicash/contexts/member-governance/election-voting/transport/http"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	voting electionvoting.Module
}

func New(voting electionvoting.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		voting: voting,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/elections/{election_id}/votes", s.handleCastVote)
	s.mux.HandleFunc("GET /api/elections/{election_id}/votes/verify", s.handleVerifyVote)
	s.mux.HandleFunc("GET /api/elections/{election_id}/results", s.handleResults)
	s.mux.HandleFunc("POST /api/elections/{election_id}/results/recompute", s.handleRecomputeResults)
	s.mux.HandleFunc("GET /api/elections/{election_id}/audit", s.handleAuditTrail)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	memberID := r.Header.Get("X-Member-Id")
	if strings.TrimSpace(memberID) == "" {
		writeVotingError(w, http.StatusUnauthorized, "missing_member", "X-Member-Id header is required")
		return
	}

	var req votinghttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.voting.Handler.CastVoteHandler(
		r.Context(),
		r.PathValue("election_id"),
		memberID,
		resolveRequestContext(r),
		req,
	)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if !resp.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleVerifyVote(w http.ResponseWriter, r *http.Request) {
	memberID := r.Header.Get("X-Member-Id")
	if strings.TrimSpace(memberID) == "" {
		writeVotingError(w, http.StatusUnauthorized, "missing_member", "X-Member-Id header is required")
		return
	}

	resp, err := s.voting.Handler.VerifyVoteHandler(
		r.Context(),
		r.PathValue("election_id"),
		memberID,
		resolveRequestContext(r),
	)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ResultsHandler(
		r.Context(),
		r.PathValue("election_id"),
		isAdminCaller(r),
	)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecomputeResults(w http.ResponseWriter, r *http.Request) {
	if !isAdminCaller(r) {
		writeVotingError(w, http.StatusForbidden, "admin_required", "recompute requires an admin caller")
		return
	}
	if err := s.voting.Handler.RecomputeResultsHandler(r.Context(), r.PathValue("election_id")); err != nil {
		writeVotingDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	if !isAdminCaller(r) {
		writeVotingError(w, http.StatusForbidden, "admin_required", "audit trail requires an admin caller")
		return
	}
	resp, err := s.voting.Handler.AuditTrailHandler(r.Context(), r.PathValue("election_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeVotingDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, votingerrors.ErrElectionNotFound):
		writeVotingError(w, http.StatusNotFound, "election_not_found", err.Error())
	case errors.Is(err, votingerrors.ErrMemberNotFound):
		writeVotingError(w, http.StatusNotFound, "member_not_found", err.Error())
	case errors.Is(err, votingerrors.ErrBallotNotFound):
		writeVotingError(w, http.StatusNotFound, "ballot_not_found", err.Error())
	case errors.Is(err, votingerrors.ErrAlreadyVoted):
		writeVotingError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, votingerrors.ErrRecomputeInProgress):
		writeVotingError(w, http.StatusConflict, "recompute_in_progress", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidBallotInput):
		writeVotingError(w, http.StatusBadRequest, "invalid_ballot", err.Error())
	case errors.Is(err, votingerrors.ErrUnknownMechanism),
		errors.Is(err, votingerrors.ErrUnknownElectionType):
		writeVotingError(w, http.StatusUnprocessableEntity, "unknown_configuration", err.Error())
	default:
		writeVotingError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeVotingError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, votinghttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

func resolveRequestContext(r *http.Request) ports.RequestContext {
	return ports.RequestContext{
		IPAddress:         resolveClientIP(r),
		UserAgent:         r.UserAgent(),
		AcceptLanguage:    r.Header.Get("Accept-Language"),
		AcceptEncoding:    r.Header.Get("Accept-Encoding"),
		SessionID:         r.Header.Get("X-Session-Id"),
		DeviceFingerprint: r.Header.Get("X-Device-Fingerprint"),
		Latitude:          r.Header.Get("X-Latitude"),
		Longitude:         r.Header.Get("X-Longitude"),
	}
}

func isAdminCaller(r *http.Request) bool {
	for _, role := range strings.Split(r.Header.Get("X-Member-Roles"), ",") {
		if strings.EqualFold(strings.TrimSpace(role), "admin") {
			return true
		}
	}
	return false
}
