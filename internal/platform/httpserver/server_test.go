package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	electionvoting "intellicash/contexts/member-governance/election-voting"
	"intellicash/contexts/member-governance/election-voting/domain/entities"
	votinghttp "intellicash/contexts/member-governance/election-voting/transport/http"
)

var serverNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer() (*Server, electionvoting.Module) {
	module := electionvoting.NewInMemoryModule(nil)
	module.Store.NowFunc = func() time.Time { return serverNow }

	module.Store.SetElection(entities.Election{
		ElectionID:  "election-1",
		TenantID:    "tenant-1",
		Title:       "Board Chair 2026",
		Type:        entities.ElectionTypeSingleCandidate,
		Mechanism:   entities.MechanismMajority,
		Status:      entities.ElectionStatusActive,
		StartDate:   serverNow.Add(-24 * time.Hour),
		EndDate:     serverNow.Add(24 * time.Hour),
		PrivacyMode: entities.PrivacyModePrivate,
	})
	module.Store.SetMember(entities.Member{
		MemberID: "member-1",
		TenantID: "tenant-1",
		Status:   entities.MemberStatusActive,
		JoinedAt: serverNow.AddDate(-2, 0, 0),
	})
	module.Store.SetCandidate(entities.Candidate{
		CandidateID: "candidate-1",
		ElectionID:  "election-1",
		DisplayName: "Amina",
		IsActive:    true,
	})

	return New(module, nil, ""), module
}

func castVoteRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/elections/election-1/votes", strings.NewReader(body))
	req.Header.Set("X-Member-Id", "member-1")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("User-Agent", "mozilla/5.0")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Accept-Encoding", "gzip")
	return req
}

func TestCastVoteEndpoint(t *testing.T) {
	server, _ := newTestServer()

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, castVoteRequest(`{"candidate_id":"candidate-1"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp votinghttp.CastVoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted || resp.BallotID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Weight != 1 {
		t.Fatalf("weight = %v, want 1", resp.Weight)
	}

	// A second ballot from the same member is rejected by the pipeline.
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, castVoteRequest(`{"candidate_id":"candidate-1"}`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestCastVoteRequiresMemberHeader(t *testing.T) {
	server, _ := newTestServer()

	req := castVoteRequest(`{"candidate_id":"candidate-1"}`)
	req.Header.Del("X-Member-Id")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCastVoteUnknownElection(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/elections/election-99/votes", strings.NewReader(`{"candidate_id":"candidate-1"}`))
	req.Header.Set("X-Member-Id", "member-1")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestVerifyVoteEndpoint(t *testing.T) {
	server, _ := newTestServer()

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, castVoteRequest(`{"candidate_id":"candidate-1"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("cast status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/elections/election-1/votes/verify", nil)
	req.Header.Set("X-Member-Id", "member-1")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp votinghttp.VerifyVoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Found {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestResultsAndRecomputeEndpoints(t *testing.T) {
	server, _ := newTestServer()

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, castVoteRequest(`{"candidate_id":"candidate-1"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("cast status = %d", rec.Code)
	}

	// Recompute is admin-only.
	req := httptest.NewRequest(http.MethodPost, "/api/elections/election-1/results/recompute", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin recompute status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/elections/election-1/results/recompute", nil)
	req.Header.Set("X-Member-Roles", "member, admin")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("admin recompute status = %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/elections/election-1/results", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("results status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp votinghttp.ResultsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].TotalVotes != 1 {
		t.Fatalf("unexpected results: %+v", resp.Items)
	}
	if resp.Voters != nil {
		t.Fatal("private election must not expose the voter breakdown")
	}
}

func TestAuditTrailEndpoint(t *testing.T) {
	server, _ := newTestServer()

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, castVoteRequest(`{"candidate_id":"candidate-1"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("cast status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/elections/election-1/audit", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin audit status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/elections/election-1/audit", nil)
	req.Header.Set("X-Member-Roles", "admin")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp votinghttp.AuditTrailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Security, policy and creation entries for the recorded ballot.
	if len(resp.Items) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(resp.Items))
	}
}
