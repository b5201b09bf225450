package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alem-hub/afterschool-matching/internal/application/command"
	"github.com/alem-hub/afterschool-matching/internal/application/query"
	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/compatibility"
	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// CompatibilityQuerier scores one pair.
type CompatibilityQuerier interface {
	Handle(ctx context.Context, q query.GetCompatibilityQuery) (*query.GetCompatibilityResult, error)
}

// BatchAnalyzer scores students against every active teacher.
type BatchAnalyzer interface {
	Handle(ctx context.Context, q query.BatchAnalyzeQuery) (*query.BatchAnalyzeResult, error)
}

// AssignmentProposer builds a pending proposal.
type AssignmentProposer interface {
	Handle(ctx context.Context, cmd command.ProposeAssignmentsCommand) (*command.ProposeAssignmentsResult, error)
}

// ProposalApplier applies a pending proposal.
type ProposalApplier interface {
	Handle(ctx context.Context, cmd command.ApplyProposalCommand) (*command.ApplyProposalResult, error)
}

// ProposalCanceller cancels a pending proposal.
type ProposalCanceller interface {
	Handle(ctx context.Context, cmd command.CancelProposalCommand) (*assignment.Proposal, error)
}

// ProfileIngester stores a validated profile snapshot.
type ProfileIngester interface {
	Handle(ctx context.Context, cmd command.IngestProfileCommand) (int64, error)
}

// ProposalReader reads stored proposals.
type ProposalReader interface {
	GetByID(ctx context.Context, id string) (*assignment.Proposal, error)
	ListByStatus(ctx context.Context, status assignment.Status, page shared.Pagination) ([]*assignment.Proposal, error)
}

// AuditReader reads the audit log of applied proposals.
type AuditReader interface {
	ListByProposal(ctx context.Context, proposalID string) ([]assignment.AuditRecord, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

type compatibilityResponse struct {
	compatibility.Score
	Quality compatibility.Quality `json:"quality"`
}

type analyzeRequest struct {
	StudentIDs []string `json:"studentIds"`
}

type proposeRequest struct {
	TeamID      string   `json:"teamId"`
	StudentIDs  []string `json:"studentIds"`
	TeacherPool []string `json:"teacherPool"`
}

type proposeResponse struct {
	Proposal         *assignment.Proposal `json:"proposal"`
	ExcludedStudents []shared.StudentID   `json:"excludedStudents"`
	FailedPairs      int                  `json:"failedPairs"`
}

type applyResponse struct {
	Proposal       *assignment.Proposal `json:"proposal"`
	Diff           assignment.AuditDiff `json:"diff"`
	AuditDelivered bool                 `json:"auditDelivered"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type auditRecordResponse struct {
	ID         string           `json:"id"`
	ProposalID string           `json:"proposalId"`
	StudentID  shared.StudentID `json:"studentId"`
	TeacherID  shared.TeacherID `json:"teacherId"`
	Score      float64          `json:"score"`
	AppliedAt  time.Time        `json:"appliedAt"`
}

type ingestResponse struct {
	Kind    profile.OwnerKind `json:"kind"`
	OwnerID string            `json:"ownerId"`
	Version int64             `json:"version"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{
			"status": "healthy",
			"uptime": s.Uptime().Round(time.Second).String(),
		})
		return
	}
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if status := s.deps.Health.Check(r.Context()); !status.Healthy {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCompatibility serves GET /api/v1/compatibility?teacherId=&studentId=.
func (s *Server) handleGetCompatibility(w http.ResponseWriter, r *http.Request) {
	if s.deps.Compatibility == nil {
		writeNotConfigured(w, r)
		return
	}
	res, err := s.deps.Compatibility.Handle(r.Context(), query.GetCompatibilityQuery{
		TeacherID: r.URL.Query().Get("teacherId"),
		StudentID: r.URL.Query().Get("studentId"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, compatibilityResponse{Score: res.Score, Quality: res.Quality})
}

func (s *Server) handleBatchAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyze == nil {
		writeNotConfigured(w, r)
		return
	}
	var req analyzeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Analyze.Handle(r.Context(), query.BatchAnalyzeQuery{StudentIDs: req.StudentIDs})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSAL HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleProposeAssignments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Propose == nil {
		writeNotConfigured(w, r)
		return
	}
	var req proposeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Propose.Handle(r.Context(), command.ProposeAssignmentsCommand{
		TeamID:        req.TeamID,
		StudentIDs:    req.StudentIDs,
		TeacherPool:   req.TeacherPool,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, proposeResponse{
		Proposal:         res.Proposal,
		ExcludedStudents: res.ExcludedStudents,
		FailedPairs:      res.FailedPairs,
	})
}

// handleListProposals serves GET /api/v1/proposals?status=&page=&pageSize=.
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	if s.deps.Proposals == nil {
		writeNotConfigured(w, r)
		return
	}
	status := assignment.StatusPending
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = assignment.Status(strings.ToUpper(raw))
		if !status.IsValid() {
			writeJSONError(w, r, http.StatusBadRequest, "validation_error", fmt.Sprintf("unknown status %q", raw))
			return
		}
	}
	page := shared.NewPagination(
		getQueryParamInt(r, "page", 1),
		getQueryParamInt(r, "pageSize", shared.DefaultPageSize),
	)

	proposals, err := s.deps.Proposals.ListByStatus(r.Context(), status, page)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if proposals == nil {
		proposals = []*assignment.Proposal{}
	}
	writeJSONWithMeta(w, r, http.StatusOK, proposals, &ResponseMeta{
		Page:     page.Page,
		PageSize: page.Limit(),
		Count:    len(proposals),
	})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Proposals == nil {
		writeNotConfigured(w, r)
		return
	}
	p, err := s.deps.Proposals.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleApplyProposal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Apply == nil {
		writeNotConfigured(w, r)
		return
	}
	res, err := s.deps.Apply.Handle(r.Context(), command.ApplyProposalCommand{
		ProposalID:    r.PathValue("id"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, applyResponse{
		Proposal:       res.Proposal,
		Diff:           res.Diff,
		AuditDelivered: res.AuditDelivered,
	})
}

// handleCancelProposal accepts an optional {"reason": "..."} body.
func (s *Server) handleCancelProposal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cancel == nil {
		writeNotConfigured(w, r)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 && !s.decodeBody(w, r, &req) {
		return
	}
	p, err := s.deps.Cancel.Handle(r.Context(), command.CancelProposalCommand{
		ProposalID:    r.PathValue("id"),
		Reason:        req.Reason,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleProposalAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		writeNotConfigured(w, r)
		return
	}
	records, err := s.deps.Audit.ListByProposal(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]auditRecordResponse, len(records))
	for i, rec := range records {
		out[i] = auditRecordResponse{
			ID:         rec.ID,
			ProposalID: rec.ProposalID,
			StudentID:  rec.StudentID,
			TeacherID:  rec.TeacherID,
			Score:      rec.Score,
			AppliedAt:  rec.AppliedAt,
		}
	}
	writeJSONWithMeta(w, r, http.StatusOK, out, &ResponseMeta{Count: len(out)})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleIngestProfile serves PUT /api/v1/profiles/{student|teacher}/{id}.
func (s *Server) handleIngestProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingest == nil {
		writeNotConfigured(w, r)
		return
	}
	var p profile.PersonalityProfile
	if !s.decodeBody(w, r, &p) {
		return
	}
	kind := profile.OwnerKind(r.PathValue("kind"))
	ownerID := r.PathValue("id")

	version, err := s.deps.Ingest.Handle(r.Context(), command.IngestProfileCommand{
		Kind:    kind,
		OwnerID: ownerID,
		Profile: &p,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ingestResponse{Kind: kind, OwnerID: ownerID, Version: version})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a size-limited JSON body and rejects unknown fields.
// It writes the error response itself and reports whether decoding succeeded.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case errors.As(err, &tooLarge):
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "request body is too large")
	case errors.Is(err, io.EOF):
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "request body is empty")
	default:
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "malformed JSON: "+err.Error())
	}
	return false
}

func writeNotConfigured(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_configured", "endpoint is not configured")
}
