package controllers

import (
	"net/http"

	"github.com/taxnovahq/taxnova-backend/api/responses"
	"github.com/taxnovahq/taxnova-backend/api/validators"
	"github.com/taxnovahq/taxnova-backend/internal/audit"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
	"github.com/taxnovahq/taxnova-backend/pkg/pagination"
)

type runAuditRequest struct {
	Start         string `json:"start" validate:"required"`
	End           string `json:"end" validate:"required"`
	RunType       string `json:"run_type,omitempty"`
	DigitPosition string `json:"digit_position,omitempty"`
	GroupBy       string `json:"group_by,omitempty"`
	ActorID       string `json:"actor_id" validate:"required,uuid"`
}

type resolveFindingRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required,uuid"`
	Status     string `json:"status" validate:"required"`
	Note       string `json:"note,omitempty"`
}

// AuditRun executes an audit over the entity and period and returns the
// finished run.
func AuditRun(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		entityID, err := validators.ParseUUIDParam(r, "entityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req runAuditRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		start, err := validators.ParseTime("start", req.Start)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseTime("end", req.End)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := parseBodyUUID("actor_id", req.ActorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		run, err := svc.RunFullAudit(r.Context(), entityID, audit.Period{Start: start, End: end}, audit.RunOptions{
			RunType:       enums.AuditRunType(req.RunType),
			DigitPosition: enums.DigitPosition(req.DigitPosition),
			GroupBy:       enums.GroupBy(req.GroupBy),
			ActorID:       actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, run)
	}
}

// AuditGetRun returns a single audit run.
func AuditGetRun(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		runID, err := validators.ParseUUIDParam(r, "runID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		run, err := svc.GetRun(r.Context(), runID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, run)
	}
}

// AuditListRuns returns the entity's runs, newest first.
func AuditListRuns(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		entityID, err := validators.ParseUUIDParam(r, "entityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListRuns(r.Context(), audit.ListRunsParams{
			EntityID: entityID,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: r.URL.Query().Get("cursor"),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"entity_id": entityID,
			"runs":      result.Runs,
			"cursor":    result.Cursor,
		})
	}
}

// AuditListFindings returns the findings of a run ordered by creation.
func AuditListFindings(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		runID, err := validators.ParseUUIDParam(r, "runID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		findings, err := svc.ListFindings(r.Context(), runID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"run_id":   runID,
			"findings": findings,
		})
	}
}

// AuditResolveFinding annotates a finding with a reviewer's resolution.
func AuditResolveFinding(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		findingID, err := validators.ParseUUIDParam(r, "findingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req resolveFindingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reviewerID, err := parseBodyUUID("reviewer_id", req.ReviewerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseResolutionStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resolution status"))
			return
		}

		finding, err := svc.ResolveFinding(r.Context(), findingID, reviewerID, status, req.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, finding)
	}
}

// AuditVerifyEvidence re-checks a finding's archived evidence against
// the write-once store.
func AuditVerifyEvidence(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		findingID, err := validators.ParseUUIDParam(r, "findingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		check, err := svc.VerifyEvidence(r.Context(), findingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, check)
	}
}
