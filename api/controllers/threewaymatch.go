package controllers

import (
	"net/http"

	"github.com/taxnovahq/taxnova-backend/api/responses"
	"github.com/taxnovahq/taxnova-backend/api/validators"
	"github.com/taxnovahq/taxnova-backend/internal/threewaymatch"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
)

type matchRequest struct {
	POID      string `json:"po_id" validate:"required,uuid"`
	GRNID     string `json:"grn_id" validate:"required,uuid"`
	InvoiceID string `json:"invoice_id" validate:"required,uuid"`
}

type rejectRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required,uuid"`
	Reason     string `json:"reason" validate:"required"`
}

type resetRejectionRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required,uuid"`
}

// MatchDocuments grades a purchase order, receipt, and invoice against
// each other and persists the outcome.
func MatchDocuments(svc threewaymatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "match service unavailable"))
			return
		}

		var req matchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		poID, err := parseBodyUUID("po_id", req.POID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		grnID, err := parseBodyUUID("grn_id", req.GRNID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := parseBodyUUID("invoice_id", req.InvoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, outcome, err := svc.Match(r.Context(), poID, grnID, invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"record":  record,
			"outcome": outcome,
		})
	}
}

// MatchGet returns a stored match record.
func MatchGet(svc threewaymatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "match service unavailable"))
			return
		}

		recordID, err := validators.ParseUUIDParam(r, "recordID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), recordID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// MatchReject marks a match record as rejected by a reviewer. Rejection
// is sticky: re-matching refuses until the rejection is reset.
func MatchReject(svc threewaymatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "match service unavailable"))
			return
		}

		recordID, err := validators.ParseUUIDParam(r, "recordID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req rejectRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reviewerID, err := parseBodyUUID("reviewer_id", req.ReviewerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Reject(r.Context(), recordID, reviewerID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// MatchResetRejection lifts a rejection so the documents can be
// re-matched.
func MatchResetRejection(svc threewaymatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "match service unavailable"))
			return
		}

		recordID, err := validators.ParseUUIDParam(r, "recordID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req resetRejectionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reviewerID, err := parseBodyUUID("reviewer_id", req.ReviewerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.ResetRejection(r.Context(), recordID, reviewerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}
