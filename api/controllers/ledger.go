package controllers

import (
	"net/http"

	"github.com/taxnovahq/taxnova-backend/api/responses"
	"github.com/taxnovahq/taxnova-backend/api/validators"
	"github.com/taxnovahq/taxnova-backend/internal/ledger"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
)

type appendEntryRequest struct {
	EntryType     string         `json:"entry_type" validate:"required"`
	ReferenceType string         `json:"reference_type" validate:"required"`
	ReferenceID   string         `json:"reference_id" validate:"required"`
	Payload       map[string]any `json:"payload" validate:"required"`
	ActorID       string         `json:"actor_id" validate:"required,uuid"`
}

// LedgerAppend records one immutable entry at the head of the entity's
// chain.
func LedgerAppend(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		entityID, err := validators.ParseUUIDParam(r, "entityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req appendEntryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entryType, err := enums.ParseLedgerEntryType(req.EntryType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry type"))
			return
		}
		actorID, err := parseBodyUUID("actor_id", req.ActorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Append(r.Context(), ledger.AppendInput{
			EntityID:  entityID,
			EntryType: entryType,
			Reference: ledger.Reference{Type: req.ReferenceType, ID: req.ReferenceID},
			Payload:   req.Payload,
			ActorID:   actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

// LedgerReadRange returns entries for the entity ordered by sequence.
// Bounds come from `from` and `to` query parameters; `to` zero means
// the current head.
func LedgerReadRange(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		entityID, err := validators.ParseUUIDParam(r, "entityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQuerySeq(r, "from", 1)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQuerySeq(r, "to", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.ReadRange(r.Context(), entityID, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"entity_id": entityID,
			"entries":   entries,
		})
	}
}
