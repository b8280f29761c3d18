package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/api/responses"
	"github.com/taxnovahq/taxnova-backend/api/validators"
	"github.com/taxnovahq/taxnova-backend/internal/integrity"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
)

// ChainVerifier is the verification surface the integrity endpoints
// expose.
type ChainVerifier interface {
	Verify(ctx context.Context, entityID uuid.UUID, fromSeq int64) (*integrity.ChainVerificationResult, error)
	VerifyDetailed(ctx context.Context, entityID uuid.UUID) (*integrity.DetailedResult, error)
}

// IntegrityVerify walks the entity's chain and reports violations.
// An optional `from` query parameter starts mid-chain.
func IntegrityVerify(verifier ChainVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "verifier unavailable"))
			return
		}

		entityID, err := validators.ParseUUIDParam(r, "entityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQuerySeq(r, "from", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := verifier.Verify(r.Context(), entityID, from)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// IntegrityVerifyDetailed returns per-entry verdicts for the full chain.
func IntegrityVerifyDetailed(verifier ChainVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "verifier unavailable"))
			return
		}

		entityID, err := validators.ParseUUIDParam(r, "entityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := verifier.VerifyDetailed(r.Context(), entityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
