package controllers

import (
	"net/http"

	"github.com/taxnovahq/taxnova-backend/api/responses"
	"github.com/taxnovahq/taxnova-backend/api/validators"
	"github.com/taxnovahq/taxnova-backend/internal/analysis"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
)

type benfordRequest struct {
	Start         string `json:"start" validate:"required"`
	End           string `json:"end" validate:"required"`
	DigitPosition string `json:"digit_position,omitempty"`
}

type zscoreRequest struct {
	Start     string  `json:"start" validate:"required"`
	End       string  `json:"end" validate:"required"`
	GroupBy   string  `json:"group_by,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// AnalysisBenford runs an ad-hoc digit distribution test over the
// entity's transactions in the requested period.
func AnalysisBenford(svc analysis.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analysis service unavailable"))
			return
		}

		entityID, err := validators.ParseUUIDParam(r, "entityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req benfordRequest
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

		result, err := svc.Benford(r.Context(), analysis.BenfordRequest{
			EntityID:      entityID,
			Start:         start,
			End:           end,
			DigitPosition: enums.DigitPosition(req.DigitPosition),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AnalysisZScore runs ad-hoc grouped outlier detection over the
// entity's transactions in the requested period.
func AnalysisZScore(svc analysis.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analysis service unavailable"))
			return
		}

		entityID, err := validators.ParseUUIDParam(r, "entityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req zscoreRequest
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

		report, err := svc.ZScore(r.Context(), analysis.ZScoreRequest{
			EntityID:  entityID,
			Start:     start,
			End:       end,
			GroupBy:   enums.GroupBy(req.GroupBy),
			Threshold: req.Threshold,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
