package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taxnovahq/taxnova-backend/api/controllers"
	"github.com/taxnovahq/taxnova-backend/api/middleware"
	"github.com/taxnovahq/taxnova-backend/internal/analysis"
	"github.com/taxnovahq/taxnova-backend/internal/audit"
	"github.com/taxnovahq/taxnova-backend/internal/ledger"
	"github.com/taxnovahq/taxnova-backend/internal/threewaymatch"
	"github.com/taxnovahq/taxnova-backend/pkg/config"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
)

// Dependencies carries the readiness checks the router exposes on
// /health/ready, keyed by the name reported to callers.
type Dependencies map[string]controllers.Pinger

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps Dependencies,
	ledgerService ledger.Service,
	verifier controllers.ChainVerifier,
	analysisService analysis.Service,
	matchService threewaymatch.Service,
	auditService audit.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/entities/{entityID}", func(r chi.Router) {
			r.Route("/ledger/entries", func(r chi.Router) {
				r.Post("/", controllers.LedgerAppend(ledgerService, logg))
				r.Get("/", controllers.LedgerReadRange(ledgerService, logg))
			})
			r.Route("/integrity/verify", func(r chi.Router) {
				r.Get("/", controllers.IntegrityVerify(verifier, logg))
				r.Get("/detailed", controllers.IntegrityVerifyDetailed(verifier, logg))
			})
			r.Route("/analysis", func(r chi.Router) {
				r.Post("/benford", controllers.AnalysisBenford(analysisService, logg))
				r.Post("/zscore", controllers.AnalysisZScore(analysisService, logg))
			})
			r.Route("/audits", func(r chi.Router) {
				r.Post("/", controllers.AuditRun(auditService, logg))
				r.Get("/", controllers.AuditListRuns(auditService, logg))
			})
		})

		r.Route("/three-way-match", func(r chi.Router) {
			r.Post("/", controllers.MatchDocuments(matchService, logg))
			r.Get("/{recordID}", controllers.MatchGet(matchService, logg))
			r.Post("/{recordID}/reject", controllers.MatchReject(matchService, logg))
			r.Post("/{recordID}/reset-rejection", controllers.MatchResetRejection(matchService, logg))
		})

		r.Route("/audits/{runID}", func(r chi.Router) {
			r.Get("/", controllers.AuditGetRun(auditService, logg))
			r.Get("/findings", controllers.AuditListFindings(auditService, logg))
		})
		r.Post("/findings/{findingID}/resolve", controllers.AuditResolveFinding(auditService, logg))
		r.Get("/findings/{findingID}/evidence/verify", controllers.AuditVerifyEvidence(auditService, logg))
	})

	return r
}
