package audit

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/taxnovahq/taxnova-backend/internal/benford"
	"github.com/taxnovahq/taxnova-backend/internal/integrity"
	"github.com/taxnovahq/taxnova-backend/internal/procurement"
	"github.com/taxnovahq/taxnova-backend/internal/threewaymatch"
	"github.com/taxnovahq/taxnova-backend/internal/zscore"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

// discrepancyMagnitudeFactor escalates a match discrepancy from medium
// to high risk once a line's amount variance exceeds this multiple of
// the absolute amount tolerance.
var discrepancyMagnitudeFactor = decimal.NewFromInt(10)

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// findingsFromVerification maps every chain violation to a critical
// data-integrity finding. Each violation is its own finding so they can
// be resolved independently.
func findingsFromVerification(result *integrity.ChainVerificationResult) []models.AuditFinding {
	var findings []models.AuditFinding
	for _, v := range result.Violations {
		findings = append(findings, models.AuditFinding{
			RiskLevel:     enums.RiskLevelCritical,
			Category:      enums.FindingCategoryDataIntegrity,
			Title:         fmt.Sprintf("ledger %s at sequence %d", v.Kind, v.Sequence),
			Description:   v.Detail,
			ReferenceType: "ledger_entry",
			ReferenceID:   fmt.Sprintf("%s/%d", result.EntityID, v.Sequence),
			Evidence:      mustJSON(v),
		})
	}
	return findings
}

func findingsFromBenford(result *benford.Result) []models.AuditFinding {
	if result.Classification == enums.BenfordConforming {
		return nil
	}
	risk := enums.RiskLevelMedium
	if result.Classification == enums.BenfordCriticallyNonConforming {
		risk = enums.RiskLevelHigh
	}
	return []models.AuditFinding{{
		RiskLevel: risk,
		Category:  enums.FindingCategoryFraudIndicator,
		Title:     fmt.Sprintf("%s digit distribution is %s", result.DigitPosition, result.Classification),
		Description: fmt.Sprintf("chi-square %.3f against critical values %.3f/%.3f over %d transactions",
			result.ChiSquare, result.ChiSquareLow, result.ChiSquareHigh, result.SampleSize),
		Evidence: mustJSON(result),
	}}
}

// benfordInconclusiveFinding reports a sample too small to classify. It
// is informational: thin data is a coverage note, not an indicator.
func benfordInconclusiveFinding(reason string) models.AuditFinding {
	return models.AuditFinding{
		RiskLevel:   enums.RiskLevelInformational,
		Category:    enums.FindingCategoryInconclusive,
		Title:       "benford analysis inconclusive",
		Description: reason,
		Evidence:    mustJSON(map[string]string{"reason": reason}),
	}
}

func findingsFromZScore(report *zscore.Report) []models.AuditFinding {
	var findings []models.AuditFinding
	for _, outlier := range report.Outliers {
		risk := enums.RiskLevelLow
		if outlier.Severity == enums.AnomalySeverityHigh {
			risk = enums.RiskLevelMedium
		}
		findings = append(findings, models.AuditFinding{
			RiskLevel: risk,
			Category:  enums.FindingCategoryStatisticalAnomaly,
			Title: fmt.Sprintf("amount %s is %.1f standard deviations from its %s group mean",
				outlier.Amount, outlier.ZScore, outlier.GroupKey),
			ReferenceType: "transaction",
			ReferenceID:   outlier.TransactionID.String(),
			Evidence:      mustJSON(outlier),
		})
	}
	return findings
}

func findingsFromMatch(triple procurement.DocumentTriple, outcome *threewaymatch.Outcome) []models.AuditFinding {
	var findings []models.AuditFinding
	ref := triple.Invoice.ID.String()

	switch outcome.Status {
	case enums.MatchStatusDiscrepancy:
		risk := enums.RiskLevelMedium
		bound := outcome.Tolerances.Amount.Mul(discrepancyMagnitudeFactor)
		for _, line := range outcome.Lines {
			if line.AmountVariance != nil && line.AmountVariance.GreaterThan(bound) {
				risk = enums.RiskLevelHigh
				break
			}
		}
		findings = append(findings, models.AuditFinding{
			RiskLevel:     risk,
			Category:      enums.FindingCategoryProcessWeakness,
			Title:         "three-way match discrepancy",
			Description:   fmt.Sprintf("purchase order %s does not reconcile with its receipt and invoice", triple.PurchaseOrder.ID),
			ReferenceType: "invoice",
			ReferenceID:   ref,
			Evidence:      mustJSON(outcome),
		})
	case enums.MatchStatusPartialMatch:
		findings = append(findings, models.AuditFinding{
			RiskLevel:     enums.RiskLevelLow,
			Category:      enums.FindingCategoryProcessWeakness,
			Title:         "three-way match within extended tolerance only",
			Description:   fmt.Sprintf("purchase order %s reconciles only within twice the configured tolerances", triple.PurchaseOrder.ID),
			ReferenceType: "invoice",
			ReferenceID:   ref,
			Evidence:      mustJSON(outcome),
		})
	}

	for _, signal := range outcome.FraudSignals {
		findings = append(findings, models.AuditFinding{
			RiskLevel:     enums.RiskLevelHigh,
			Category:      enums.FindingCategoryFraudIndicator,
			Title:         fmt.Sprintf("procurement %s on item %s", signal.Kind, signal.ItemKey),
			Description:   signal.Recommendation,
			ReferenceType: "invoice",
			ReferenceID:   ref,
			Evidence:      mustJSON(signal),
		})
	}
	return findings
}

func severityCounts(run *models.AuditRun, findings []models.AuditFinding) {
	run.CriticalCount, run.HighCount, run.MediumCount, run.LowCount, run.InformationalCount = 0, 0, 0, 0, 0
	for _, f := range findings {
		switch f.RiskLevel {
		case enums.RiskLevelCritical:
			run.CriticalCount++
		case enums.RiskLevelHigh:
			run.HighCount++
		case enums.RiskLevelMedium:
			run.MediumCount++
		case enums.RiskLevelLow:
			run.LowCount++
		case enums.RiskLevelInformational:
			run.InformationalCount++
		}
	}
}
