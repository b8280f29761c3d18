package audit

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/taxnovahq/taxnova-backend/internal/benford"
	"github.com/taxnovahq/taxnova-backend/internal/threewaymatch"
	"github.com/taxnovahq/taxnova-backend/internal/zscore"
	"github.com/taxnovahq/taxnova-backend/pkg/config"
)

// PolicyFromConfig translates the environment-driven audit knobs into a
// Policy. Decimal thresholds arrive as strings to avoid float drift in
// currency math.
func PolicyFromConfig(cfg config.AuditConfig) (Policy, error) {
	fields := map[string]string{
		"benford minimum magnitude": cfg.BenfordMinMagnitude,
		"quantity tolerance":        cfg.QuantityTolerance,
		"price tolerance":           cfg.PriceTolerance,
		"amount tolerance":          cfg.AmountTolerance,
		"price fraud ceiling":       cfg.PriceFraudCeiling,
		"quantity fraud ceiling":    cfg.QuantityFraudCeiling,
	}
	parsed := make(map[string]decimal.Decimal, len(fields))
	for name, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Policy{}, fmt.Errorf("parsing %s %q: %w", name, raw, err)
		}
		parsed[name] = d
	}

	return Policy{
		AnalysisTimeout: cfg.AnalysisTimeout,
		Benford: benford.Options{
			MinimumSampleSize: cfg.BenfordMinSampleSize,
			MinimumMagnitude:  parsed["benford minimum magnitude"],
		},
		ZScore: zscore.Options{
			Threshold:        cfg.ZScoreThreshold,
			MinimumGroupSize: cfg.ZScoreMinGroupSize,
		},
		Tolerances: threewaymatch.Tolerances{
			Quantity:             parsed["quantity tolerance"],
			Price:                parsed["price tolerance"],
			Amount:               parsed["amount tolerance"],
			PriceFraudCeiling:    parsed["price fraud ceiling"],
			QuantityFraudCeiling: parsed["quantity fraud ceiling"],
		},
	}, nil
}
