package zscore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
)

const (
	defaultThreshold        = 3.0
	defaultMinimumGroupSize = 5

	SkipReasonTooSmall     = "too_small"
	SkipReasonZeroVariance = "zero_variance"
)

// Options tunes a detection pass. Zero values fall back to defaults.
type Options struct {
	GroupBy          enums.GroupBy
	Threshold        float64
	MinimumGroupSize int
}

func (o Options) withDefaults() Options {
	if o.GroupBy == "" {
		o.GroupBy = enums.GroupByCategory
	}
	if o.Threshold <= 0 {
		o.Threshold = defaultThreshold
	}
	if o.MinimumGroupSize <= 0 {
		o.MinimumGroupSize = defaultMinimumGroupSize
	}
	return o
}

// Outlier is a transaction whose amount sits beyond the z-score
// threshold within its group.
type Outlier struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	GroupKey      string                `json:"group_key"`
	Amount        decimal.Decimal       `json:"amount"`
	GroupMean     float64               `json:"group_mean"`
	GroupStdDev   float64               `json:"group_std_dev"`
	ZScore        float64               `json:"z_score"`
	Severity      enums.AnomalySeverity `json:"severity"`
}

// SkippedGroup records a group that could not be analyzed and why.
type SkippedGroup struct {
	GroupKey string `json:"group_key"`
	Size     int    `json:"size"`
	Reason   string `json:"reason"`
}

// Report is the outcome of one detection pass.
type Report struct {
	GroupBy        enums.GroupBy  `json:"group_by"`
	Threshold      float64        `json:"threshold"`
	GroupsAnalyzed int            `json:"groups_analyzed"`
	Outliers       []Outlier      `json:"outliers"`
	SkippedGroups  []SkippedGroup `json:"skipped_groups"`
}

// Detect groups transactions by category or vendor and flags amounts
// whose z-score against the group exceeds the threshold. Standard
// deviation is the sample (n-1) form. Groups below the minimum size and
// groups with zero variance are skipped with a recorded reason instead
// of producing degenerate or infinite scores. Output ordering is
// deterministic: groups by key, outliers by absolute z-score descending.
func Detect(ctx context.Context, txns []models.Transaction, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	if !opts.GroupBy.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid group_by %q", opts.GroupBy))
	}

	groups := make(map[string][]models.Transaction)
	for _, txn := range txns {
		key, ok := groupKey(txn, opts.GroupBy)
		if !ok {
			continue
		}
		groups[key] = append(groups[key], txn)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := &Report{
		GroupBy:       opts.GroupBy,
		Threshold:     opts.Threshold,
		Outliers:      []Outlier{},
		SkippedGroups: []SkippedGroup{},
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detection cancelled")
		}
		members := groups[key]
		if len(members) < opts.MinimumGroupSize {
			report.SkippedGroups = append(report.SkippedGroups, SkippedGroup{
				GroupKey: key, Size: len(members), Reason: SkipReasonTooSmall,
			})
			continue
		}

		mean, stdDev := sampleStats(members)
		if stdDev == 0 {
			report.SkippedGroups = append(report.SkippedGroups, SkippedGroup{
				GroupKey: key, Size: len(members), Reason: SkipReasonZeroVariance,
			})
			continue
		}
		report.GroupsAnalyzed++

		var outliers []Outlier
		for _, txn := range members {
			z := (amountFloat(txn) - mean) / stdDev
			if math.Abs(z) < opts.Threshold {
				continue
			}
			outliers = append(outliers, Outlier{
				TransactionID: txn.ID,
				GroupKey:      key,
				Amount:        txn.Amount,
				GroupMean:     mean,
				GroupStdDev:   stdDev,
				ZScore:        z,
				Severity:      severityFor(z),
			})
		}
		sort.Slice(outliers, func(i, j int) bool {
			zi, zj := math.Abs(outliers[i].ZScore), math.Abs(outliers[j].ZScore)
			if zi != zj {
				return zi > zj
			}
			return outliers[i].TransactionID.String() < outliers[j].TransactionID.String()
		})
		report.Outliers = append(report.Outliers, outliers...)
	}
	return report, nil
}

func groupKey(txn models.Transaction, groupBy enums.GroupBy) (string, bool) {
	switch groupBy {
	case enums.GroupByVendor:
		if txn.VendorID == nil {
			return "", false
		}
		return txn.VendorID.String(), true
	default:
		if txn.Category == "" {
			return "", false
		}
		return txn.Category, true
	}
}

func sampleStats(txns []models.Transaction) (mean, stdDev float64) {
	n := float64(len(txns))
	var sum float64
	for _, txn := range txns {
		sum += amountFloat(txn)
	}
	mean = sum / n

	var sq float64
	for _, txn := range txns {
		d := amountFloat(txn) - mean
		sq += d * d
	}
	stdDev = math.Sqrt(sq / (n - 1))
	return mean, stdDev
}

func amountFloat(txn models.Transaction) float64 {
	f, _ := txn.Amount.Float64()
	return f
}

// severityFor bands an outlier by how far it sits from the mean:
// below 4 standard deviations is low, 4 to 5 is medium, 5 and beyond
// is high.
func severityFor(z float64) enums.AnomalySeverity {
	abs := math.Abs(z)
	switch {
	case abs >= 5:
		return enums.AnomalySeverityHigh
	case abs >= 4:
		return enums.AnomalySeverityMedium
	default:
		return enums.AnomalySeverityLow
	}
}
