package benford

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
)

const (
	defaultMinimumSampleSize = 100
	defaultTopN              = 5

	// Pearson chi-square critical values. First digit has 9 buckets
	// (df=8): 15.507 at alpha 0.05 and 20.090 at alpha 0.01. Second
	// digit has 10 buckets (df=9): 16.919 and 21.666 at the same alphas.
	chiSquareLowFirst   = 15.507
	chiSquareHighFirst  = 20.090
	chiSquareLowSecond  = 16.919
	chiSquareHighSecond = 21.666
)

// defaultMinimumMagnitude excludes zero and rounding-noise amounts from
// digit analysis.
var defaultMinimumMagnitude = decimal.NewFromInt(10)

// Options tunes a single analysis pass. Zero values fall back to the
// documented defaults.
type Options struct {
	DigitPosition     enums.DigitPosition
	MinimumMagnitude  decimal.Decimal
	MinimumSampleSize int
	ChiSquareLow      float64
	ChiSquareHigh     float64
	TopN              int
}

func (o Options) withDefaults() Options {
	if o.DigitPosition == "" {
		o.DigitPosition = enums.DigitPositionFirst
	}
	if o.MinimumMagnitude.IsZero() {
		o.MinimumMagnitude = defaultMinimumMagnitude
	}
	if o.MinimumSampleSize <= 0 {
		o.MinimumSampleSize = defaultMinimumSampleSize
	}
	if o.ChiSquareLow <= 0 || o.ChiSquareHigh <= 0 {
		if o.DigitPosition == enums.DigitPositionSecond {
			o.ChiSquareLow = chiSquareLowSecond
			o.ChiSquareHigh = chiSquareHighSecond
		} else {
			o.ChiSquareLow = chiSquareLowFirst
			o.ChiSquareHigh = chiSquareHighFirst
		}
	}
	if o.TopN <= 0 {
		o.TopN = defaultTopN
	}
	return o
}

// BucketStat is the observed-versus-expected breakdown for one digit.
type BucketStat struct {
	Digit         int     `json:"digit"`
	ObservedCount int     `json:"observed_count"`
	ObservedFreq  float64 `json:"observed_freq"`
	ExpectedFreq  float64 `json:"expected_freq"`
	ChiSquareTerm float64 `json:"chi_square_term"`
}

// FlaggedTransaction points at a transaction inside an over-represented
// digit bucket.
type FlaggedTransaction struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Digit         int             `json:"digit"`
	ChiSquareTerm float64         `json:"chi_square_term"`
}

// Result is the outcome of one Benford analysis pass.
type Result struct {
	DigitPosition       enums.DigitPosition         `json:"digit_position"`
	SampleSize          int                         `json:"sample_size"`
	ChiSquare           float64                     `json:"chi_square"`
	DegreesOfFreedom    int                         `json:"degrees_of_freedom"`
	ChiSquareLow        float64                     `json:"chi_square_low"`
	ChiSquareHigh       float64                     `json:"chi_square_high"`
	Classification      enums.BenfordClassification `json:"classification"`
	Buckets             []BucketStat                `json:"buckets"`
	FlaggedTransactions []FlaggedTransaction        `json:"flagged_transactions"`
}

// Analyze tests the digit distribution of transaction amounts against
// the theoretical Benford distribution. Amounts below the minimum
// magnitude in absolute value are excluded before sampling; a filtered
// sample below the minimum size fails with an insufficient-data error
// rather than producing a low-confidence classification.
func Analyze(txns []models.Transaction, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if !opts.DigitPosition.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid digit position %q", opts.DigitPosition))
	}

	expected := expectedDistribution(opts.DigitPosition)
	digits := digitRange(opts.DigitPosition)

	type sampled struct {
		txn   models.Transaction
		digit int
	}
	var sample []sampled
	for _, txn := range txns {
		abs := txn.Amount.Abs()
		if abs.LessThan(opts.MinimumMagnitude) {
			continue
		}
		digit, ok := extractDigit(abs, opts.DigitPosition)
		if !ok {
			continue
		}
		sample = append(sample, sampled{txn: txn, digit: digit})
	}

	if len(sample) < opts.MinimumSampleSize {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientData,
			fmt.Sprintf("benford analysis needs at least %d qualifying transactions, got %d", opts.MinimumSampleSize, len(sample))).
			WithDetails(map[string]any{"qualifying_sample": len(sample)})
	}

	counts := make(map[int]int, len(digits))
	byDigit := make(map[int][]models.Transaction, len(digits))
	for _, s := range sample {
		counts[s.digit]++
		byDigit[s.digit] = append(byDigit[s.digit], s.txn)
	}

	n := float64(len(sample))
	result := &Result{
		DigitPosition:    opts.DigitPosition,
		SampleSize:       len(sample),
		DegreesOfFreedom: len(digits) - 1,
		ChiSquareLow:     opts.ChiSquareLow,
		ChiSquareHigh:    opts.ChiSquareHigh,
		Buckets:          make([]BucketStat, 0, len(digits)),
	}

	for _, d := range digits {
		observed := float64(counts[d])
		expectedCount := n * expected[d]
		term := (observed - expectedCount) * (observed - expectedCount) / expectedCount
		result.ChiSquare += term
		result.Buckets = append(result.Buckets, BucketStat{
			Digit:         d,
			ObservedCount: counts[d],
			ObservedFreq:  observed / n,
			ExpectedFreq:  expected[d],
			ChiSquareTerm: term,
		})
	}

	switch {
	case result.ChiSquare >= opts.ChiSquareHigh:
		result.Classification = enums.BenfordCriticallyNonConforming
	case result.ChiSquare >= opts.ChiSquareLow:
		result.Classification = enums.BenfordNonConforming
	default:
		result.Classification = enums.BenfordConforming
	}

	if result.Classification != enums.BenfordConforming {
		result.FlaggedTransactions = flagTransactions(result.Buckets, byDigit, n, expected, opts.TopN)
	}
	return result, nil
}

// flagTransactions selects, for each over-represented bucket, the
// largest amounts as the most likely contributors. Buckets are ranked
// by their chi-square term so the worst offenders lead the list.
func flagTransactions(buckets []BucketStat, byDigit map[int][]models.Transaction, n float64, expected map[int]float64, topN int) []FlaggedTransaction {
	over := make([]BucketStat, 0, len(buckets))
	for _, b := range buckets {
		if float64(b.ObservedCount) > n*expected[b.Digit] {
			over = append(over, b)
		}
	}
	sort.Slice(over, func(i, j int) bool {
		if over[i].ChiSquareTerm != over[j].ChiSquareTerm {
			return over[i].ChiSquareTerm > over[j].ChiSquareTerm
		}
		return over[i].Digit < over[j].Digit
	})

	var flagged []FlaggedTransaction
	for _, b := range over {
		txns := append([]models.Transaction(nil), byDigit[b.Digit]...)
		sort.Slice(txns, func(i, j int) bool {
			cmp := txns[i].Amount.Abs().Cmp(txns[j].Amount.Abs())
			if cmp != 0 {
				return cmp > 0
			}
			return txns[i].ID.String() < txns[j].ID.String()
		})
		limit := topN
		if limit > len(txns) {
			limit = len(txns)
		}
		for _, txn := range txns[:limit] {
			flagged = append(flagged, FlaggedTransaction{
				TransactionID: txn.ID,
				Amount:        txn.Amount,
				Digit:         b.Digit,
				ChiSquareTerm: b.ChiSquareTerm,
			})
		}
	}
	return flagged
}

func digitRange(position enums.DigitPosition) []int {
	if position == enums.DigitPositionSecond {
		return []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	}
	return []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
}

// expectedDistribution returns the theoretical Benford probabilities
// for the chosen digit position. First digit: P(d) = log10(1 + 1/d).
// Second digit: P(d) = sum over d1 of log10(1 + 1/(10*d1 + d)).
func expectedDistribution(position enums.DigitPosition) map[int]float64 {
	dist := make(map[int]float64, 10)
	if position == enums.DigitPositionSecond {
		for d2 := 0; d2 <= 9; d2++ {
			var p float64
			for d1 := 1; d1 <= 9; d1++ {
				p += math.Log10(1 + 1/float64(10*d1+d2))
			}
			dist[d2] = p
		}
		return dist
	}
	for d := 1; d <= 9; d++ {
		dist[d] = math.Log10(1 + 1/float64(d))
	}
	return dist
}

// extractDigit pulls the requested significant digit out of a positive
// decimal amount. The digit string ignores sign and decimal point, so
// 0.0305 yields first digit 3 and second digit 0.
func extractDigit(abs decimal.Decimal, position enums.DigitPosition) (int, bool) {
	s := abs.String()
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return 0, false
	}
	idx := 0
	if position == enums.DigitPositionSecond {
		idx = 1
		if len(s) < 2 {
			// A bare single significant digit has second digit zero
			// (7 is 7.0).
			return 0, true
		}
	}
	return int(s[idx] - '0'), true
}
