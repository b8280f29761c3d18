package threewaymatch

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
)

// Fraud signal kinds.
const (
	SignalPriceCeilingExceeded = "price_ceiling_exceeded"
	SignalOverReceipt          = "over_receipt"
)

// Tolerances bound acceptable variance per line. Quantity and price are
// fractions of the ordered values; amount is an absolute currency bound.
// The fraud ceilings are hard limits that raise a rejection
// recommendation on top of the normal line grading.
type Tolerances struct {
	Quantity             decimal.Decimal `json:"quantity"`
	Price                decimal.Decimal `json:"price"`
	Amount               decimal.Decimal `json:"amount"`
	PriceFraudCeiling    decimal.Decimal `json:"price_fraud_ceiling"`
	QuantityFraudCeiling decimal.Decimal `json:"quantity_fraud_ceiling"`
}

// DefaultTolerances returns the documented defaults: 2% quantity, 1%
// price, 100.00 absolute amount, with fraud ceilings at +50% price and
// +10% over-receipt.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Quantity:             decimal.RequireFromString("0.02"),
		Price:                decimal.RequireFromString("0.01"),
		Amount:               decimal.RequireFromString("100.00"),
		PriceFraudCeiling:    decimal.RequireFromString("0.50"),
		QuantityFraudCeiling: decimal.RequireFromString("0.10"),
	}
}

func (t Tolerances) validate() error {
	checks := []struct {
		name  string
		value decimal.Decimal
	}{
		{"quantity", t.Quantity},
		{"price", t.Price},
		{"amount", t.Amount},
		{"price_fraud_ceiling", t.PriceFraudCeiling},
		{"quantity_fraud_ceiling", t.QuantityFraudCeiling},
	}
	for _, c := range checks {
		if c.value.LessThanOrEqual(decimal.Zero) {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("tolerance %s must be positive", c.name))
		}
	}
	return nil
}

// LineResult grades one item key across the three documents.
type LineResult struct {
	ItemKey          string                `json:"item_key"`
	Status           enums.LineMatchStatus `json:"status"`
	QuantityVariance *decimal.Decimal      `json:"quantity_variance,omitempty"`
	PriceVariance    *decimal.Decimal      `json:"price_variance,omitempty"`
	AmountVariance   *decimal.Decimal      `json:"amount_variance,omitempty"`
	Detail           string                `json:"detail,omitempty"`
}

// FraudSignal recommends manual rejection of a match. It never rejects
// by itself.
type FraudSignal struct {
	ItemKey        string          `json:"item_key"`
	Kind           string          `json:"kind"`
	Variance       decimal.Decimal `json:"variance"`
	Ceiling        decimal.Decimal `json:"ceiling"`
	Recommendation string          `json:"recommendation"`
}

// Outcome is the computed result of a three-way match.
type Outcome struct {
	Status       enums.MatchStatus `json:"status"`
	Lines        []LineResult      `json:"lines"`
	FraudSignals []FraudSignal     `json:"fraud_signals"`
	Tolerances   Tolerances        `json:"tolerances"`
}

// ComputeMatch grades a purchase order, goods received note, and invoice
// against each other, resolving lines by item key. A line is matched
// when quantity, price, and amount variances are all within tolerance,
// partial when all are within twice the tolerance, and a discrepancy
// beyond that. A line present in one document but missing its
// counterpart is a discrepancy. The overall status is the worst line
// status.
func ComputeMatch(po models.PurchaseOrder, grn models.GoodsReceivedNote, inv models.Invoice, tol Tolerances) (*Outcome, error) {
	if err := tol.validate(); err != nil {
		return nil, err
	}
	if len(po.Lines) == 0 || len(grn.Lines) == 0 || len(inv.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "all three documents need at least one line")
	}

	poLines := make(map[string]models.PurchaseOrderLine, len(po.Lines))
	for _, l := range po.Lines {
		poLines[l.ItemKey] = l
	}
	grnLines := make(map[string]models.GoodsReceivedNoteLine, len(grn.Lines))
	for _, l := range grn.Lines {
		grnLines[l.ItemKey] = l
	}
	invLines := make(map[string]models.InvoiceLine, len(inv.Lines))
	for _, l := range inv.Lines {
		invLines[l.ItemKey] = l
	}

	outcome := &Outcome{
		Tolerances:   tol,
		FraudSignals: []FraudSignal{},
	}

	for _, key := range unionKeys(poLines, grnLines, invLines) {
		poLine, hasPO := poLines[key]
		grnLine, hasGRN := grnLines[key]
		invLine, hasInv := invLines[key]

		if !hasPO || !hasGRN || !hasInv {
			outcome.Lines = append(outcome.Lines, LineResult{
				ItemKey: key,
				Status:  enums.LineMatchStatusDiscrepancy,
				Detail:  missingDetail(hasPO, hasGRN, hasInv),
			})
			continue
		}

		line, signals := gradeLine(key, poLine, grnLine, invLine, tol)
		outcome.Lines = append(outcome.Lines, line)
		outcome.FraudSignals = append(outcome.FraudSignals, signals...)
	}

	outcome.Status = overallStatus(outcome.Lines)
	return outcome, nil
}

func gradeLine(key string, po models.PurchaseOrderLine, grn models.GoodsReceivedNoteLine, inv models.InvoiceLine, tol Tolerances) (LineResult, []FraudSignal) {
	if po.Quantity.LessThanOrEqual(decimal.Zero) || po.UnitPrice.LessThanOrEqual(decimal.Zero) {
		return LineResult{
			ItemKey: key,
			Status:  enums.LineMatchStatusDiscrepancy,
			Detail:  "ordered quantity and unit price must be positive",
		}, nil
	}

	qtyVar := grn.Quantity.Sub(po.Quantity).Abs().Div(po.Quantity)
	priceVar := inv.UnitPrice.Sub(po.UnitPrice).Abs().Div(po.UnitPrice)
	amountVar := inv.Quantity.Mul(inv.UnitPrice).Sub(po.Quantity.Mul(po.UnitPrice)).Abs()

	line := LineResult{
		ItemKey:          key,
		QuantityVariance: &qtyVar,
		PriceVariance:    &priceVar,
		AmountVariance:   &amountVar,
	}

	two := decimal.NewFromInt(2)
	switch {
	case withinAll(qtyVar, priceVar, amountVar, tol.Quantity, tol.Price, tol.Amount):
		line.Status = enums.LineMatchStatusMatched
	case withinAll(qtyVar, priceVar, amountVar, tol.Quantity.Mul(two), tol.Price.Mul(two), tol.Amount.Mul(two)):
		line.Status = enums.LineMatchStatusPartialMatch
	default:
		line.Status = enums.LineMatchStatusDiscrepancy
	}

	// Fraud heuristics look at signed overruns only: an invoice priced
	// above the order and goods received beyond the ordered quantity.
	var signals []FraudSignal
	priceOverrun := inv.UnitPrice.Sub(po.UnitPrice).Div(po.UnitPrice)
	if priceOverrun.GreaterThan(tol.PriceFraudCeiling) {
		signals = append(signals, FraudSignal{
			ItemKey:        key,
			Kind:           SignalPriceCeilingExceeded,
			Variance:       priceOverrun,
			Ceiling:        tol.PriceFraudCeiling,
			Recommendation: "invoice unit price exceeds the ordered price beyond the fraud ceiling; review and reject if unjustified",
		})
	}
	qtyOverrun := grn.Quantity.Sub(po.Quantity).Div(po.Quantity)
	if qtyOverrun.GreaterThan(tol.QuantityFraudCeiling) {
		signals = append(signals, FraudSignal{
			ItemKey:        key,
			Kind:           SignalOverReceipt,
			Variance:       qtyOverrun,
			Ceiling:        tol.QuantityFraudCeiling,
			Recommendation: "received quantity exceeds the ordered quantity beyond the fraud ceiling; review and reject if unjustified",
		})
	}
	return line, signals
}

func withinAll(qtyVar, priceVar, amountVar, qtyBound, priceBound, amountBound decimal.Decimal) bool {
	return qtyVar.LessThanOrEqual(qtyBound) &&
		priceVar.LessThanOrEqual(priceBound) &&
		amountVar.LessThanOrEqual(amountBound)
}

func overallStatus(lines []LineResult) enums.MatchStatus {
	status := enums.MatchStatusMatched
	for _, line := range lines {
		switch line.Status {
		case enums.LineMatchStatusDiscrepancy:
			return enums.MatchStatusDiscrepancy
		case enums.LineMatchStatusPartialMatch:
			status = enums.MatchStatusPartialMatch
		}
	}
	return status
}

func missingDetail(hasPO, hasGRN, hasInv bool) string {
	missing := ""
	appendDoc := func(name string) {
		if missing != "" {
			missing += ", "
		}
		missing += name
	}
	if !hasPO {
		appendDoc("purchase order")
	}
	if !hasGRN {
		appendDoc("goods received note")
	}
	if !hasInv {
		appendDoc("invoice")
	}
	return "line missing from " + missing
}

// unionKeys returns the sorted union of item keys across the three
// documents.
func unionKeys(po map[string]models.PurchaseOrderLine, grn map[string]models.GoodsReceivedNoteLine, inv map[string]models.InvoiceLine) []string {
	seen := make(map[string]struct{})
	for k := range po {
		seen[k] = struct{}{}
	}
	for k := range grn {
		seen[k] = struct{}{}
	}
	for k := range inv {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
