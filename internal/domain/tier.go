// internal/domain/tier.go
package domain

import "github.com/shopspring/decimal"

// bpsDenominator scales integer basis points into a decimal fraction.
// A fee of 2% is carried as 200 bps.
var bpsDenominator = decimal.NewFromInt(10_000)

// TierLimit holds the debit ceilings for one user tier. Ceilings are
// externally configured data; the reconciler consults but never mutates them.
type TierLimit struct {
	Tier              string          `json:"tier"`
	SingleTxCeiling   decimal.Decimal `json:"single_tx_ceiling"`
	DailyDebitCeiling decimal.Decimal `json:"daily_debit_ceiling"`
	SettlementFeeBps  int64           `json:"settlement_fee_bps"`
}

// TierPolicy maps tier names to their limits.
type TierPolicy map[string]TierLimit

// Limit returns the limit for tier, falling back to the zero value and false
// when the tier is unknown.
func (p TierPolicy) Limit(tier string) (TierLimit, bool) {
	l, ok := p[tier]
	return l, ok
}

// ApplyFeeBps computes amount * bps / 10_000 using decimal arithmetic.
// Division happens last so repeated computation cannot drift.
func ApplyFeeBps(amount decimal.Decimal, bps int64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(bps)).Div(bpsDenominator)
}
