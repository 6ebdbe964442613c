// internal/reconciler/limits.go
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/repository"
	"thellex-wallet/internal/util"
	"thellex-wallet/pkg/clock"
)

// LimitChecker enforces tier debit ceilings on outbound transactions. It
// consults the externally configured TierPolicy and never mutates it.
type LimitChecker struct {
	policy domain.TierPolicy
	txRepo repository.TransactionRepository
	clock  clock.Clock
}

// NewLimitChecker creates a checker over the given policy.
func NewLimitChecker(policy domain.TierPolicy, txRepo repository.TransactionRepository, clk clock.Clock) *LimitChecker {
	return &LimitChecker{policy: policy, txRepo: txRepo, clock: clk}
}

// CheckOutbound validates amount against the user's single-transaction
// ceiling and the rolling daily debit ceiling (amount plus the sum of the
// user's same-day completed outbound transactions). A violation is a
// util.ErrLimitExceeded with a user-visible reason; amounts are never
// silently clamped.
func (c *LimitChecker) CheckOutbound(ctx context.Context, q repository.DBExecutor, user *domain.User, assetCode string, amount decimal.Decimal) error {
	limit, ok := c.policy.Limit(user.Tier)
	if !ok {
		return fmt.Errorf("%w: no limit policy for tier %q", util.ErrLimitExceeded, user.Tier)
	}

	if amount.GreaterThan(limit.SingleTxCeiling) {
		return fmt.Errorf("%w: amount %s exceeds single-transaction ceiling %s for tier %s",
			util.ErrLimitExceeded, amount.String(), limit.SingleTxCeiling.String(), user.Tier)
	}

	since := startOfDay(c.clock.Now())
	spent, err := c.txRepo.SumCompletedOutboundSince(ctx, q, user.ID, assetCode, since)
	if err != nil {
		return fmt.Errorf("limit check: failed to sum same-day outbound for user %d: %w", user.ID, err)
	}

	if spent.Add(amount).GreaterThan(limit.DailyDebitCeiling) {
		return fmt.Errorf("%w: amount %s plus same-day debits %s exceeds daily ceiling %s for tier %s",
			util.ErrLimitExceeded, amount.String(), spent.String(), limit.DailyDebitCeiling.String(), user.Tier)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
