package plans

import (
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// Payout is a concrete amount owed to one receiver.
type Payout struct {
	Account string
	Amount  int64
}

// SplitAmount resolves a plan's receiver lines into concrete payouts for one
// billing. Fixed splits ignore amount and pay the configured lines; percentage
// splits floor each share, so the sender owes the sum of the floored legs and
// no rounding remainder is ever charged.
func SplitAmount(plan *models.Plan, amount int64) []Payout {
	payouts := make([]Payout, 0, len(plan.Receivers))
	for _, r := range plan.Receivers {
		switch plan.SplitKind {
		case enums.SplitKindFixed:
			payouts = append(payouts, Payout{Account: r.Account, Amount: r.Amount})
		case enums.SplitKindPercentage:
			payouts = append(payouts, Payout{Account: r.Account, Amount: amount * r.PercentBps / fullShareBps})
		}
	}
	return payouts
}

// CycleAmount is the per-billing total of a fixed-recurring plan.
func CycleAmount(plan *models.Plan) int64 {
	if plan.SplitKind == enums.SplitKindPercentage {
		return plan.Amount
	}
	var total int64
	for _, r := range plan.Receivers {
		total += r.Amount
	}
	return total
}
