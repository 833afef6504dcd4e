package plans

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
)

// NewPlanID derives a content-addressed id from the creator, the plan
// parameters and a creation nonce. Identical submissions in the same
// nanosecond collide on purpose so duplicate creates surface as conflicts.
func NewPlanID(admin string, plan *models.Plan, nonce int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%d|%s|%d|%d|%d|%d",
		admin, plan.Model, plan.Name, plan.TokenID, plan.PeriodSeconds,
		plan.SplitKind, plan.Amount, plan.MaxAmount, plan.MinAllowance, nonce)
	for _, r := range plan.Receivers {
		fmt.Fprintf(&b, "|%s:%d:%d", r.Account, r.Amount, r.PercentBps)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
