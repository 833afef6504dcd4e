package subscriptions

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewSubscriptionID derives a content-addressed id from the plan, the
// subscriber and the subscription time.
func NewSubscriptionID(planID, account string, subscribedAt int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", planID, account, subscribedAt)))
	return hex.EncodeToString(sum[:])
}
