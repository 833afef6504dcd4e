package audit

// ReceiverLine is one payout leg of a transfer as audited.
type ReceiverLine struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// TransferPayload captures the identifying and quantitative fields of a
// settlement item, successful or failed.
type TransferPayload struct {
	TokenID        string         `json:"token_id"`
	Sender         string         `json:"sender"`
	Receivers      []ReceiverLine `json:"receivers"`
	TotalAmount    int64          `json:"total_amount"`
	FeeRateBps     int64          `json:"fee_rate_bps,omitempty"`
	TotalFee       int64          `json:"total_fee,omitempty"`
	PaymentType    string         `json:"payment_type"`
	CorrelationTag string         `json:"correlation_tag,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

// BillingPayload captures one billing outcome for a subscription.
type BillingPayload struct {
	Amount        int64  `json:"amount"`
	NewCycleStart int64  `json:"new_cycle_start,omitempty"`
	Spent         int64  `json:"spent,omitempty"`
	LatestBilling int64  `json:"latest_billing,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// PlanPayload captures plan creation and receiver changes.
type PlanPayload struct {
	Model     string         `json:"model"`
	Name      string         `json:"name,omitempty"`
	Period    int64          `json:"period_seconds,omitempty"`
	SplitKind string         `json:"split_kind,omitempty"`
	Receivers []ReceiverLine `json:"receivers,omitempty"`
}

// PermissionPayload captures plan permission and role changes.
type PermissionPayload struct {
	Tag     string `json:"tag,omitempty"`
	Role    string `json:"role,omitempty"`
	Grantee string `json:"grantee"`
}

// SubscriptionPayload captures subscription lifecycle changes.
type SubscriptionPayload struct {
	Allowance    int64 `json:"allowance,omitempty"`
	SubscribedAt int64 `json:"subscribed_at,omitempty"`
	CycleStart   int64 `json:"cycle_start,omitempty"`
}

// FeePayload captures fee schedule changes.
type FeePayload struct {
	PaymentType string `json:"payment_type"`
	Account     string `json:"account,omitempty"`
	RateBps     int64  `json:"rate_bps"`
}

// LedgerPayload captures balance credits and authorization changes.
type LedgerPayload struct {
	Amount     int64 `json:"amount"`
	NewBalance int64 `json:"new_balance,omitempty"`
}
