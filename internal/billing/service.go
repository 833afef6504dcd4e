package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/internal/plans"
	"github.com/paygrid/paygrid-backend/internal/settlement"
	"github.com/paygrid/paygrid-backend/internal/subscriptions"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
	"github.com/paygrid/paygrid-backend/pkg/logger"
	"github.com/paygrid/paygrid-backend/pkg/metrics"
)

// MaxBatchSubscriptions bounds one billing call.
const MaxBatchSubscriptions = 500

type planSource interface {
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	HasPermission(ctx context.Context, planID string, tag enums.PermissionTag, account string) (bool, error)
}

type roleChecker interface {
	HasRole(ctx context.Context, account string, role enums.Role) (bool, error)
}

type batchSettler interface {
	BatchTransferTx(ctx context.Context, tx *gorm.DB, feeAccount string, inputs []settlement.TransferInput) ([]settlement.Result, error)
}

// ItemResult is the outcome of billing one subscription.
type ItemResult struct {
	SubscriptionID string `json:"subscription_id"`
	Amount         int64  `json:"amount"`
	Fee            int64  `json:"fee"`
	Succeeded      bool   `json:"succeeded"`
	Reason         string `json:"reason,omitempty"`
}

// ServiceParams groups dependencies for the billing engine.
type ServiceParams struct {
	DB         *db.Client
	Subs       subscriptions.Repository
	Plans      planSource
	Roles      roleChecker
	Settlement batchSettler
	Audit      audit.Recorder
	Logger     *logger.Logger
	Metrics    *metrics.EngineMetrics
	Now        func() time.Time
}

// Service is the billing engine. Runs serialize on a mutex so concurrent
// batches cannot interleave ledger reads and writes.
type Service struct {
	db         *db.Client
	subs       subscriptions.Repository
	plans      planSource
	roles      roleChecker
	settlement batchSettler
	audit      audit.Recorder
	log        *logger.Logger
	metrics    *metrics.EngineMetrics
	now        func() time.Time

	mu sync.Mutex
}

// NewService builds the billing engine. Logger and metrics are optional.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Subs == nil || params.Plans == nil ||
		params.Roles == nil || params.Settlement == nil || params.Audit == nil {
		return nil, errors.New("db, subs, plans, roles, settlement and audit are required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		db:         params.DB,
		subs:       params.Subs,
		plans:      params.Plans,
		roles:      params.Roles,
		settlement: params.Settlement,
		audit:      params.Audit,
		log:        params.Logger,
		metrics:    params.Metrics,
		now:        params.Now,
	}, nil
}

// billable is one subscription that passed eligibility and is headed for
// settlement.
type billable struct {
	index  int
	sub    *models.Subscription
	amount int64
}

// Bill charges a batch of subscriptions under one plan. Amounts are ignored
// for fixed-recurring plans and required one-per-subscription otherwise. The
// call is rejected whole on shape problems; per-subscription shortfalls fail
// only their own item.
func (s *Service) Bill(ctx context.Context, caller, planID string, subscriptionIDs []string, amounts []int64) ([]ItemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if err := s.requireBiller(ctx, plan, caller); err != nil {
		return nil, err
	}
	if err := validateBatchShape(plan, subscriptionIDs, amounts); err != nil {
		return nil, err
	}

	now := s.now().Unix()
	results := make([]ItemResult, len(subscriptionIDs))

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.subs.WithTx(tx)

		eligible := make([]billable, 0, len(subscriptionIDs))
		for i, id := range subscriptionIDs {
			var amount int64
			if len(amounts) > 0 {
				amount = amounts[i]
			}
			sub, reason, billAmount, err := s.checkEligibility(ctx, repo, plan, id, amount, now)
			if err != nil {
				return err
			}
			if reason != "" {
				results[i] = ItemResult{SubscriptionID: id, Amount: amount, Reason: reason}
				continue
			}
			eligible = append(eligible, billable{index: i, sub: sub, amount: billAmount})
		}
		if len(eligible) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no billable subscriptions in batch")
		}

		// Legs that floor to zero are dropped; an item with nothing to move,
		// such as a zero-usage close-out, settles vacuously.
		inputs := make([]settlement.TransferInput, 0, len(eligible))
		settled := make([]int, 0, len(eligible))
		for k, b := range eligible {
			legs := payoutLegs(plans.SplitAmount(plan, b.amount))
			if len(legs) == 0 {
				continue
			}
			settled = append(settled, k)
			inputs = append(inputs, settlement.TransferInput{
				TokenID:        plan.TokenID,
				Sender:         b.sub.Account,
				Receivers:      legs,
				PaymentType:    plan.Model.PaymentType(),
				CorrelationTag: b.sub.ID,
			})
		}
		outcomes := make([]settlement.Result, len(eligible))
		for k := range outcomes {
			outcomes[k].Succeeded = true
		}
		if len(inputs) > 0 {
			// The plan admin's negotiated fee rate applies to the whole batch.
			transferred, err := s.settlement.BatchTransferTx(ctx, tx, plan.Admin, inputs)
			if err != nil {
				return err
			}
			for j, k := range settled {
				outcomes[k] = transferred[j]
			}
		}

		for j, b := range eligible {
			outcome := outcomes[j]
			if !outcome.Succeeded {
				results[b.index] = ItemResult{SubscriptionID: b.sub.ID, Amount: b.amount, Reason: outcome.Reason}
				if err := s.recordBilling(tx, plan, b.sub, enums.AuditEventBillingFailed, audit.BillingPayload{
					Amount: b.amount,
					Reason: outcome.Reason,
				}); err != nil {
					return err
				}
				continue
			}
			if err := s.applyBilledState(ctx, tx, repo, plan, b.sub, b.amount, now); err != nil {
				return err
			}
			results[b.index] = ItemResult{SubscriptionID: b.sub.ID, Amount: b.amount, Fee: outcome.Fee, Succeeded: true}
		}
		return nil
	})
	if err != nil {
		s.metrics.IncBillingRun(string(plan.Model), "failed")
		return nil, err
	}

	for _, r := range results {
		if r.Succeeded {
			s.metrics.IncBillingItem(string(plan.Model), "succeeded")
		} else {
			s.metrics.IncBillingItem(string(plan.Model), "failed")
		}
	}
	s.metrics.IncBillingRun(string(plan.Model), "succeeded")
	s.metrics.ObserveBillingDuration(string(plan.Model), s.now().Sub(started))
	if s.log != nil {
		s.log.Info(s.log.WithField(ctx, "plan_id", planID), "billing batch settled")
	}
	return results, nil
}

func (s *Service) requireBiller(ctx context.Context, plan *models.Plan, caller string) error {
	if caller == plan.Admin {
		return nil
	}
	granted, err := s.plans.HasPermission(ctx, plan.ID, enums.PermissionTagBill, caller)
	if err != nil {
		return err
	}
	if granted {
		return nil
	}
	privileged, err := s.roles.HasRole(ctx, caller, enums.RoleNetworkService)
	if err != nil {
		return err
	}
	if privileged {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "caller may not bill this plan")
}

func validateBatchShape(plan *models.Plan, subscriptionIDs []string, amounts []int64) error {
	if len(subscriptionIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch is empty")
	}
	if len(subscriptionIDs) > MaxBatchSubscriptions {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch exceeds 500 subscriptions")
	}
	for _, id := range subscriptionIDs {
		if id == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
		}
	}
	if hasDuplicates(subscriptionIDs) {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch repeats a subscription")
	}
	switch plan.Model {
	case enums.BillingModelFixedRecurring:
		if len(amounts) != 0 && len(amounts) != len(subscriptionIDs) {
			return pkgerrors.New(pkgerrors.CodeValidation, "amounts do not line up with subscriptions")
		}
	default:
		if len(amounts) != len(subscriptionIDs) {
			return pkgerrors.New(pkgerrors.CodeValidation, "amounts do not line up with subscriptions")
		}
	}
	return nil
}

// checkEligibility returns a non-empty reason when the item must fail without
// touching state, or the concrete amount to settle.
func (s *Service) checkEligibility(ctx context.Context, repo subscriptions.Repository, plan *models.Plan, id string, amount, now int64) (*models.Subscription, string, int64, error) {
	sub, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, "", 0, err
	}
	if sub == nil || sub.PlanID != plan.ID {
		return nil, "subscription not found under plan", 0, nil
	}

	switch plan.Model {
	case enums.BillingModelFixedRecurring:
		if !cycleElapsed(sub.CycleStart, plan.PeriodSeconds, now) {
			return nil, "current cycle has not elapsed", 0, nil
		}
		return sub, "", plans.CycleAmount(plan), nil

	case enums.BillingModelVariableRecurring:
		if amount < 0 || amount > plan.MaxAmount {
			return nil, "amount exceeds the plan cap", 0, nil
		}
		// Zero is only the close-out amount of a pending cancellation; a free
		// cycle advance is not a billing.
		if amount == 0 && sub.CancellationRequestedAt == 0 {
			return nil, "zero amount requires a pending cancellation", 0, nil
		}
		if !cycleElapsed(sub.CycleStart, plan.PeriodSeconds, now) && sub.CancellationRequestedAt == 0 {
			return nil, "current cycle has not elapsed", 0, nil
		}
		return sub, "", amount, nil

	case enums.BillingModelOnDemand:
		if amount <= 0 {
			return nil, "amount must be positive", 0, nil
		}
		if amount > sub.Allowance {
			return nil, "amount exceeds the allowance", 0, nil
		}
		if sub.LatestBilling != 0 && sameWindow(sub, plan.PeriodSeconds, now) && sub.Spent+amount > sub.Allowance {
			return nil, "window spending would exceed the allowance", 0, nil
		}
		return sub, "", amount, nil
	}
	return nil, "unknown billing model", 0, nil
}

// cycleElapsed reports whether the cycle anchored at start has fully passed.
// The last second of a cycle is still inside it.
func cycleElapsed(start, period, now int64) bool {
	return start+period-1 < now
}

// sameWindow reports whether now falls in the same allowance window as the
// subscription's latest billing. Windows are anchored at the subscription
// time, not at billings.
func sameWindow(sub *models.Subscription, period, now int64) bool {
	return (now-sub.SubscribedAt)/period == (sub.LatestBilling-sub.SubscribedAt)/period
}

// applyBilledState advances the subscription after a settled charge.
func (s *Service) applyBilledState(ctx context.Context, tx *gorm.DB, repo subscriptions.Repository, plan *models.Plan, sub *models.Subscription, amount, now int64) error {
	switch plan.Model {
	case enums.BillingModelFixedRecurring:
		// Advance by exactly one period so slow billing never shortens the
		// paid-for cycle.
		sub.CycleStart += plan.PeriodSeconds
		if err := repo.Update(ctx, sub); err != nil {
			return err
		}
		return s.recordBilling(tx, plan, sub, enums.AuditEventBillingSucceeded, audit.BillingPayload{
			Amount:        amount,
			NewCycleStart: sub.CycleStart,
		})

	case enums.BillingModelVariableRecurring:
		if sub.CancellationRequestedAt != 0 {
			if err := repo.Delete(ctx, sub.ID); err != nil {
				return err
			}
			if err := s.recordBilling(tx, plan, sub, enums.AuditEventBillingSucceeded, audit.BillingPayload{Amount: amount}); err != nil {
				return err
			}
			return s.audit.Record(tx, audit.RecordInput{
				Type:           enums.AuditEventSubscriptionCancelled,
				PlanID:         plan.ID,
				SubscriptionID: sub.ID,
				Account:        sub.Account,
			})
		}
		sub.CycleStart += plan.PeriodSeconds
		if err := repo.Update(ctx, sub); err != nil {
			return err
		}
		return s.recordBilling(tx, plan, sub, enums.AuditEventBillingSucceeded, audit.BillingPayload{
			Amount:        amount,
			NewCycleStart: sub.CycleStart,
		})

	case enums.BillingModelOnDemand:
		if sub.LatestBilling != 0 && sameWindow(sub, plan.PeriodSeconds, now) {
			sub.Spent += amount
		} else {
			sub.Spent = amount
		}
		sub.LatestBilling = now
		if err := repo.Update(ctx, sub); err != nil {
			return err
		}
		return s.recordBilling(tx, plan, sub, enums.AuditEventBillingSucceeded, audit.BillingPayload{
			Amount:        amount,
			Spent:         sub.Spent,
			LatestBilling: sub.LatestBilling,
		})
	}
	return nil
}

func (s *Service) recordBilling(tx *gorm.DB, plan *models.Plan, sub *models.Subscription, eventType enums.AuditEventType, payload audit.BillingPayload) error {
	return s.audit.Record(tx, audit.RecordInput{
		Type:           eventType,
		PlanID:         plan.ID,
		SubscriptionID: sub.ID,
		TokenID:        plan.TokenID,
		Account:        sub.Account,
		Payload:        payload,
	})
}

// Terminate force-removes a batch of subscriptions without refund. Ids not
// found under the plan are skipped, so a half-stale list still clears what it
// can.
func (s *Service) Terminate(ctx context.Context, caller, planID string, subscriptionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if err := s.requireTerminator(ctx, plan, caller); err != nil {
		return err
	}
	if len(subscriptionIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch is empty")
	}
	if len(subscriptionIDs) > MaxBatchSubscriptions {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch exceeds 500 subscriptions")
	}
	for _, id := range subscriptionIDs {
		if id == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
		}
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.subs.WithTx(tx)
		for _, id := range subscriptionIDs {
			sub, err := repo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if sub == nil || sub.PlanID != planID {
				continue
			}
			if err := repo.Delete(ctx, sub.ID); err != nil {
				return err
			}
			if err := s.audit.Record(tx, audit.RecordInput{
				Type:           enums.AuditEventSubscriptionTerminated,
				PlanID:         planID,
				SubscriptionID: sub.ID,
				Account:        caller,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) requireTerminator(ctx context.Context, plan *models.Plan, caller string) error {
	if caller == plan.Admin {
		return nil
	}
	granted, err := s.plans.HasPermission(ctx, plan.ID, enums.PermissionTagTerminate, caller)
	if err != nil {
		return err
	}
	if granted {
		return nil
	}
	privileged, err := s.roles.HasRole(ctx, caller, enums.RoleNetworkService)
	if err != nil {
		return err
	}
	if privileged {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "caller may not terminate under this plan")
}

func payoutLegs(payouts []plans.Payout) []settlement.ReceiverAmount {
	legs := make([]settlement.ReceiverAmount, 0, len(payouts))
	for _, p := range payouts {
		if p.Amount <= 0 {
			continue
		}
		legs = append(legs, settlement.ReceiverAmount{Account: p.Account, Amount: p.Amount})
	}
	return legs
}
