package subscriptions

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/internal/plans"
	"github.com/paygrid/paygrid-backend/internal/settlement"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

type planReader interface {
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
}

type settler interface {
	TransferTx(ctx context.Context, tx *gorm.DB, feeAccount string, input settlement.TransferInput) (settlement.Result, error)
}

// ServiceParams groups dependencies for the subscription ledger.
type ServiceParams struct {
	DB         *db.Client
	Repo       Repository
	Plans      planReader
	Settlement settler
	Audit      audit.Recorder
	Now        func() time.Time
}

// Service is the subscription ledger.
type Service struct {
	db         *db.Client
	repo       Repository
	plans      planReader
	settlement settler
	audit      audit.Recorder
	now        func() time.Time
}

// NewService builds the subscription ledger.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Repo == nil || params.Plans == nil ||
		params.Settlement == nil || params.Audit == nil {
		return nil, errors.New("db, repo, plans, settlement and audit are required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		db:         params.DB,
		repo:       params.Repo,
		plans:      params.Plans,
		settlement: params.Settlement,
		audit:      params.Audit,
		now:        params.Now,
	}, nil
}

// Subscribe enrolls caller in a plan. Fixed-recurring plans charge the first
// cycle synchronously; enrollment and the charge commit or fail together.
// On-demand plans require an allowance of at least the plan's floor; the
// allowance argument is ignored for the other models.
func (s *Service) Subscribe(ctx context.Context, caller, planID string, allowance int64) (*models.Subscription, error) {
	if caller == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "caller is required")
	}
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.Model == enums.BillingModelOnDemand && allowance < plan.MinAllowance {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "allowance is below the plan floor")
	}

	now := s.now().Unix()
	sub := &models.Subscription{
		ID:           NewSubscriptionID(planID, caller, now),
		PlanID:       planID,
		Account:      caller,
		SubscribedAt: now,
	}
	switch plan.Model {
	case enums.BillingModelFixedRecurring, enums.BillingModelVariableRecurring:
		sub.CycleStart = now
	case enums.BillingModelOnDemand:
		sub.Allowance = allowance
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindActive(ctx, planID, caller)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "account already subscribes to this plan")
		}
		if err := repo.Create(ctx, sub); err != nil {
			return err
		}

		if plan.Model == enums.BillingModelFixedRecurring {
			// The plan admin's negotiated fee rate applies to plan charges.
			result, err := s.settlement.TransferTx(ctx, tx, plan.Admin, settlement.TransferInput{
				TokenID:        plan.TokenID,
				Sender:         caller,
				Receivers:      payoutLegs(plans.SplitAmount(plan, plans.CycleAmount(plan))),
				PaymentType:    plan.Model.PaymentType(),
				CorrelationTag: sub.ID,
			})
			if err != nil {
				return err
			}
			if !result.Succeeded {
				return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "first cycle charge failed: "+result.Reason)
			}
		}

		return s.audit.Record(tx, audit.RecordInput{
			Type:           enums.AuditEventSubscriptionCreated,
			PlanID:         planID,
			SubscriptionID: sub.ID,
			TokenID:        plan.TokenID,
			Account:        caller,
			Payload: audit.SubscriptionPayload{
				Allowance:    sub.Allowance,
				SubscribedAt: sub.SubscribedAt,
				CycleStart:   sub.CycleStart,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel removes the caller's subscription immediately. Variable-recurring
// subscriptions settle usage in arrears, so they cancel through
// RequestCancellation instead.
func (s *Service) Cancel(ctx context.Context, caller, subscriptionID string) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, plan, err := s.findOwned(ctx, repo, caller, subscriptionID)
		if err != nil {
			return err
		}
		if plan.Model == enums.BillingModelVariableRecurring {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "variable plans cancel at the next billing")
		}
		if err := repo.Delete(ctx, sub.ID); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:           enums.AuditEventSubscriptionCancelled,
			PlanID:         sub.PlanID,
			SubscriptionID: sub.ID,
			Account:        caller,
		})
	})
}

// RequestCancellation marks a variable-recurring subscription to end at its
// next successful billing. Repeat requests are silent no-ops.
func (s *Service) RequestCancellation(ctx context.Context, caller, subscriptionID string) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, plan, err := s.findOwned(ctx, repo, caller, subscriptionID)
		if err != nil {
			return err
		}
		if plan.Model != enums.BillingModelVariableRecurring {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only variable plans cancel at the next billing")
		}
		if sub.CancellationRequestedAt != 0 {
			return nil
		}
		sub.CancellationRequestedAt = s.now().Unix()
		if err := repo.Update(ctx, sub); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:           enums.AuditEventCancellationRequested,
			PlanID:         sub.PlanID,
			SubscriptionID: sub.ID,
			Account:        caller,
		})
	})
}

// ChangeAllowance resets the caller's on-demand spending cap. Already-spent
// amounts stay spent; billing enforces the new cap from the next charge.
func (s *Service) ChangeAllowance(ctx context.Context, caller, subscriptionID string, allowance int64) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, plan, err := s.findOwned(ctx, repo, caller, subscriptionID)
		if err != nil {
			return err
		}
		if plan.Model != enums.BillingModelOnDemand {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only on-demand subscriptions carry an allowance")
		}
		if allowance < plan.MinAllowance {
			return pkgerrors.New(pkgerrors.CodeValidation, "allowance is below the plan floor")
		}
		sub.Allowance = allowance
		if err := repo.Update(ctx, sub); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:           enums.AuditEventAllowanceUpdated,
			PlanID:         sub.PlanID,
			SubscriptionID: sub.ID,
			Account:        caller,
			Payload:        audit.SubscriptionPayload{Allowance: allowance},
		})
	})
}

func (s *Service) findOwned(ctx context.Context, repo Repository, caller, subscriptionID string) (*models.Subscription, *models.Plan, error) {
	sub, err := repo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, nil, err
	}
	if sub == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.Account != caller {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another account")
	}
	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, nil, err
	}
	if plan == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	return sub, plan, nil
}

// GetSubscription returns the subscription, or nil when absent.
func (s *Service) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	return s.repo.FindByID(ctx, id)
}

// GetSubscriptionID returns the id of account's active subscription to the
// plan, empty when none exists.
func (s *Service) GetSubscriptionID(ctx context.Context, planID, account string) (string, error) {
	sub, err := s.repo.FindActive(ctx, planID, account)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", nil
	}
	return sub.ID, nil
}

// IsSubscribed reports whether account actively subscribes to the plan.
func (s *Service) IsSubscribed(ctx context.Context, planID, account string) (bool, error) {
	sub, err := s.repo.FindActive(ctx, planID, account)
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

// payoutLegs drops zero legs: a share small enough to floor to nothing is not
// a payout.
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
