package plans

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

// fullShareBps is 100% in basis points; percentage splits must sum to it.
const fullShareBps = 10000

const (
	// MinPeriodSeconds is the shortest billing cycle a plan may declare.
	MinPeriodSeconds = 600
	// MaxReceivers bounds the payout fan-out of a single plan.
	MaxReceivers = 5
)

type tokenResolver interface {
	IsActive(ctx context.Context, id string) (bool, error)
}

// CreatePlanInput carries the caller-supplied plan definition.
type CreatePlanInput struct {
	Admin         string
	Model         enums.BillingModel
	Name          string
	TokenID       string
	PeriodSeconds int64
	SplitKind     enums.SplitKind
	Amount        int64
	MaxAmount     int64
	MinAllowance  int64
	Receivers     []ReceiverInput
}

// ReceiverInput is one payout line as submitted.
type ReceiverInput struct {
	Account    string
	Amount     int64
	PercentBps int64
}

// ServiceParams groups dependencies for the plan registry.
type ServiceParams struct {
	DB     *db.Client
	Repo   Repository
	Tokens tokenResolver
	Audit  audit.Recorder
	Now    func() time.Time
}

// Service is the plan registry.
type Service struct {
	db     *db.Client
	repo   Repository
	tokens tokenResolver
	audit  audit.Recorder
	now    func() time.Time
}

// NewService builds the plan registry.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Repo == nil || params.Tokens == nil || params.Audit == nil {
		return nil, errors.New("db, repo, tokens and audit are required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		db:     params.DB,
		repo:   params.Repo,
		tokens: params.Tokens,
		audit:  params.Audit,
		now:    params.Now,
	}, nil
}

// CreatePlan validates and persists a new plan owned by input.Admin.
func (s *Service) CreatePlan(ctx context.Context, input CreatePlanInput) (*models.Plan, error) {
	if err := s.validateCreate(ctx, input); err != nil {
		return nil, err
	}

	plan := &models.Plan{
		Model:         input.Model,
		Admin:         input.Admin,
		Name:          input.Name,
		TokenID:       input.TokenID,
		PeriodSeconds: input.PeriodSeconds,
		SplitKind:     input.SplitKind,
		Amount:        input.Amount,
		MaxAmount:     input.MaxAmount,
		MinAllowance:  input.MinAllowance,
	}
	for i, r := range input.Receivers {
		plan.Receivers = append(plan.Receivers, models.PlanReceiver{
			Position:   i,
			Account:    r.Account,
			Amount:     r.Amount,
			PercentBps: r.PercentBps,
		})
	}
	plan.ID = NewPlanID(input.Admin, plan, s.now().UnixNano())
	for i := range plan.Receivers {
		plan.Receivers[i].PlanID = plan.ID
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByID(ctx, plan.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "identical plan already submitted")
		}
		if err := repo.Create(ctx, plan); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventPlanCreated,
			PlanID:  plan.ID,
			TokenID: plan.TokenID,
			Account: plan.Admin,
			Payload: audit.PlanPayload{
				Model:     string(plan.Model),
				Name:      plan.Name,
				Period:    plan.PeriodSeconds,
				SplitKind: string(plan.SplitKind),
				Receivers: receiverLines(plan.Receivers),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) validateCreate(ctx context.Context, input CreatePlanInput) error {
	if input.Admin == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "admin is required")
	}
	if !input.Model.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid billing model")
	}
	if input.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.PeriodSeconds < MinPeriodSeconds {
		return pkgerrors.New(pkgerrors.CodeValidation, "period must be at least 600 seconds")
	}
	if !input.SplitKind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid split kind")
	}
	if err := validateReceivers(input.SplitKind, input.Receivers); err != nil {
		return err
	}
	if err := validateModelParams(input); err != nil {
		return err
	}

	// Plan charges are pulled from standing balances; native value only moves
	// attached to a call, so plans cannot settle in it.
	if input.TokenID == models.NativeTokenID {
		return pkgerrors.New(pkgerrors.CodeValidation, "plans cannot settle in the native token")
	}
	active, err := s.tokens.IsActive(ctx, input.TokenID)
	if err != nil {
		return err
	}
	if !active {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement token is not active")
	}
	return nil
}

func validateReceivers(kind enums.SplitKind, receivers []ReceiverInput) error {
	if len(receivers) == 0 || len(receivers) > MaxReceivers {
		return pkgerrors.New(pkgerrors.CodeValidation, "plans take between 1 and 5 receivers")
	}
	var percentTotal int64
	for _, r := range receivers {
		if r.Account == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "receiver account is required")
		}
		switch kind {
		case enums.SplitKindFixed:
			if r.Amount <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "fixed receiver amounts must be positive")
			}
			if r.PercentBps != 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "fixed split takes amounts, not percentages")
			}
		case enums.SplitKindPercentage:
			if r.PercentBps <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "percentage shares must be positive")
			}
			if r.Amount != 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "percentage split takes shares, not amounts")
			}
			percentTotal += r.PercentBps
		}
	}
	if kind == enums.SplitKindPercentage && percentTotal != fullShareBps {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage shares must sum to 10000 basis points")
	}
	return nil
}

func validateModelParams(input CreatePlanInput) error {
	switch input.Model {
	case enums.BillingModelFixedRecurring:
		if input.SplitKind == enums.SplitKindPercentage && input.Amount <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "percentage-split fixed plans need a positive cycle amount")
		}
		if input.SplitKind == enums.SplitKindFixed && input.Amount != 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "fixed-split plans derive the cycle amount from receivers")
		}
		if input.MaxAmount != 0 || input.MinAllowance != 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "fixed plans take no max amount or allowance floor")
		}
	case enums.BillingModelVariableRecurring:
		if input.SplitKind != enums.SplitKindPercentage {
			return pkgerrors.New(pkgerrors.CodeValidation, "variable plans split by percentage")
		}
		if input.MaxAmount <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "variable plans need a positive per-cycle cap")
		}
		if input.Amount != 0 || input.MinAllowance != 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "variable plans take no fixed amount or allowance floor")
		}
	case enums.BillingModelOnDemand:
		if input.SplitKind != enums.SplitKindPercentage {
			return pkgerrors.New(pkgerrors.CodeValidation, "on-demand plans split by percentage")
		}
		if input.MinAllowance <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "on-demand plans need a positive allowance floor")
		}
		if input.Amount != 0 || input.MaxAmount != 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "on-demand plans take no fixed or max amount")
		}
	}
	return nil
}

// ChangeReceivers swaps a plan's payout lines. For fixed splits the per-cycle
// total must not change, so subscribers keep the price they agreed to.
func (s *Service) ChangeReceivers(ctx context.Context, caller, planID string, receivers []ReceiverInput) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		plan, err := repo.FindByID(ctx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		if plan.Admin != caller {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the plan admin can change receivers")
		}
		if err := validateReceivers(plan.SplitKind, receivers); err != nil {
			return err
		}
		if plan.SplitKind == enums.SplitKindFixed {
			var oldTotal, newTotal int64
			for _, r := range plan.Receivers {
				oldTotal += r.Amount
			}
			for _, r := range receivers {
				newTotal += r.Amount
			}
			if newTotal != oldTotal {
				return pkgerrors.New(pkgerrors.CodeValidation, "receiver change must keep the cycle total unchanged")
			}
		}

		rows := make([]models.PlanReceiver, 0, len(receivers))
		for i, r := range receivers {
			rows = append(rows, models.PlanReceiver{
				PlanID:     planID,
				Position:   i,
				Account:    r.Account,
				Amount:     r.Amount,
				PercentBps: r.PercentBps,
			})
		}
		if err := repo.ReplaceReceivers(ctx, planID, rows); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventPlanReceiversChanged,
			PlanID:  planID,
			Account: caller,
			Payload: audit.PlanPayload{
				Model:     string(plan.Model),
				SplitKind: string(plan.SplitKind),
				Receivers: receiverLines(rows),
			},
		})
	})
}

// GrantPermission delegates a plan capability. Granting an already-held
// permission is a silent no-op.
func (s *Service) GrantPermission(ctx context.Context, caller, planID string, tag enums.PermissionTag, grantee string) error {
	if !tag.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid permission tag")
	}
	if grantee == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "grantee is required")
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.requireAdmin(ctx, repo, caller, planID); err != nil {
			return err
		}
		held, err := repo.HasPermission(ctx, planID, tag, grantee)
		if err != nil {
			return err
		}
		if held {
			return nil
		}
		if err := repo.GrantPermission(ctx, &models.PlanPermission{PlanID: planID, Tag: tag, Account: grantee}); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventPlanPermissionGranted,
			PlanID:  planID,
			Account: caller,
			Payload: audit.PermissionPayload{Tag: string(tag), Grantee: grantee},
		})
	})
}

// RevokePermission removes a delegated capability. Revoking a permission the
// grantee never held is a silent no-op.
func (s *Service) RevokePermission(ctx context.Context, caller, planID string, tag enums.PermissionTag, grantee string) error {
	if !tag.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid permission tag")
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.requireAdmin(ctx, repo, caller, planID); err != nil {
			return err
		}
		held, err := repo.HasPermission(ctx, planID, tag, grantee)
		if err != nil {
			return err
		}
		if !held {
			return nil
		}
		if err := repo.RevokePermission(ctx, planID, tag, grantee); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventPlanPermissionRevoked,
			PlanID:  planID,
			Account: caller,
			Payload: audit.PermissionPayload{Tag: string(tag), Grantee: grantee},
		})
	})
}

func (s *Service) requireAdmin(ctx context.Context, repo Repository, caller, planID string) error {
	plan, err := repo.FindByID(ctx, planID)
	if err != nil {
		return err
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.Admin != caller {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the plan admin can manage permissions")
	}
	return nil
}

// GetPlan returns the plan with its receivers, or nil when absent.
func (s *Service) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByModel returns all plans under one billing model.
func (s *Service) ListByModel(ctx context.Context, model enums.BillingModel) ([]models.Plan, error) {
	if !model.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing model")
	}
	return s.repo.ListByModel(ctx, model)
}

// IsAdmin reports whether account administers the plan.
func (s *Service) IsAdmin(ctx context.Context, planID, account string) (bool, error) {
	plan, err := s.repo.FindByID(ctx, planID)
	if err != nil {
		return false, err
	}
	return plan != nil && plan.Admin == account, nil
}

// HasPermission reports whether account holds the delegated capability.
func (s *Service) HasPermission(ctx context.Context, planID string, tag enums.PermissionTag, account string) (bool, error) {
	return s.repo.HasPermission(ctx, planID, tag, account)
}

func receiverLines(receivers []models.PlanReceiver) []audit.ReceiverLine {
	lines := make([]audit.ReceiverLine, 0, len(receivers))
	for _, r := range receivers {
		amount := r.Amount
		if amount == 0 {
			amount = r.PercentBps
		}
		lines = append(lines, audit.ReceiverLine{Account: r.Account, Amount: amount})
	}
	return lines
}
