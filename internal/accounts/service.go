package accounts

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

type ownerGate interface {
	RequireOwner(ctx context.Context, caller string) error
}

// ServiceParams groups dependencies for the accounts ledger.
type ServiceParams struct {
	DB    *db.Client
	Repo  Repository
	Gate  ownerGate
	Audit audit.Recorder
}

// Service exposes balance funding and settlement authorization.
type Service struct {
	db    *db.Client
	repo  Repository
	gate  ownerGate
	audit audit.Recorder
}

// NewService builds the accounts ledger service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Repo == nil || params.Gate == nil || params.Audit == nil {
		return nil, errors.New("db, repo, gate and audit are required")
	}
	return &Service{db: params.DB, repo: params.Repo, gate: params.Gate, audit: params.Audit}, nil
}

// Credit deposits funds into an account's token balance. Owner-gated: funds
// enter the ledger through operational deposit reconciliation, not user calls.
func (s *Service) Credit(ctx context.Context, caller, tokenID, account string, amount int64) error {
	if err := s.gate.RequireOwner(ctx, caller); err != nil {
		return err
	}
	if tokenID == "" || account == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "token and account are required")
	}
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.AddBalance(ctx, tokenID, account, amount); err != nil {
			return err
		}
		balance, err := repo.Balance(ctx, tokenID, account)
		if err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventBalanceCredited,
			TokenID: tokenID,
			Account: account,
			Payload: audit.LedgerPayload{Amount: amount, NewBalance: balance},
		})
	})
}

// Approve sets the caller's standing authorization to the settlement engine.
func (s *Service) Approve(ctx context.Context, caller, tokenID string, amount int64) error {
	if caller == "" || tokenID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "caller and token are required")
	}
	if amount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be negative")
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.SetAuthorization(ctx, tokenID, caller, amount); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventAuthorizationChanged,
			TokenID: tokenID,
			Account: caller,
			Payload: audit.LedgerPayload{Amount: amount},
		})
	})
}

// GetBalance returns the account's balance in the token.
func (s *Service) GetBalance(ctx context.Context, tokenID, account string) (int64, error) {
	return s.repo.Balance(ctx, tokenID, account)
}

// GetAuthorization returns the account's standing settlement authorization.
func (s *Service) GetAuthorization(ctx context.Context, tokenID, account string) (int64, error) {
	return s.repo.Authorization(ctx, tokenID, account)
}
