package fees

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

// MaxRateBps is 100% in basis points.
const MaxRateBps = 10000

const cacheTTL = 5 * time.Minute

type ownerGate interface {
	RequireOwner(ctx context.Context, caller string) error
}

// Cache is the optional read-through cache for fee lookups.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	FeeKey(account, paymentType string) string
}

// ServiceParams groups dependencies for the fee schedule.
type ServiceParams struct {
	DB    *db.Client
	Repo  Repository
	Gate  ownerGate
	Audit audit.Recorder
	Cache Cache
}

// Service is the fee-rate lookup table.
type Service struct {
	db    *db.Client
	repo  Repository
	gate  ownerGate
	audit audit.Recorder
	cache Cache
}

// NewService builds the fee schedule. Cache is optional.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Repo == nil || params.Gate == nil || params.Audit == nil {
		return nil, errors.New("db, repo, gate and audit are required")
	}
	return &Service{
		db:    params.DB,
		repo:  params.Repo,
		gate:  params.Gate,
		audit: params.Audit,
		cache: params.Cache,
	}, nil
}

// GetFee returns the rate in basis points for (account, paymentType),
// preferring the account override over the type-wide default. Accounts with
// no schedule entry pay no fee.
func (s *Service) GetFee(ctx context.Context, account string, paymentType enums.PaymentType) (int64, error) {
	return s.GetFeeTx(ctx, nil, account, paymentType)
}

// GetFeeTx is GetFee with the schedule read bound to the caller's
// transaction. The cache stays in front of it; fee rows are written in their
// own transactions, so a cached rate is never an uncommitted read.
func (s *Service) GetFeeTx(ctx context.Context, tx *gorm.DB, account string, paymentType enums.PaymentType) (int64, error) {
	if !paymentType.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment type")
	}

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, s.cache.FeeKey(account, string(paymentType))); err == nil {
			if rate, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
				return rate, nil
			}
		}
	}

	rate, err := s.lookupFee(ctx, s.repo.WithTx(tx), account, paymentType)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, s.cache.FeeKey(account, string(paymentType)), strconv.FormatInt(rate, 10), cacheTTL)
	}
	return rate, nil
}

func (s *Service) lookupFee(ctx context.Context, repo Repository, account string, paymentType enums.PaymentType) (int64, error) {
	override, err := repo.FindOverride(ctx, account, paymentType)
	if err != nil {
		return 0, err
	}
	if override != nil {
		return override.RateBps, nil
	}
	def, err := repo.FindDefault(ctx, paymentType)
	if err != nil {
		return 0, err
	}
	if def != nil {
		return def.RateBps, nil
	}
	return 0, nil
}

// SetDefaultFee sets the type-wide rate.
func (s *Service) SetDefaultFee(ctx context.Context, caller string, paymentType enums.PaymentType, rateBps int64) error {
	if err := s.validateRate(paymentType, rateBps); err != nil {
		return err
	}
	if err := s.gate.RequireOwner(ctx, caller); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpsertDefault(ctx, &models.FeeDefault{PaymentType: paymentType, RateBps: rateBps}); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventFeeUpdated,
			Account: caller,
			Payload: audit.FeePayload{PaymentType: string(paymentType), RateBps: rateBps},
		})
	})
}

// SetAccountFee sets an account-specific rate preferred over the default.
func (s *Service) SetAccountFee(ctx context.Context, caller, account string, paymentType enums.PaymentType, rateBps int64) error {
	if account == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account is required")
	}
	if err := s.validateRate(paymentType, rateBps); err != nil {
		return err
	}
	if err := s.gate.RequireOwner(ctx, caller); err != nil {
		return err
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpsertOverride(ctx, &models.FeeOverride{Account: account, PaymentType: paymentType, RateBps: rateBps}); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventFeeUpdated,
			Account: caller,
			Payload: audit.FeePayload{PaymentType: string(paymentType), Account: account, RateBps: rateBps},
		})
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, s.cache.FeeKey(account, string(paymentType)))
	}
	return nil
}

func (s *Service) validateRate(paymentType enums.PaymentType, rateBps int64) error {
	if !paymentType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment type")
	}
	if rateBps < 0 || rateBps > MaxRateBps {
		return pkgerrors.New(pkgerrors.CodeValidation, "rate must be between 0 and 10000 basis points")
	}
	return nil
}
