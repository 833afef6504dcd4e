package accounts

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
)

// Repository handles balance and authorization persistence. Mutations are
// read-modify-write; callers serialize access by running inside the engine's
// settlement transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Balance(ctx context.Context, tokenID, account string) (int64, error)
	Authorization(ctx context.Context, tokenID, account string) (int64, error)
	AddBalance(ctx context.Context, tokenID, account string, delta int64) error
	SetAuthorization(ctx context.Context, tokenID, account string, amount int64) error
	AddAuthorization(ctx context.Context, tokenID, account string, delta int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an accounts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Balance(ctx context.Context, tokenID, account string) (int64, error) {
	var row models.Balance
	err := r.db.WithContext(ctx).
		Where("token_id = ? AND account = ?", tokenID, account).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Amount, nil
}

func (r *repository) Authorization(ctx context.Context, tokenID, account string) (int64, error) {
	var row models.Authorization
	err := r.db.WithContext(ctx).
		Where("token_id = ? AND account = ?", tokenID, account).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Amount, nil
}

func (r *repository) AddBalance(ctx context.Context, tokenID, account string, delta int64) error {
	current, err := r.Balance(ctx, tokenID, account)
	if err != nil {
		return err
	}
	next := current + delta
	if next < 0 {
		return fmt.Errorf("balance of %s in %s would go negative", account, tokenID)
	}
	row := models.Balance{TokenID: tokenID, Account: account, Amount: next}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *repository) SetAuthorization(ctx context.Context, tokenID, account string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("authorization cannot be negative")
	}
	row := models.Authorization{TokenID: tokenID, Account: account, Amount: amount}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *repository) AddAuthorization(ctx context.Context, tokenID, account string, delta int64) error {
	current, err := r.Authorization(ctx, tokenID, account)
	if err != nil {
		return err
	}
	next := current + delta
	if next < 0 {
		return fmt.Errorf("authorization of %s in %s would go negative", account, tokenID)
	}
	return r.SetAuthorization(ctx, tokenID, account, next)
}
