package fees

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// Repository handles fee schedule persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindDefault(ctx context.Context, paymentType enums.PaymentType) (*models.FeeDefault, error)
	FindOverride(ctx context.Context, account string, paymentType enums.PaymentType) (*models.FeeOverride, error)
	UpsertDefault(ctx context.Context, fee *models.FeeDefault) error
	UpsertOverride(ctx context.Context, fee *models.FeeOverride) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a fee repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindDefault(ctx context.Context, paymentType enums.PaymentType) (*models.FeeDefault, error) {
	var fee models.FeeDefault
	err := r.db.WithContext(ctx).
		Where("payment_type = ?", paymentType).
		First(&fee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fee, nil
}

func (r *repository) FindOverride(ctx context.Context, account string, paymentType enums.PaymentType) (*models.FeeOverride, error) {
	var fee models.FeeOverride
	err := r.db.WithContext(ctx).
		Where("account = ? AND payment_type = ?", account, paymentType).
		First(&fee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fee, nil
}

func (r *repository) UpsertDefault(ctx context.Context, fee *models.FeeDefault) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate_bps", "updated_at"}),
		}).
		Create(fee).Error
}

func (r *repository) UpsertOverride(ctx context.Context, fee *models.FeeOverride) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "payment_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate_bps", "updated_at"}),
		}).
		Create(fee).Error
}
