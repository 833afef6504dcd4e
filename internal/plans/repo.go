package plans

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// Repository handles plan, receiver and plan-permission persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, plan *models.Plan) error
	FindByID(ctx context.Context, id string) (*models.Plan, error)
	ListByModel(ctx context.Context, model enums.BillingModel) ([]models.Plan, error)
	ReplaceReceivers(ctx context.Context, planID string, receivers []models.PlanReceiver) error
	HasPermission(ctx context.Context, planID string, tag enums.PermissionTag, account string) (bool, error)
	GrantPermission(ctx context.Context, perm *models.PlanPermission) error
	RevokePermission(ctx context.Context, planID string, tag enums.PermissionTag, account string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).
		Preload("Receivers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListByModel(ctx context.Context, model enums.BillingModel) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.WithContext(ctx).
		Preload("Receivers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("model = ?", model).
		Order("created_at ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) ReplaceReceivers(ctx context.Context, planID string, receivers []models.PlanReceiver) error {
	if err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Delete(&models.PlanReceiver{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&receivers).Error
}

func (r *repository) HasPermission(ctx context.Context, planID string, tag enums.PermissionTag, account string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PlanPermission{}).
		Where("plan_id = ? AND tag = ? AND account = ?", planID, tag, account).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) GrantPermission(ctx context.Context, perm *models.PlanPermission) error {
	return r.db.WithContext(ctx).Create(perm).Error
}

func (r *repository) RevokePermission(ctx context.Context, planID string, tag enums.PermissionTag, account string) error {
	return r.db.WithContext(ctx).
		Where("plan_id = ? AND tag = ? AND account = ?", planID, tag, account).
		Delete(&models.PlanPermission{}).Error
}
