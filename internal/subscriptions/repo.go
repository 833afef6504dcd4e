package subscriptions

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// DueRef identifies one subscription the sweep should bill.
type DueRef struct {
	SubscriptionID string
	PlanID         string
}

// Repository handles subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id string) (*models.Subscription, error)
	FindActive(ctx context.Context, planID, account string) (*models.Subscription, error)
	Update(ctx context.Context, sub *models.Subscription) error
	Delete(ctx context.Context, id string) error
	ListByPlan(ctx context.Context, planID string) ([]models.Subscription, error)
	ListDue(ctx context.Context, model enums.BillingModel, now int64, limit int) ([]DueRef, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindActive(ctx context.Context, planID, account string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND account = ?", planID, account).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) Update(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Subscription{}).Error
}

func (r *repository) ListByPlan(ctx context.Context, planID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("subscribed_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// ListDue returns subscriptions under the model whose current cycle has
// elapsed, oldest cycle first.
func (r *repository) ListDue(ctx context.Context, model enums.BillingModel, now int64, limit int) ([]DueRef, error) {
	var refs []DueRef
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Select("subscriptions.id AS subscription_id, subscriptions.plan_id AS plan_id").
		Joins("JOIN plans ON plans.id = subscriptions.plan_id").
		Where("plans.model = ?", model).
		Where("subscriptions.cycle_start + plans.period_seconds - 1 < ?", now).
		Order("subscriptions.cycle_start ASC").
		Limit(limit).
		Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}
