package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	"github.com/paygrid/paygrid-backend/pkg/pagination"
)

// Repository handles audit event persistence.
type Repository interface {
	Insert(tx *gorm.DB, event *models.AuditEvent) error
	List(ctx context.Context, params ListQuery) ([]models.AuditEvent, *pagination.Cursor, error)
	ListUnpublished(ctx context.Context, limit int) ([]models.AuditEvent, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// ListQuery filters the audit trail.
type ListQuery struct {
	Type    *enums.AuditEventType
	PlanID  string
	Account string
	Limit   int
	Cursor  *pagination.Cursor
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(tx *gorm.DB, event *models.AuditEvent) error {
	return tx.Create(event).Error
}

func (r *repository) List(ctx context.Context, params ListQuery) ([]models.AuditEvent, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.AuditEvent{})
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.PlanID != "" {
		query = query.Where("plan_id = ?", params.PlanID)
	}
	if params.Account != "" {
		query = query.Where("account = ?", params.Account)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var events []models.AuditEvent
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&events).Error; err != nil {
		return nil, nil, err
	}

	if len(events) > limit {
		next := events[limit]
		events = events[:limit]
		return events, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return events, nil, nil
}

func (r *repository) ListUnpublished(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.AuditEvent
	if err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.AuditEvent{}).
		Where("id IN ?", ids).
		Update("published_at", at).Error
}
