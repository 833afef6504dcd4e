package permissions

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// Repository handles role grant persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Has(ctx context.Context, account string, role enums.Role) (bool, error)
	Grant(ctx context.Context, account string, role enums.Role) error
	Revoke(ctx context.Context, account string, role enums.Role) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a role repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Has(ctx context.Context, account string, role enums.Role) (bool, error) {
	var grant models.RoleGrant
	err := r.db.WithContext(ctx).
		Where("account = ? AND role = ?", account, role).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) Grant(ctx context.Context, account string, role enums.Role) error {
	return r.db.WithContext(ctx).Create(&models.RoleGrant{Account: account, Role: role}).Error
}

func (r *repository) Revoke(ctx context.Context, account string, role enums.Role) error {
	return r.db.WithContext(ctx).
		Where("account = ? AND role = ?", account, role).
		Delete(&models.RoleGrant{}).Error
}
