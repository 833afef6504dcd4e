package settlement

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
)

// SettingsRepository handles keyed engine settings.
type SettingsRepository interface {
	WithTx(tx *gorm.DB) SettingsRepository
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository returns a settings repository bound to the database.
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) WithTx(tx *gorm.DB) SettingsRepository {
	if tx == nil {
		return r
	}
	return &settingsRepository{db: tx}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (string, error) {
	var row models.Setting
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return row.Value, nil
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&models.Setting{Key: key, Value: value}).Error
}
