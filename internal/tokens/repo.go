package tokens

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
)

// Repository handles token directory persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, token *models.Token) error
	Find(ctx context.Context, id string) (*models.Token, error)
	Update(ctx context.Context, token *models.Token) error
	List(ctx context.Context) ([]models.Token, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a token repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, token *models.Token) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *repository) Find(ctx context.Context, id string) (*models.Token, error) {
	if id == "" {
		return nil, nil
	}
	var token models.Token
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (r *repository) Update(ctx context.Context, token *models.Token) error {
	return r.db.WithContext(ctx).Save(token).Error
}

func (r *repository) List(ctx context.Context) ([]models.Token, error) {
	var tokens []models.Token
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}
