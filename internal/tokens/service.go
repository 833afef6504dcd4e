package tokens

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

type ownerGate interface {
	RequireOwner(ctx context.Context, caller string) error
}

// ServiceParams groups dependencies for the token directory.
type ServiceParams struct {
	DB    *db.Client
	Repo  Repository
	Gate  ownerGate
	Audit audit.Recorder
}

// Service is the supported-token directory.
type Service struct {
	db    *db.Client
	repo  Repository
	gate  ownerGate
	audit audit.Recorder
}

// NewService builds the token directory.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Repo == nil || params.Gate == nil || params.Audit == nil {
		return nil, errors.New("db, repo, gate and audit are required")
	}
	return &Service{db: params.DB, repo: params.Repo, gate: params.Gate, audit: params.Audit}, nil
}

// Add registers a new token. The native token id is reserved.
func (s *Service) Add(ctx context.Context, caller, id, symbol string) (*models.Token, error) {
	if err := s.gate.RequireOwner(ctx, caller); err != nil {
		return nil, err
	}
	if id == "" || symbol == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token id and symbol are required")
	}
	if id == models.NativeTokenID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token id is reserved")
	}

	token := &models.Token{ID: id, Symbol: symbol, Status: enums.TokenStatusActive}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.Find(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "token already exists")
		}
		if err := repo.Create(ctx, token); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventTokenAdded,
			TokenID: id,
			Account: caller,
		})
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Pause stops a token from settling transfers.
func (s *Service) Pause(ctx context.Context, caller, id string) error {
	return s.setStatus(ctx, caller, id, enums.TokenStatusPaused, enums.AuditEventTokenPaused)
}

// Resume reactivates a paused token.
func (s *Service) Resume(ctx context.Context, caller, id string) error {
	return s.setStatus(ctx, caller, id, enums.TokenStatusActive, enums.AuditEventTokenResumed)
}

func (s *Service) setStatus(ctx context.Context, caller, id string, status enums.TokenStatus, eventType enums.AuditEventType) error {
	if err := s.gate.RequireOwner(ctx, caller); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		token, err := repo.Find(ctx, id)
		if err != nil {
			return err
		}
		if token == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "token not found")
		}
		if token.Status == status {
			return nil
		}
		token.Status = status
		if err := repo.Update(ctx, token); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    eventType,
			TokenID: id,
			Account: caller,
		})
	})
}

// Redirect points a retired token at its successor. Redirects are single-hop:
// the target must not itself redirect.
func (s *Service) Redirect(ctx context.Context, caller, id, successor string) error {
	if err := s.gate.RequireOwner(ctx, caller); err != nil {
		return err
	}
	if id == successor {
		return pkgerrors.New(pkgerrors.CodeValidation, "token cannot redirect to itself")
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		token, err := repo.Find(ctx, id)
		if err != nil {
			return err
		}
		if token == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "token not found")
		}
		target, err := repo.Find(ctx, successor)
		if err != nil {
			return err
		}
		if target == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "redirect target not found")
		}
		if target.RedirectTo != "" {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "redirect target already redirects")
		}
		token.RedirectTo = successor
		if err := repo.Update(ctx, token); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:           enums.AuditEventTokenRedirected,
			TokenID:        id,
			Account:        caller,
			CorrelationTag: successor,
		})
	})
}

// Resolve returns the canonical token for id, following one redirect hop.
// The native token resolves to a synthetic always-active entry.
func (s *Service) Resolve(ctx context.Context, id string) (*models.Token, error) {
	return s.ResolveTx(ctx, nil, id)
}

// ResolveTx is Resolve with the directory read bound to the caller's
// transaction. Settlement resolves mid-transaction and must not read through
// a second connection.
func (s *Service) ResolveTx(ctx context.Context, tx *gorm.DB, id string) (*models.Token, error) {
	if id == models.NativeTokenID {
		return &models.Token{ID: models.NativeTokenID, Symbol: models.NativeTokenID, Status: enums.TokenStatusActive}, nil
	}
	repo := s.repo.WithTx(tx)
	token, err := repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, nil
	}
	if token.RedirectTo != "" {
		return repo.Find(ctx, token.RedirectTo)
	}
	return token, nil
}

// IsActive reports whether id resolves to an active token.
func (s *Service) IsActive(ctx context.Context, id string) (bool, error) {
	token, err := s.Resolve(ctx, id)
	if err != nil {
		return false, err
	}
	return token != nil && token.Status == enums.TokenStatusActive, nil
}

// List returns all directory entries.
func (s *Service) List(ctx context.Context) ([]models.Token, error) {
	return s.repo.List(ctx)
}
