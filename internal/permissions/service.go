package permissions

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

// Checker is the read surface other services guard privileged calls with.
type Checker interface {
	HasRole(ctx context.Context, account string, role enums.Role) (bool, error)
}

// ServiceParams groups dependencies for the permission gate.
type ServiceParams struct {
	DB    *db.Client
	Repo  Repository
	Audit audit.Recorder
}

// Service is the platform-wide role gate.
type Service struct {
	db    *db.Client
	repo  Repository
	audit audit.Recorder
}

// NewService builds the permission gate.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Repo == nil || params.Audit == nil {
		return nil, errors.New("db, repo and audit are required")
	}
	return &Service{db: params.DB, repo: params.Repo, audit: params.Audit}, nil
}

// HasRole reports whether account holds role.
func (s *Service) HasRole(ctx context.Context, account string, role enums.Role) (bool, error) {
	if account == "" || !role.IsValid() {
		return false, nil
	}
	return s.repo.Has(ctx, account, role)
}

// RequireOwner rejects callers without the owner role.
func (s *Service) RequireOwner(ctx context.Context, caller string) error {
	ok, err := s.HasRole(ctx, caller, enums.RoleOwner)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking role")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
	}
	return nil
}

// GrantRole grants a role to an account. Granting an already-held role is a
// silent no-op.
func (s *Service) GrantRole(ctx context.Context, caller, account string, role enums.Role) error {
	if account == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account is required")
	}
	if !role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if err := s.RequireOwner(ctx, caller); err != nil {
		return err
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		held, err := repo.Has(ctx, account, role)
		if err != nil {
			return err
		}
		if held {
			return nil
		}
		if err := repo.Grant(ctx, account, role); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventRoleGranted,
			Account: caller,
			Payload: audit.PermissionPayload{Role: string(role), Grantee: account},
		})
	})
}

// RevokeRole removes a role from an account. Revoking an absent role is a
// silent no-op.
func (s *Service) RevokeRole(ctx context.Context, caller, account string, role enums.Role) error {
	if account == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account is required")
	}
	if !role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if err := s.RequireOwner(ctx, caller); err != nil {
		return err
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		held, err := repo.Has(ctx, account, role)
		if err != nil {
			return err
		}
		if !held {
			return nil
		}
		if err := repo.Revoke(ctx, account, role); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventRoleRevoked,
			Account: caller,
			Payload: audit.PermissionPayload{Role: string(role), Grantee: account},
		})
	})
}
