package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

type fakeGate struct {
	owners map[string]bool
}

func (f *fakeGate) RequireOwner(ctx context.Context, caller string) error {
	if f.owners[caller] {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
}

func newService(t *testing.T) (*Service, *fakeGate) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Balance{}, &models.Authorization{}, &models.AuditEvent{}))

	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)
	gate := &fakeGate{owners: map[string]bool{"owner": true}}

	svc, err := NewService(ServiceParams{
		DB:    db.FromConn(conn),
		Repo:  NewRepository(conn),
		Gate:  gate,
		Audit: auditSvc,
	})
	require.NoError(t, err)
	return svc, gate
}

func TestCredit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	err := svc.Credit(ctx, "mallory", "usdv", "alice", 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = svc.Credit(ctx, "owner", "usdv", "alice", 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = svc.Credit(ctx, "owner", "", "alice", 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, svc.Credit(ctx, "owner", "usdv", "alice", 100))
	require.NoError(t, svc.Credit(ctx, "owner", "usdv", "alice", 150))
	balance, err := svc.GetBalance(ctx, "usdv", "alice")
	require.NoError(t, err)
	require.Equal(t, int64(250), balance)
}

func TestApprove(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	err := svc.Approve(ctx, "alice", "usdv", -1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = svc.Approve(ctx, "", "usdv", 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, svc.Approve(ctx, "alice", "usdv", 1000))
	authorized, err := svc.GetAuthorization(ctx, "usdv", "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1000), authorized)

	// Approvals replace the standing amount; zero revokes it.
	require.NoError(t, svc.Approve(ctx, "alice", "usdv", 0))
	authorized, err = svc.GetAuthorization(ctx, "usdv", "alice")
	require.NoError(t, err)
	require.Zero(t, authorized)
}
