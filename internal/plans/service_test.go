package plans

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

type fakeTokens struct {
	inactive map[string]bool
}

func (f *fakeTokens) IsActive(ctx context.Context, id string) (bool, error) {
	return !f.inactive[id], nil
}

func newService(t *testing.T) (*Service, *fakeTokens) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(
		&models.Plan{},
		&models.PlanReceiver{},
		&models.PlanPermission{},
		&models.AuditEvent{},
	))

	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)
	tokens := &fakeTokens{inactive: map[string]bool{}}

	nonce := time.Unix(1_700_000_000, 0)
	svc, err := NewService(ServiceParams{
		DB:     db.FromConn(conn),
		Repo:   NewRepository(conn),
		Tokens: tokens,
		Audit:  auditSvc,
		Now:    func() time.Time { nonce = nonce.Add(time.Second); return nonce },
	})
	require.NoError(t, err)
	return svc, tokens
}

func validFixedInput() CreatePlanInput {
	return CreatePlanInput{
		Admin:         "merchant",
		Model:         enums.BillingModelFixedRecurring,
		Name:          "gold",
		TokenID:       "usdv",
		PeriodSeconds: 3600,
		SplitKind:     enums.SplitKindFixed,
		Receivers: []ReceiverInput{
			{Account: "merchant", Amount: 700},
			{Account: "partner", Amount: 300},
		},
	}
}

func TestCreatePlan(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, validFixedInput())
	require.NoError(t, err)
	require.NotEmpty(t, plan.ID)
	require.Len(t, plan.ID, 64)

	got, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "merchant", got.Admin)
	require.Len(t, got.Receivers, 2)
	require.Equal(t, "merchant", got.Receivers[0].Account)

	admin, err := svc.IsAdmin(ctx, plan.ID, "merchant")
	require.NoError(t, err)
	require.True(t, admin)
}

func TestCreatePlan_Validation(t *testing.T) {
	svc, tokens := newService(t)
	tokens.inactive["paused"] = true
	ctx := context.Background()

	mutate := func(fn func(*CreatePlanInput)) CreatePlanInput {
		input := validFixedInput()
		fn(&input)
		return input
	}

	tests := []struct {
		name  string
		input CreatePlanInput
	}{
		{"missing admin", mutate(func(i *CreatePlanInput) { i.Admin = "" })},
		{"missing name", mutate(func(i *CreatePlanInput) { i.Name = "" })},
		{"bad model", mutate(func(i *CreatePlanInput) { i.Model = "weekly" })},
		{"period too short", mutate(func(i *CreatePlanInput) { i.PeriodSeconds = 599 })},
		{"no receivers", mutate(func(i *CreatePlanInput) { i.Receivers = nil })},
		{"too many receivers", mutate(func(i *CreatePlanInput) {
			i.Receivers = make([]ReceiverInput, 6)
			for j := range i.Receivers {
				i.Receivers[j] = ReceiverInput{Account: "r", Amount: 1}
			}
		})},
		{"fixed receiver with share", mutate(func(i *CreatePlanInput) {
			i.Receivers[0].PercentBps = 100
		})},
		{"inactive token", mutate(func(i *CreatePlanInput) { i.TokenID = "paused" })},
		{"native token", mutate(func(i *CreatePlanInput) { i.TokenID = models.NativeTokenID })},
		{"fixed split with cycle amount", mutate(func(i *CreatePlanInput) { i.Amount = 500 })},
		{"fixed plan with cap", mutate(func(i *CreatePlanInput) { i.MaxAmount = 500 })},
		{"percentage shares off 10000", CreatePlanInput{
			Admin: "merchant", Model: enums.BillingModelFixedRecurring, Name: "gold",
			TokenID: "usdv", PeriodSeconds: 3600, SplitKind: enums.SplitKindPercentage, Amount: 1000,
			Receivers: []ReceiverInput{{Account: "a", PercentBps: 6000}, {Account: "b", PercentBps: 3000}},
		}},
		{"variable without cap", CreatePlanInput{
			Admin: "merchant", Model: enums.BillingModelVariableRecurring, Name: "metered",
			TokenID: "usdv", PeriodSeconds: 3600, SplitKind: enums.SplitKindPercentage,
			Receivers: []ReceiverInput{{Account: "a", PercentBps: 10000}},
		}},
		{"variable with fixed split", CreatePlanInput{
			Admin: "merchant", Model: enums.BillingModelVariableRecurring, Name: "metered",
			TokenID: "usdv", PeriodSeconds: 3600, SplitKind: enums.SplitKindFixed, MaxAmount: 100,
			Receivers: []ReceiverInput{{Account: "a", Amount: 100}},
		}},
		{"on-demand without floor", CreatePlanInput{
			Admin: "merchant", Model: enums.BillingModelOnDemand, Name: "payg",
			TokenID: "usdv", PeriodSeconds: 3600, SplitKind: enums.SplitKindPercentage,
			Receivers: []ReceiverInput{{Account: "a", PercentBps: 10000}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreatePlan(ctx, tc.input)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestCreatePlan_DuplicateSubmission(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// Pin the clock so both submissions hash identically.
	fixed := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return fixed }

	_, err := svc.CreatePlan(ctx, validFixedInput())
	require.NoError(t, err)
	_, err = svc.CreatePlan(ctx, validFixedInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestChangeReceivers(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	plan, err := svc.CreatePlan(ctx, validFixedInput())
	require.NoError(t, err)

	err = svc.ChangeReceivers(ctx, "stranger", plan.ID, []ReceiverInput{{Account: "x", Amount: 1000}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	// A fixed-split change must keep the per-cycle total at 1000.
	err = svc.ChangeReceivers(ctx, "merchant", plan.ID, []ReceiverInput{{Account: "merchant", Amount: 1200}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.ChangeReceivers(ctx, "merchant", plan.ID, []ReceiverInput{
		{Account: "merchant", Amount: 500},
		{Account: "charity", Amount: 500},
	})
	require.NoError(t, err)

	got, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, got.Receivers, 2)
	require.Equal(t, "charity", got.Receivers[1].Account)
	require.Equal(t, int64(500), got.Receivers[1].Amount)
}

func TestPlanPermissions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	plan, err := svc.CreatePlan(ctx, validFixedInput())
	require.NoError(t, err)

	err = svc.GrantPermission(ctx, "stranger", plan.ID, enums.PermissionTagBill, "delegate")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, svc.GrantPermission(ctx, "merchant", plan.ID, enums.PermissionTagBill, "delegate"))
	// Granting again is a silent no-op.
	require.NoError(t, svc.GrantPermission(ctx, "merchant", plan.ID, enums.PermissionTagBill, "delegate"))

	held, err := svc.HasPermission(ctx, plan.ID, enums.PermissionTagBill, "delegate")
	require.NoError(t, err)
	require.True(t, held)

	held, err = svc.HasPermission(ctx, plan.ID, enums.PermissionTagTerminate, "delegate")
	require.NoError(t, err)
	require.False(t, held)

	require.NoError(t, svc.RevokePermission(ctx, "merchant", plan.ID, enums.PermissionTagBill, "delegate"))
	// Revoking an absent grant is a silent no-op.
	require.NoError(t, svc.RevokePermission(ctx, "merchant", plan.ID, enums.PermissionTagBill, "delegate"))

	held, err = svc.HasPermission(ctx, plan.ID, enums.PermissionTagBill, "delegate")
	require.NoError(t, err)
	require.False(t, held)
}

func TestListByModel(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreatePlan(ctx, validFixedInput())
	require.NoError(t, err)

	list, err := svc.ListByModel(ctx, enums.BillingModelFixedRecurring)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = svc.ListByModel(ctx, enums.BillingModelOnDemand)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = svc.ListByModel(ctx, "weekly")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
