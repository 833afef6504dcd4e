package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/accounts"
	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/internal/settlement"
	"github.com/paygrid/paygrid-backend/internal/subscriptions"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

type fakePlans struct {
	plans   map[string]*models.Plan
	granted map[string]bool // planID|tag|account
}

func (f *fakePlans) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	return f.plans[id], nil
}

func (f *fakePlans) HasPermission(ctx context.Context, planID string, tag enums.PermissionTag, account string) (bool, error) {
	return f.granted[planID+"|"+string(tag)+"|"+account], nil
}

type fakeRoles struct {
	services map[string]bool
}

func (f *fakeRoles) HasRole(ctx context.Context, account string, role enums.Role) (bool, error) {
	return role == enums.RoleNetworkService && f.services[account], nil
}

type fakeResolver struct{}

func (fakeResolver) ResolveTx(ctx context.Context, tx *gorm.DB, id string) (*models.Token, error) {
	return &models.Token{ID: id, Status: enums.TokenStatusActive}, nil
}

type zeroFees struct{}

func (zeroFees) GetFeeTx(ctx context.Context, tx *gorm.DB, account string, paymentType enums.PaymentType) (int64, error) {
	return 0, nil
}

type openGate struct{}

func (openGate) RequireOwner(ctx context.Context, caller string) error { return nil }

const epoch = int64(1_700_000_000)

type fixture struct {
	svc      *Service
	plans    *fakePlans
	roles    *fakeRoles
	subs     subscriptions.Repository
	accounts accounts.Repository
	now      int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(
		&models.Subscription{},
		&models.Balance{},
		&models.Authorization{},
		&models.Setting{},
		&models.AuditEvent{},
	))
	client := db.FromConn(conn)

	accountsRepo := accounts.NewRepository(conn)
	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)

	settlementSvc, err := settlement.NewService(settlement.ServiceParams{
		DB:       client,
		Accounts: accountsRepo,
		Tokens:   fakeResolver{},
		Fees:     zeroFees{},
		Settings: settlement.NewSettingsRepository(conn),
		Gate:     openGate{},
		Audit:    auditSvc,
	})
	require.NoError(t, err)

	f := &fixture{
		plans:    &fakePlans{plans: map[string]*models.Plan{}, granted: map[string]bool{}},
		roles:    &fakeRoles{services: map[string]bool{}},
		subs:     subscriptions.NewRepository(conn),
		accounts: accountsRepo,
		now:      epoch,
	}
	svc, err := NewService(ServiceParams{
		DB:         client,
		Subs:       f.subs,
		Plans:      f.plans,
		Roles:      f.roles,
		Settlement: settlementSvc,
		Audit:      auditSvc,
		Now:        func() time.Time { return time.Unix(f.now, 0) },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) addPlan(plan *models.Plan) {
	f.plans.plans[plan.ID] = plan
}

func (f *fixture) addSub(t *testing.T, sub *models.Subscription) {
	t.Helper()
	require.NoError(t, f.subs.Create(context.Background(), sub))
}

func (f *fixture) fund(t *testing.T, tokenID, account string, amount int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.accounts.AddBalance(ctx, tokenID, account, amount))
	require.NoError(t, f.accounts.SetAuthorization(ctx, tokenID, account, amount))
}

func (f *fixture) sub(t *testing.T, id string) *models.Subscription {
	t.Helper()
	sub, err := f.subs.FindByID(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func fixedPlan() *models.Plan {
	return &models.Plan{
		ID:            "plan-fixed",
		Model:         enums.BillingModelFixedRecurring,
		Admin:         "merchant",
		TokenID:       "usdv",
		PeriodSeconds: 3600,
		SplitKind:     enums.SplitKindFixed,
		Receivers: []models.PlanReceiver{
			{PlanID: "plan-fixed", Position: 0, Account: "merchant", Amount: 700},
			{PlanID: "plan-fixed", Position: 1, Account: "partner", Amount: 300},
		},
	}
}

func variablePlan() *models.Plan {
	return &models.Plan{
		ID:            "plan-var",
		Model:         enums.BillingModelVariableRecurring,
		Admin:         "merchant",
		TokenID:       "usdv",
		PeriodSeconds: 3600,
		SplitKind:     enums.SplitKindPercentage,
		MaxAmount:     5000,
		Receivers: []models.PlanReceiver{
			{PlanID: "plan-var", Position: 0, Account: "merchant", PercentBps: 10000},
		},
	}
}

func onDemandPlan() *models.Plan {
	return &models.Plan{
		ID:            "plan-od",
		Model:         enums.BillingModelOnDemand,
		Admin:         "merchant",
		TokenID:       "usdv",
		PeriodSeconds: 3600,
		SplitKind:     enums.SplitKindPercentage,
		MinAllowance:  100,
		Receivers: []models.PlanReceiver{
			{PlanID: "plan-od", Position: 0, Account: "merchant", PercentBps: 10000},
		},
	}
}

func TestBill_FixedRecurringAdvancesCycle(t *testing.T) {
	f := newFixture(t)
	plan := fixedPlan()
	f.addPlan(plan)
	f.addSub(t, &models.Subscription{
		ID: "sub-1", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})
	f.fund(t, "usdv", "alice", 1000)

	results, err := f.svc.Bill(context.Background(), "merchant", plan.ID, []string{"sub-1"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Succeeded)
	require.Equal(t, int64(1000), results[0].Amount)

	// The cycle advances by exactly one period from its anchor, not to now.
	require.Equal(t, epoch-7200+3600, f.sub(t, "sub-1").CycleStart)

	balance, err := f.accounts.Balance(context.Background(), "usdv", "merchant")
	require.NoError(t, err)
	require.Equal(t, int64(700), balance)
}

func TestBill_FixedRecurringCycleNotElapsed(t *testing.T) {
	f := newFixture(t)
	plan := fixedPlan()
	f.addPlan(plan)
	// The last second of a cycle is still inside it.
	f.addSub(t, &models.Subscription{
		ID: "sub-1", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch - 3599, CycleStart: epoch - 3599,
	})
	f.fund(t, "usdv", "alice", 1000)

	_, err := f.svc.Bill(context.Background(), "merchant", plan.ID, []string{"sub-1"}, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, epoch-3599, f.sub(t, "sub-1").CycleStart)
}

func TestBill_ShortfallFailsItemOnly(t *testing.T) {
	f := newFixture(t)
	plan := fixedPlan()
	f.addPlan(plan)
	f.addSub(t, &models.Subscription{
		ID: "sub-1", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})
	f.addSub(t, &models.Subscription{
		ID: "sub-2", PlanID: plan.ID, Account: "broke",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})
	f.fund(t, "usdv", "alice", 1000)
	f.fund(t, "usdv", "broke", 5)

	results, err := f.svc.Bill(context.Background(), "merchant", plan.ID, []string{"sub-1", "sub-2"}, nil)
	require.NoError(t, err)
	require.True(t, results[0].Succeeded)
	require.False(t, results[1].Succeeded)
	require.NotEmpty(t, results[1].Reason)

	// The failed subscriber keeps both funds and cycle anchor.
	require.Equal(t, epoch-7200, f.sub(t, "sub-2").CycleStart)
	balance, err := f.accounts.Balance(context.Background(), "usdv", "broke")
	require.NoError(t, err)
	require.Equal(t, int64(5), balance)
}

func TestBill_VariableRespectsCapAndCancellation(t *testing.T) {
	f := newFixture(t)
	plan := variablePlan()
	f.addPlan(plan)
	f.addSub(t, &models.Subscription{
		ID: "sub-over", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})
	f.addSub(t, &models.Subscription{
		ID: "sub-bye", PlanID: plan.ID, Account: "bob",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 600,
		CancellationRequestedAt: epoch - 300,
	})
	f.fund(t, "usdv", "alice", 10_000)
	f.fund(t, "usdv", "bob", 10_000)

	// First item exceeds the plan cap and fails; second is a zero close-out
	// for a pending cancellation inside an unelapsed cycle.
	results, err := f.svc.Bill(context.Background(), "merchant", plan.ID, []string{"sub-over", "sub-bye"}, []int64{6000, 0})
	require.NoError(t, err)
	require.False(t, results[0].Succeeded)
	require.Equal(t, "amount exceeds the plan cap", results[0].Reason)
	require.True(t, results[1].Succeeded)

	// The close-out removes the subscription without moving funds.
	require.Nil(t, f.sub(t, "sub-bye"))
	balance, err := f.accounts.Balance(context.Background(), "usdv", "bob")
	require.NoError(t, err)
	require.Equal(t, int64(10_000), balance)
}

func TestBill_VariableChargeAdvancesCycle(t *testing.T) {
	f := newFixture(t)
	plan := variablePlan()
	f.addPlan(plan)
	f.addSub(t, &models.Subscription{
		ID: "sub-1", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})
	f.fund(t, "usdv", "alice", 10_000)

	results, err := f.svc.Bill(context.Background(), "merchant", plan.ID, []string{"sub-1"}, []int64{4200})
	require.NoError(t, err)
	require.True(t, results[0].Succeeded)
	require.Equal(t, int64(4200), results[0].Amount)
	require.Equal(t, epoch-7200+3600, f.sub(t, "sub-1").CycleStart)
}

func TestBill_OnDemandWindowSpending(t *testing.T) {
	f := newFixture(t)
	plan := onDemandPlan()
	f.addPlan(plan)
	f.addSub(t, &models.Subscription{
		ID: "sub-1", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch - 1800, Allowance: 1000,
	})
	f.fund(t, "usdv", "alice", 10_000)
	ctx := context.Background()

	results, err := f.svc.Bill(ctx, "merchant", plan.ID, []string{"sub-1"}, []int64{600})
	require.NoError(t, err)
	require.True(t, results[0].Succeeded)
	require.Equal(t, int64(600), f.sub(t, "sub-1").Spent)

	// Still inside the same window: 600 already spent, 500 more would breach
	// the 1000 allowance.
	f.now = epoch + 60
	_, err = f.svc.Bill(ctx, "merchant", plan.ID, []string{"sub-1"}, []int64{500})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	// 400 more fits exactly.
	results, err = f.svc.Bill(ctx, "merchant", plan.ID, []string{"sub-1"}, []int64{400})
	require.NoError(t, err)
	require.True(t, results[0].Succeeded)
	require.Equal(t, int64(1000), f.sub(t, "sub-1").Spent)

	// A new window resets spending. Windows anchor at the subscription time.
	f.now = epoch + 1800 + 1
	results, err = f.svc.Bill(ctx, "merchant", plan.ID, []string{"sub-1"}, []int64{900})
	require.NoError(t, err)
	require.True(t, results[0].Succeeded)
	require.Equal(t, int64(900), f.sub(t, "sub-1").Spent)
}

func TestBill_BatchShapeRejections(t *testing.T) {
	f := newFixture(t)
	f.addPlan(fixedPlan())
	f.addPlan(variablePlan())
	ctx := context.Background()

	tests := []struct {
		name    string
		planID  string
		ids     []string
		amounts []int64
	}{
		{name: "empty batch", planID: "plan-fixed", ids: nil},
		{name: "blank id", planID: "plan-fixed", ids: []string{""}},
		{name: "duplicate id", planID: "plan-fixed", ids: []string{"a", "b", "a"}},
		{name: "fixed amounts mismatch", planID: "plan-fixed", ids: []string{"a", "b"}, amounts: []int64{1}},
		{name: "variable missing amounts", planID: "plan-var", ids: []string{"a"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Bill(ctx, "merchant", tc.planID, tc.ids, tc.amounts)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestBill_CallerAuthorization(t *testing.T) {
	f := newFixture(t)
	plan := fixedPlan()
	f.addPlan(plan)
	f.addSub(t, &models.Subscription{
		ID: "sub-1", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})
	f.fund(t, "usdv", "alice", 5000)
	ctx := context.Background()

	_, err := f.svc.Bill(ctx, "stranger", plan.ID, []string{"sub-1"}, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	// A delegated bill permission opens the gate.
	f.plans.granted[plan.ID+"|"+string(enums.PermissionTagBill)+"|delegate"] = true
	_, err = f.svc.Bill(ctx, "delegate", plan.ID, []string{"sub-1"}, nil)
	require.NoError(t, err)

	// So does the network-service role.
	f.addSub(t, &models.Subscription{
		ID: "sub-2", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})
	f.roles.services["sweeper"] = true
	_, err = f.svc.Bill(ctx, "sweeper", plan.ID, []string{"sub-2"}, nil)
	require.NoError(t, err)
}

func TestBill_WrongPlanSubscription(t *testing.T) {
	f := newFixture(t)
	f.addPlan(fixedPlan())
	f.addPlan(variablePlan())
	f.addSub(t, &models.Subscription{
		ID: "sub-other", PlanID: "plan-var", Account: "alice",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})

	// The only item belongs to another plan, so nothing is billable.
	_, err := f.svc.Bill(context.Background(), "merchant", "plan-fixed", []string{"sub-other"}, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestBill_VariableZeroNeedsPendingCancellation(t *testing.T) {
	f := newFixture(t)
	plan := variablePlan()
	f.addPlan(plan)
	f.addSub(t, &models.Subscription{
		ID: "sub-pay", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})
	f.addSub(t, &models.Subscription{
		ID: "sub-free", PlanID: plan.ID, Account: "bob",
		SubscribedAt: epoch - 7200, CycleStart: epoch - 7200,
	})
	f.fund(t, "usdv", "alice", 10_000)

	// Zero without a pending cancellation must not advance the cycle for free.
	results, err := f.svc.Bill(context.Background(), "merchant", plan.ID, []string{"sub-pay", "sub-free"}, []int64{1000, 0})
	require.NoError(t, err)
	require.True(t, results[0].Succeeded)
	require.False(t, results[1].Succeeded)
	require.Equal(t, "zero amount requires a pending cancellation", results[1].Reason)
	require.Equal(t, epoch-7200, f.sub(t, "sub-free").CycleStart)
}

func TestTerminate(t *testing.T) {
	f := newFixture(t)
	plan := fixedPlan()
	f.addPlan(plan)
	f.addPlan(variablePlan())
	f.addSub(t, &models.Subscription{
		ID: "sub-1", PlanID: plan.ID, Account: "alice",
		SubscribedAt: epoch, CycleStart: epoch,
	})
	f.addSub(t, &models.Subscription{
		ID: "sub-2", PlanID: plan.ID, Account: "bob",
		SubscribedAt: epoch, CycleStart: epoch,
	})
	f.addSub(t, &models.Subscription{
		ID: "sub-other", PlanID: "plan-var", Account: "carol",
		SubscribedAt: epoch, CycleStart: epoch,
	})
	ctx := context.Background()

	err := f.svc.Terminate(ctx, "stranger", plan.ID, []string{"sub-1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = f.svc.Terminate(ctx, "merchant", plan.ID, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = f.svc.Terminate(ctx, "merchant", plan.ID, []string{""})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	// Unknown ids and ids under other plans are skipped; the rest are removed.
	require.NoError(t, f.svc.Terminate(ctx, "merchant", plan.ID, []string{"sub-1", "ghost", "sub-other", "sub-2"}))
	require.Nil(t, f.sub(t, "sub-1"))
	require.Nil(t, f.sub(t, "sub-2"))
	require.NotNil(t, f.sub(t, "sub-other"))

	// Re-terminating an already cleared list is a no-op.
	require.NoError(t, f.svc.Terminate(ctx, "merchant", plan.ID, []string{"sub-1"}))
}
