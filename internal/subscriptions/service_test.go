package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/internal/settlement"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

type fakePlans struct {
	plans map[string]*models.Plan
}

func (f *fakePlans) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	return f.plans[id], nil
}

type fakeSettler struct {
	result      settlement.Result
	err         error
	calls       []settlement.TransferInput
	feeAccounts []string
}

func (f *fakeSettler) TransferTx(ctx context.Context, tx *gorm.DB, feeAccount string, input settlement.TransferInput) (settlement.Result, error) {
	f.feeAccounts = append(f.feeAccounts, feeAccount)
	f.calls = append(f.calls, input)
	return f.result, f.err
}

const epoch = int64(1_700_000_000)

type fixture struct {
	svc     *Service
	repo    Repository
	plans   *fakePlans
	settler *fakeSettler
	now     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Subscription{}, &models.AuditEvent{}))

	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)

	f := &fixture{
		repo:    NewRepository(conn),
		plans:   &fakePlans{plans: map[string]*models.Plan{}},
		settler: &fakeSettler{result: settlement.Result{Succeeded: true}},
		now:     epoch,
	}
	svc, err := NewService(ServiceParams{
		DB:         db.FromConn(conn),
		Repo:       f.repo,
		Plans:      f.plans,
		Settlement: f.settler,
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

func fixedPlan() *models.Plan {
	return &models.Plan{
		ID: "plan-fixed", Model: enums.BillingModelFixedRecurring, Admin: "merchant",
		TokenID: "usdv", PeriodSeconds: 3600, SplitKind: enums.SplitKindFixed,
		Receivers: []models.PlanReceiver{{Account: "merchant", Amount: 1000}},
	}
}

func variablePlan() *models.Plan {
	return &models.Plan{
		ID: "plan-var", Model: enums.BillingModelVariableRecurring, Admin: "merchant",
		TokenID: "usdv", PeriodSeconds: 3600, SplitKind: enums.SplitKindPercentage, MaxAmount: 5000,
		Receivers: []models.PlanReceiver{{Account: "merchant", PercentBps: 10000}},
	}
}

func onDemandPlan() *models.Plan {
	return &models.Plan{
		ID: "plan-od", Model: enums.BillingModelOnDemand, Admin: "merchant",
		TokenID: "usdv", PeriodSeconds: 3600, SplitKind: enums.SplitKindPercentage, MinAllowance: 100,
		Receivers: []models.PlanReceiver{{Account: "merchant", PercentBps: 10000}},
	}
}

func TestSubscribe_FixedChargesFirstCycle(t *testing.T) {
	f := newFixture(t)
	f.addPlan(fixedPlan())
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "alice", "plan-fixed", 0)
	require.NoError(t, err)
	require.Equal(t, epoch, sub.CycleStart)
	require.Equal(t, NewSubscriptionID("plan-fixed", "alice", epoch), sub.ID)

	require.Len(t, f.settler.calls, 1)
	call := f.settler.calls[0]
	require.Equal(t, "alice", call.Sender)
	require.Equal(t, "usdv", call.TokenID)
	require.Equal(t, enums.PaymentTypeFixedRecurring, call.PaymentType)
	require.Equal(t, sub.ID, call.CorrelationTag)
	require.Equal(t, int64(1000), call.Receivers[0].Amount)
	// The plan admin's schedule prices the first charge.
	require.Equal(t, []string{"merchant"}, f.settler.feeAccounts)

	got, err := f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSubscribe_FixedFirstChargeFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.addPlan(fixedPlan())
	f.settler.result = settlement.Result{Succeeded: false, Reason: "insufficient available funds"}
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "alice", "plan-fixed", 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	// Enrollment and the charge commit together; neither survived.
	got, err := f.repo.FindActive(ctx, "plan-fixed", "alice")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSubscribe_VariableDoesNotCharge(t *testing.T) {
	f := newFixture(t)
	f.addPlan(variablePlan())

	sub, err := f.svc.Subscribe(context.Background(), "alice", "plan-var", 0)
	require.NoError(t, err)
	require.Equal(t, epoch, sub.CycleStart)
	require.Empty(t, f.settler.calls)
}

func TestSubscribe_OnDemandAllowanceFloor(t *testing.T) {
	f := newFixture(t)
	f.addPlan(onDemandPlan())
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "alice", "plan-od", 99)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	sub, err := f.svc.Subscribe(ctx, "alice", "plan-od", 500)
	require.NoError(t, err)
	require.Equal(t, int64(500), sub.Allowance)
	require.Zero(t, sub.CycleStart)
	require.Empty(t, f.settler.calls)
}

func TestSubscribe_DuplicateAndMissingPlan(t *testing.T) {
	f := newFixture(t)
	f.addPlan(variablePlan())
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "alice", "plan-var", 0)
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, "alice", "plan-var", 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.Subscribe(ctx, "alice", "plan-nope", 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.addPlan(fixedPlan())
	f.addPlan(variablePlan())
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "alice", "plan-fixed", 0)
	require.NoError(t, err)

	err = f.svc.Cancel(ctx, "mallory", sub.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.Cancel(ctx, "alice", sub.ID))
	got, err := f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	err = f.svc.Cancel(ctx, "alice", sub.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	// Variable subscriptions settle usage in arrears and cannot cancel
	// immediately.
	varSub, err := f.svc.Subscribe(ctx, "alice", "plan-var", 0)
	require.NoError(t, err)
	err = f.svc.Cancel(ctx, "alice", varSub.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRequestCancellation(t *testing.T) {
	f := newFixture(t)
	f.addPlan(fixedPlan())
	f.addPlan(variablePlan())
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "alice", "plan-var", 0)
	require.NoError(t, err)

	f.now = epoch + 100
	require.NoError(t, f.svc.RequestCancellation(ctx, "alice", sub.ID))
	got, err := f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, epoch+100, got.CancellationRequestedAt)

	// Repeat requests keep the original timestamp.
	f.now = epoch + 200
	require.NoError(t, f.svc.RequestCancellation(ctx, "alice", sub.ID))
	got, err = f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, epoch+100, got.CancellationRequestedAt)

	fixedSub, err := f.svc.Subscribe(ctx, "bob", "plan-fixed", 0)
	require.NoError(t, err)
	err = f.svc.RequestCancellation(ctx, "bob", fixedSub.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestChangeAllowance(t *testing.T) {
	f := newFixture(t)
	f.addPlan(onDemandPlan())
	f.addPlan(fixedPlan())
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "alice", "plan-od", 500)
	require.NoError(t, err)

	err = f.svc.ChangeAllowance(ctx, "alice", sub.ID, 50)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, f.svc.ChangeAllowance(ctx, "alice", sub.ID, 2000))
	got, err := f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2000), got.Allowance)

	fixedSub, err := f.svc.Subscribe(ctx, "bob", "plan-fixed", 0)
	require.NoError(t, err)
	err = f.svc.ChangeAllowance(ctx, "bob", fixedSub.ID, 2000)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestLookups(t *testing.T) {
	f := newFixture(t)
	f.addPlan(variablePlan())
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "alice", "plan-var", 0)
	require.NoError(t, err)

	id, err := f.svc.GetSubscriptionID(ctx, "plan-var", "alice")
	require.NoError(t, err)
	require.Equal(t, sub.ID, id)

	id, err = f.svc.GetSubscriptionID(ctx, "plan-var", "bob")
	require.NoError(t, err)
	require.Empty(t, id)

	subscribed, err := f.svc.IsSubscribed(ctx, "plan-var", "alice")
	require.NoError(t, err)
	require.True(t, subscribed)
}
