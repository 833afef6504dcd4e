package settlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/accounts"
	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

type fakeResolver struct {
	tokens map[string]*models.Token
}

func (f *fakeResolver) ResolveTx(ctx context.Context, tx *gorm.DB, id string) (*models.Token, error) {
	if id == models.NativeTokenID {
		return &models.Token{ID: models.NativeTokenID, Status: enums.TokenStatusActive}, nil
	}
	token, ok := f.tokens[id]
	if !ok {
		return nil, nil
	}
	if token.RedirectTo != "" {
		return f.tokens[token.RedirectTo], nil
	}
	return token, nil
}

// fakeFees records which account's schedule was consulted.
type fakeFees struct {
	rate      int64
	byAccount map[string]int64
	queried   []string
}

func (f *fakeFees) GetFeeTx(ctx context.Context, tx *gorm.DB, account string, paymentType enums.PaymentType) (int64, error) {
	f.queried = append(f.queried, account)
	if rate, ok := f.byAccount[account]; ok {
		return rate, nil
	}
	return f.rate, nil
}

type allowAllGate struct{}

func (allowAllGate) RequireOwner(ctx context.Context, caller string) error { return nil }

type denyGate struct{}

func (denyGate) RequireOwner(ctx context.Context, caller string) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
}

func testClient(t *testing.T) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// A single connection makes any read that escapes the transaction hang
	// instead of silently succeeding on a second connection.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(
		&models.Balance{},
		&models.Authorization{},
		&models.Setting{},
		&models.AuditEvent{},
	))
	return db.FromConn(conn)
}

type fixture struct {
	client   *db.Client
	svc      *Service
	accounts accounts.Repository
	fees     *fakeFees
	resolver *fakeResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := testClient(t)
	accountsRepo := accounts.NewRepository(client.DB())
	auditSvc, err := audit.NewService(audit.NewRepository(client.DB()))
	require.NoError(t, err)

	resolver := &fakeResolver{tokens: map[string]*models.Token{
		"usdv": {ID: "usdv", Symbol: "USDV", Status: enums.TokenStatusActive},
	}}
	fees := &fakeFees{}

	svc, err := NewService(ServiceParams{
		DB:       client,
		Accounts: accountsRepo,
		Tokens:   resolver,
		Fees:     fees,
		Settings: NewSettingsRepository(client.DB()),
		Gate:     allowAllGate{},
		Audit:    auditSvc,
	})
	require.NoError(t, err)
	return &fixture{client: client, svc: svc, accounts: accountsRepo, fees: fees, resolver: resolver}
}

func (f *fixture) fund(t *testing.T, tokenID, account string, balance, authorized int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.accounts.AddBalance(ctx, tokenID, account, balance))
	if authorized > 0 {
		require.NoError(t, f.accounts.SetAuthorization(ctx, tokenID, account, authorized))
	}
}

func (f *fixture) balance(t *testing.T, tokenID, account string) int64 {
	t.Helper()
	amount, err := f.accounts.Balance(context.Background(), tokenID, account)
	require.NoError(t, err)
	return amount
}

func (f *fixture) authorization(t *testing.T, tokenID, account string) int64 {
	t.Helper()
	amount, err := f.accounts.Authorization(context.Background(), tokenID, account)
	require.NoError(t, err)
	return amount
}

func TestTransfer_FeeSplitConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SetFeeCollector(ctx, "owner", "collector"))
	f.fees.rate = 250 // 2.5%
	f.fund(t, "usdv", "alice", 10_000, 10_000)

	result, err := f.svc.Transfer(ctx, "merchant", TransferInput{
		TokenID: "usdv",
		Sender:  "alice",
		Receivers: []ReceiverAmount{
			{Account: "bob", Amount: 1800},
			{Account: "carol", Amount: 200},
		},
		PaymentType: enums.PaymentTypeOneTime,
	})
	require.NoError(t, err)
	require.True(t, result.Succeeded)
	require.Equal(t, int64(2000), result.Amount)
	// floor(1800*250/10000)=45, floor(200*250/10000)=5
	require.Equal(t, int64(50), result.Fee)

	require.Equal(t, int64(8000), f.balance(t, "usdv", "alice"))
	require.Equal(t, int64(1755), f.balance(t, "usdv", "bob"))
	require.Equal(t, int64(195), f.balance(t, "usdv", "carol"))
	require.Equal(t, int64(50), f.balance(t, "usdv", "collector"))
	// Receivers net plus the fee equals what the sender paid.
	require.Equal(t, int64(2000), f.balance(t, "usdv", "bob")+f.balance(t, "usdv", "carol")+f.balance(t, "usdv", "collector"))
	// Authorization is consumed by the pull.
	require.Equal(t, int64(8000), f.authorization(t, "usdv", "alice"))
	// The rate came from the fee account's schedule, not the sender's.
	require.Equal(t, []string{"merchant"}, f.fees.queried)
}

func TestTransfer_NoCollectorNoFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fees.rate = 250
	f.fund(t, "usdv", "alice", 1000, 1000)

	result, err := f.svc.Transfer(ctx, "merchant", TransferInput{
		TokenID:     "usdv",
		Sender:      "alice",
		Receivers:   []ReceiverAmount{{Account: "bob", Amount: 1000}},
		PaymentType: enums.PaymentTypeOneTime,
	})
	require.NoError(t, err)
	require.True(t, result.Succeeded)
	require.Zero(t, result.Fee)
	require.Equal(t, int64(1000), f.balance(t, "usdv", "bob"))
}

func TestTransfer_InsufficientAvailableFailsItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Balance covers the total but the standing authorization does not.
	f.fund(t, "usdv", "alice", 5000, 300)

	result, err := f.svc.Transfer(ctx, "", TransferInput{
		TokenID:     "usdv",
		Sender:      "alice",
		Receivers:   []ReceiverAmount{{Account: "bob", Amount: 500}},
		PaymentType: enums.PaymentTypeOneTime,
	})
	require.NoError(t, err)
	require.False(t, result.Succeeded)
	require.Equal(t, "insufficient available funds", result.Reason)
	require.Equal(t, int64(5000), f.balance(t, "usdv", "alice"))
	require.Zero(t, f.balance(t, "usdv", "bob"))
	require.Equal(t, int64(300), f.authorization(t, "usdv", "alice"))
}

func TestTransfer_ShapeAndTokenRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.tokens["paused"] = &models.Token{ID: "paused", Status: enums.TokenStatusPaused}

	tests := []struct {
		name  string
		input TransferInput
		code  pkgerrors.Code
	}{
		{
			name:  "missing sender",
			input: TransferInput{TokenID: "usdv", Receivers: []ReceiverAmount{{Account: "bob", Amount: 1}}, PaymentType: enums.PaymentTypeOneTime},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "no receivers",
			input: TransferInput{TokenID: "usdv", Sender: "alice", PaymentType: enums.PaymentTypeOneTime},
			code:  pkgerrors.CodeValidation,
		},
		{
			name: "zero amount leg",
			input: TransferInput{TokenID: "usdv", Sender: "alice",
				Receivers: []ReceiverAmount{{Account: "bob", Amount: 0}}, PaymentType: enums.PaymentTypeOneTime},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "native token without attached value",
			input: TransferInput{TokenID: models.NativeTokenID, Sender: "alice",
				Receivers: []ReceiverAmount{{Account: "bob", Amount: 1}}, PaymentType: enums.PaymentTypeOneTime},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "unknown token",
			input: TransferInput{TokenID: "nope", Sender: "alice",
				Receivers: []ReceiverAmount{{Account: "bob", Amount: 1}}, PaymentType: enums.PaymentTypeOneTime},
			code: pkgerrors.CodeNotFound,
		},
		{
			name: "paused token",
			input: TransferInput{TokenID: "paused", Sender: "alice",
				Receivers: []ReceiverAmount{{Account: "bob", Amount: 1}}, PaymentType: enums.PaymentTypeOneTime},
			code: pkgerrors.CodeStateConflict,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Transfer(ctx, "", tc.input)
			require.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

func TestTransfer_RedirectedTokenSettlesCanonical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.tokens["usdv2"] = &models.Token{ID: "usdv2", Symbol: "USDV2", Status: enums.TokenStatusActive}
	f.resolver.tokens["usdv"].RedirectTo = "usdv2"
	// Funds and authorization live under the canonical id.
	f.fund(t, "usdv2", "alice", 1000, 1000)

	result, err := f.svc.Transfer(ctx, "", TransferInput{
		TokenID:     "usdv",
		Sender:      "alice",
		Receivers:   []ReceiverAmount{{Account: "bob", Amount: 400}},
		PaymentType: enums.PaymentTypeOneTime,
	})
	require.NoError(t, err)
	require.True(t, result.Succeeded)
	require.Equal(t, int64(600), f.balance(t, "usdv2", "alice"))
	require.Equal(t, int64(400), f.balance(t, "usdv2", "bob"))
}

func TestBatchTransfer_ItemsSettleIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "usdv", "alice", 1000, 1000)
	f.fund(t, "usdv", "poor", 10, 10)

	results, err := f.svc.BatchTransfer(ctx, "", []TransferInput{
		{TokenID: "usdv", Sender: "alice", Receivers: []ReceiverAmount{{Account: "bob", Amount: 600}}, PaymentType: enums.PaymentTypeOneTime},
		{TokenID: "usdv", Sender: "poor", Receivers: []ReceiverAmount{{Account: "bob", Amount: 600}}, PaymentType: enums.PaymentTypeOneTime},
		{TokenID: "usdv", Sender: "alice", Receivers: []ReceiverAmount{{Account: "carol", Amount: 400}}, PaymentType: enums.PaymentTypeOneTime},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.True(t, results[0].Succeeded)
	require.False(t, results[1].Succeeded)
	require.True(t, results[2].Succeeded)

	require.Zero(t, f.balance(t, "usdv", "alice"))
	require.Equal(t, int64(10), f.balance(t, "usdv", "poor"))
	require.Equal(t, int64(600), f.balance(t, "usdv", "bob"))
	require.Equal(t, int64(400), f.balance(t, "usdv", "carol"))
}

func TestBatchTransfer_FeeAccountSharedByAllSenders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SetFeeCollector(ctx, "owner", "collector"))
	// Sender-keyed overrides would charge alice and bob different fees for
	// identical amounts; the call-level fee account must apply to both.
	f.fees.byAccount = map[string]int64{"merchant": 500, "alice": 0, "bob": 1000}
	f.fund(t, "usdv", "alice", 1000, 1000)
	f.fund(t, "usdv", "bob", 1000, 1000)

	results, err := f.svc.BatchTransfer(ctx, "merchant", []TransferInput{
		{TokenID: "usdv", Sender: "alice", Receivers: []ReceiverAmount{{Account: "carol", Amount: 1000}}, PaymentType: enums.PaymentTypeOneTime},
		{TokenID: "usdv", Sender: "bob", Receivers: []ReceiverAmount{{Account: "carol", Amount: 1000}}, PaymentType: enums.PaymentTypeOneTime},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, int64(50), results[0].Fee)
	require.Equal(t, results[0].Fee, results[1].Fee)
	require.Equal(t, int64(100), f.balance(t, "usdv", "collector"))
	// The schedule was consulted once for the whole call.
	require.Equal(t, []string{"merchant"}, f.fees.queried)
}

func TestBatchTransfer_InvalidItemRejectsWholeBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "usdv", "alice", 1000, 1000)

	_, err := f.svc.BatchTransfer(ctx, "", []TransferInput{
		{TokenID: "usdv", Sender: "alice", Receivers: []ReceiverAmount{{Account: "bob", Amount: 600}}, PaymentType: enums.PaymentTypeOneTime},
		{TokenID: "usdv", Sender: "", Receivers: []ReceiverAmount{{Account: "bob", Amount: 600}}, PaymentType: enums.PaymentTypeOneTime},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	// Nothing settled.
	require.Equal(t, int64(1000), f.balance(t, "usdv", "alice"))
	require.Zero(t, f.balance(t, "usdv", "bob"))
}

func TestBatchTransfer_MixedItemsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.tokens["eurv"] = &models.Token{ID: "eurv", Symbol: "EURV", Status: enums.TokenStatusActive}
	f.fund(t, "usdv", "alice", 1000, 1000)

	_, err := f.svc.BatchTransfer(ctx, "", []TransferInput{
		{TokenID: "usdv", Sender: "alice", Receivers: []ReceiverAmount{{Account: "bob", Amount: 100}}, PaymentType: enums.PaymentTypeOneTime},
		{TokenID: "eurv", Sender: "alice", Receivers: []ReceiverAmount{{Account: "bob", Amount: 100}}, PaymentType: enums.PaymentTypeOneTime},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.BatchTransfer(ctx, "", []TransferInput{
		{TokenID: "usdv", Sender: "alice", Receivers: []ReceiverAmount{{Account: "bob", Amount: 100}}, PaymentType: enums.PaymentTypeOneTime},
		{TokenID: "usdv", Sender: "alice", Receivers: []ReceiverAmount{{Account: "bob", Amount: 100}}, PaymentType: enums.PaymentTypeOnDemand},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, int64(1000), f.balance(t, "usdv", "alice"))
}

func TestNativeTransfer_IgnoresAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// No authorization row at all; native custody is the balance itself.
	f.fund(t, models.NativeTokenID, "alice", 900, 0)

	result, err := f.svc.NativeTransfer(ctx, "", TransferInput{
		TokenID:     models.NativeTokenID,
		Sender:      "alice",
		Receivers:   []ReceiverAmount{{Account: "bob", Amount: 900}},
		PaymentType: enums.PaymentTypeOneTime,
	}, 900)
	require.NoError(t, err)
	require.True(t, result.Succeeded)
	require.Equal(t, int64(900), f.balance(t, models.NativeTokenID, "bob"))
}

func TestNativeTransfer_AttachedValueMustMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.NativeTransfer(ctx, "", TransferInput{
		TokenID:     models.NativeTokenID,
		Sender:      "alice",
		Receivers:   []ReceiverAmount{{Account: "bob", Amount: 900}},
		PaymentType: enums.PaymentTypeOneTime,
	}, 800)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.NativeTransfer(ctx, "", TransferInput{
		TokenID:     "usdv",
		Sender:      "alice",
		Receivers:   []ReceiverAmount{{Account: "bob", Amount: 900}},
		PaymentType: enums.PaymentTypeOneTime,
	}, 900)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSetFeeCollector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetFeeCollector(ctx, "owner", "collector"))
	got, err := f.svc.FeeCollector(ctx)
	require.NoError(t, err)
	require.Equal(t, "collector", got)

	err = f.svc.SetFeeCollector(ctx, "owner", "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	f.svc.gate = denyGate{}
	err = f.svc.SetFeeCollector(ctx, "mallory", "mallory")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
