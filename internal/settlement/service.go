package settlement

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/internal/accounts"
	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
	"github.com/paygrid/paygrid-backend/pkg/metrics"
)

const (
	// MaxTransferReceivers bounds the payout fan-out of a single item.
	MaxTransferReceivers = 5
	// MaxBatchItems bounds a batch call.
	MaxBatchItems = 500

	feeDenominatorBps = 10000
)

// Settlement reads reference data inside the caller's transaction, so its
// collaborators must expose tx-bound lookups.
type feeSource interface {
	GetFeeTx(ctx context.Context, tx *gorm.DB, account string, paymentType enums.PaymentType) (int64, error)
}

type tokenDirectory interface {
	ResolveTx(ctx context.Context, tx *gorm.DB, id string) (*models.Token, error)
}

type ownerGate interface {
	RequireOwner(ctx context.Context, caller string) error
}

// ReceiverAmount is one payout leg of a transfer item.
type ReceiverAmount struct {
	Account string
	Amount  int64
}

// TransferInput is one settlement item: pull the total from the sender, push
// fee-adjusted legs to the receivers. Within a batch every item carries the
// same token and payment type; the fee account is call-level.
type TransferInput struct {
	TokenID        string
	Sender         string
	Receivers      []ReceiverAmount
	PaymentType    enums.PaymentType
	CorrelationTag string
}

// Result reports the outcome of one settlement item. A failed item leaves the
// ledger untouched and carries the reason.
type Result struct {
	Sender    string `json:"sender"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}

// ServiceParams groups dependencies for the settlement engine.
type ServiceParams struct {
	DB       *db.Client
	Accounts accounts.Repository
	Tokens   tokenDirectory
	Fees     feeSource
	Settings SettingsRepository
	Gate     ownerGate
	Audit    audit.Recorder
	Metrics  *metrics.EngineMetrics
}

// Service moves funds between accounts. Public entrypoints serialize on a
// mutex and open their own transaction; the Tx variants run inside a caller's
// transaction, which the caller is responsible for serializing.
type Service struct {
	db       *db.Client
	accounts accounts.Repository
	tokens   tokenDirectory
	fees     feeSource
	settings SettingsRepository
	gate     ownerGate
	audit    audit.Recorder
	metrics  *metrics.EngineMetrics

	mu sync.Mutex
}

// NewService builds the settlement engine. Metrics is optional.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Accounts == nil || params.Tokens == nil ||
		params.Fees == nil || params.Settings == nil || params.Gate == nil || params.Audit == nil {
		return nil, errors.New("db, accounts, tokens, fees, settings, gate and audit are required")
	}
	return &Service{
		db:       params.DB,
		accounts: params.Accounts,
		tokens:   params.Tokens,
		fees:     params.Fees,
		settings: params.Settings,
		gate:     params.Gate,
		audit:    params.Audit,
		metrics:  params.Metrics,
	}, nil
}

// Transfer settles a single item in its own transaction. The fee rate comes
// from feeAccount's schedule, not the sender's. Native value arrives attached
// to a call, so the native token is rejected here; use NativeTransfer.
func (s *Service) Transfer(ctx context.Context, feeAccount string, input TransferInput) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.TokenID == models.NativeTokenID {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "native transfers must attach value")
	}

	var result Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.TransferTx(ctx, tx, feeAccount, input)
		return txErr
	})
	return result, err
}

// BatchTransfer settles items independently in one transaction: a rejected
// call settles nothing, but one sender's shortfall never blocks the rest.
func (s *Service) BatchTransfer(ctx context.Context, feeAccount string, inputs []TransferInput) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		results, txErr = s.BatchTransferTx(ctx, tx, feeAccount, inputs)
		return txErr
	})
	return results, err
}

// NativeTransfer settles a native-currency item. The attached value must equal
// the sum of the receiver legs; custody is the sender's native balance, no
// standing authorization is consumed.
func (s *Service) NativeTransfer(ctx context.Context, feeAccount string, input TransferInput, attachedValue int64) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.TokenID != models.NativeTokenID {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "native transfers use the native token")
	}
	if attachedValue != sumReceivers(input.Receivers) {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "attached value must equal the sum of receiver amounts")
	}

	var result Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.TransferTx(ctx, tx, feeAccount, input)
		return txErr
	})
	return result, err
}

// TransferTx settles a single item inside the caller's transaction. A shape or
// token problem rejects the call with an error; a sender shortfall returns a
// failed Result and records it, leaving balances untouched.
func (s *Service) TransferTx(ctx context.Context, tx *gorm.DB, feeAccount string, input TransferInput) (Result, error) {
	if err := validateShape(input); err != nil {
		return Result{}, err
	}
	tokenID, err := s.resolveActive(ctx, tx, input.TokenID)
	if err != nil {
		return Result{}, err
	}
	rate, collector, err := s.feeTerms(ctx, tx, feeAccount, input.PaymentType)
	if err != nil {
		return Result{}, err
	}
	return s.settleItem(ctx, tx, tokenID, rate, collector, input)
}

// BatchTransferTx settles a batch inside the caller's transaction. All items
// are shape-checked up front and must share one token and payment type; any
// invalid item rejects the whole call before funds move. The fee rate and
// collector are resolved once for the whole call from feeAccount's schedule.
func (s *Service) BatchTransferTx(ctx context.Context, tx *gorm.DB, feeAccount string, inputs []TransferInput) ([]Result, error) {
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch is empty")
	}
	if len(inputs) > MaxBatchItems {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch exceeds 500 items")
	}
	if inputs[0].TokenID == models.NativeTokenID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "native transfers must attach value")
	}
	for _, input := range inputs {
		if input.TokenID != inputs[0].TokenID || input.PaymentType != inputs[0].PaymentType {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch items must share one token and payment type")
		}
		if err := validateShape(input); err != nil {
			return nil, err
		}
	}

	tokenID, err := s.resolveActive(ctx, tx, inputs[0].TokenID)
	if err != nil {
		return nil, err
	}
	rate, collector, err := s.feeTerms(ctx, tx, feeAccount, inputs[0].PaymentType)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(inputs))
	for _, input := range inputs {
		result, err := s.settleItem(ctx, tx, tokenID, rate, collector, input)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func validateShape(input TransferInput) error {
	if input.Sender == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sender is required")
	}
	if len(input.Receivers) == 0 || len(input.Receivers) > MaxTransferReceivers {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfers take between 1 and 5 receivers")
	}
	for _, r := range input.Receivers {
		if r.Account == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "receiver account is required")
		}
		if r.Amount <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "receiver amounts must be positive")
		}
	}
	if !input.PaymentType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment type")
	}
	return nil
}

// resolveActive returns the canonical id for a token fit to settle. The read
// runs inside the caller's transaction.
func (s *Service) resolveActive(ctx context.Context, tx *gorm.DB, tokenID string) (string, error) {
	token, err := s.tokens.ResolveTx(ctx, tx, tokenID)
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "settlement token not found")
	}
	if token.Status != enums.TokenStatusActive {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "settlement token is not active")
	}
	return token.ID, nil
}

// settleItem moves funds for one already-validated item at the already-resolved
// fee terms. The canonical token id may differ from the submitted one when the
// token was redirected.
func (s *Service) settleItem(ctx context.Context, tx *gorm.DB, tokenID string, rate int64, collector string, input TransferInput) (Result, error) {
	repo := s.accounts.WithTx(tx)
	total := sumReceivers(input.Receivers)
	native := tokenID == models.NativeTokenID

	available, err := s.availableToSettle(ctx, repo, tokenID, input.Sender, native)
	if err != nil {
		return Result{}, err
	}
	if available < total {
		result := Result{Sender: input.Sender, Amount: total, Reason: "insufficient available funds"}
		s.metrics.IncTransfer("failed")
		if err := s.recordTransfer(tx, enums.AuditEventTransferFailed, tokenID, input, total, 0, 0, result.Reason); err != nil {
			return Result{}, err
		}
		return result, nil
	}

	if err := repo.AddBalance(ctx, tokenID, input.Sender, -total); err != nil {
		return Result{}, err
	}
	if !native {
		if err := repo.AddAuthorization(ctx, tokenID, input.Sender, -total); err != nil {
			return Result{}, err
		}
	}

	var totalFee int64
	for _, r := range input.Receivers {
		fee := r.Amount * rate / feeDenominatorBps
		totalFee += fee
		if err := repo.AddBalance(ctx, tokenID, r.Account, r.Amount-fee); err != nil {
			return Result{}, err
		}
	}
	if totalFee > 0 {
		if err := repo.AddBalance(ctx, tokenID, collector, totalFee); err != nil {
			return Result{}, err
		}
	}

	s.metrics.IncTransfer("succeeded")
	if err := s.recordTransfer(tx, enums.AuditEventTransferSucceeded, tokenID, input, total, rate, totalFee, ""); err != nil {
		return Result{}, err
	}
	return Result{Sender: input.Sender, Amount: total, Fee: totalFee, Succeeded: true}, nil
}

// availableToSettle is what the engine may pull: the native balance alone, or
// min(balance, standing authorization) for directory tokens.
func (s *Service) availableToSettle(ctx context.Context, repo accounts.Repository, tokenID, sender string, native bool) (int64, error) {
	balance, err := repo.Balance(ctx, tokenID, sender)
	if err != nil {
		return 0, err
	}
	if native {
		return balance, nil
	}
	authorized, err := repo.Authorization(ctx, tokenID, sender)
	if err != nil {
		return 0, err
	}
	if authorized < balance {
		return authorized, nil
	}
	return balance, nil
}

// feeTerms returns the applicable rate and collector, read inside the caller's
// transaction. With no collector configured fee revenue has nowhere to go, so
// no fee is charged.
func (s *Service) feeTerms(ctx context.Context, tx *gorm.DB, feeAccount string, paymentType enums.PaymentType) (int64, string, error) {
	collector, err := s.settings.WithTx(tx).Get(ctx, models.SettingFeeCollector)
	if err != nil {
		return 0, "", err
	}
	if collector == "" {
		return 0, "", nil
	}
	rate, err := s.fees.GetFeeTx(ctx, tx, feeAccount, paymentType)
	if err != nil {
		return 0, "", err
	}
	return rate, collector, nil
}

func (s *Service) recordTransfer(tx *gorm.DB, eventType enums.AuditEventType, tokenID string, input TransferInput, total, rate, fee int64, reason string) error {
	lines := make([]audit.ReceiverLine, 0, len(input.Receivers))
	for _, r := range input.Receivers {
		lines = append(lines, audit.ReceiverLine{Account: r.Account, Amount: r.Amount})
	}
	return s.audit.Record(tx, audit.RecordInput{
		Type:           eventType,
		TokenID:        tokenID,
		Account:        input.Sender,
		CorrelationTag: input.CorrelationTag,
		Payload: audit.TransferPayload{
			TokenID:        tokenID,
			Sender:         input.Sender,
			Receivers:      lines,
			TotalAmount:    total,
			FeeRateBps:     rate,
			TotalFee:       fee,
			PaymentType:    string(input.PaymentType),
			CorrelationTag: input.CorrelationTag,
			Reason:         reason,
		},
	})
}

// SetFeeCollector points fee revenue at an account.
func (s *Service) SetFeeCollector(ctx context.Context, caller, account string) error {
	if err := s.gate.RequireOwner(ctx, caller); err != nil {
		return err
	}
	if account == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "collector account is required")
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.settings.WithTx(tx).Set(ctx, models.SettingFeeCollector, account); err != nil {
			return err
		}
		return s.audit.Record(tx, audit.RecordInput{
			Type:    enums.AuditEventFeeCollectorChanged,
			Account: caller,
			Payload: audit.PermissionPayload{Grantee: account},
		})
	})
}

// FeeCollector returns the configured collector account, empty when unset.
func (s *Service) FeeCollector(ctx context.Context) (string, error) {
	return s.settings.Get(ctx, models.SettingFeeCollector)
}

func sumReceivers(receivers []ReceiverAmount) int64 {
	var total int64
	for _, r := range receivers {
		total += r.Amount
	}
	return total
}
