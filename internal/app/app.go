package app

import (
	"time"

	"github.com/paygrid/paygrid-backend/internal/accounts"
	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/internal/billing"
	"github.com/paygrid/paygrid-backend/internal/fees"
	"github.com/paygrid/paygrid-backend/internal/permissions"
	"github.com/paygrid/paygrid-backend/internal/plans"
	"github.com/paygrid/paygrid-backend/internal/settlement"
	"github.com/paygrid/paygrid-backend/internal/subscriptions"
	"github.com/paygrid/paygrid-backend/internal/tokens"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/logger"
	"github.com/paygrid/paygrid-backend/pkg/metrics"
)

// Services is the fully wired engine every binary starts from.
type Services struct {
	Accounts      *accounts.Service
	Audit         *audit.Service
	Billing       *billing.Service
	Fees          *fees.Service
	Permissions   *permissions.Service
	Plans         *plans.Service
	Settlement    *settlement.Service
	Subscriptions *subscriptions.Service
	Tokens        *tokens.Service

	SubscriptionsRepo subscriptions.Repository
	AuditRepo         audit.Repository
}

// Params carries the shared infrastructure the services sit on. Cache and
// Metrics are optional.
type Params struct {
	DB      *db.Client
	Cache   fees.Cache
	Logger  *logger.Logger
	Metrics *metrics.EngineMetrics
	Now     func() time.Time
}

// Build wires every service against the shared database connection.
func Build(params Params) (*Services, error) {
	conn := params.DB.DB()

	auditRepo := audit.NewRepository(conn)
	auditSvc, err := audit.NewService(auditRepo)
	if err != nil {
		return nil, err
	}

	permsSvc, err := permissions.NewService(permissions.ServiceParams{
		DB:    params.DB,
		Repo:  permissions.NewRepository(conn),
		Audit: auditSvc,
	})
	if err != nil {
		return nil, err
	}

	tokensSvc, err := tokens.NewService(tokens.ServiceParams{
		DB:    params.DB,
		Repo:  tokens.NewRepository(conn),
		Gate:  permsSvc,
		Audit: auditSvc,
	})
	if err != nil {
		return nil, err
	}

	feesSvc, err := fees.NewService(fees.ServiceParams{
		DB:    params.DB,
		Repo:  fees.NewRepository(conn),
		Gate:  permsSvc,
		Audit: auditSvc,
		Cache: params.Cache,
	})
	if err != nil {
		return nil, err
	}

	accountsRepo := accounts.NewRepository(conn)
	accountsSvc, err := accounts.NewService(accounts.ServiceParams{
		DB:    params.DB,
		Repo:  accountsRepo,
		Gate:  permsSvc,
		Audit: auditSvc,
	})
	if err != nil {
		return nil, err
	}

	settlementSvc, err := settlement.NewService(settlement.ServiceParams{
		DB:       params.DB,
		Accounts: accountsRepo,
		Tokens:   tokensSvc,
		Fees:     feesSvc,
		Settings: settlement.NewSettingsRepository(conn),
		Gate:     permsSvc,
		Audit:    auditSvc,
		Metrics:  params.Metrics,
	})
	if err != nil {
		return nil, err
	}

	plansSvc, err := plans.NewService(plans.ServiceParams{
		DB:     params.DB,
		Repo:   plans.NewRepository(conn),
		Tokens: tokensSvc,
		Audit:  auditSvc,
		Now:    params.Now,
	})
	if err != nil {
		return nil, err
	}

	subsRepo := subscriptions.NewRepository(conn)
	subsSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		DB:         params.DB,
		Repo:       subsRepo,
		Plans:      plansSvc,
		Settlement: settlementSvc,
		Audit:      auditSvc,
		Now:        params.Now,
	})
	if err != nil {
		return nil, err
	}

	billingSvc, err := billing.NewService(billing.ServiceParams{
		DB:         params.DB,
		Subs:       subsRepo,
		Plans:      plansSvc,
		Roles:      permsSvc,
		Settlement: settlementSvc,
		Audit:      auditSvc,
		Logger:     params.Logger,
		Metrics:    params.Metrics,
		Now:        params.Now,
	})
	if err != nil {
		return nil, err
	}

	return &Services{
		Accounts:          accountsSvc,
		Audit:             auditSvc,
		Billing:           billingSvc,
		Fees:              feesSvc,
		Permissions:       permsSvc,
		Plans:             plansSvc,
		Settlement:        settlementSvc,
		Subscriptions:     subsSvc,
		Tokens:            tokensSvc,
		SubscriptionsRepo: subsRepo,
		AuditRepo:         auditRepo,
	}, nil
}
