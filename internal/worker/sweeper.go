package worker

import (
	"context"
	"errors"
	"time"

	"github.com/paygrid/paygrid-backend/internal/billing"
	"github.com/paygrid/paygrid-backend/internal/subscriptions"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	"github.com/paygrid/paygrid-backend/pkg/logger"
)

type biller interface {
	Bill(ctx context.Context, caller, planID string, subscriptionIDs []string, amounts []int64) ([]billing.ItemResult, error)
}

// SweeperParams groups dependencies for the recurring billing sweep.
type SweeperParams struct {
	Subs          subscriptions.Repository
	Billing       biller
	Logger        *logger.Logger
	WorkerAccount string
	Interval      time.Duration
	BatchSize     int
	Now           func() time.Time
}

// Sweeper periodically bills elapsed fixed-recurring cycles. Variable and
// on-demand charges carry operator-supplied amounts, so those models are
// billed through the API, not swept.
type Sweeper struct {
	subs      subscriptions.Repository
	billing   biller
	log       *logger.Logger
	account   string
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewSweeper builds the billing sweep. The worker account needs the
// network-service role to bill plans it does not administer.
func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Subs == nil || params.Billing == nil || params.Logger == nil {
		return nil, errors.New("subs, billing and logger are required")
	}
	if params.WorkerAccount == "" {
		return nil, errors.New("worker account is required")
	}
	if params.Interval <= 0 {
		params.Interval = time.Minute
	}
	if params.BatchSize <= 0 || params.BatchSize > billing.MaxBatchSubscriptions {
		params.BatchSize = billing.MaxBatchSubscriptions
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Sweeper{
		subs:      params.Subs,
		billing:   params.Billing,
		log:       params.Logger,
		account:   params.WorkerAccount,
		interval:  params.Interval,
		batchSize: params.BatchSize,
		now:       params.Now,
	}, nil
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.log.Error(ctx, "billing sweep failed", err)
			}
		}
	}
}

// SweepOnce bills every due fixed-recurring subscription, one batch per plan.
// A plan whose batch fails does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	due, err := s.subs.ListDue(ctx, enums.BillingModelFixedRecurring, s.now().Unix(), s.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	byPlan := make(map[string][]string)
	for _, ref := range due {
		byPlan[ref.PlanID] = append(byPlan[ref.PlanID], ref.SubscriptionID)
	}

	for planID, ids := range byPlan {
		planCtx := s.log.WithField(ctx, "plan_id", planID)
		results, err := s.billing.Bill(planCtx, s.account, planID, ids, nil)
		if err != nil {
			s.log.Error(planCtx, "billing batch rejected", err)
			continue
		}
		var failed int
		for _, r := range results {
			if !r.Succeeded {
				failed++
			}
		}
		if failed > 0 {
			s.log.Warn(s.log.WithField(planCtx, "failed_items", failed), "billing batch settled with failures")
		}
	}
	return nil
}
