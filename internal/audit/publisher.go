package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/paygrid/paygrid-backend/pkg/logger"
)

// Bus is the publishing surface the outbox drains into.
type Bus interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

// PublisherParams groups publisher dependencies.
type PublisherParams struct {
	Repo         Repository
	Bus          Bus
	Topic        string
	BatchSize    int
	PollInterval time.Duration
	Logger       *logger.Logger
}

// Publisher drains unpublished audit events to the event bus.
type Publisher struct {
	repo         Repository
	bus          Bus
	topic        string
	batchSize    int
	pollInterval time.Duration
	logg         *logger.Logger
}

// NewPublisher builds an outbox publisher.
func NewPublisher(params PublisherParams) (*Publisher, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Bus == nil {
		return nil, errors.New("bus is required")
	}
	if params.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if params.BatchSize <= 0 {
		params.BatchSize = 50
	}
	if params.PollInterval <= 0 {
		params.PollInterval = 500 * time.Millisecond
	}
	return &Publisher{
		repo:         params.Repo,
		bus:          params.Bus,
		topic:        params.Topic,
		batchSize:    params.BatchSize,
		pollInterval: params.PollInterval,
		logg:         params.Logger,
	}, nil
}

// Run polls until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := p.PublishOnce(ctx); err != nil {
				if p.logg != nil {
					p.logg.Error(ctx, "outbox publish batch failed", err)
				}
			} else if n > 0 && p.logg != nil {
				p.logg.Info(p.logg.WithField(ctx, "published", n), "outbox batch published")
			}
		}
	}
}

// PublishOnce drains at most one batch and returns how many events shipped.
// Events that fail to publish stay unpublished and are retried next poll.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	events, err := p.repo.ListUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("listing unpublished events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var publishErr error
	published := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		body, err := json.Marshal(event)
		if err != nil {
			publishErr = multierr.Append(publishErr, fmt.Errorf("marshaling event %s: %w", event.ID, err))
			continue
		}
		attrs := map[string]string{
			"event_type": string(event.Type),
			"event_id":   event.ID.String(),
		}
		if _, err := p.bus.Publish(ctx, p.topic, body, attrs); err != nil {
			publishErr = multierr.Append(publishErr, fmt.Errorf("publishing event %s: %w", event.ID, err))
			continue
		}
		published = append(published, event.ID)
	}

	if len(published) > 0 {
		if err := p.repo.MarkPublished(ctx, published, time.Now().UTC()); err != nil {
			publishErr = multierr.Append(publishErr, fmt.Errorf("marking published: %w", err))
		}
	}
	return len(published), publishErr
}
