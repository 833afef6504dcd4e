package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	"github.com/paygrid/paygrid-backend/pkg/pagination"
)

// Recorder is the write surface other services depend on. Events are inserted
// in the caller's transaction so the audit trail commits with the state it
// describes.
type Recorder interface {
	Record(tx *gorm.DB, input RecordInput) error
}

// RecordInput describes one audit trail entry.
type RecordInput struct {
	Type           enums.AuditEventType
	PlanID         string
	SubscriptionID string
	TokenID        string
	Account        string
	CorrelationTag string
	Payload        any
}

// Service records and lists audit events.
type Service struct {
	repo Repository
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, errors.New("audit repository required")
	}
	return &Service{repo: repo}, nil
}

// Record inserts one event inside tx.
func (s *Service) Record(tx *gorm.DB, input RecordInput) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !input.Type.IsValid() {
		return fmt.Errorf("invalid audit event type %q", input.Type)
	}

	var payload json.RawMessage
	if input.Payload != nil {
		raw, err := json.Marshal(input.Payload)
		if err != nil {
			return fmt.Errorf("marshaling audit payload: %w", err)
		}
		payload = raw
	}

	event := &models.AuditEvent{
		ID:             uuid.New(),
		Type:           input.Type,
		PlanID:         input.PlanID,
		SubscriptionID: input.SubscriptionID,
		TokenID:        input.TokenID,
		Account:        input.Account,
		CorrelationTag: input.CorrelationTag,
		Payload:        payload,
	}
	return s.repo.Insert(tx, event)
}

// List returns a page of the audit trail, newest first.
func (s *Service) List(ctx context.Context, params ListQuery) ([]models.AuditEvent, *pagination.Cursor, error) {
	return s.repo.List(ctx, params)
}
