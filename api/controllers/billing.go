package controllers

import (
	"net/http"
	"strings"

	"github.com/paygrid/paygrid-backend/api/responses"
	"github.com/paygrid/paygrid-backend/api/validators"
	"github.com/paygrid/paygrid-backend/internal/billing"
	"github.com/paygrid/paygrid-backend/pkg/logger"
)

type billRequest struct {
	PlanID          string   `json:"plan_id" validate:"required"`
	SubscriptionIDs []string `json:"subscription_ids" validate:"required,min=1"`
	Amounts         []int64  `json:"amounts"`
}

// Bill charges a batch of subscriptions under one plan.
func Bill(svc *billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload billRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := svc.Bill(r.Context(), caller, strings.TrimSpace(payload.PlanID), payload.SubscriptionIDs, payload.Amounts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"results": results})
	}
}

type terminateRequest struct {
	PlanID          string   `json:"plan_id" validate:"required"`
	SubscriptionIDs []string `json:"subscription_ids" validate:"required,min=1"`
}

// Terminate force-removes a batch of subscriptions without refund.
func Terminate(svc *billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload terminateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Terminate(r.Context(), caller, strings.TrimSpace(payload.PlanID), payload.SubscriptionIDs); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "terminated"})
	}
}
