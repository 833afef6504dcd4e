package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/paygrid/paygrid-backend/api/responses"
	"github.com/paygrid/paygrid-backend/api/validators"
	"github.com/paygrid/paygrid-backend/internal/subscriptions"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
	"github.com/paygrid/paygrid-backend/pkg/logger"
)

type subscribeRequest struct {
	PlanID    string `json:"plan_id" validate:"required"`
	Allowance int64  `json:"allowance" validate:"gte=0"`
}

// Subscribe enrolls the caller in a plan.
func Subscribe(svc *subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subscribeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Subscribe(r.Context(), caller, strings.TrimSpace(payload.PlanID), payload.Allowance)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, subscriptionResponseFromModel(sub))
	}
}

// SubscriptionGet returns one subscription.
func SubscriptionGet(svc *subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := svc.GetSubscription(r.Context(), chi.URLParam(r, "subscriptionID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found"))
			return
		}
		responses.WriteSuccess(w, subscriptionResponseFromModel(sub))
	}
}

// SubscriptionLookup resolves a (plan, account) pair to its subscription.
func SubscriptionLookup(svc *subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		planID := r.URL.Query().Get("plan_id")
		account := r.URL.Query().Get("account")
		if planID == "" || account == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan_id and account are required"))
			return
		}
		id, err := svc.GetSubscriptionID(r.Context(), planID, account)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"subscription_id": id,
			"subscribed":      id != "",
		})
	}
}

// SubscriptionCancel removes the caller's subscription immediately.
func SubscriptionCancel(svc *subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Cancel(r.Context(), caller, chi.URLParam(r, "subscriptionID")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

// SubscriptionRequestCancellation schedules a variable-recurring subscription
// to end at its next successful billing.
func SubscriptionRequestCancellation(svc *subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RequestCancellation(r.Context(), caller, chi.URLParam(r, "subscriptionID")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancellation_requested"})
	}
}

type allowanceRequest struct {
	Allowance int64 `json:"allowance" validate:"gt=0"`
}

// SubscriptionAllowanceUpdate resets the caller's on-demand spending cap.
func SubscriptionAllowanceUpdate(svc *subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload allowanceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ChangeAllowance(r.Context(), caller, chi.URLParam(r, "subscriptionID"), payload.Allowance); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

type subscriptionResponse struct {
	ID                      string `json:"id"`
	PlanID                  string `json:"plan_id"`
	Account                 string `json:"account"`
	SubscribedAt            int64  `json:"subscribed_at"`
	CycleStart              int64  `json:"cycle_start,omitempty"`
	CancellationRequestedAt int64  `json:"cancellation_requested_at,omitempty"`
	Allowance               int64  `json:"allowance,omitempty"`
	Spent                   int64  `json:"spent,omitempty"`
	LatestBilling           int64  `json:"latest_billing,omitempty"`
}

func subscriptionResponseFromModel(m *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                      m.ID,
		PlanID:                  m.PlanID,
		Account:                 m.Account,
		SubscribedAt:            m.SubscribedAt,
		CycleStart:              m.CycleStart,
		CancellationRequestedAt: m.CancellationRequestedAt,
		Allowance:               m.Allowance,
		Spent:                   m.Spent,
		LatestBilling:           m.LatestBilling,
	}
}
