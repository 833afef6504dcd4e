package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paygrid/paygrid-backend/api/responses"
	"github.com/paygrid/paygrid-backend/api/validators"
	"github.com/paygrid/paygrid-backend/internal/plans"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
	"github.com/paygrid/paygrid-backend/pkg/logger"
)

type planReceiverRequest struct {
	Account    string `json:"account" validate:"required"`
	Amount     int64  `json:"amount" validate:"gte=0"`
	PercentBps int64  `json:"percent_bps" validate:"gte=0"`
}

type planCreateRequest struct {
	Model         string                `json:"model" validate:"required"`
	Name          string                `json:"name" validate:"required"`
	TokenID       string                `json:"token_id" validate:"required"`
	PeriodSeconds int64                 `json:"period_seconds" validate:"required,gt=0"`
	SplitKind     string                `json:"split_kind" validate:"required"`
	Amount        int64                 `json:"amount" validate:"gte=0"`
	MaxAmount     int64                 `json:"max_amount" validate:"gte=0"`
	MinAllowance  int64                 `json:"min_allowance" validate:"gte=0"`
	Receivers     []planReceiverRequest `json:"receivers" validate:"required,min=1,max=5,dive"`
}

func (r planCreateRequest) toInput(admin string) (plans.CreatePlanInput, error) {
	model, err := enums.ParseBillingModel(strings.TrimSpace(r.Model))
	if err != nil {
		return plans.CreatePlanInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing model")
	}
	splitKind, err := enums.ParseSplitKind(strings.TrimSpace(r.SplitKind))
	if err != nil {
		return plans.CreatePlanInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid split kind")
	}

	input := plans.CreatePlanInput{
		Admin:         admin,
		Model:         model,
		Name:          strings.TrimSpace(r.Name),
		TokenID:       strings.TrimSpace(r.TokenID),
		PeriodSeconds: r.PeriodSeconds,
		SplitKind:     splitKind,
		Amount:        r.Amount,
		MaxAmount:     r.MaxAmount,
		MinAllowance:  r.MinAllowance,
	}
	for _, recv := range r.Receivers {
		input.Receivers = append(input.Receivers, plans.ReceiverInput{
			Account:    strings.TrimSpace(recv.Account),
			Amount:     recv.Amount,
			PercentBps: recv.PercentBps,
		})
	}
	return input, nil
}

// PlanCreate registers a new billing plan administered by the caller.
func PlanCreate(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload planCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.CreatePlan(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, planResponseFromModel(created))
	}
}

// PlanGet returns one plan with its receivers.
func PlanGet(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plan, err := svc.GetPlan(r.Context(), chi.URLParam(r, "planID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if plan == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found"))
			return
		}
		responses.WriteSuccess(w, planResponseFromModel(plan))
	}
}

// PlanList returns the plans under one billing model.
func PlanList(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, err := enums.ParseBillingModel(r.URL.Query().Get("model"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing model"))
			return
		}
		list, err := svc.ListByModel(r.Context(), model)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]planResponse, 0, len(list))
		for i := range list {
			out = append(out, planResponseFromModel(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type planReceiversUpdateRequest struct {
	Receivers []planReceiverRequest `json:"receivers" validate:"required,min=1,max=5,dive"`
}

// PlanReceiversUpdate replaces a plan's payout lines.
func PlanReceiversUpdate(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload planReceiversUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receivers := make([]plans.ReceiverInput, 0, len(payload.Receivers))
		for _, recv := range payload.Receivers {
			receivers = append(receivers, plans.ReceiverInput{
				Account:    strings.TrimSpace(recv.Account),
				Amount:     recv.Amount,
				PercentBps: recv.PercentBps,
			})
		}

		if err := svc.ChangeReceivers(r.Context(), caller, chi.URLParam(r, "planID"), receivers); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

type planPermissionRequest struct {
	Tag     string `json:"tag" validate:"required"`
	Account string `json:"account" validate:"required"`
}

// PlanPermissionGrant delegates a plan capability to another account.
func PlanPermissionGrant(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return planPermissionChange(svc, logg, true)
}

// PlanPermissionRevoke removes a delegated plan capability.
func PlanPermissionRevoke(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return planPermissionChange(svc, logg, false)
}

func planPermissionChange(svc *plans.Service, logg *logger.Logger, grant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload planPermissionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tag, err := enums.ParsePermissionTag(strings.TrimSpace(payload.Tag))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid permission tag"))
			return
		}

		planID := chi.URLParam(r, "planID")
		grantee := strings.TrimSpace(payload.Account)
		if grant {
			err = svc.GrantPermission(r.Context(), caller, planID, tag, grantee)
		} else {
			err = svc.RevokePermission(r.Context(), caller, planID, tag, grantee)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

type planResponse struct {
	ID            string                 `json:"id"`
	Model         enums.BillingModel     `json:"model"`
	Admin         string                 `json:"admin"`
	Name          string                 `json:"name"`
	TokenID       string                 `json:"token_id"`
	PeriodSeconds int64                  `json:"period_seconds"`
	SplitKind     enums.SplitKind        `json:"split_kind"`
	Amount        int64                  `json:"amount,omitempty"`
	MaxAmount     int64                  `json:"max_amount,omitempty"`
	MinAllowance  int64                  `json:"min_allowance,omitempty"`
	Receivers     []planReceiverResponse `json:"receivers"`
	CreatedAt     time.Time              `json:"created_at"`
}

type planReceiverResponse struct {
	Account    string `json:"account"`
	Amount     int64  `json:"amount,omitempty"`
	PercentBps int64  `json:"percent_bps,omitempty"`
}

func planResponseFromModel(m *models.Plan) planResponse {
	out := planResponse{
		ID:            m.ID,
		Model:         m.Model,
		Admin:         m.Admin,
		Name:          m.Name,
		TokenID:       m.TokenID,
		PeriodSeconds: m.PeriodSeconds,
		SplitKind:     m.SplitKind,
		Amount:        m.Amount,
		MaxAmount:     m.MaxAmount,
		MinAllowance:  m.MinAllowance,
		CreatedAt:     m.CreatedAt,
	}
	for _, recv := range m.Receivers {
		out.Receivers = append(out.Receivers, planReceiverResponse{
			Account:    recv.Account,
			Amount:     recv.Amount,
			PercentBps: recv.PercentBps,
		})
	}
	return out
}
