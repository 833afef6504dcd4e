package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/paygrid/paygrid-backend/api/responses"
	"github.com/paygrid/paygrid-backend/api/validators"
	"github.com/paygrid/paygrid-backend/internal/accounts"
	"github.com/paygrid/paygrid-backend/internal/fees"
	"github.com/paygrid/paygrid-backend/internal/permissions"
	"github.com/paygrid/paygrid-backend/internal/settlement"
	"github.com/paygrid/paygrid-backend/internal/tokens"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
	"github.com/paygrid/paygrid-backend/pkg/logger"
)

type tokenAddRequest struct {
	ID     string `json:"id" validate:"required"`
	Symbol string `json:"symbol" validate:"required"`
}

// TokenAdd registers a settlement token.
func TokenAdd(svc *tokens.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload tokenAddRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, err := svc.Add(r.Context(), caller, strings.TrimSpace(payload.ID), strings.TrimSpace(payload.Symbol))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, token)
	}
}

// TokenPause stops a token from settling.
func TokenPause(svc *tokens.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Pause(r.Context(), caller, chi.URLParam(r, "tokenID")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "paused"})
	}
}

// TokenResume reactivates a paused token.
func TokenResume(svc *tokens.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Resume(r.Context(), caller, chi.URLParam(r, "tokenID")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "active"})
	}
}

type tokenRedirectRequest struct {
	Successor string `json:"successor" validate:"required"`
}

// TokenRedirect points a retired token at its successor.
func TokenRedirect(svc *tokens.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload tokenRedirectRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Redirect(r.Context(), caller, chi.URLParam(r, "tokenID"), strings.TrimSpace(payload.Successor)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "redirected"})
	}
}

// TokenList returns the token directory. Unlike the rest of the admin
// surface, reads are open to any authenticated caller.
func TokenList(svc *tokens.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type feeRequest struct {
	PaymentType string `json:"payment_type" validate:"required"`
	Account     string `json:"account"`
	RateBps     int64  `json:"rate_bps" validate:"gte=0,lte=10000"`
}

// FeeUpdate sets a fee rate: type-wide when account is empty, an account
// override otherwise.
func FeeUpdate(svc *fees.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload feeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentType, err := enums.ParsePaymentType(strings.TrimSpace(payload.PaymentType))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment type"))
			return
		}

		account := strings.TrimSpace(payload.Account)
		if account == "" {
			err = svc.SetDefaultFee(r.Context(), caller, paymentType, payload.RateBps)
		} else {
			err = svc.SetAccountFee(r.Context(), caller, account, paymentType, payload.RateBps)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

type roleRequest struct {
	Account string `json:"account" validate:"required"`
	Role    string `json:"role" validate:"required"`
}

// RoleGrant grants a platform role.
func RoleGrant(svc *permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return roleChange(svc, logg, true)
}

// RoleRevoke removes a platform role.
func RoleRevoke(svc *permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return roleChange(svc, logg, false)
}

func roleChange(svc *permissions.Service, logg *logger.Logger, grant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload roleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := enums.ParseRole(strings.TrimSpace(payload.Role))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid role"))
			return
		}

		account := strings.TrimSpace(payload.Account)
		if grant {
			err = svc.GrantRole(r.Context(), caller, account, role)
		} else {
			err = svc.RevokeRole(r.Context(), caller, account, role)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

type creditRequest struct {
	TokenID string `json:"token_id" validate:"required"`
	Account string `json:"account" validate:"required"`
	Amount  int64  `json:"amount" validate:"gt=0"`
}

// Credit deposits funds into an account's balance.
func Credit(svc *accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload creditRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Credit(r.Context(), caller, strings.TrimSpace(payload.TokenID), strings.TrimSpace(payload.Account), payload.Amount); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "credited"})
	}
}

type feeCollectorRequest struct {
	Account string `json:"account" validate:"required"`
}

// FeeCollectorUpdate points fee revenue at an account.
func FeeCollectorUpdate(svc *settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload feeCollectorRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SetFeeCollector(r.Context(), caller, strings.TrimSpace(payload.Account)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}
