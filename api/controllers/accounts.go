package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/paygrid/paygrid-backend/api/responses"
	"github.com/paygrid/paygrid-backend/api/validators"
	"github.com/paygrid/paygrid-backend/internal/accounts"
	"github.com/paygrid/paygrid-backend/pkg/logger"
)

// BalanceGet returns the caller's balance in a token. An explicit account
// query parameter reads someone else's balance; balances are not secret, the
// ledger is shared state.
func BalanceGet(svc *accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := r.URL.Query().Get("account")
		if account == "" {
			caller, err := callerAccount(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			account = caller
		}
		tokenID := chi.URLParam(r, "tokenID")
		balance, err := svc.GetBalance(r.Context(), tokenID, account)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"token_id": tokenID,
			"account":  account,
			"balance":  balance,
		})
	}
}

// AuthorizationGet returns an account's standing settlement authorization.
func AuthorizationGet(svc *accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := r.URL.Query().Get("account")
		if account == "" {
			caller, err := callerAccount(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			account = caller
		}
		tokenID := chi.URLParam(r, "tokenID")
		authorized, err := svc.GetAuthorization(r.Context(), tokenID, account)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"token_id":      tokenID,
			"account":       account,
			"authorization": authorized,
		})
	}
}

type approveRequest struct {
	TokenID string `json:"token_id" validate:"required"`
	Amount  int64  `json:"amount" validate:"gte=0"`
}

// AuthorizationUpdate sets the caller's standing authorization to the engine.
func AuthorizationUpdate(svc *accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload approveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Approve(r.Context(), caller, strings.TrimSpace(payload.TokenID), payload.Amount); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "approved"})
	}
}
