package controllers

import (
	"net/http"

	"github.com/paygrid/paygrid-backend/api/middleware"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
)

// callerAccount extracts the authenticated account from the request.
func callerAccount(r *http.Request) (string, error) {
	account := middleware.AccountFromContext(r.Context())
	if account == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "account context missing")
	}
	return account, nil
}
