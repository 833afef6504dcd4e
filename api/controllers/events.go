package controllers

import (
	"net/http"

	"github.com/paygrid/paygrid-backend/api/responses"
	"github.com/paygrid/paygrid-backend/api/validators"
	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
	"github.com/paygrid/paygrid-backend/pkg/logger"
	"github.com/paygrid/paygrid-backend/pkg/pagination"
)

// EventList returns a page of the audit trail, newest first.
func EventList(svc *audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseLimit(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := validators.ParseCursor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := audit.ListQuery{
			PlanID:  r.URL.Query().Get("plan_id"),
			Account: r.URL.Query().Get("account"),
			Limit:   limit,
			Cursor:  cursor,
		}
		if raw := r.URL.Query().Get("type"); raw != "" {
			eventType, parseErr := enums.ParseAuditEventType(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid event type"))
				return
			}
			query.Type = &eventType
		}

		events, next, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := map[string]any{"events": events}
		if next != nil {
			encoded, encodeErr := pagination.Encode(next)
			if encodeErr != nil {
				responses.WriteError(r.Context(), logg, w, encodeErr)
				return
			}
			out["next_cursor"] = encoded
		}
		responses.WriteSuccess(w, out)
	}
}
