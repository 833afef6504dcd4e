package validators

import (
	"net/http"
	"strconv"

	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
	"github.com/paygrid/paygrid-backend/pkg/pagination"
)

// ParseLimit reads the limit query parameter and clamps it to the pagination
// bounds.
func ParseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return pagination.NormalizeLimit(0), nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "limit must be an integer")
	}
	return pagination.NormalizeLimit(limit), nil
}

// ParseCursor reads the opaque cursor query parameter.
func ParseCursor(r *http.Request) (*pagination.Cursor, error) {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		return nil, nil
	}
	cursor, err := pagination.Decode(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return cursor, nil
}
