// Package workspace resolves the per-client portal controller for HTTP
// handlers and maps controller errors to responses.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/middleware"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
	"github.com/zhouzirui/care-portal/backend/pkg/utils"
)

// Provider hands out the workspace for a client id. *portal.Registry
// satisfies it.
type Provider interface {
	Get(clientID string) (*portal.Workspace, error)
}

// FromRequest looks up the caller's workspace. On failure it writes the
// error response and returns false.
func FromRequest(w http.ResponseWriter, r *http.Request, p Provider) (*portal.Workspace, bool) {
	clientID := middleware.ClientIDFrom(r.Context())
	if clientID == "" {
		utils.RespondError(w, http.StatusBadRequest, "missing portal client id")
		return nil, false
	}
	ws, err := p.Get(clientID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "workspace unavailable")
		return nil, false
	}
	return ws, true
}

// RespondError maps a controller error onto an HTTP status. Validation
// errors become 422 with their kind, missing records 404 and other
// collaborator failures 502.
func RespondError(w http.ResponseWriter, err error) {
	if verr, ok := portal.AsValidation(err); ok {
		utils.RespondErrorKind(w, http.StatusUnprocessableEntity, verr.Error(), string(verr.Kind))
		return
	}

	var apiErr *backend.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		utils.RespondError(w, http.StatusGatewayTimeout, "backend timed out")
	case errors.Is(err, context.Canceled):
		utils.RespondError(w, http.StatusServiceUnavailable, "request canceled")
	case errors.Is(err, backend.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &apiErr):
		utils.RespondError(w, http.StatusBadGateway, apiErr.Message)
	default:
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	}
}

// DecodeJSON decodes an optional JSON body into dst. An empty body leaves
// dst untouched.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
