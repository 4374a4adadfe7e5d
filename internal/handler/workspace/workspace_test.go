package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/middleware"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
	"github.com/zhouzirui/care-portal/backend/pkg/utils"
)

type stubProvider struct {
	err error
	ids []string
}

func (s *stubProvider) Get(clientID string) (*portal.Workspace, error) {
	s.ids = append(s.ids, clientID)
	if s.err != nil {
		return nil, s.err
	}
	return &portal.Workspace{ClientID: clientID}, nil
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", portal.ErrNoSlotSelected, http.StatusUnprocessableEntity, "no_slot_selected"},
		{"wrapped validation", fmt.Errorf("book: %w", portal.ErrEmptyBatch), http.StatusUnprocessableEntity, "empty_batch"},
		{"api error", &backend.APIError{Status: 409, Message: "slot unavailable"}, http.StatusBadGateway, ""},
		{"plain", errors.New("boom"), http.StatusBadGateway, ""},
		{"not found", fmt.Errorf("get prescription: %w", backend.ErrNotFound), http.StatusNotFound, ""},
		{"remote not found", &backend.APIError{Status: 404, Message: "no such session"}, http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			var body utils.ErrorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestFromRequestRequiresClientID(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := FromRequest(rec, httptest.NewRequest(http.MethodGet, "/", nil), &stubProvider{})

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFromRequestUsesClientID(t *testing.T) {
	p := &stubProvider{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithClientID(req.Context(), "tab-1"))

	ws, ok := FromRequest(httptest.NewRecorder(), req, p)
	require.True(t, ok)
	assert.Equal(t, "tab-1", ws.ClientID)
	assert.Equal(t, []string{"tab-1"}, p.ids)
}

func TestDecodeJSONAllowsEmptyBody(t *testing.T) {
	var payload struct{ Name string }
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	require.NoError(t, DecodeJSON(req, &payload))
	assert.Empty(t, payload.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	assert.Error(t, DecodeJSON(req, &payload))
}
