package prescription

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/care-portal/backend/internal/handler/handlertest"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
)

func setupRouter(t *testing.T, maxFileBytes int64) (*chi.Mux, *handlertest.Env) {
	env := handlertest.New(t)
	r := chi.NewRouter()
	New(env.Registry, maxFileBytes).RegisterRoutes(r)
	return r, env
}

func uploadRequest(t *testing.T, path string, files map[string]int) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, size := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte("x"), size))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBatch(t *testing.T, rec *httptest.ResponseRecorder) portal.BatchView {
	t.Helper()
	var view portal.BatchView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	return view
}

func TestStageAndRemoveFile(t *testing.T) {
	r, _ := setupRouter(t, 0)

	rec := handlertest.Serve(r, uploadRequest(t, "/uploads", map[string]int{"scan.pdf": 2048}))
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBatch(t, rec)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "scan.pdf (2.00 KB)", view.Items[0].Label)
	assert.True(t, view.PreviewVisible)

	rec = handlertest.Serve(r, httptest.NewRequest(http.MethodDelete, "/uploads/0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeBatch(t, rec)
	assert.Empty(t, view.Items)
	assert.False(t, view.PreviewVisible)
}

func TestStageReplaceDiscardsPreviousFiles(t *testing.T) {
	r, env := setupRouter(t, 0)

	handlertest.Serve(r, uploadRequest(t, "/uploads", map[string]int{"a.pdf": 10}))
	handlertest.Serve(r, uploadRequest(t, "/uploads?replace=true", map[string]int{"b.pdf": 10}))

	items := env.Workspace(t).Controller.Snapshot().Batch.Items
	require.Len(t, items, 1)
	assert.Equal(t, "b.pdf", items[0].Name)
}

func TestStageRejectsOversizedFile(t *testing.T) {
	r, env := setupRouter(t, 100)

	rec := handlertest.Serve(r, uploadRequest(t, "/uploads", map[string]int{"big.pdf": 101}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, env.Workspace(t).Controller.Snapshot().Batch.Items)
}

func TestStageRejectsRequestOverBodyLimit(t *testing.T) {
	r, env := setupRouter(t, 100)

	rec := handlertest.Serve(r, uploadRequest(t, "/uploads", map[string]int{"huge.pdf": 5000}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Empty(t, env.Workspace(t).Controller.Snapshot().Batch.Items)
}

func TestRemoveOutOfRangeKeepsBatch(t *testing.T) {
	r, _ := setupRouter(t, 0)
	handlertest.Serve(r, uploadRequest(t, "/uploads", map[string]int{"a.pdf": 10}))

	rec := handlertest.Serve(r, httptest.NewRequest(http.MethodDelete, "/uploads/5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBatch(t, rec).Items, 1)

	rec = handlertest.Serve(r, httptest.NewRequest(http.MethodDelete, "/uploads/x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitEmptyBatchIsUnprocessable(t *testing.T) {
	r, _ := setupRouter(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/prescriptions", strings.NewReader(`{"type":"prescription"}`))
	rec := handlertest.Serve(r, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), string(portal.KindEmptyBatch))
}

func TestSubmitThenHistory(t *testing.T) {
	r, env := setupRouter(t, 0)
	handlertest.Serve(r, uploadRequest(t, "/uploads", map[string]int{"scan.pdf": 2 << 20}))

	req := httptest.NewRequest(http.MethodPost, "/prescriptions",
		strings.NewReader(`{"type":"prescription","doctorName":"Dr. Emily Davis","date":"2026-10-01"}`))
	rec := handlertest.Serve(r, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var record RecordView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&record))
	require.Len(t, record.Files, 1)
	assert.Equal(t, "2.00 MB", record.Files[0].Size)
	assert.Empty(t, env.Workspace(t).Controller.Snapshot().Batch.Items)

	rec = handlertest.Serve(r, httptest.NewRequest(http.MethodGet, "/prescriptions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var history HistoryView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history.Items, 1)
	assert.Equal(t, "Dr. Emily Davis", history.Items[0].Metadata.DoctorName)
	assert.NotEmpty(t, history.Items[0].UploadedAgo)
	assert.False(t, history.HasMore)
}

func TestViewPrescription(t *testing.T) {
	r, _ := setupRouter(t, 0)
	handlertest.Serve(r, uploadRequest(t, "/uploads", map[string]int{"label.png": 512}))

	req := httptest.NewRequest(http.MethodPost, "/prescriptions", strings.NewReader(`{"type":"prescription"}`))
	rec := handlertest.Serve(r, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created RecordView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = handlertest.Serve(r, httptest.NewRequest(http.MethodGet, "/prescriptions/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var viewed RecordView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&viewed))
	assert.Equal(t, created.ID, viewed.ID)
	require.Len(t, viewed.Files, 1)
	assert.Equal(t, "label.png", viewed.Files[0].Name)
	assert.Equal(t, "512 Bytes", viewed.Files[0].Size)

	rec = handlertest.Serve(r, httptest.NewRequest(http.MethodGet, "/prescriptions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryRejectsNegativeOffset(t *testing.T) {
	r, _ := setupRouter(t, 0)

	rec := handlertest.Serve(r, httptest.NewRequest(http.MethodGet, "/prescriptions?offset=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
