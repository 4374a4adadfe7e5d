package prescription

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/care-portal/backend/internal/handler/workspace"
	"github.com/zhouzirui/care-portal/backend/internal/model/prescription"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
	"github.com/zhouzirui/care-portal/backend/pkg/utils"
)

const (
	defaultMaxFileBytes = 10 << 20
	multipartMemory     = 8 << 20
	maxFilesPerRequest  = 20
)

var errFileTooLarge = errors.New("file too large")

// Handler serves the upload page: staging files, submitting the batch and
// paging through history.
type Handler struct {
	workspaces   workspace.Provider
	maxFileBytes int64
	now          func() time.Time
}

// New creates the prescription handler. Files larger than maxFileBytes are
// rejected before they reach the batch.
func New(workspaces workspace.Provider, maxFileBytes int64) *Handler {
	if maxFileBytes <= 0 {
		maxFileBytes = defaultMaxFileBytes
	}
	return &Handler{workspaces: workspaces, maxFileBytes: maxFileBytes, now: time.Now}
}

// RegisterRoutes mounts the upload and history routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/uploads", func(r chi.Router) {
		r.Get("/", h.handleBatch)
		r.Post("/", h.handleStage)
		r.Delete("/", h.handleReset)
		r.Delete("/{index}", h.handleRemove)
	})
	r.Post("/prescriptions", h.handleSubmit)
	r.Get("/prescriptions", h.handleHistory)
	r.Get("/prescriptions/{id}", h.handleView)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, ws.Controller.Snapshot().Batch)
}

// handleStage adds the multipart "files" parts to the batch. With
// ?replace=true the batch is replaced instead.
func (h *Handler) handleStage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes*maxFilesPerRequest)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if tooLarge := new(http.MaxBytesError); errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %s", portal.FormatFileSize(tooLarge.Limit)))
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["files[]"]...)
	files, err := h.readFiles(headers)
	if errors.Is(err, errFileTooLarge) {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	var batch portal.UploadBatch
	if replace, _ := strconv.ParseBool(r.URL.Query().Get("replace")); replace {
		batch = ws.Controller.ReplaceFiles(files...)
	} else {
		batch = ws.Controller.AddFiles(files...)
	}
	utils.RespondJSON(w, http.StatusOK, batch.View())
}

func (h *Handler) readFiles(headers []*multipart.FileHeader) ([]prescription.FileRef, error) {
	files := make([]prescription.FileRef, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.maxFileBytes {
			return nil, fmt.Errorf("%w: %s exceeds %s", errFileTooLarge, fh.Filename, portal.FormatFileSize(h.maxFileBytes))
		}
		data, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		files = append(files, prescription.FileRef{
			Name:        fh.Filename,
			SizeBytes:   fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, ws.Controller.RemoveFile(index).View())
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, ws.Controller.ResetUpload().View())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var meta prescription.Metadata
	if err := workspace.DecodeJSON(r, &meta); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	record, err := ws.Controller.SubmitUpload(r.Context(), meta)
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, h.renderRecord(record))
}

// FileView is an uploaded file with its display size.
type FileView struct {
	prescription.FileRef
	Size string `json:"size"`
}

// RecordView is a history row.
type RecordView struct {
	ID          string                `json:"id"`
	Metadata    prescription.Metadata `json:"metadata"`
	Files       []FileView            `json:"files"`
	UploadedAt  time.Time             `json:"uploadedAt"`
	UploadedAgo string                `json:"uploadedAgo"`
}

// HistoryView is one page of history rows.
type HistoryView struct {
	Items      []RecordView `json:"items"`
	Offset     int          `json:"offset"`
	Limit      int          `json:"limit"`
	Total      int          `json:"total"`
	HasMore    bool         `json:"hasMore"`
	NextOffset int          `json:"nextOffset,omitempty"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			utils.RespondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	page, err := ws.Controller.LoadHistory(r.Context(), offset)
	if err != nil {
		workspace.RespondError(w, err)
		return
	}

	view := HistoryView{
		Items:   make([]RecordView, 0, len(page.Items)),
		Offset:  page.Offset,
		Limit:   page.Limit,
		Total:   page.Total,
		HasMore: page.HasMore(),
	}
	for _, record := range page.Items {
		view.Items = append(view.Items, h.renderRecord(record))
	}
	if view.HasMore {
		view.NextOffset = page.Offset + len(page.Items)
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	record, err := ws.Controller.ViewPrescription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.renderRecord(record))
}

func (h *Handler) renderRecord(record prescription.Record) RecordView {
	view := RecordView{
		ID:          record.ID,
		Metadata:    record.Metadata,
		Files:       make([]FileView, 0, len(record.Files)),
		UploadedAt:  record.UploadedAt,
		UploadedAgo: humanize.RelTime(record.UploadedAt, h.now(), "ago", "from now"),
	}
	for _, f := range record.Files {
		view.Files = append(view.Files, FileView{FileRef: f, Size: portal.FormatFileSize(f.SizeBytes)})
	}
	return view
}
