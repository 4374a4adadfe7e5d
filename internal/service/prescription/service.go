package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/model/prescription"
)

var (
	ErrNoFiles        = errors.New("at least one file is required")
	ErrRecordNotFound = fmt.Errorf("prescription %w", backend.ErrNotFound)
	ErrFileTooLarge   = errors.New("file exceeds upload limit")
)

// Config tunes the in-memory prescription service.
type Config struct {
	PatientID      string
	ProcessingTime time.Duration
	MaxFileBytes   int64
}

// Service acknowledges uploads after ProcessingTime and keeps their
// metadata in memory. File contents are dropped.
type Service struct {
	mu      sync.RWMutex
	records []prescription.Record

	patientID      string
	processingTime time.Duration
	maxFileBytes   int64
	now            func() time.Time
}

var _ backend.Prescriptions = (*Service)(nil)

// NewService creates the prescription service.
func NewService(cfg Config) *Service {
	patientID := strings.TrimSpace(cfg.PatientID)
	if patientID == "" {
		patientID = "local-patient"
	}
	return &Service{
		patientID:      patientID,
		processingTime: cfg.ProcessingTime,
		maxFileBytes:   cfg.MaxFileBytes,
		now:            time.Now,
	}
}

// Upload stores the prescription metadata once processing completes.
func (s *Service) Upload(ctx context.Context, meta prescription.Metadata, files []prescription.FileRef) (prescription.Record, error) {
	if len(files) == 0 {
		return prescription.Record{}, ErrNoFiles
	}

	stored := make([]prescription.FileRef, 0, len(files))
	for _, f := range files {
		if s.maxFileBytes > 0 && f.SizeBytes > s.maxFileBytes {
			return prescription.Record{}, ErrFileTooLarge
		}
		stored = append(stored, prescription.FileRef{Name: f.Name, SizeBytes: f.SizeBytes, ContentType: f.ContentType})
	}

	if s.processingTime > 0 {
		timer := time.NewTimer(s.processingTime)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return prescription.Record{}, ctx.Err()
		case <-timer.C:
		}
	}

	record := prescription.Record{
		ID:         uuid.NewString(),
		PatientID:  s.patientID,
		Metadata:   meta,
		Files:      stored,
		UploadedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	return record, nil
}

// History returns one page of records, newest first.
func (s *Service) History(_ context.Context, offset int) (prescription.HistoryPage, error) {
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.records)
	page := prescription.HistoryPage{
		Items:  make([]prescription.Record, 0, prescription.PageSize),
		Offset: offset,
		Limit:  prescription.PageSize,
		Total:  total,
	}
	for i := total - 1 - offset; i >= 0 && len(page.Items) < prescription.PageSize; i-- {
		page.Items = append(page.Items, s.records[i])
	}
	return page, nil
}

// Get returns a single record.
func (s *Service) Get(_ context.Context, id string) (prescription.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if record.ID == id {
			return record, nil
		}
	}
	return prescription.Record{}, ErrRecordNotFound
}
