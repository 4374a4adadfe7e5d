package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/model/appointment"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotUnavailable     = errors.New("slot already booked")
	ErrPatientNameRequired = errors.New("patient name is required")
	ErrInvalidDate         = errors.New("invalid date")
)

const dateLayout = "2006-01-02"

// Service serves doctor schedules and books appointments in memory. Booked
// slots disappear from the schedule for that date.
type Service struct {
	mu           sync.RWMutex
	doctors      doctor.Store
	booked       map[string]appointment.Confirmation
	appointments []appointment.Confirmation

	now func() time.Time
}

var (
	_ backend.Schedules    = (*Service)(nil)
	_ backend.Appointments = (*Service)(nil)
)

// NewService creates a booking service over the doctor roster.
func NewService(doctors doctor.Store) *Service {
	return &Service{
		doctors: doctors,
		booked:  make(map[string]appointment.Confirmation),
		now:     time.Now,
	}
}

// ListSchedules returns doctors in department with their open slots on date.
// date accepts "", "today", "tomorrow" or YYYY-MM-DD.
func (s *Service) ListSchedules(_ context.Context, department, date string) ([]doctor.Doctor, error) {
	day, err := s.resolveDate(date)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doctors := s.doctors.Filter(department)
	for i := range doctors {
		open := doctors[i].Slots[:0]
		for _, slot := range doctors[i].Slots {
			if _, taken := s.booked[bookingKey(day, slot.ID)]; taken {
				continue
			}
			slot.Date = day
			open = append(open, slot)
		}
		doctors[i].Slots = open
	}
	return doctors, nil
}

// Book reserves the drafted slot on the draft's date, today when unset.
// The slot may be given as a slot id or as the slot label of the named
// doctor.
func (s *Service) Book(_ context.Context, draft appointment.Draft) (appointment.Confirmation, error) {
	if strings.TrimSpace(draft.PatientName) == "" {
		return appointment.Confirmation{}, ErrPatientNameRequired
	}

	doc, slot, err := s.resolveSlot(draft.Doctor, draft.Slot)
	if err != nil {
		return appointment.Confirmation{}, err
	}
	day, err := s.resolveDate(draft.Date)
	if err != nil {
		return appointment.Confirmation{}, err
	}
	key := bookingKey(day, slot.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.booked[key]; taken {
		return appointment.Confirmation{}, ErrSlotUnavailable
	}

	confirmation := appointment.Confirmation{
		ID:        uuid.NewString(),
		Doctor:    doc.Name,
		Slot:      slot.Label,
		Date:      day,
		Status:    appointment.StatusConfirmed,
		CreatedAt: s.now().UTC(),
	}
	s.booked[key] = confirmation
	s.appointments = append(s.appointments, confirmation)
	return confirmation, nil
}

// ListAppointments returns every confirmation made so far, oldest first.
func (s *Service) ListAppointments(context.Context) ([]appointment.Confirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]appointment.Confirmation{}, s.appointments...), nil
}

func (s *Service) resolveSlot(doctorName, slotRef string) (doctor.Doctor, doctor.Slot, error) {
	slotRef = strings.TrimSpace(slotRef)

	var (
		doc doctor.Doctor
		ok  bool
	)
	if strings.TrimSpace(doctorName) != "" {
		doc, ok = s.doctors.FindByName(doctorName)
	}
	if !ok {
		if id, _, found := strings.Cut(slotRef, "@"); found {
			doc, ok = s.doctors.FindByID(id)
		}
	}
	if !ok {
		return doctor.Doctor{}, doctor.Slot{}, ErrDoctorNotFound
	}

	for _, slot := range doc.Slots {
		if slot.ID == slotRef || strings.EqualFold(slot.Label, slotRef) {
			return doc, slot, nil
		}
	}
	return doctor.Doctor{}, doctor.Slot{}, fmt.Errorf("%w: %s has no slot %q", ErrSlotNotFound, doc.Name, slotRef)
}

func (s *Service) resolveDate(date string) (string, error) {
	today := s.now()
	switch strings.ToLower(strings.TrimSpace(date)) {
	case "", "today":
		return today.Format(dateLayout), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1).Format(dateLayout), nil
	case "week", "this-week":
		return today.Format(dateLayout), nil
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidDate, date)
	}
	return parsed.Format(dateLayout), nil
}

func bookingKey(day, slotID string) string {
	return day + "|" + slotID
}
