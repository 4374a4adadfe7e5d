package appointment

import "time"

// Status of a booked appointment.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
)

// Form holds the patient details collected by the booking dialog.
type Form struct {
	PatientName  string `json:"patientName"`
	PatientPhone string `json:"patientPhone"`
	PatientEmail string `json:"patientEmail"`
	Reason       string `json:"reason"`
	// Date is the slot's day: "", "today", "tomorrow" or YYYY-MM-DD.
	Date         string `json:"date,omitempty"`
}

// Draft is a booking request ready to be sent to the appointments backend.
type Draft struct {
	Doctor string `json:"doctor"`
	Slot   string `json:"slot"`
	Form
}

// Confirmation is the backend's answer to a booking request.
type Confirmation struct {
	ID        string    `json:"id"`
	Doctor    string    `json:"doctor"`
	Slot      string    `json:"slot"`
	Date      string    `json:"date,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
