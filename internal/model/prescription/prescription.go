package prescription

import "time"

// PageSize is the number of records returned per history page.
const PageSize = 10

// FileRef is a file staged for upload. Data is never serialized; the
// transport layer decides how the bytes travel.
type FileRef struct {
	Name        string `json:"name"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}

// Metadata describes the prescription the files belong to.
type Metadata struct {
	Type       string `json:"type"`
	DoctorName string `json:"doctorName"`
	Date       string `json:"date"`
	Notes      string `json:"notes,omitempty"`
}

// Record is a stored prescription as acknowledged by the backend.
type Record struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patientId,omitempty"`
	Metadata   Metadata  `json:"metadata"`
	Files      []FileRef `json:"files"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// HistoryPage is one page of a patient's prescription history, newest first.
type HistoryPage struct {
	Items  []Record `json:"items"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
	Total  int      `json:"total"`
}

// HasMore reports whether another page follows this one.
func (p HistoryPage) HasMore() bool {
	return p.Offset+len(p.Items) < p.Total
}
