package doctor

// Slot is a bookable time interval offered by a doctor.
type Slot struct {
	ID       string `json:"id"`
	DoctorID string `json:"doctorId"`
	Label    string `json:"label"`
	Date     string `json:"date,omitempty"`
	Booked   bool   `json:"booked,omitempty"`
}

// Doctor is a practitioner listed on the scheduling page together with the
// slots currently offered.
type Doctor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Department string `json:"department"`
	Experience string `json:"experience,omitempty"`
	Slots      []Slot `json:"slots"`
}

// Clone copies the doctor including its slot list.
func (d Doctor) Clone() Doctor {
	d.Slots = append([]Slot(nil), d.Slots...)
	return d
}

// Departments lists the department filter values shown on the scheduling page.
func Departments() []string {
	return []string{"cardiology", "neurology", "pediatrics", "orthopedics", "dermatology"}
}

// Seed provides the default doctor roster used when no backend is configured.
func Seed() []Doctor {
	return []Doctor{
		newDoctor("dr-sarah-johnson", "Dr. Sarah Johnson", "Cardiologist", "cardiology", "15 years",
			"09:00 AM", "10:30 AM", "02:00 PM", "04:30 PM"),
		newDoctor("dr-michael-chen", "Dr. Michael Chen", "Neurologist", "neurology", "12 years",
			"08:30 AM", "11:00 AM", "03:00 PM"),
		newDoctor("dr-emily-davis", "Dr. Emily Davis", "Pediatrician", "pediatrics", "10 years",
			"09:30 AM", "01:00 PM", "03:30 PM", "05:00 PM"),
		newDoctor("dr-robert-wilson", "Dr. Robert Wilson", "Orthopedic Surgeon", "orthopedics", "20 years",
			"10:00 AM", "02:30 PM"),
		newDoctor("dr-lisa-patel", "Dr. Lisa Patel", "Dermatologist", "dermatology", "8 years",
			"11:30 AM", "01:30 PM", "04:00 PM"),
	}
}

func newDoctor(id, name, title, department, experience string, labels ...string) Doctor {
	slots := make([]Slot, 0, len(labels))
	for _, label := range labels {
		slots = append(slots, Slot{ID: SlotID(id, label), DoctorID: id, Label: label})
	}
	return Doctor{
		ID:         id,
		Name:       name,
		Title:      title,
		Department: department,
		Experience: experience,
		Slots:      slots,
	}
}

// SlotID derives the stable slot identifier for a doctor and a slot label.
func SlotID(doctorID, label string) string {
	return doctorID + "@" + label
}
