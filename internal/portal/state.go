package portal

import (
	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
)

// State is the slot/doctor selection made on the scheduling page. Empty
// strings mean nothing is selected.
type State struct {
	SelectedTimeSlot string `json:"selectedTimeSlot,omitempty"`
	SelectedDoctor   string `json:"selectedDoctor,omitempty"`
}

// HasSlot reports whether a slot is selected.
func (s State) HasSlot() bool {
	return s.SelectedTimeSlot != ""
}

// IsSelected reports whether slotID is the selected slot.
func (s State) IsSelected(slotID string) bool {
	return s.HasSlot() && s.SelectedTimeSlot == slotID
}

// Snapshot is a point-in-time copy of everything the controller holds.
type Snapshot struct {
	Selection State         `json:"selection"`
	Batch     BatchView     `json:"batch"`
	Chat      *chat.Session `json:"chat,omitempty"`
	Typing    bool          `json:"typing"`
	Busy      bool          `json:"busy"`
}
