package doctor

import "strings"

// Store exposes doctor lookups for the local schedule service and HTTP handlers.
type Store interface {
	List() []Doctor
	FindByID(id string) (Doctor, bool)
	FindByName(name string) (Doctor, bool)
	Filter(department string) []Doctor
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Doctor
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied doctors.
func NewMemoryStore(items []Doctor) *MemoryStore {
	copied := make([]Doctor, 0, len(items))
	for _, item := range items {
		copied = append(copied, item.Clone())
	}
	return &MemoryStore{items: copied}
}

// List returns every doctor.
func (s *MemoryStore) List() []Doctor {
	return s.Filter("")
}

// FindByID looks up a doctor by identifier.
func (s *MemoryStore) FindByID(id string) (Doctor, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item.Clone(), true
		}
	}
	return Doctor{}, false
}

// FindByName looks up a doctor by display name, ignoring case.
func (s *MemoryStore) FindByName(name string) (Doctor, bool) {
	name = strings.TrimSpace(name)
	for _, item := range s.items {
		if strings.EqualFold(item.Name, name) {
			return item.Clone(), true
		}
	}
	return Doctor{}, false
}

// Filter returns doctors in the given department. An empty department
// matches everyone.
func (s *MemoryStore) Filter(department string) []Doctor {
	department = strings.TrimSpace(department)
	out := make([]Doctor, 0, len(s.items))
	for _, item := range s.items {
		if department != "" && !strings.EqualFold(item.Department, department) {
			continue
		}
		out = append(out, item.Clone())
	}
	return out
}
