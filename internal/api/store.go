package api

import "sync"

// DefaultStoreCapacity bounds how many inspections a store keeps.
const DefaultStoreCapacity = 256

// InspectionStore keeps recent inspections in memory. Once full, the oldest
// entry is evicted.
type InspectionStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	records  map[string]Inspection
}

func NewInspectionStore(capacity int) *InspectionStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &InspectionStore{
		capacity: capacity,
		records:  make(map[string]Inspection),
	}
}

func (s *InspectionStore) Put(insp Inspection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[insp.ID]; !ok {
		s.order = append(s.order, insp.ID)
	}
	s.records[insp.ID] = insp
	for len(s.order) > s.capacity {
		delete(s.records, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *InspectionStore) Get(id string) (Inspection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	insp, ok := s.records[id]
	return insp, ok
}

func (s *InspectionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *InspectionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
