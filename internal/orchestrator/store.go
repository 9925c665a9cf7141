package orchestrator

// Store is the persistence abstraction for media records.
// Implementations can be in-memory or backed by a database; the Repository
// uses Store for all reads and writes and callers of Repository do not need
// to know which Store is used.
type Store interface {
	GetMedia(id MediaID) (*MediaRecord, bool)
	SetMedia(rec *MediaRecord)
	ListMediaIDs() []MediaID
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	records map[MediaID]*MediaRecord
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[MediaID]*MediaRecord),
	}
}

// GetMedia implements Store.GetMedia.
func (s *InMemoryStore) GetMedia(id MediaID) (*MediaRecord, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// SetMedia implements Store.SetMedia.
func (s *InMemoryStore) SetMedia(rec *MediaRecord) {
	s.records[rec.MediaID] = rec
}

// ListMediaIDs implements Store.ListMediaIDs.
func (s *InMemoryStore) ListMediaIDs() []MediaID {
	ids := make([]MediaID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids
}
