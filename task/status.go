package task

// StatusService is the read-only façade HTTP handlers poll for task state.
// It hands out snapshots only; callers never see live records.
type StatusService struct {
    store *Store
}

func NewStatusService(store *Store) *StatusService {
    return &StatusService{store: store}
}

// Get returns the current snapshot or ErrNotFound. An unknown id means the
// task was never created or has been evicted by the retention sweep; this is
// distinct from a failed task, which still resolves with status "failed".
func (s *StatusService) Get(id string) (Snapshot, error) {
    return s.store.Get(id)
}

// List returns snapshots of all stored tasks, newest first.
func (s *StatusService) List() []Snapshot {
    return s.store.List()
}
