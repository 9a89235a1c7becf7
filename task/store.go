package task

import (
    "context"
    "fmt"
    "log"
    "sort"
    "sync"
    "time"
)

// Store owns every Record exclusively. All access goes through the mutex;
// individual operations are constant-time so the lock is never held for the
// duration of a generation call. Each record gets a done channel closed
// on the terminal transition, which backs AwaitTerminal.
type Store struct {
    mu      sync.Mutex
    records map[string]*Record
    done    map[string]chan struct{}
}

func NewStore() *Store {
    return &Store{
        records: make(map[string]*Record),
        done:    make(map[string]chan struct{}),
    }
}

// Insert registers a freshly created record. The id must not already exist;
// ids are never reused, even after eviction.
func (s *Store) Insert(r *Record) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, exists := s.records[r.ID]; exists {
        return fmt.Errorf("duplicate task id %s", r.ID)
    }
    s.records[r.ID] = r
    s.done[r.ID] = make(chan struct{})
    return nil
}

// Get returns an immutable snapshot of the record, never a live reference.
func (s *Store) Get(id string) (Snapshot, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    r, ok := s.records[id]
    if !ok {
        return Snapshot{}, ErrNotFound
    }
    return r.clone(), nil
}

// List returns snapshots of all records, newest first.
func (s *Store) List() []Snapshot {
    s.mu.Lock()
    defer s.mu.Unlock()

    out := make([]Snapshot, 0, len(s.records))
    for _, r := range s.records {
        out = append(out, r.clone())
    }
    sort.Slice(out, func(i, j int) bool {
        return out[i].CreatedAt.After(out[j].CreatedAt)
    })
    return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.records)
}

// remove discards a record unconditionally. Used only to roll back an
// insert when the submission queue turns out to be full.
func (s *Store) remove(id string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    delete(s.records, id)
    delete(s.done, id)
}

// MarkProcessing fires the pending -> processing transition.
func (s *Store) MarkProcessing(id string) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    r, ok := s.records[id]
    if !ok {
        return ErrNotFound
    }
    if r.Status.Terminal() {
        return fmt.Errorf("%w: %s is %s", ErrTerminal, id, r.Status)
    }
    if r.Status != StatusPending {
        return fmt.Errorf("%w: %s -> %s", ErrBadTransition, r.Status, StatusProcessing)
    }
    r.Status = StatusProcessing
    r.UpdatedAt = time.Now()
    return nil
}

// SetProgress records a progress update while processing. Progress is
// monotonically non-decreasing; stale updates are dropped silently.
func (s *Store) SetProgress(id string, progress int) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    r, ok := s.records[id]
    if !ok {
        return ErrNotFound
    }
    if r.Status != StatusProcessing {
        return fmt.Errorf("%w: progress update in state %s", ErrBadTransition, r.Status)
    }
    if progress > r.Progress {
        if progress > 100 {
            progress = 100
        }
        r.Progress = progress
        r.UpdatedAt = time.Now()
    }
    return nil
}

// SetDeviceInfo records which compute device is servicing the task. Opaque
// diagnostic text reported by the engine; may differ from the requested
// device when fallback occurred.
func (s *Store) SetDeviceInfo(id, info string) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    r, ok := s.records[id]
    if !ok {
        return ErrNotFound
    }
    if r.Status.Terminal() {
        return fmt.Errorf("%w: %s is %s", ErrTerminal, id, r.Status)
    }
    r.DeviceInfo = info
    r.UpdatedAt = time.Now()
    return nil
}

// Complete fires processing -> completed and attaches the result.
func (s *Store) Complete(id string, res *Result) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    r, ok := s.records[id]
    if !ok {
        return ErrNotFound
    }
    if r.Status.Terminal() {
        return fmt.Errorf("%w: %s is %s", ErrTerminal, id, r.Status)
    }
    if r.Status != StatusProcessing {
        return fmt.Errorf("%w: %s -> %s", ErrBadTransition, r.Status, StatusCompleted)
    }
    r.Status = StatusCompleted
    r.Result = res
    r.Error = ""
    r.Progress = 100
    r.UpdatedAt = time.Now()
    s.signalDone(id)
    return nil
}

// Fail fires the transition to failed with a descriptive error. Permitted
// from both pending (cancellation while queued) and processing.
func (s *Store) Fail(id, msg string) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    r, ok := s.records[id]
    if !ok {
        return ErrNotFound
    }
    if r.Status.Terminal() {
        return fmt.Errorf("%w: %s is %s", ErrTerminal, id, r.Status)
    }
    r.Status = StatusFailed
    r.Error = msg
    r.Result = nil
    r.UpdatedAt = time.Now()
    s.signalDone(id)
    return nil
}

func (s *Store) signalDone(id string) {
    if ch, ok := s.done[id]; ok {
        close(ch)
        delete(s.done, id)
    }
}

// AwaitTerminal blocks until the task reaches a terminal state or the
// context expires, then returns the final snapshot. The external contract
// stays polling; this exists for callers that can afford to block, mainly
// tests.
func (s *Store) AwaitTerminal(ctx context.Context, id string) (Snapshot, error) {
    s.mu.Lock()
    r, ok := s.records[id]
    if !ok {
        s.mu.Unlock()
        return Snapshot{}, ErrNotFound
    }
    if r.Status.Terminal() {
        snap := r.clone()
        s.mu.Unlock()
        return snap, nil
    }
    ch := s.done[id]
    s.mu.Unlock()

    select {
    case <-ch:
        return s.Get(id)
    case <-ctx.Done():
        return Snapshot{}, ctx.Err()
    }
}

// EvictBeyond removes terminal records beyond the keep newest.
// Non-terminal records are never evicted; if retention pressure would hit
// one, it is skipped with a warning. Returns the evicted snapshots so the
// sweeper can release their output files.
func (s *Store) EvictBeyond(keep int) []Snapshot {
    s.mu.Lock()
    defer s.mu.Unlock()

    if keep < 0 {
        keep = 0
    }
    if len(s.records) <= keep {
        return nil
    }

    all := make([]*Record, 0, len(s.records))
    for _, r := range s.records {
        all = append(all, r)
    }
    sort.Slice(all, func(i, j int) bool {
        return all[i].CreatedAt.After(all[j].CreatedAt)
    })

    var evicted []Snapshot
    for _, r := range all[keep:] {
        if !r.Status.Terminal() {
            log.Printf("Retention: skipping non-terminal task %s (%s)", r.ID, r.Status)
            continue
        }
        evicted = append(evicted, r.clone())
        delete(s.records, r.ID)
        delete(s.done, r.ID)
    }
    return evicted
}
