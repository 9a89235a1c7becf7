package task

import (
    "time"
)

type Status string

const (
    StatusPending    Status = "pending"
    StatusProcessing Status = "processing"
    StatusCompleted  Status = "completed"
    StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
    return s == StatusCompleted || s == StatusFailed
}

// Request is the immutable snapshot of generation parameters captured at
// submission time. Mutating the caller's struct after Submit has no effect
// on an in-flight task.
type Request struct {
    Text        string  `json:"text"`
    SpeakerID   int     `json:"speaker_id"`
    Temperature float64 `json:"temperature"`
    TopK        int     `json:"top_k"`
    Style       string  `json:"style"`
    Device      string  `json:"device"`
}

// Result describes the output artifact of a completed task.
type Result struct {
    FileName   string        `json:"-"`
    FileURL    string        `json:"file_url"`
    Size       int64         `json:"size"`
    Duration   time.Duration `json:"duration"`
    SampleRate int           `json:"sample_rate"`
}

// Record is one generation job and its current state. Records are owned by
// the Store; components outside this package only ever see Snapshot copies,
// so a poll can never race with worker mutation.
type Record struct {
    ID         string    `json:"id"`
    Status     Status    `json:"status"`
    Request    Request   `json:"request"`
    Progress   int       `json:"progress"`
    Result     *Result   `json:"result"`
    Error      string    `json:"error,omitempty"`
    DeviceInfo string    `json:"device_info,omitempty"`
    CreatedAt  time.Time `json:"created_at"`
    UpdatedAt  time.Time `json:"updated_at"`
}

// Snapshot is an immutable copy of a Record handed to readers.
type Snapshot = Record

// clone returns a deep copy safe to hand out after the store lock is dropped.
func (r *Record) clone() Snapshot {
    c := *r
    if r.Result != nil {
        res := *r.Result
        c.Result = &res
    }
    return c
}
