package task

import "errors"

var (
    // ErrNotFound is returned when a task id is unknown to the store,
    // either never created or already evicted by the retention sweep.
    ErrNotFound = errors.New("task not found")

    // ErrBusy is returned by Submit when the pending queue is full.
    // Callers are expected to retry later.
    ErrBusy = errors.New("server busy, try again later")

    // ErrInvalidRequest wraps validation failures; no task is created.
    ErrInvalidRequest = errors.New("invalid request")

    // ErrTerminal is returned on any attempt to mutate a record that has
    // already reached completed or failed.
    ErrTerminal = errors.New("task already in terminal state")

    // ErrBadTransition is returned when a transition is attempted out of
    // order, e.g. completing a task that never started processing.
    ErrBadTransition = errors.New("illegal status transition")
)
