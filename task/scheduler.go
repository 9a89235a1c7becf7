package task

import (
    "context"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"

    "voiceapi/config"
    "voiceapi/engine"
    "voiceapi/voices"
)

// Scheduler accepts generation requests, creates records and dispatches them
// to background workers. Backpressure policy: the pending queue is a bounded
// FIFO; when full, Submit rejects with ErrBusy rather than queuing without
// bound. Concurrent execution is capped by a semaphore of MaxConcurrency.
type Scheduler struct {
    cfg            *config.Config
    store          *Store
    engine         engine.Engine
    voices         *voices.Registry
    outputDir      string
    queue          chan string
    concurrencySem chan struct{}
    cancels        sync.Map // task id -> context.CancelFunc while processing
}

func NewScheduler(cfg *config.Config, store *Store, eng engine.Engine, reg *voices.Registry) (*Scheduler, error) {
    outputDir := cfg.OutputDir
    if outputDir == "" {
        dir, err := os.MkdirTemp("", "voiceapi_out_")
        if err != nil {
            return nil, fmt.Errorf("could not create output directory: %w", err)
        }
        outputDir = dir
    } else if err := os.MkdirAll(outputDir, 0o755); err != nil {
        return nil, fmt.Errorf("could not create output directory: %w", err)
    }

    queueSize := cfg.QueueSize
    if queueSize <= 0 {
        queueSize = 1
    }

    return &Scheduler{
        cfg:            cfg,
        store:          store,
        engine:         eng,
        voices:         reg,
        outputDir:      outputDir,
        queue:          make(chan string, queueSize),
        concurrencySem: make(chan struct{}, cfg.MaxConcurrency),
    }, nil
}

// OutputDir is where completed audio artifacts live, named <task id>.wav.
func (s *Scheduler) OutputDir() string {
    return s.outputDir
}

func (s *Scheduler) Start(ctx context.Context) {
    log.Println("Scheduler started. Concurrency limit:", s.cfg.MaxConcurrency)
    go s.workerLoop(ctx)
}

// workerLoop pulls task ids from the queue and processes them once a
// concurrency slot is free.
func (s *Scheduler) workerLoop(ctx context.Context) {
    for {
        select {
        case <-ctx.Done():
            log.Println("Worker loop shutting down.")
            return
        case id := <-s.queue:
            s.concurrencySem <- struct{}{}
            go func(taskID string) {
                defer func() { <-s.concurrencySem }()
                s.processTask(ctx, taskID)
            }(id)
        }
    }
}

// Submit validates the request, creates a pending record and enqueues it.
// Returns the new task id without waiting for work to start.
func (s *Scheduler) Submit(req Request) (string, error) {
    if err := s.validate(&req); err != nil {
        return "", err
    }

    now := time.Now()
    rec := &Record{
        ID:        uuid.NewString(),
        Status:    StatusPending,
        Request:   req,
        CreatedAt: now,
        UpdatedAt: now,
    }
    if err := s.store.Insert(rec); err != nil {
        return "", err
    }

    select {
    case s.queue <- rec.ID:
        log.Printf("Task %s submitted to queue.", rec.ID)
        return rec.ID, nil
    default:
        // Queue full: undo the insert so a rejected submission leaves no trace.
        s.store.remove(rec.ID)
        return "", ErrBusy
    }
}

// validate checks caller-supplied parameters. Failures never create a task.
func (s *Scheduler) validate(req *Request) error {
    if strings.TrimSpace(req.Text) == "" {
        return fmt.Errorf("%w: text must not be empty", ErrInvalidRequest)
    }
    if s.cfg.MaxTextLen > 0 && len(req.Text) > s.cfg.MaxTextLen {
        return fmt.Errorf("%w: text exceeds %d characters", ErrInvalidRequest, s.cfg.MaxTextLen)
    }
    voice, err := s.voices.Get(req.SpeakerID)
    if err != nil {
        return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
    }
    if !voice.HasStyle(req.Style) {
        return fmt.Errorf("%w: voice %q does not support style %q", ErrInvalidRequest, voice.Name, req.Style)
    }
    if req.Temperature < 0 || req.Temperature > 2 {
        return fmt.Errorf("%w: temperature must be in [0, 2]", ErrInvalidRequest)
    }
    if req.TopK < 0 || req.TopK > 500 {
        return fmt.Errorf("%w: top_k must be in [0, 500]", ErrInvalidRequest)
    }
    switch req.Device {
    case "", engine.DeviceAuto, engine.DeviceCUDA, engine.DeviceCPU:
    default:
        return fmt.Errorf("%w: unknown device %q", ErrInvalidRequest, req.Device)
    }
    if req.Device == "" {
        req.Device = s.cfg.DefaultDevice
    }
    return nil
}

// processTask executes one task off the request path. Every failure path,
// panics included, ends in a failed transition: no synchronous caller is
// listening, so the record is the only channel for reporting errors.
func (s *Scheduler) processTask(parentCtx context.Context, id string) {
    defer func() {
        if r := recover(); r != nil {
            log.Printf("Task %s: worker panic: %v", id, r)
            if err := s.store.Fail(id, fmt.Sprintf("internal error: %v", r)); err != nil {
                log.Printf("Task %s: could not record panic: %v", id, err)
            }
        }
    }()

    if err := s.store.MarkProcessing(id); err != nil {
        // Canceled while queued, or evicted. Nothing to do.
        log.Printf("Task %s not processed: %v", id, err)
        return
    }
    log.Printf("Processing task %s", id)

    snap, err := s.store.Get(id)
    if err != nil {
        log.Printf("Task %s disappeared after transition: %v", id, err)
        return
    }

    // Worker-enforced deadline: only the worker can safely transition the
    // record, so the timeout lives here rather than in a watchdog.
    taskCtx, cancel := context.WithTimeout(parentCtx, s.cfg.GenTimeout)
    s.cancels.Store(id, cancel)
    defer func() {
        s.cancels.Delete(id)
        cancel()
    }()

    s.store.SetProgress(id, 10)

    voice, err := s.voices.Get(snap.Request.SpeakerID)
    if err != nil {
        s.store.Fail(id, err.Error())
        return
    }

    audio, err := engine.SynthesizeWithFallback(taskCtx, s.engine, engine.Request{
        Text:        snap.Request.Text,
        Speaker:     voice.Ref,
        Temperature: snap.Request.Temperature,
        TopK:        snap.Request.TopK,
        Style:       snap.Request.Style,
        Device:      snap.Request.Device,
    })
    if err != nil {
        msg := fmt.Sprintf("generation failed: %v", err)
        if taskCtx.Err() == context.DeadlineExceeded {
            msg = fmt.Sprintf("generation timed out after %s", s.cfg.GenTimeout)
        } else if taskCtx.Err() == context.Canceled {
            msg = "task was canceled"
        }
        log.Printf("Task %s failed: %v", id, err)
        s.store.Fail(id, msg)
        return
    }

    s.store.SetDeviceInfo(id, audio.Device)
    s.store.SetProgress(id, 80)

    fileName := id + ".wav"
    outputPath := filepath.Join(s.outputDir, fileName)
    if err := os.WriteFile(outputPath, audio.WAV, 0o644); err != nil {
        log.Printf("Task %s: writing output failed: %v", id, err)
        s.store.Fail(id, fmt.Sprintf("could not write output file: %v", err))
        return
    }

    res := &Result{
        FileName:   fileName,
        Size:       int64(len(audio.WAV)),
        Duration:   audio.Duration,
        SampleRate: audio.SampleRate,
    }
    if err := s.store.Complete(id, res); err != nil {
        log.Printf("Task %s: could not record completion: %v", id, err)
        os.Remove(outputPath)
        return
    }
    log.Printf("Task %s completed successfully (%d bytes, %s).", id, res.Size, audio.Device)
}

// Cancel requests best-effort cancellation. A queued task fails immediately
// with a cancellation reason; a processing task has its context canceled and
// the worker records the failure when the engine call returns. The
// underlying synthesis may not be interruptible.
func (s *Scheduler) Cancel(id string) error {
    snap, err := s.store.Get(id)
    if err != nil {
        return err
    }
    switch snap.Status {
    case StatusCompleted, StatusFailed:
        return fmt.Errorf("cannot cancel task in state: %s", snap.Status)
    case StatusPending:
        if err := s.store.Fail(id, "canceled by user while in queue"); err != nil {
            return err
        }
        log.Printf("Task %s marked as canceled in queue.", id)
    case StatusProcessing:
        if c, ok := s.cancels.Load(id); ok {
            c.(context.CancelFunc)()
            log.Printf("Cancellation signal sent to running task %s.", id)
        } else {
            return fmt.Errorf("task %s is processing but has no cancellation handle", id)
        }
    }
    return nil
}

// OutputFilePath resolves a download filename inside the output directory,
// refusing path traversal.
func (s *Scheduler) OutputFilePath(filename string) (string, error) {
    cleanFilename := filepath.Base(filename)
    if cleanFilename != filename {
        return "", fmt.Errorf("invalid filename")
    }

    fullPath := filepath.Join(s.outputDir, cleanFilename)
    if _, err := os.Stat(fullPath); os.IsNotExist(err) {
        return "", fmt.Errorf("file not found")
    }
    return fullPath, nil
}
