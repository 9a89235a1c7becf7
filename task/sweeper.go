package task

import (
    "context"
    "log"
    "os"
    "path/filepath"
    "time"
)

// Sweeper bounds resource growth: it evicts old terminal records past the
// keep-newest count and deletes output files past their age limit. Record
// eviction and file deletion are independent; a failure in one never aborts
// the other.
type Sweeper struct {
    store     *Store
    outputDir string
    keep      int
    maxAge    time.Duration
}

func NewSweeper(store *Store, outputDir string, keep int, maxAge time.Duration) *Sweeper {
    return &Sweeper{
        store:     store,
        outputDir: outputDir,
        keep:      keep,
        maxAge:    maxAge,
    }
}

// Start runs sweeps on a ticker until the context is canceled.
func (w *Sweeper) Start(ctx context.Context) {
    go w.loop(ctx)
}

func (w *Sweeper) loop(ctx context.Context) {
    interval := w.maxAge / 4 // check a few times per lifetime
    if interval < time.Second {
        interval = time.Second
    }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            log.Println("Sweeper shutting down.")
            return
        case <-ticker.C:
            w.Sweep()
        }
    }
}

// Sweep performs one retention pass. Idempotent and safe to run concurrently
// with submissions and workers.
func (w *Sweeper) Sweep() {
    for _, snap := range w.store.EvictBeyond(w.keep) {
        if snap.Result == nil || snap.Result.FileName == "" {
            continue
        }
        path := filepath.Join(w.outputDir, snap.Result.FileName)
        if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
            // Record is gone either way; the file pass below retries by age.
            log.Printf("Sweep: could not remove %s: %v", path, err)
        }
    }
    w.sweepFiles()
}

// sweepFiles deletes output files older than the age limit regardless of
// whether their task record still exists, bounding disk usage independently
// of record retention.
func (w *Sweeper) sweepFiles() {
    if w.maxAge <= 0 {
        return
    }
    entries, err := os.ReadDir(w.outputDir)
    if err != nil {
        log.Printf("Sweep: could not read output directory: %v", err)
        return
    }
    cutoff := time.Now().Add(-w.maxAge)
    for _, entry := range entries {
        if entry.IsDir() {
            continue
        }
        info, err := entry.Info()
        if err != nil {
            continue
        }
        if info.ModTime().Before(cutoff) {
            path := filepath.Join(w.outputDir, entry.Name())
            log.Printf("Cleaning up old output file: %s", path)
            if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
                log.Printf("Sweep: could not remove %s: %v", path, err)
            }
        }
    }
}
