package engine

import (
    "bytes"
    "context"
    "fmt"
    "log"
    "os"
    "os/exec"
    "path/filepath"
    "strings"
    "time"

    "github.com/google/shlex"
    "github.com/shirou/gopsutil/v3/cpu"
    "github.com/shirou/gopsutil/v3/disk"
    "github.com/shirou/gopsutil/v3/mem"
)

// Placeholders substituted into the configured synthesizer command.
const (
    TextPlaceholder    = "${TEXT}"
    OutputPlaceholder  = "${OUTPUT}"
    SpeakerPlaceholder = "${SPEAKER}"
    DevicePlaceholder  = "${DEVICE}"
)

// Throttle bounds below which new synthesis runs are refused, to keep the
// host responsive while a model is loaded.
type Throttle struct {
    CPU      float64 // minimum idle CPU percentage
    FreeMem  int64   // minimum available memory, bytes
    FreeDisk int64   // minimum free disk, bytes
}

// ProcessEngine drives a local synthesizer binary. The command is a template
// split with shlex, never a shell, so request text cannot inject arguments.
type ProcessEngine struct {
    command  string
    throttle Throttle
    tempDir  string
}

func NewProcessEngine(command string, throttle Throttle) (*ProcessEngine, error) {
    args, err := shlex.Split(command)
    if err != nil {
        return nil, fmt.Errorf("invalid synthesizer command: %w", err)
    }
    if len(args) == 0 {
        return nil, fmt.Errorf("synthesizer command is empty")
    }
    if _, err := exec.LookPath(args[0]); err != nil {
        return nil, fmt.Errorf("synthesizer binary not found: %s", args[0])
    }
    if !strings.Contains(command, OutputPlaceholder) {
        return nil, fmt.Errorf("synthesizer command must include %s", OutputPlaceholder)
    }

    tempDir, err := os.MkdirTemp("", "voiceapi_synth_")
    if err != nil {
        return nil, fmt.Errorf("could not create temp directory: %w", err)
    }
    log.Printf("Process engine using temporary directory: %s", tempDir)

    return &ProcessEngine{command: command, throttle: throttle, tempDir: tempDir}, nil
}

// Synthesize runs the configured command and reads back the WAV it produced.
func (e *ProcessEngine) Synthesize(ctx context.Context, req Request) (*Audio, error) {
    if err := e.checkResources(); err != nil {
        return nil, fmt.Errorf("insufficient system resources: %w", err)
    }

    outputPath := filepath.Join(e.tempDir, fmt.Sprintf("synth_%d.wav", time.Now().UnixNano()))
    defer os.Remove(outputPath)

    args, err := shlex.Split(e.command)
    if err != nil {
        return nil, err
    }
    replacer := strings.NewReplacer(
        TextPlaceholder, req.Text,
        OutputPlaceholder, outputPath,
        SpeakerPlaceholder, req.Speaker,
        DevicePlaceholder, req.Device,
    )
    for i, arg := range args {
        args[i] = replacer.Replace(arg)
    }

    cmd := exec.CommandContext(ctx, args[0], args[1:]...)
    var outputBuf bytes.Buffer
    cmd.Stdout = &outputBuf
    cmd.Stderr = &outputBuf

    if err := cmd.Run(); err != nil {
        return nil, fmt.Errorf("synthesizer failed: %w: %s", err, truncate(outputBuf.String(), 512))
    }

    wav, err := os.ReadFile(outputPath)
    if err != nil {
        return nil, fmt.Errorf("synthesizer produced no output: %w", err)
    }
    sampleRate, duration, err := probeWAV(wav)
    if err != nil {
        return nil, fmt.Errorf("synthesizer produced invalid audio: %w", err)
    }

    return &Audio{
        WAV:        wav,
        SampleRate: sampleRate,
        Duration:   duration,
        Device:     req.Device,
    }, nil
}

// checkResources verifies the host has enough headroom to start a new run.
func (e *ProcessEngine) checkResources() error {
    if e.throttle.CPU > 0 {
        if p, err := cpu.Percent(time.Second, false); err != nil {
            log.Printf("Warning: could not get CPU usage: %v", err)
        } else if len(p) > 0 && p[0] > (100.0-e.throttle.CPU) {
            return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, idle threshold: %.2f%%", p[0], e.throttle.CPU)
        }
    }

    if vm, err := mem.VirtualMemory(); err != nil {
        log.Printf("Warning: could not get memory usage: %v", err)
    } else if e.throttle.FreeMem > 0 && vm.Available < uint64(e.throttle.FreeMem) {
        return fmt.Errorf("not enough free memory. Available: %d, required: %d", vm.Available, e.throttle.FreeMem)
    }

    if d, err := disk.Usage(e.tempDir); err != nil {
        log.Printf("Warning: could not get disk usage for %s: %v", e.tempDir, err)
    } else if e.throttle.FreeDisk > 0 && d.Free < uint64(e.throttle.FreeDisk) {
        return fmt.Errorf("not enough free disk space. Available: %d, required: %d", d.Free, e.throttle.FreeDisk)
    }
    return nil
}

func truncate(s string, n int) string {
    s = strings.TrimSpace(s)
    if len(s) <= n {
        return s
    }
    return s[:n] + "..."
}
