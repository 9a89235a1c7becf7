// Package engine abstracts the neural synthesis backend. The orchestration
// core treats it as a black box: text and voice parameters in, WAV audio out.
// Two implementations are provided, one talking to a standalone synthesis
// HTTP service and one driving a local synthesizer binary.
package engine

import (
    "context"
    "fmt"
    "log"
    "time"
)

const (
    DeviceAuto = "auto"
    DeviceCUDA = "cuda"
    DeviceCPU  = "cpu"
)

// Request carries the parameters for one synthesis call.
type Request struct {
    Text        string
    Speaker     string
    Temperature float64
    TopK        int
    Style       string
    Device      string
}

// Audio is the outcome of a successful synthesis call.
type Audio struct {
    WAV        []byte
    SampleRate int
    Duration   time.Duration
    // Device is the compute device that actually produced the audio,
    // which may differ from the requested one after fallback.
    Device string
}

// Engine converts text to speech audio.
type Engine interface {
    Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// SynthesizeWithFallback tries the requested device first and retries on CPU
// when the preferred device fails. The returned Audio.Device records which
// device serviced the request, including a note about the fallback so that
// status polls surface it as diagnostic text.
func SynthesizeWithFallback(ctx context.Context, e Engine, req Request) (*Audio, error) {
    device := req.Device
    if device == "" || device == DeviceAuto {
        device = DeviceCUDA
    }

    attempt := req
    attempt.Device = device
    audio, err := e.Synthesize(ctx, attempt)
    if err == nil {
        if audio.Device == "" {
            audio.Device = device
        }
        return audio, nil
    }
    if device == DeviceCPU || ctx.Err() != nil {
        return nil, err
    }

    log.Printf("Synthesis on %s failed, falling back to cpu: %v", device, err)
    attempt.Device = DeviceCPU
    audio, cpuErr := e.Synthesize(ctx, attempt)
    if cpuErr != nil {
        return nil, fmt.Errorf("%s failed (%v); cpu fallback failed: %w", device, err, cpuErr)
    }
    audio.Device = fmt.Sprintf("cpu (fallback from %s: %v)", device, err)
    return audio, nil
}
