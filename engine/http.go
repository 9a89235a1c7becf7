package engine

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"
)

// HTTPEngine talks to a standalone synthesis service over HTTP. The service
// owns the model weights and the GPU; this side only ships parameters and
// reads audio back.
type HTTPEngine struct {
    baseURL string
    client  *http.Client
}

// synthesisRequest is the wire format of the synthesis endpoint.
type synthesisRequest struct {
    Text        string  `json:"text"`
    Speaker     string  `json:"speaker"`
    Temperature float64 `json:"temperature"`
    TopK        int     `json:"top_k"`
    Style       string  `json:"style,omitempty"`
    Device      string  `json:"device"`
}

func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
    return &HTTPEngine{
        baseURL: baseURL,
        client:  &http.Client{Timeout: timeout},
    }
}

// Synthesize posts the request and returns the produced WAV with its probed
// metadata. The service reports the servicing device in the X-Device header;
// absent that, the requested device is assumed.
func (e *HTTPEngine) Synthesize(ctx context.Context, req Request) (*Audio, error) {
    body, err := json.Marshal(synthesisRequest{
        Text:        req.Text,
        Speaker:     req.Speaker,
        Temperature: req.Temperature,
        TopK:        req.TopK,
        Style:       req.Style,
        Device:      req.Device,
    })
    if err != nil {
        return nil, fmt.Errorf("encode synthesis request: %w", err)
    }

    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
        e.baseURL+"/synthesize", bytes.NewReader(body))
    if err != nil {
        return nil, err
    }
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := e.client.Do(httpReq)
    if err != nil {
        return nil, fmt.Errorf("synthesis request failed: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
        return nil, fmt.Errorf("synthesis service returned %s: %s", resp.Status, bytes.TrimSpace(detail))
    }

    wav, err := io.ReadAll(resp.Body)
    if err != nil {
        return nil, fmt.Errorf("read synthesis response: %w", err)
    }

    sampleRate, duration, err := probeWAV(wav)
    if err != nil {
        return nil, fmt.Errorf("invalid audio from synthesis service: %w", err)
    }

    device := resp.Header.Get("X-Device")
    if device == "" {
        device = req.Device
    }

    return &Audio{
        WAV:        wav,
        SampleRate: sampleRate,
        Duration:   duration,
        Device:     device,
    }, nil
}

// HealthCheck verifies the synthesis service is reachable.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
    if err != nil {
        return err
    }
    resp, err := e.client.Do(req)
    if err != nil {
        return fmt.Errorf("synthesis service unreachable: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        return fmt.Errorf("synthesis service unhealthy: %s", resp.Status)
    }
    return nil
}
