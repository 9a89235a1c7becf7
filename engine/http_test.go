package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEngine_Synthesize(t *testing.T) {
	wav := makeWAV(24000, time.Second)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/synthesize", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req synthesisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hello", req.Text)
		assert.Equal(t, "narrator.wav", req.Speaker)
		assert.Equal(t, "cuda", req.Device)

		w.Header().Set("X-Device", "cuda:0 (NVIDIA RTX)")
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer server.Close()

	eng := NewHTTPEngine(server.URL, 10*time.Second)
	audio, err := eng.Synthesize(context.Background(), Request{
		Text:        "Hello",
		Speaker:     "narrator.wav",
		Temperature: 0.7,
		TopK:        50,
		Device:      DeviceCUDA,
	})
	require.NoError(t, err)
	assert.Equal(t, wav, audio.WAV)
	assert.Equal(t, 24000, audio.SampleRate)
	assert.Equal(t, "cuda:0 (NVIDIA RTX)", audio.Device)
	assert.InDelta(t, 1.0, audio.Duration.Seconds(), 0.01)
}

func TestHTTPEngine_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
	}))
	defer server.Close()

	eng := NewHTTPEngine(server.URL, 10*time.Second)
	_, err := eng.Synthesize(context.Background(), Request{Text: "Hello", Device: DeviceCUDA})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestHTTPEngine_BadAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a wav file"))
	}))
	defer server.Close()

	eng := NewHTTPEngine(server.URL, 10*time.Second)
	_, err := eng.Synthesize(context.Background(), Request{Text: "Hello", Device: DeviceCPU})
	assert.ErrorIs(t, err, errNotWAV)
}

func TestHTTPEngine_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	eng := NewHTTPEngine(server.URL, time.Second)
	assert.NoError(t, eng.HealthCheck(context.Background()))

	server.Close()
	assert.Error(t, eng.HealthCheck(context.Background()))
}

// fakeEngine scripts per-device outcomes for the fallback helper.
type fakeEngine struct {
	fail map[string]error
}

func (f *fakeEngine) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	if err, ok := f.fail[req.Device]; ok {
		return nil, err
	}
	return &Audio{WAV: []byte("ok"), SampleRate: 24000, Device: req.Device}, nil
}

func TestSynthesizeWithFallback(t *testing.T) {
	t.Run("preferred device succeeds", func(t *testing.T) {
		audio, err := SynthesizeWithFallback(context.Background(), &fakeEngine{}, Request{Device: DeviceAuto})
		require.NoError(t, err)
		assert.Equal(t, DeviceCUDA, audio.Device)
	})

	t.Run("falls back to cpu", func(t *testing.T) {
		eng := &fakeEngine{fail: map[string]error{DeviceCUDA: errors.New("no CUDA device")}}
		audio, err := SynthesizeWithFallback(context.Background(), eng, Request{Device: DeviceAuto})
		require.NoError(t, err)
		assert.Contains(t, audio.Device, "fallback from cuda")
		assert.Contains(t, audio.Device, "no CUDA device")
	})

	t.Run("both devices fail", func(t *testing.T) {
		eng := &fakeEngine{fail: map[string]error{
			DeviceCUDA: errors.New("no CUDA device"),
			DeviceCPU:  errors.New("model load failed"),
		}}
		_, err := SynthesizeWithFallback(context.Background(), eng, Request{Device: DeviceAuto})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no CUDA device")
		assert.Contains(t, err.Error(), "model load failed")
	})

	t.Run("explicit cpu does not retry", func(t *testing.T) {
		eng := &fakeEngine{fail: map[string]error{DeviceCPU: errors.New("model load failed")}}
		_, err := SynthesizeWithFallback(context.Background(), eng, Request{Device: DeviceCPU})
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "fallback")
	})
}
