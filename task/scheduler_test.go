package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceapi/config"
	"voiceapi/engine"
	"voiceapi/voices"
)

// mockEngine is a test double for the synthesis backend.
type mockEngine struct {
	synthFunc func(ctx context.Context, req engine.Request) (*engine.Audio, error)
}

func (m *mockEngine) Synthesize(ctx context.Context, req engine.Request) (*engine.Audio, error) {
	if m.synthFunc != nil {
		return m.synthFunc(ctx, req)
	}
	return &engine.Audio{
		WAV:        []byte("fake-wav-bytes"),
		SampleRate: 24000,
		Duration:   1500 * time.Millisecond,
		Device:     req.Device,
	}, nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		MaxConcurrency: 1,
		QueueSize:      8,
		GenTimeout:     10 * time.Second,
		OutputDir:      t.TempDir(),
		DefaultDevice:  "auto",
		MaxTextLen:     2000,
		KeepTasks:      100,
		OutputMaxAge:   time.Hour,
	}
}

func newTestScheduler(t *testing.T, cfg *config.Config, eng engine.Engine) (*Scheduler, *Store) {
	store := NewStore()
	sched, err := NewScheduler(cfg, store, eng, voices.NewRegistry(voices.Defaults()))
	require.NoError(t, err)
	return sched, store
}

func awaitTerminal(t *testing.T, store *Store, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := store.AwaitTerminal(ctx, id)
	require.NoError(t, err)
	return snap
}

func TestScheduler_Submit(t *testing.T) {
	sched, store := newTestScheduler(t, testConfig(t), &mockEngine{})

	id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1, Temperature: 0.7, TopK: 50, Style: "default", Device: "auto"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	snap, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, "Hello", snap.Request.Text)
}

func TestScheduler_Validation(t *testing.T) {
	sched, store := newTestScheduler(t, testConfig(t), &mockEngine{})

	cases := []struct {
		name string
		req  Request
	}{
		{"empty text", Request{Text: "", SpeakerID: 1}},
		{"blank text", Request{Text: "   ", SpeakerID: 1}},
		{"unknown speaker", Request{Text: "hi", SpeakerID: 999}},
		{"unsupported style", Request{Text: "hi", SpeakerID: 1, Style: "operatic"}},
		{"temperature too high", Request{Text: "hi", SpeakerID: 1, Temperature: 3.5}},
		{"negative temperature", Request{Text: "hi", SpeakerID: 1, Temperature: -0.1}},
		{"top_k out of range", Request{Text: "hi", SpeakerID: 1, TopK: 10000}},
		{"unknown device", Request{Text: "hi", SpeakerID: 1, Device: "tpu"}},
		{"text too long", Request{Text: strings.Repeat("a", 2001), SpeakerID: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := sched.Submit(tc.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, id)
		})
	}

	// No task was ever created.
	assert.Equal(t, 0, store.Len())
}

func TestScheduler_ProcessTask(t *testing.T) {
	t.Run("successful generation", func(t *testing.T) {
		sched, store := newTestScheduler(t, testConfig(t), &mockEngine{})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sched.Start(ctx)

		id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1, Temperature: 0.7, TopK: 50})
		require.NoError(t, err)

		snap := awaitTerminal(t, store, id)
		assert.Equal(t, StatusCompleted, snap.Status)
		assert.Equal(t, 100, snap.Progress)
		require.NotNil(t, snap.Result)
		assert.Equal(t, id+".wav", snap.Result.FileName)
		assert.Equal(t, int64(len("fake-wav-bytes")), snap.Result.Size)
		assert.Equal(t, 24000, snap.Result.SampleRate)
		assert.Empty(t, snap.Error)
		assert.NotEmpty(t, snap.DeviceInfo)

		// The artifact is on disk under the conventional name.
		_, err = sched.OutputFilePath(id + ".wav")
		assert.NoError(t, err)
	})

	t.Run("failed generation", func(t *testing.T) {
		eng := &mockEngine{
			synthFunc: func(ctx context.Context, req engine.Request) (*engine.Audio, error) {
				return nil, errors.New("model weights missing")
			},
		}
		sched, store := newTestScheduler(t, testConfig(t), eng)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sched.Start(ctx)

		id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1})
		require.NoError(t, err)

		snap := awaitTerminal(t, store, id)
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Contains(t, snap.Error, "model weights missing")
		assert.Nil(t, snap.Result)
	})

	t.Run("device fallback is recorded", func(t *testing.T) {
		eng := &mockEngine{
			synthFunc: func(ctx context.Context, req engine.Request) (*engine.Audio, error) {
				if req.Device == engine.DeviceCUDA {
					return nil, errors.New("CUDA out of memory")
				}
				return &engine.Audio{WAV: []byte("ok"), SampleRate: 24000, Device: req.Device}, nil
			},
		}
		sched, store := newTestScheduler(t, testConfig(t), eng)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sched.Start(ctx)

		id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1, Device: "auto"})
		require.NoError(t, err)

		snap := awaitTerminal(t, store, id)
		assert.Equal(t, StatusCompleted, snap.Status)
		assert.Contains(t, snap.DeviceInfo, "fallback from cuda")
	})

	t.Run("panic becomes failed transition", func(t *testing.T) {
		eng := &mockEngine{
			synthFunc: func(ctx context.Context, req engine.Request) (*engine.Audio, error) {
				panic("index out of range")
			},
		}
		sched, store := newTestScheduler(t, testConfig(t), eng)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sched.Start(ctx)

		id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1})
		require.NoError(t, err)

		snap := awaitTerminal(t, store, id)
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Contains(t, snap.Error, "internal error")
	})

	t.Run("worker-enforced timeout", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.GenTimeout = 50 * time.Millisecond
		eng := &mockEngine{
			synthFunc: func(ctx context.Context, req engine.Request) (*engine.Audio, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		sched, store := newTestScheduler(t, cfg, eng)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sched.Start(ctx)

		id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1})
		require.NoError(t, err)

		snap := awaitTerminal(t, store, id)
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Contains(t, snap.Error, "timed out")
	})
}

func TestScheduler_Backpressure(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueueSize = 2
	// Never started, so nothing drains the queue.
	sched, store := newTestScheduler(t, cfg, &mockEngine{})

	for i := 0; i < 2; i++ {
		_, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1})
		require.NoError(t, err)
	}

	id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, id)

	// The rejected submission left no record behind.
	assert.Equal(t, 2, store.Len())
}

func TestScheduler_Cancel(t *testing.T) {
	t.Run("cancel queued task", func(t *testing.T) {
		// Never started, so the task stays queued.
		sched, store := newTestScheduler(t, testConfig(t), &mockEngine{})

		id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1})
		require.NoError(t, err)
		require.NoError(t, sched.Cancel(id))

		snap, err := store.Get(id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Contains(t, snap.Error, "canceled")
	})

	t.Run("cancel processing task", func(t *testing.T) {
		processingStarted := make(chan struct{})
		eng := &mockEngine{
			synthFunc: func(ctx context.Context, req engine.Request) (*engine.Audio, error) {
				close(processingStarted)
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		sched, store := newTestScheduler(t, testConfig(t), eng)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sched.Start(ctx)

		id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1})
		require.NoError(t, err)
		<-processingStarted

		require.NoError(t, sched.Cancel(id))

		snap := awaitTerminal(t, store, id)
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Contains(t, snap.Error, "canceled")
	})

	t.Run("cannot cancel completed task", func(t *testing.T) {
		sched, store := newTestScheduler(t, testConfig(t), &mockEngine{})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sched.Start(ctx)

		id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1})
		require.NoError(t, err)
		awaitTerminal(t, store, id)

		err = sched.Cancel(id)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot cancel task in state: completed")
	})

	t.Run("cancel unknown task", func(t *testing.T) {
		sched, _ := newTestScheduler(t, testConfig(t), &mockEngine{})
		assert.ErrorIs(t, sched.Cancel("nonexistent-id"), ErrNotFound)
	})
}

func TestStatusService(t *testing.T) {
	sched, store := newTestScheduler(t, testConfig(t), &mockEngine{})
	status := NewStatusService(store)

	_, err := status.Get("nonexistent-id")
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := sched.Submit(Request{Text: "Hello", SpeakerID: 1})
	require.NoError(t, err)

	snap, err := status.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, snap.Status)
	assert.Len(t, status.List(), 1)
}
