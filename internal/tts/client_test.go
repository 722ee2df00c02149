package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBackend struct {
	speechCalls atomic.Int32
	voiceCalls  atomic.Int32
	// speech returns the status for the n-th (1-based) speech call.
	speech func(n int32) int

	mu   sync.Mutex
	last map[string]any
}

func (f *fakeBackend) payload(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, _ := f.last[key].(string)
	return v
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/voices", func(w http.ResponseWriter, r *http.Request) {
		f.voiceCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"voices":["af_heart","am_adam"]}`))
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		n := f.speechCalls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("unmarshal body: %v", err)
		}
		f.mu.Lock()
		f.last = payload
		f.mu.Unlock()

		status := http.StatusOK
		if f.speech != nil {
			status = f.speech(n)
		}
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"synthesis failed"}}`))
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF-audio"))
	})
	return mux
}

func testClient(url string) *Client {
	return NewClient(Config{
		URL:              url,
		RetryBackoff:     []time.Duration{time.Millisecond},
		MaxAttempts:      3,
		StartupTimeout:   50 * time.Millisecond,
		PollInterval:     10 * time.Millisecond,
		WarmupRetryDelay: time.Millisecond,
	})
}

func TestSynthesizeSuccess(t *testing.T) {
	backend := &fakeBackend{}
	server := httptest.NewServer(backend.handler(t))
	defer server.Close()

	client := testClient(server.URL)
	audio, err := client.Synthesize(context.Background(), "Hello world.", "am_adam")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "RIFF-audio" {
		t.Fatalf("unexpected audio bytes: %q", audio)
	}
	if got := backend.payload("model"); got != "kokoro" {
		t.Errorf("model = %q, want kokoro", got)
	}
	if got := backend.payload("voice"); got != "am_adam" {
		t.Errorf("voice = %q, want am_adam", got)
	}
	if got := backend.payload("response_format"); got != "wav" {
		t.Errorf("response_format = %q, want wav", got)
	}
	if got := backend.payload("input"); got != "Hello world." {
		t.Errorf("input = %q", got)
	}
}

func TestSynthesizeDefaultVoice(t *testing.T) {
	backend := &fakeBackend{}
	server := httptest.NewServer(backend.handler(t))
	defer server.Close()

	if _, err := testClient(server.URL).Synthesize(context.Background(), "Hi.", ""); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got := backend.payload("voice"); got != DefaultVoice {
		t.Errorf("voice = %q, want %q", got, DefaultVoice)
	}
}

func TestSynthesizeRetries(t *testing.T) {
	tests := []struct {
		name         string
		speech       func(n int32) int
		wantErr      bool
		wantAttempts int
		wantCalls    int32
	}{
		{
			name:      "transient server error recovers",
			speech:    func(n int32) int { return map[bool]int{true: 500, false: 200}[n == 1] },
			wantCalls: 2,
		},
		{
			name:         "rate limited is retried",
			speech:       func(n int32) int { return 429 },
			wantErr:      true,
			wantAttempts: 3,
			wantCalls:    3,
		},
		{
			name:         "bad request is not retried",
			speech:       func(n int32) int { return 400 },
			wantErr:      true,
			wantAttempts: 1,
			wantCalls:    1,
		},
		{
			name:         "persistent failure exhausts attempts",
			speech:       func(n int32) int { return 503 },
			wantErr:      true,
			wantAttempts: 3,
			wantCalls:    3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{speech: tt.speech}
			server := httptest.NewServer(backend.handler(t))
			defer server.Close()

			_, err := testClient(server.URL).Synthesize(context.Background(), "Hello.", "")
			if got := backend.speechCalls.Load(); got != tt.wantCalls {
				t.Errorf("speech calls = %d, want %d", got, tt.wantCalls)
			}
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Synthesize() error = %v", err)
				}
				return
			}
			var chunkErr *ChunkSynthesisError
			if !errors.As(err, &chunkErr) {
				t.Fatalf("expected *ChunkSynthesisError, got %T: %v", err, err)
			}
			if chunkErr.Attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", chunkErr.Attempts, tt.wantAttempts)
			}
			if errors.Is(err, ErrBackendUnavailable) {
				t.Error("reachable backend reported as unavailable")
			}
		})
	}
}

func TestRetryBackoffSchedule(t *testing.T) {
	c := NewClient(Config{RetryBackoff: []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}})
	tests := []struct {
		retry uint
		want  time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{7, 20 * time.Second},
	}
	for _, tt := range tests {
		if got := c.backoff(tt.retry, nil, nil); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}

	t.Run("first retry waits the first entry", func(t *testing.T) {
		backend := &fakeBackend{speech: func(n int32) int { return map[bool]int{true: 500, false: 200}[n == 1] }}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		client := testClient(server.URL)
		client.cfg.RetryBackoff = []time.Duration{10 * time.Millisecond, 2 * time.Second}
		start := time.Now()
		if _, err := client.Synthesize(context.Background(), "Hello.", ""); err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
		if took := time.Since(start); took > time.Second {
			t.Errorf("Synthesize() took %v, want the 10ms first delay", took)
		}
	})
}

func TestSynthesizeBackendUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := testClient(url).Synthesize(context.Background(), "Hello.", "")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %T: %v", err, err)
	}
	var unavailable *BackendUnavailableError
	if !errors.As(err, &unavailable) || unavailable.URL != url {
		t.Fatalf("unexpected error detail: %#v", err)
	}
}

func TestSynthesizeCancelled(t *testing.T) {
	backend := &fakeBackend{speech: func(int32) int { return 500 }}
	server := httptest.NewServer(backend.handler(t))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient(server.URL).Synthesize(ctx, "Hello.", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestVoicesCached(t *testing.T) {
	backend := &fakeBackend{}
	server := httptest.NewServer(backend.handler(t))
	defer server.Close()

	client := testClient(server.URL)
	for i := 0; i < 3; i++ {
		voices, err := client.Voices(context.Background())
		if err != nil {
			t.Fatalf("Voices() error = %v", err)
		}
		if len(voices) != 2 || voices[0] != "af_heart" {
			t.Fatalf("unexpected voices: %v", voices)
		}
	}
	if got := backend.voiceCalls.Load(); got != 1 {
		t.Errorf("voices fetched %d times, want 1", got)
	}
}

func TestWaitUntilReadyTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	start := time.Now()
	err := testClient(server.URL).WaitUntilReady(context.Background())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Errorf("gave up before the startup timeout")
	}
}

func TestWarmup(t *testing.T) {
	t.Run("recovers after a cold start failure", func(t *testing.T) {
		backend := &fakeBackend{speech: func(n int32) int { return map[bool]int{true: 503, false: 200}[n == 1] }}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		if err := testClient(server.URL).Warmup(context.Background()); err != nil {
			t.Fatalf("Warmup() error = %v", err)
		}
		if got := backend.speechCalls.Load(); got != 2 {
			t.Errorf("speech calls = %d, want 2", got)
		}
		if got := backend.payload("voice"); got != DefaultVoice {
			t.Errorf("warmup voice = %q", got)
		}
	})

	t.Run("gives up after all attempts", func(t *testing.T) {
		backend := &fakeBackend{speech: func(int32) int { return 500 }}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		err := testClient(server.URL).Warmup(context.Background())
		if !errors.Is(err, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
		if got := backend.speechCalls.Load(); got != 3 {
			t.Errorf("speech calls = %d, want 3", got)
		}
	})
}

func TestStatusErrorRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{400, false}, {404, false}, {422, false}, {408, true}, {429, true}, {500, true}, {503, true},
	}
	for _, tt := range tests {
		if got := (&StatusError{StatusCode: tt.code}).Retryable(); got != tt.want {
			t.Errorf("Retryable(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
