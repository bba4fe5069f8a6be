package leonardo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := New(srv.URL, "secret", t.TempDir())
	c.PollInterval = 10 * time.Millisecond
	return c
}

func TestSubmit(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generations" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Expected bearer auth, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Bad body: %v", err)
		}
		w.Write([]byte(`{"sdGenerationJob":{"generationId":"gen-1"}}`))
	}))
	defer srv.Close()

	h, err := newTestClient(t, srv).Submit(context.Background(), Payload(map[string]any{"prompt": "a cat"}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if h.ID != "gen-1" {
		t.Errorf("Expected gen-1, got %s", h.ID)
	}
	if got["prompt"] != "a cat" || got["presetStyle"] != "DYNAMIC" {
		t.Errorf("Payload not merged: %v", got)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusUnauthorized, `{"error":"bad key"}`},
		{"missing job", http.StatusOK, `{}`},
		{"empty id", http.StatusOK, `{"sdGenerationJob":{"generationId":""}}`},
		{"malformed", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Submit(context.Background(), nil)
			var subErr *SubmissionError
			if !errors.As(err, &subErr) {
				t.Fatalf("Expected SubmissionError, got %v", err)
			}
		})
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", "k", t.TempDir())
	_, err := c.Submit(context.Background(), nil)
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Expected SubmissionError, got %v", err)
	}
}

func TestPollUntilTerminalPendingPendingComplete(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/generations/gen-1", func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		if n < 3 {
			w.Write([]byte(`{"generations_by_pk":{"status":"PENDING","generated_images":[]}}`))
			return
		}
		w.Write([]byte(`{"generations_by_pk":{"status":"COMPLETE","generated_images":[{"id":"img-a","url":"` + srv.URL + `/files/a.jpg"}]}}`))
	})
	mux.HandleFunc("/files/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpegbytes"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	set, err := c.PollUntilTerminal(context.Background(), Handle{ID: "gen-1"})
	if err != nil {
		t.Fatalf("PollUntilTerminal failed: %v", err)
	}
	if polls.Load() != 3 {
		t.Errorf("Expected 3 polls, got %d", polls.Load())
	}
	if set.Dir != filepath.Join(c.OutputRoot, "gen-1") {
		t.Errorf("Unexpected dir %s", set.Dir)
	}
	if len(set.Files) != 1 || filepath.Base(set.Files[0]) != "img-a.jpg" {
		t.Fatalf("Unexpected files %v", set.Files)
	}
	data, err := os.ReadFile(set.Files[0])
	if err != nil || string(data) != "jpegbytes" {
		t.Errorf("Artifact not downloaded: %q %v", data, err)
	}
}

func TestPollUntilTerminalErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{
			name: "missing record",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"generations_by_pk":null}`))
			},
			check: func(err error) bool {
				var e *JobNotFoundError
				return errors.As(err, &e)
			},
		},
		{
			name: "failed status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"generations_by_pk":{"status":"FAILED"}}`))
			},
			check: func(err error) bool {
				var e *JobNotFoundError
				return errors.As(err, &e) && e.Status == StatusFailed
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(err error) bool {
				var e *PollError
				return errors.As(err, &e)
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{`))
			},
			check: func(err error) bool {
				var e *PollError
				return errors.As(err, &e)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(t, srv).PollUntilTerminal(context.Background(), Handle{ID: "x"})
			if !tt.check(err) {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestPollTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generations_by_pk":{"status":"PENDING"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.PollTimeout = 50 * time.Millisecond
	_, err := c.PollUntilTerminal(context.Background(), Handle{ID: "slow"})
	if !errors.Is(err, ErrPollTimeout) {
		t.Errorf("Expected ErrPollTimeout, got %v", err)
	}
}

func TestPollCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generations_by_pk":{"status":"PENDING"}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv).PollUntilTerminal(ctx, Handle{ID: "slow"})
	var pollErr *PollError
	if !errors.As(err, &pollErr) {
		t.Errorf("Expected PollError, got %v", err)
	}
}

func TestDownloadFailure(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/generations/gen-2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generations_by_pk":{"status":"COMPLETE","generated_images":[{"id":"a","url":"` + srv.URL + `/missing.jpg"}]}}`))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	_, err := newTestClient(t, srv).PollUntilTerminal(context.Background(), Handle{ID: "gen-2"})
	var pollErr *PollError
	if !errors.As(err, &pollErr) {
		t.Errorf("Expected PollError, got %v", err)
	}
}
