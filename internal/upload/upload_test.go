package upload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/config"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "final__output.jpg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHTTPUploader(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xd9}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("Missing api key header")
		}
		var req uploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Bad request body: %v", err)
		}
		got, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || string(got) != string(payload) {
			t.Errorf("Unexpected image payload")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"uploadPath": "https://img.example.test/abc"})
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, "secret")
	url, err := u.Upload(context.Background(), writeFile(t, payload))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if url != "https://img.example.test/abc" {
		t.Errorf("Unexpected url %s", url)
	}
}

func TestHTTPUploaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		missing bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "malformed", status: http.StatusOK, body: "{"},
		{name: "no path", status: http.StatusOK, body: `{"uploadPath":""}`},
		{name: "missing file", status: http.StatusOK, body: `{"uploadPath":"x"}`, missing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			path := writeFile(t, []byte("x"))
			if tt.missing {
				path = filepath.Join(t.TempDir(), "nope.jpg")
			}
			if _, err := NewHTTPUploader(srv.URL, "").Upload(context.Background(), path); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.UploadConfig
		wantNil bool
		wantErr bool
	}{
		{name: "disabled", cfg: config.UploadConfig{Backend: "none"}, wantNil: true},
		{name: "empty", cfg: config.UploadConfig{}, wantNil: true},
		{name: "http", cfg: config.UploadConfig{Backend: "http", URL: "http://localhost"}},
		{name: "http without url", cfg: config.UploadConfig{Backend: "http"}, wantErr: true},
		{name: "minio", cfg: config.UploadConfig{Backend: "minio", MinIOEndpoint: "localhost:9000"}},
		{name: "minio without endpoint", cfg: config.UploadConfig{Backend: "minio"}, wantErr: true},
		{name: "unknown", cfg: config.UploadConfig{Backend: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (u == nil) != tt.wantNil {
				t.Errorf("New() returned %v, wantNil %v", u, tt.wantNil)
			}
		})
	}
}

func TestMinIODefaults(t *testing.T) {
	u, err := NewMinIOUploader(config.UploadConfig{MinIOEndpoint: "localhost:9000"})
	if err != nil {
		t.Fatalf("NewMinIOUploader failed: %v", err)
	}
	if u.bucket != "portraitkiosk" {
		t.Errorf("Unexpected bucket %s", u.bucket)
	}
	if u.expiry != 24*time.Hour {
		t.Errorf("Unexpected expiry %s", u.expiry)
	}
}

func TestObjectName(t *testing.T) {
	ts := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	got := objectName(ts, "/tmp/job/abc__output.jpg")
	if got != "2024/05/01/abc__output.jpg" {
		t.Errorf("Unexpected object name %s", got)
	}
}
