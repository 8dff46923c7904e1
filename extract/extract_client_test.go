package extract

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sourcetrace/exif"
)

func writeTempImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x10}, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("image form field missing: %v", err)
		}
		defer file.Close()
		if header.Filename != "photo.jpg" {
			t.Errorf("filename: %q", header.Filename)
		}

		json.NewEncoder(w).Encode(ExtractionResponse{
			Tags: exif.TagSet{
				exif.TagMake: {Text: "Apple"},
			},
			ManifestError: "no manifest found in image",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.ExtractFile(writeTempImage(t))
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if resp.Tags[exif.TagMake].Text != "Apple" {
		t.Errorf("tags: %+v", resp.Tags)
	}
	if resp.ManifestTree != nil {
		t.Errorf("manifest tree should be empty: %v", resp.ManifestTree)
	}
	if resp.ManifestError != "no manifest found in image" {
		t.Errorf("manifest error: %q", resp.ManifestError)
	}
}

func TestExtractFileServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).ExtractFile(writeTempImage(t))
	if err == nil {
		t.Fatalf("expected error on non-200 response")
	}
	if !strings.Contains(err.Error(), "status 415") {
		t.Errorf("error must carry the status: %v", err)
	}
}

func TestExtractFileMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewClient("http://localhost:5002").ExtractFile(filepath.Join(t.TempDir(), "missing.jpg"))
	if err == nil || !strings.Contains(err.Error(), "failed to open image file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := NewClient(server.URL).HealthCheck(); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestHealthCheckUnhealthy(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewClient(server.URL).HealthCheck(); err == nil {
		t.Fatalf("expected error for unhealthy service")
	}
}
