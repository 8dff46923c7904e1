package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"sourcetrace/exif"
)

// Client communicates with the media decoding sidecar, which parses image
// containers and returns the embedded EXIF tag set and content-credential
// manifest tree. Byte-level container decoding stays out of this process.
type Client struct {
	serviceURL string
	client     *http.Client
}

// ExtractionResponse represents the response from the decoding sidecar.
// ManifestError is set when the sidecar's credential decode failed; its
// text distinguishes "no credential embedded" from hard decode failures.
type ExtractionResponse struct {
	Tags          exif.TagSet    `json:"exif_tags"`
	ManifestTree  map[string]any `json:"c2pa_manifest,omitempty"`
	ManifestError string         `json:"c2pa_error,omitempty"`
}

// NewClient creates a new decoding sidecar client.
func NewClient(serviceURL string) *Client {
	if serviceURL == "" {
		serviceURL = "http://localhost:5002"
	}

	return &Client{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck verifies the decoding sidecar is running.
func (c *Client) HealthCheck() error {
	resp, err := c.client.Get(c.serviceURL + "/health")
	if err != nil {
		return fmt.Errorf("extraction service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extraction service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// ExtractFile uploads an image file to the sidecar and returns its parsed
// signal trees.
func (c *Client) ExtractFile(imagePath string) (*ExtractionResponse, error) {
	file, err := os.Open(filepath.Clean(imagePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequest("POST", c.serviceURL+"/extract", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extraction service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var extResp ExtractionResponse
	if err := json.NewDecoder(resp.Body).Decode(&extResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &extResp, nil
}
