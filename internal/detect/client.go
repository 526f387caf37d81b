package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client runs detection through a YOLO inference sidecar: the image is posted
// as multipart form data and the sidecar answers with the detection list.
// Annotation of the input image happens locally (see annotate.go), so the
// adapter owns the never-partially-written guarantee for the output file.
type Client struct {
	inferenceURL string
	httpClient   *http.Client
}

func NewClient(inferenceURL string, timeout time.Duration) *Client {
	return &Client{
		inferenceURL: inferenceURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type inferenceResponse struct {
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

func (c *Client) Detect(ctx context.Context, imagePath, annotatedPath string) ([]Detection, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading image: %v", ErrDetectionFailed, err)
	}

	detections, err := c.infer(ctx, filepath.Base(imagePath), imageData)
	if err != nil {
		return nil, err
	}

	if err := Annotate(imageData, detections, annotatedPath); err != nil {
		return nil, err
	}

	return detections, nil
}

func (c *Client) infer(ctx context.Context, filename string, imageData []byte) ([]Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("building inference request: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("building inference request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("building inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.inferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("building inference request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling inference service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading inference response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("%w: inference service rejected image (status %d): %s",
			ErrDetectionFailed, resp.StatusCode, respBody)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, respBody)
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding inference response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrDetectionFailed, parsed.Error)
	}

	return parsed.Detections, nil
}
