// Package detector sends captured frames to the external frame analysis
// service and interprets its verdict.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/idohaver7/PatrolVision/internal/camera"
	"github.com/idohaver7/PatrolVision/internal/models"
)

const (
	DefaultTimeout = 3 * time.Second
	frameField     = "frame"
)

var ErrNoFrame = errors.New("detector: no frame to analyze")

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the analysis verdict for one frame. LicensePlate is nil when the
// model could not read a plate.
type Result struct {
	ViolationDetected bool
	ViolationType     models.ViolationType
	LicensePlate      *string
	// Label is the model's own name for the violation.
	Label string
}

type analyzeResponse struct {
	ViolationDetected bool    `json:"violation_detected"`
	Type              *string `json:"type"`
	Details           *struct {
		Plate *string `json:"plate"`
	} `json:"details"`
	Error string `json:"error"`
}

type Client struct {
	endpoint string
	timeout  time.Duration
	http     HTTPClient
}

// NewClient targets the analysis endpoint, e.g. http://10.0.0.2:6000/analyze.
// A nil httpClient uses a default *http.Client.
func NewClient(endpoint string, timeout time.Duration, httpClient HTTPClient) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{endpoint: endpoint, timeout: timeout, http: httpClient}
}

// Analyze uploads the frame and returns the verdict. Any failure, including a
// timeout, is returned as an error; the frame is never retried.
func (c *Client) Analyze(ctx context.Context, frame *camera.Frame) (Result, error) {
	if frame == nil {
		return Result{}, ErrNoFrame
	}

	body, contentType, err := encodeFrame(frame)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return Result{}, fmt.Errorf("analyze failed with status %d", resp.StatusCode)
		}
		return Result{}, fmt.Errorf("failed to decode analyze response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("analyze failed with status %d: %s", resp.StatusCode, out.Error)
	}

	return out.result(), nil
}

func (r analyzeResponse) result() Result {
	if !r.ViolationDetected {
		return Result{}
	}

	res := Result{ViolationDetected: true}
	if r.Type != nil {
		res.Label = *r.Type
	}
	res.ViolationType = models.ParseViolationType(res.Label)

	if r.Details != nil && r.Details.Plate != nil {
		plate := strings.TrimSpace(*r.Details.Plate)
		if plate != "" && !strings.EqualFold(plate, "unknown") {
			res.LicensePlate = &plate
		}
	}
	return res
}

func encodeFrame(frame *camera.Frame) (io.Reader, string, error) {
	src, err := frame.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open frame: %w", err)
	}
	defer src.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(frameField, frame.Name())
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("failed to read frame: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
