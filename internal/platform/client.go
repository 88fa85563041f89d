// Package platform is the dashcam's client for the PatrolVision backend API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/idohaver7/PatrolVision/internal/models"
)

// ErrUnreachable wraps transport failures talking to the backend.
var ErrUnreachable = errors.New("No communication with the server")

// APIError carries the backend's error message verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client handles communication with the PatrolVision backend
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a new backend client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// AuthResult from login
type AuthResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login exchanges credentials for a bearer token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Me returns the account behind the current token.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out struct {
		Data models.User `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, "", &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ViolationUpload is a report ready to be sent.
type ViolationUpload struct {
	ViolationType models.ViolationType
	LicensePlate  string
	Latitude      float64
	Longitude     float64
	Timestamp     time.Time
	ImagePath     string
}

// SubmitViolation posts a report with its evidence image and returns the
// stored record.
func (c *Client) SubmitViolation(ctx context.Context, v ViolationUpload) (*models.Violation, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := []struct{ name, value string }{
		{"violationType", string(v.ViolationType)},
		{"licensePlate", v.LicensePlate},
		{"latitude", strconv.FormatFloat(v.Latitude, 'f', -1, 64)},
		{"longitude", strconv.FormatFloat(v.Longitude, 'f', -1, 64)},
	}
	if !v.Timestamp.IsZero() {
		fields = append(fields, struct{ name, value string }{"timestamp", v.Timestamp.UTC().Format(time.RFC3339)})
	}
	for _, f := range fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return nil, err
		}
	}

	file, err := os.Open(v.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("mediaFile", filepath.Base(v.ImagePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var out struct {
		Data models.Violation `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/violations", &body, writer.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ListParams are the history view filters. Zero values are omitted.
type ListParams struct {
	Page         int
	Limit        int
	MapMode      bool
	Oldest       bool
	Type         models.ViolationType
	LicensePlate string
	StartDate    string
	EndDate      string
	Near         *models.GeoPoint
	RadiusMeters int
	UserID       uint
}

func (p ListParams) Values() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.MapMode {
		q.Set("mode", "map")
	}
	if p.Oldest {
		q.Set("sort", "oldest")
	}
	if p.Type != "" {
		q.Set("type", string(p.Type))
	}
	if p.LicensePlate != "" {
		q.Set("licensePlate", p.LicensePlate)
	}
	if p.StartDate != "" {
		q.Set("startDate", p.StartDate)
	}
	if p.EndDate != "" {
		q.Set("endDate", p.EndDate)
	}
	if p.Near != nil {
		q.Set("lat", strconv.FormatFloat(p.Near.Latitude, 'f', -1, 64))
		q.Set("lng", strconv.FormatFloat(p.Near.Longitude, 'f', -1, 64))
		if p.RadiusMeters > 0 {
			q.Set("radius", strconv.Itoa(p.RadiusMeters))
		}
	}
	if p.UserID > 0 {
		q.Set("userId", strconv.FormatUint(uint64(p.UserID), 10))
	}
	return q
}

type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// ViolationPage is one page of the list endpoint.
type ViolationPage struct {
	Count      int   `json:"count"`
	Total      int64 `json:"total"`
	Pagination struct {
		Next *PageRef `json:"next,omitempty"`
		Prev *PageRef `json:"prev,omitempty"`
	} `json:"pagination"`
	Data []models.Violation `json:"data"`
}

func (c *Client) ListViolations(ctx context.Context, params ListParams) (*ViolationPage, error) {
	path := "/api/violations"
	if q := params.Values().Encode(); q != "" {
		path += "?" + q
	}

	var out ViolationPage
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetViolation(ctx context.Context, id int64) (*models.Violation, error) {
	var out struct {
		Data models.Violation `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/violations/"+strconv.FormatInt(id, 10), nil, "", &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
		} else {
			apiErr.Message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
