package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim is a Resolver backed by the OpenStreetMap Nominatim reverse API.
// Requests are throttled to the public instance's one-per-second policy.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewNominatim(baseURL, userAgent string, timeout time.Duration) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if userAgent == "" {
		userAgent = "PatrolVision/1.0"
	}
	return &Nominatim{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type nominatimAddress struct {
	Road         string `json:"road"`
	Pedestrian   string `json:"pedestrian"`
	HouseNumber  string `json:"house_number"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	State        string `json:"state"`
}

type nominatimResponse struct {
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error"`
}

func (n *Nominatim) Reverse(ctx context.Context, lat, lng float64) ([]Place, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("addressdetails", "1")
	q.Set("accept-language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reverse geocode returned %d: %s", resp.StatusCode, string(body))
	}

	var out nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode reverse geocode response: %w", err)
	}
	// Nominatim answers 200 with {"error": "Unable to geocode"} for open water etc.
	if out.Error != "" {
		return nil, nil
	}

	a := out.Address
	street := a.Road
	if street == "" {
		street = a.Pedestrian
	}
	city := firstNonEmpty(a.City, a.Town, a.Village, a.Municipality)

	return []Place{{
		StreetName:       street,
		StreetNumber:     a.HouseNumber,
		City:             city,
		State:            a.State,
		FormattedAddress: out.DisplayName,
	}}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
