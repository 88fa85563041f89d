package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "driver@example.com", body["email"])
			io.WriteString(w, `{"success":true,"token":"tok-1","user":{"id":7,"email":"driver@example.com","role":"user"}}`)
		case "/api/auth/me":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			io.WriteString(w, `{"success":true,"data":{"id":7,"email":"driver@example.com","role":"user"}}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	res, err := c.Login(context.Background(), "driver@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.Equal(t, uint(7), res.User.ID)
	assert.Equal(t, "tok-1", c.Token())

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, me.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"success":false,"error":"Invalid credentials"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Login(context.Background(), "a@b.c", "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid credentials", err.Error())
}

func TestSubmitViolation(t *testing.T) {
	img := filepath.Join(t.TempDir(), "frame.jpg")
	require.NoError(t, os.WriteFile(img, []byte("jpeg"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/violations", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "RedLightViolation", r.FormValue("violationType"))
		assert.Equal(t, "ABC123", r.FormValue("licensePlate"))
		assert.Equal(t, "32.08", r.FormValue("latitude"))
		assert.Equal(t, "34.78", r.FormValue("longitude"))
		assert.Equal(t, "2026-03-01T12:00:00Z", r.FormValue("timestamp"))
		_, header, err := r.FormFile("mediaFile")
		require.NoError(t, err)
		assert.Equal(t, "frame.jpg", header.Filename)

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"success":true,"data":{"id":12,"ownerUserId":7,"violationType":"RedLightViolation",
			"licensePlate":"ABC123","mediaUrl":"http://x/uploads/mediaFile-1-2.jpg",
			"location":{"type":"Point","coordinates":[34.78,32.08]},"address":"Herzl 5, Tel Aviv",
			"status":"PendingReview"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.SetToken("tok")
	v, err := c.SubmitViolation(context.Background(), ViolationUpload{
		ViolationType: models.ViolationRedLight,
		LicensePlate:  "ABC123",
		Latitude:      32.08,
		Longitude:     34.78,
		Timestamp:     time.Date(2026, 3, 1, 14, 0, 0, 0, time.FixedZone("IST", 2*3600)),
		ImagePath:     img,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), v.ID)
	assert.Equal(t, models.StatusPendingReview, v.Status)
	assert.Equal(t, []float64{34.78, 32.08}, v.Location.Coordinates())
}

func TestSubmitViolationServerMessage(t *testing.T) {
	img := filepath.Join(t.TempDir(), "frame.jpg")
	require.NoError(t, os.WriteFile(img, []byte("jpeg"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"success":false,"error":"Please provide all required fields"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).SubmitViolation(context.Background(), ViolationUpload{ImagePath: img})
	require.Error(t, err)
	assert.Equal(t, "Please provide all required fields", err.Error())
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).GetViolation(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).GetViolation(context.Background(), 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "request failed with status 502", apiErr.Message)
}

func TestListViolations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "oldest", q.Get("sort"))
		assert.Equal(t, "RedLightViolation", q.Get("type"))
		assert.Equal(t, "32.08", q.Get("lat"))
		assert.Equal(t, "34.78", q.Get("lng"))
		assert.Equal(t, "500", q.Get("radius"))
		assert.Empty(t, q.Get("mode"))
		io.WriteString(w, `{"success":true,"count":1,"total":26,"pagination":{"prev":{"page":1,"limit":25}},
			"data":[{"id":3,"violationType":"RedLightViolation","location":{"type":"Point","coordinates":[34.78,32.08]}}]}`)
	}))
	defer srv.Close()

	near := models.NewGeoPoint(32.08, 34.78)
	page, err := NewClient(srv.URL, time.Second).ListViolations(context.Background(), ListParams{
		Page:         2,
		Oldest:       true,
		Type:         models.ViolationRedLight,
		Near:         &near,
		RadiusMeters: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(26), page.Total)
	require.NotNil(t, page.Pagination.Prev)
	assert.Nil(t, page.Pagination.Next)
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(3), page.Data[0].ID)
}

func TestListParamsValues(t *testing.T) {
	assert.Empty(t, ListParams{}.Values().Encode())
	assert.Equal(t, "limit=10&mode=map&userId=4", ListParams{MapMode: true, Limit: 10, UserID: 4}.Values().Encode())
}
