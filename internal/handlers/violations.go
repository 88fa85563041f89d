package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/idohaver7/PatrolVision/internal/database"
	"github.com/idohaver7/PatrolVision/internal/geocode"
	"github.com/idohaver7/PatrolVision/internal/metrics"
	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/idohaver7/PatrolVision/internal/storage"
	"gorm.io/gorm"
)

const (
	mediaField         = "mediaFile"
	mediaFallbackField = "image"

	defaultRadiusMeters = 1000
	defaultListLimit    = 25
	defaultMapLimit     = 500
	maxListLimit        = 1000
)

// ViolationPublisher receives violation change events.
type ViolationPublisher interface {
	PublishViolation(event string, v *models.Violation) error
}

var (
	geocoder        geocode.Resolver
	mediaStore      *storage.MediaStore
	violationEvents ViolationPublisher
	geocodeTimeout  = 5 * time.Second
	now             = time.Now
)

// SetGeocoder sets the reverse geocoder used when reports are created.
// A nil resolver stores coordinates as the address.
func SetGeocoder(r geocode.Resolver) {
	geocoder = r
}

// SetMediaStore sets where uploaded evidence images are written.
func SetMediaStore(s *storage.MediaStore) {
	mediaStore = s
}

// SetViolationPublisher sets the sink for violation change events.
func SetViolationPublisher(p ViolationPublisher) {
	violationEvents = p
}

// validationError carries a message meant for the client verbatim.
type validationError string

func (e validationError) Error() string { return string(e) }

const (
	errMissingFields     validationError = "Please provide all required fields"
	errInvalidType       validationError = "Invalid violation type"
	errInvalidCoordinate validationError = "Latitude and longitude must be valid coordinates"
	errInvalidTimestamp  validationError = "Timestamp must be an RFC3339 date"
)

type violationForm struct {
	ViolationType models.ViolationType
	LicensePlate  string
	Location      models.GeoPoint
	Timestamp     time.Time
}

func parseViolationForm(c *gin.Context) (violationForm, error) {
	var form violationForm

	rawType := strings.TrimSpace(c.PostForm("violationType"))
	plate := strings.TrimSpace(c.PostForm("licensePlate"))
	rawLat := strings.TrimSpace(c.PostForm("latitude"))
	rawLng := strings.TrimSpace(c.PostForm("longitude"))
	if rawType == "" || plate == "" || rawLat == "" || rawLng == "" {
		return form, errMissingFields
	}

	vt, ok := models.LookupViolationType(rawType)
	if !ok {
		return form, errInvalidType
	}

	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return form, errInvalidCoordinate
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return form, errInvalidCoordinate
	}
	point := models.NewGeoPoint(lat, lng)
	if !point.Valid() {
		return form, errInvalidCoordinate
	}

	ts := now()
	if raw := strings.TrimSpace(c.PostForm("timestamp")); raw != "" {
		ts, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return form, errInvalidTimestamp
		}
	}

	form.ViolationType = vt
	form.LicensePlate = plate
	form.Location = point
	form.Timestamp = ts.UTC()
	return form, nil
}

func uploadedMedia(c *gin.Context) (string, *multipart.FileHeader, error) {
	for _, field := range []string{mediaField, mediaFallbackField} {
		if fh, err := c.FormFile(field); err == nil {
			return field, fh, nil
		}
	}
	return "", nil, http.ErrMissingFile
}

func mediaURL(c *gin.Context, name string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s/uploads/%s", scheme, c.Request.Host, name)
}

func resolveAddress(ctx context.Context, p models.GeoPoint) string {
	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	start := time.Now()
	addr := geocode.Describe(ctx, geocoder, p.Latitude, p.Longitude)
	metrics.GeocodeDurationSeconds.Observe(time.Since(start).Seconds())
	return addr
}

func publish(event string, v *models.Violation) {
	if violationEvents == nil {
		return
	}
	if err := violationEvents.PublishViolation(event, v); err != nil {
		log.WithError(err).WithFields(log.Fields{"event": event, "id": v.ID}).Warn("failed to publish violation event")
	}
}

// PostViolation handles POST /api/violations - a driver files a report
func PostViolation(c *gin.Context) {
	userID, _ := currentUser(c)

	field, fh, err := uploadedMedia(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "No image file uploaded")
		return
	}

	form, err := parseViolationForm(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if mediaStore == nil {
		respondError(c, http.StatusInternalServerError, "Server Error creating violation")
		return
	}
	filename, err := mediaStore.Save(field, fh)
	if err != nil {
		log.WithError(err).Error("failed to store media file")
		respondError(c, http.StatusInternalServerError, "Server Error creating violation")
		return
	}

	violation := models.Violation{
		UserID:        userID,
		ViolationType: form.ViolationType,
		LicensePlate:  form.LicensePlate,
		MediaURL:      mediaURL(c, filename),
		Location:      form.Location,
		Address:       resolveAddress(c.Request.Context(), form.Location),
		Status:        models.StatusPendingReview,
		Timestamp:     form.Timestamp,
	}

	if err := database.DB.Create(&violation).Error; err != nil {
		log.WithError(err).Error("failed to create violation")
		if rmErr := mediaStore.Remove(filename); rmErr != nil {
			log.WithError(rmErr).WithField("file", filename).Warn("failed to remove orphaned media file")
		}
		respondError(c, http.StatusInternalServerError, "Server Error creating violation")
		return
	}

	metrics.ViolationsCreatedTotal.WithLabelValues(string(violation.ViolationType)).Inc()
	publish("created", &violation)
	log.WithFields(log.Fields{
		"id":   violation.ID,
		"type": violation.ViolationType,
		"user": userID,
	}).Info("🚨 violation reported")

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": violation})
}

// violationQuery is the parsed form of the list endpoint's query string.
type violationQuery struct {
	UserID       *uint
	LicensePlate string
	Type         string
	Start        *time.Time
	End          *time.Time
	Near         *models.GeoPoint
	RadiusMeters float64
	Page         int
	Limit        int
	Oldest       bool
}

// parseDate accepts YYYY-MM-DD or RFC3339.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// endOfDay moves t to the last millisecond of its calendar day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseViolationQuery(c *gin.Context, userID uint, role models.Role) (violationQuery, error) {
	q := violationQuery{
		LicensePlate: strings.TrimSpace(c.Query("licensePlate")),
		Type:         strings.TrimSpace(c.Query("type")),
		Oldest:       c.Query("sort") == "oldest",
	}

	if role == models.RoleAdmin {
		if raw := c.Query("userId"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return q, validationError("Invalid userId")
			}
			owner := uint(id)
			q.UserID = &owner
		}
	} else {
		owner := userID
		q.UserID = &owner
	}

	if raw := c.Query("startDate"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return q, validationError("Invalid startDate")
		}
		q.Start = &t
	}
	if raw := c.Query("endDate"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return q, validationError("Invalid endDate")
		}
		t = endOfDay(t)
		q.End = &t
	}

	rawLat, rawLng := c.Query("lat"), c.Query("lng")
	if rawLat != "" && rawLng != "" {
		lat, errLat := strconv.ParseFloat(rawLat, 64)
		lng, errLng := strconv.ParseFloat(rawLng, 64)
		point := models.NewGeoPoint(lat, lng)
		if errLat != nil || errLng != nil || !point.Valid() {
			return q, validationError("Invalid lat/lng")
		}
		q.Near = &point
		q.RadiusMeters = float64(positiveInt(c.Query("radius"), defaultRadiusMeters))
	}

	q.Page = positiveInt(c.Query("page"), 1)
	defaultLimit := defaultListLimit
	if c.Query("mode") == "map" {
		defaultLimit = defaultMapLimit
	}
	q.Limit = positiveInt(c.Query("limit"), defaultLimit)
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	return q, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (q violationQuery) scope(db *gorm.DB) *gorm.DB {
	if q.UserID != nil {
		db = db.Where("user_id = ?", *q.UserID)
	}
	if q.LicensePlate != "" {
		db = db.Where("license_plate ILIKE ?", "%"+escapeLike(q.LicensePlate)+"%")
	}
	if q.Type != "" {
		db = db.Where("violation_type = ?", q.Type)
	}
	if q.Start != nil {
		db = db.Where("timestamp >= ?", *q.Start)
	}
	if q.End != nil {
		db = db.Where("timestamp <= ?", *q.End)
	}
	if q.Near != nil {
		lat, lng := q.Near.Latitude, q.Near.Longitude
		db = db.Where(
			"earth_box(ll_to_earth(?, ?), ?) @> ll_to_earth(latitude, longitude) AND earth_distance(ll_to_earth(?, ?), ll_to_earth(latitude, longitude)) <= ?",
			lat, lng, q.RadiusMeters, lat, lng, q.RadiusMeters,
		)
	}
	return db
}

func (q violationQuery) order() string {
	if q.Oldest {
		return "created_at ASC, id ASC"
	}
	return "created_at DESC, id DESC"
}

// pagination mirrors the list envelope: next when more rows follow this
// page, prev when this is not the first page.
func pagination(page, limit int, total int64) gin.H {
	p := gin.H{}
	startIndex := (page - 1) * limit
	endIndex := page * limit
	if int64(endIndex) < total {
		p["next"] = gin.H{"page": page + 1, "limit": limit}
	}
	if startIndex > 0 {
		p["prev"] = gin.H{"page": page - 1, "limit": limit}
	}
	return p
}

// GetViolations handles GET /api/violations - list with filters, paging and map mode
func GetViolations(c *gin.Context) {
	userID, role := currentUser(c)

	q, err := parseViolationQuery(c, userID, role)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var total int64
	if err := q.scope(database.DB.Model(&models.Violation{})).Count(&total).Error; err != nil {
		log.WithError(err).Error("failed to count violations")
		respondError(c, http.StatusInternalServerError, "Server Error fetching violations")
		return
	}

	violations := []models.Violation{}
	if err := q.scope(database.DB.Model(&models.Violation{})).
		Preload("User").
		Order(q.order()).
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&violations).Error; err != nil {
		log.WithError(err).Error("failed to fetch violations")
		respondError(c, http.StatusInternalServerError, "Server Error fetching violations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"count":      len(violations),
		"total":      total,
		"pagination": pagination(q.Page, q.Limit, total),
		"data":       violations,
	})
}

func violationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "Invalid violation ID")
		return 0, false
	}
	return id, true
}

// loadViolation fetches a violation by path id, writing 400/404/500 itself.
func loadViolation(c *gin.Context, preloadUser bool) (*models.Violation, bool) {
	id, ok := violationID(c)
	if !ok {
		return nil, false
	}

	db := database.DB
	if preloadUser {
		db = db.Preload("User")
	}

	var violation models.Violation
	if err := db.First(&violation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Violation not found")
			return nil, false
		}
		log.WithError(err).WithField("id", id).Error("failed to fetch violation")
		respondError(c, http.StatusInternalServerError, "Server Error")
		return nil, false
	}
	return &violation, true
}

// GetViolation handles GET /api/violations/:id - owner or admin only
func GetViolation(c *gin.Context) {
	userID, role := currentUser(c)

	violation, ok := loadViolation(c, true)
	if !ok {
		return
	}

	if role != models.RoleAdmin && violation.UserID != userID {
		respondError(c, http.StatusForbidden, "Not authorized to view this violation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": violation})
}

// updatableFields are the only columns an admin may change after filing.
var updatableFields = map[string]string{
	"status":  "status",
	"address": "address",
}

// UpdateViolation handles PUT /api/violations/:id - admin review
func UpdateViolation(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body) == 0 {
		respondError(c, http.StatusBadRequest, "Nothing to update")
		return
	}

	updates := map[string]interface{}{}
	for key, value := range body {
		column, ok := updatableFields[key]
		if !ok {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("Field '%s' cannot be updated", key))
			return
		}
		s, ok := value.(string)
		if !ok {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("Field '%s' must be a string", key))
			return
		}
		updates[column] = strings.TrimSpace(s)
	}

	if raw, ok := updates["status"]; ok {
		status, ok := models.LookupViolationStatus(raw.(string))
		if !ok {
			respondError(c, http.StatusBadRequest, "Invalid status")
			return
		}
		updates["status"] = status
	}

	violation, ok := loadViolation(c, false)
	if !ok {
		return
	}

	if err := database.DB.Model(violation).Updates(updates).Error; err != nil {
		log.WithError(err).WithField("id", violation.ID).Error("failed to update violation")
		respondError(c, http.StatusInternalServerError, "Server Error")
		return
	}
	if status, ok := updates["status"]; ok {
		violation.Status = status.(models.ViolationStatus)
	}
	if address, ok := updates["address"]; ok {
		violation.Address = address.(string)
	}

	publish("updated", violation)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": violation})
}

// DeleteViolation handles DELETE /api/violations/:id - admin only
func DeleteViolation(c *gin.Context) {
	violation, ok := loadViolation(c, false)
	if !ok {
		return
	}

	if err := database.DB.Delete(violation).Error; err != nil {
		log.WithError(err).WithField("id", violation.ID).Error("failed to delete violation")
		respondError(c, http.StatusInternalServerError, "Server Error")
		return
	}

	if name := storage.NameFromURL(violation.MediaURL); name != "" && mediaStore != nil {
		if err := mediaStore.Remove(name); err != nil {
			log.WithError(err).WithField("file", name).Warn("failed to remove media for deleted violation")
		}
	}

	publish("deleted", violation)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{},
		"message": "Violation deleted successfully",
	})
}

type statusCount struct {
	Status models.ViolationStatus `json:"status"`
	Count  int64                  `json:"count"`
}

type typeCount struct {
	ViolationType models.ViolationType `json:"violationType"`
	Count         int64                `json:"count"`
}

type recentViolation struct {
	ID            int64                `json:"id"`
	ViolationType models.ViolationType `json:"violationType"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// GetViolationAnalytics handles GET /api/violations/analytics - admin dashboard numbers
func GetViolationAnalytics(c *gin.Context) {
	var total int64
	statusStats := []statusCount{}
	typeStats := []typeCount{}
	recent := []recentViolation{}

	err := database.DB.Model(&models.Violation{}).Count(&total).Error
	if err == nil {
		err = database.DB.Model(&models.Violation{}).
			Select("status, COUNT(*) AS count").
			Group("status").
			Scan(&statusStats).Error
	}
	if err == nil {
		err = database.DB.Model(&models.Violation{}).
			Select("violation_type, COUNT(*) AS count").
			Group("violation_type").
			Order("count DESC").
			Scan(&typeStats).Error
	}
	if err == nil {
		err = database.DB.Model(&models.Violation{}).
			Select("id, violation_type, created_at").
			Order("created_at DESC").
			Limit(5).
			Scan(&recent).Error
	}
	if err != nil {
		log.WithError(err).Error("failed to build violation analytics")
		respondError(c, http.StatusInternalServerError, "Server Error generating analytics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"totalViolations": total,
			"statusStats":     statusStats,
			"typeStats":       typeStats,
			"recentActivity":  recent,
		},
	})
}
