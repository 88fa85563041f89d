package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"
)

// ViolationType enum
type ViolationType string

const (
	ViolationRedLight    ViolationType = "RedLightViolation"
	ViolationOvertaking  ViolationType = "IllegalOvertaking"
	ViolationPublicLane  ViolationType = "PublicLaneViolation"
	ViolationWrongWay    ViolationType = "WrongWayDriving"
	ViolationIllegalTurn ViolationType = "IllegalTurn"
	ViolationOther       ViolationType = "Other"
)

// ViolationTypes lists every accepted violation type in display order.
var ViolationTypes = []ViolationType{
	ViolationRedLight,
	ViolationOvertaking,
	ViolationPublicLane,
	ViolationWrongWay,
	ViolationIllegalTurn,
	ViolationOther,
}

// ViolationStatus enum
type ViolationStatus string

const (
	StatusPendingReview ViolationStatus = "PendingReview"
	StatusVerified      ViolationStatus = "Verified"
	StatusRejected      ViolationStatus = "Rejected"
	StatusClosed        ViolationStatus = "Closed"
)

var ViolationStatuses = []ViolationStatus{
	StatusPendingReview,
	StatusVerified,
	StatusRejected,
	StatusClosed,
}

// UnidentifiedPlate is stored when a report is sent without a readable plate.
const UnidentifiedPlate = "UNIDENTIFIED"

// normalizeKey lowercases s and drops everything but letters and digits, so
// "Red Light Violation", "red_light_violation" and "RedLightViolation" compare equal.
func normalizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// LookupViolationType matches s against the known types, ignoring case,
// spacing and punctuation.
func LookupViolationType(s string) (ViolationType, bool) {
	key := normalizeKey(s)
	if key == "" {
		return "", false
	}
	for _, t := range ViolationTypes {
		if normalizeKey(string(t)) == key {
			return t, true
		}
	}
	return "", false
}

// ParseViolationType maps the free-form labels emitted by the detection model
// ("Red Light Crossing", "Illegal Overtaking (Solid Line)", ...) onto a
// ViolationType. Unknown labels become ViolationOther.
func ParseViolationType(label string) ViolationType {
	if t, ok := LookupViolationType(label); ok {
		return t
	}
	key := normalizeKey(label)
	switch {
	case key == "":
		return ViolationOther
	case strings.Contains(key, "redlight"):
		return ViolationRedLight
	case strings.Contains(key, "overtak"):
		return ViolationOvertaking
	case strings.Contains(key, "publiclane"), strings.Contains(key, "buslane"):
		return ViolationPublicLane
	case strings.Contains(key, "wrongway"), strings.Contains(key, "wrongside"):
		return ViolationWrongWay
	case strings.Contains(key, "turn"):
		return ViolationIllegalTurn
	}
	return ViolationOther
}

// LookupViolationStatus matches s against the known statuses the same way
// LookupViolationType does.
func LookupViolationStatus(s string) (ViolationStatus, bool) {
	key := normalizeKey(s)
	if key == "" {
		return "", false
	}
	for _, st := range ViolationStatuses {
		if normalizeKey(string(st)) == key {
			return st, true
		}
	}
	return "", false
}

// GeoPoint is a WGS84 position. It is stored as two plain columns and
// rendered on the wire as a GeoJSON Point, coordinates ordered [lon, lat].
type GeoPoint struct {
	Longitude float64 `gorm:"column:longitude;not null"`
	Latitude  float64 `gorm:"column:latitude;not null"`
}

func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Longitude: lng, Latitude: lat}
}

// Coordinates returns the GeoJSON ordering [lon, lat].
func (p GeoPoint) Coordinates() []float64 {
	return []float64{p.Longitude, p.Latitude}
}

// Valid reports whether the point lies within latitude [-90, 90] and
// longitude [-180, 180].
func (p GeoPoint) Valid() bool {
	return s2.LatLngFromDegrees(p.Latitude, p.Longitude).IsValid()
}

func (p GeoPoint) MarshalJSON() ([]byte, error) {
	return geojson.NewPointGeometry(p.Coordinates()).MarshalJSON()
}

func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return err
	}
	if !g.IsPoint() || len(g.Point) < 2 {
		return fmt.Errorf("location must be a GeoJSON Point, got %s", g.Type)
	}
	p.Longitude = g.Point[0]
	p.Latitude = g.Point[1]
	return nil
}

// Violation is a single report filed by a driver.
type Violation struct {
	ID     int64 `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID uint  `gorm:"column:user_id;not null;index" json:"ownerUserId"`
	User   *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	ViolationType ViolationType   `gorm:"column:violation_type;not null;index" json:"violationType"`
	LicensePlate  string          `gorm:"column:license_plate;not null;index" json:"licensePlate"`
	MediaURL      string          `gorm:"column:media_url;not null" json:"mediaUrl"`
	Location      GeoPoint        `gorm:"embedded" json:"location"`
	Address       string          `gorm:"column:address" json:"address"`
	Status        ViolationStatus `gorm:"column:status;not null;default:PendingReview;index" json:"status"`

	Timestamp time.Time `gorm:"column:timestamp;index" json:"timestamp"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Violation) TableName() string {
	return "violations"
}

// ViolationEvent is published on the message bus whenever a violation changes.
type ViolationEvent struct {
	Event     string     `json:"event"`
	Violation *Violation `json:"violation"`
	At        time.Time  `json:"at"`
}

// MarshalEvent encodes a ViolationEvent for publishing.
func MarshalEvent(event string, v *Violation) ([]byte, error) {
	return json.Marshal(ViolationEvent{Event: event, Violation: v, At: time.Now().UTC()})
}
