package geocode

import (
	"context"
	"strconv"
	"strings"

	"github.com/apex/log"
)

// Place is one reverse-geocoding candidate for a coordinate.
type Place struct {
	StreetName       string
	StreetNumber     string
	City             string
	State            string
	FormattedAddress string
}

// Resolver turns a coordinate into zero or more candidate places.
type Resolver interface {
	Reverse(ctx context.Context, lat, lng float64) ([]Place, error)
}

// FormatAddress builds a short human address from the first candidate.
// It reports false when nothing usable came back.
func FormatAddress(places []Place) (string, bool) {
	if len(places) == 0 {
		return "", false
	}
	p := places[0]

	var addr string
	switch {
	case p.StreetName != "" && p.StreetNumber != "":
		addr = p.StreetName + " " + p.StreetNumber + ", " + p.City
	case p.StreetName != "":
		region := p.City
		if region == "" {
			region = p.State
		}
		addr = p.StreetName + ", " + region
	case p.FormattedAddress != "":
		addr = p.FormattedAddress
	case p.City != "":
		addr = p.City
	default:
		return "", false
	}

	addr = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(addr), ","))
	if addr == "" {
		return "", false
	}
	return addr, true
}

// CoordinateAddress is the "lat, lon" text used when no address is available.
func CoordinateAddress(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lng, 'f', -1, 64)
}

// Describe resolves a display address for a coordinate. It never fails:
// lookup errors and empty results fall back to CoordinateAddress.
func Describe(ctx context.Context, r Resolver, lat, lng float64) string {
	if r == nil {
		return CoordinateAddress(lat, lng)
	}
	places, err := r.Reverse(ctx, lat, lng)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"lat": lat, "lng": lng}).Warn("reverse geocoding failed")
		return CoordinateAddress(lat, lng)
	}
	if addr, ok := FormatAddress(places); ok {
		return addr
	}
	return CoordinateAddress(lat, lng)
}
