// Package reporter turns positive detections into backend reports. Two
// policies are available: AutoPolicy submits straight away, ConfirmPolicy
// asks the driver to review the plate first.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/idohaver7/PatrolVision/internal/camera"
	"github.com/idohaver7/PatrolVision/internal/detector"
	"github.com/idohaver7/PatrolVision/internal/location"
	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/idohaver7/PatrolVision/internal/platform"
)

var ErrPlateRequired = errors.New("License plate is required")

// Report is a detection staged for submission. Location is nil when no fix
// was available at detection time.
type Report struct {
	ViolationType models.ViolationType
	Label         string
	LicensePlate  string
	Frame         *camera.Frame
	Location      *location.Fix
	Timestamp     time.Time
}

func NewReport(result detector.Result, frame *camera.Frame, fix *location.Fix, at time.Time) Report {
	r := Report{
		ViolationType: result.ViolationType,
		Label:         result.Label,
		Frame:         frame,
		Location:      fix,
		Timestamp:     at,
	}
	if r.ViolationType == "" {
		r.ViolationType = models.ViolationOther
	}
	if result.LicensePlate != nil {
		r.LicensePlate = *result.LicensePlate
	}
	return r
}

// Coordinates returns the report position, or 0,0 when the location is
// unknown.
func (r Report) Coordinates() (lat, lng float64) {
	if r.Location == nil {
		return 0, 0
	}
	return r.Location.Latitude, r.Location.Longitude
}

func (r Report) upload(plate string) platform.ViolationUpload {
	lat, lng := r.Coordinates()
	u := platform.ViolationUpload{
		ViolationType: r.ViolationType,
		LicensePlate:  plate,
		Latitude:      lat,
		Longitude:     lng,
		Timestamp:     r.Timestamp,
	}
	if r.Frame != nil {
		u.ImagePath = r.Frame.Path
	}
	return u
}

func (r Report) release() {
	if r.Frame == nil {
		return
	}
	if err := r.Frame.Discard(); err != nil {
		log.WithError(err).WithField("frame", r.Frame.ID).Warn("failed to discard frame")
	}
}

// Submitter is satisfied by *platform.Client.
type Submitter interface {
	SubmitViolation(ctx context.Context, v platform.ViolationUpload) (*models.Violation, error)
}

type Outcome int

const (
	// OutcomeQueued means the report was handed to a background submit.
	OutcomeQueued Outcome = iota
	OutcomeSubmitted
	OutcomeDiscarded
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeQueued:
		return "queued"
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Policy handles one staged report. Handle takes ownership of the report's
// frame. Wait blocks until background work started by Handle is finished.
type Policy interface {
	Handle(ctx context.Context, r Report) Outcome
	Wait()
}

// ErrorMessage is what the driver sees for a failed submit: the server's
// message when there is one.
func ErrorMessage(err error) string {
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, platform.ErrUnreachable) {
		return platform.ErrUnreachable.Error()
	}
	return err.Error()
}
