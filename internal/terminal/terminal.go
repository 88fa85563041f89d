// Package terminal is the dashcam's text UI: it announces detections and
// walks the driver through confirming a report.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/idohaver7/PatrolVision/internal/reporter"
)

type Terminal struct {
	out io.Writer
	in  io.Reader

	mu       sync.Mutex
	lines    chan string
	readOnce sync.Once
}

func New(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, lines: make(chan string)}
}

// readLine waits for one line of input. The reader goroutine is started on
// first use and blocks on the input until the next line arrives, so a
// cancelled prompt leaves it parked until then.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	t.readOnce.Do(func() {
		go func() {
			defer close(t.lines)
			scanner := bufio.NewScanner(t.in)
			for scanner.Scan() {
				t.lines <- scanner.Text()
			}
		}()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}

func (t *Terminal) printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// DisplayName turns RedLightViolation into "Red Light Violation".
func DisplayName(vt models.ViolationType) string {
	var b strings.Builder
	for i, r := range string(vt) {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func describeLocation(r reporter.Report) string {
	if r.Location == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.5f, %.5f (±%.0f m, %d km/h)",
		r.Location.Latitude, r.Location.Longitude, r.Location.AccuracyMeters, r.Location.SpeedKmh)
}

func (t *Terminal) printReport(r reporter.Report) {
	plate := r.LicensePlate
	if plate == "" {
		plate = "not read"
	}
	t.printf("\n🚨 Violation detected: %s\n", DisplayName(r.ViolationType))
	t.printf("   Plate:    %s\n", plate)
	t.printf("   Location: %s\n", describeLocation(r))
	t.printf("   Time:     %s\n", r.Timestamp.Local().Format("2006-01-02 15:04:05"))
}

// ShowDetection announces an automatically submitted report.
func (t *Terminal) ShowDetection(r reporter.Report) {
	t.printReport(r)
	t.printf("   Reporting automatically...\n")
}

func (t *Terminal) Dismiss() {
	t.printf("   Back to monitoring.\n\n")
}

// Review shows the staged report and asks for the plate, then for confirm or
// discard.
func (t *Terminal) Review(ctx context.Context, r reporter.Report) (reporter.Decision, error) {
	t.printReport(r)

	t.printf("License plate [%s]: ", r.LicensePlate)
	plate, err := t.readLine(ctx)
	if err != nil {
		return reporter.Decision{}, err
	}
	if plate == "" {
		plate = r.LicensePlate
	}

	for {
		t.printf("Submit report for %q? [c]onfirm / [d]iscard: ", plate)
		answer, err := t.readLine(ctx)
		if err != nil {
			return reporter.Decision{}, err
		}
		switch strings.ToLower(answer) {
		case "c", "confirm", "y", "yes":
			return reporter.Decision{Action: reporter.ActionConfirm, LicensePlate: plate}, nil
		case "d", "discard", "n", "no":
			return reporter.Decision{Action: reporter.ActionDiscard}, nil
		}
	}
}

func (t *Terminal) ShowError(message string) {
	t.printf("❌ %s\n", message)
}

func (t *Terminal) ShowSubmitted(v *models.Violation) {
	t.printf("✅ Report #%d submitted (%s)", v.ID, v.Status)
	if v.Address != "" {
		t.printf(" at %s", v.Address)
	}
	t.printf("\n\n")
}

// Printf writes a free-form status line.
func (t *Terminal) Printf(format string, args ...interface{}) {
	t.printf(format, args...)
}
