package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	knotsToMps = 0.514444
	// Rough horizontal accuracy per unit of HDOP for consumer receivers.
	metersPerHDOP = 5.0
)

var (
	ErrChecksum = errors.New("nmea: checksum mismatch")
	ErrNoFix    = errors.New("nmea: receiver has no fix")
)

// NMEASource reads RMC and GGA sentences from a GPS receiver. RMC supplies
// position, time and speed; the most recent GGA supplies HDOP.
type NMEASource struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
	hdop    float64
}

func NewNMEASource(rc io.ReadCloser) *NMEASource {
	return &NMEASource{rc: rc, scanner: bufio.NewScanner(rc)}
}

// OpenSerial opens a serial GPS receiver, 8N1 at the given baud rate.
func OpenSerial(portName string, baud int) (*NMEASource, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", portName, err)
	}
	return NewNMEASource(port), nil
}

func (s *NMEASource) Close() error {
	return s.rc.Close()
}

// Next returns the reading from the next valid RMC sentence.
func (s *NMEASource) Next(ctx context.Context) (Reading, error) {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Reading{}, err
		}

		fields, err := splitSentence(s.scanner.Text())
		if err != nil {
			return Reading{}, err
		}
		if fields == nil {
			continue
		}

		switch sentenceType(fields[0]) {
		case "GGA":
			if len(fields) > 8 {
				if hdop, err := strconv.ParseFloat(fields[8], 64); err == nil {
					s.hdop = hdop
				}
			}
		case "RMC":
			r, err := parseRMC(fields)
			if err != nil {
				return Reading{}, err
			}
			r.AccuracyMeters = s.hdop * metersPerHDOP
			return r, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return Reading{}, err
	}
	return Reading{}, io.EOF
}

// splitSentence validates the checksum and returns the comma separated
// fields. Lines that are not NMEA sentences yield nil fields.
func splitSentence(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, nil
	}
	body := line[1:]
	if star := strings.IndexByte(body, '*'); star >= 0 {
		want, err := strconv.ParseUint(body[star+1:], 16, 8)
		if err != nil || byte(want) != nmeaChecksum(body[:star]) {
			return nil, ErrChecksum
		}
		body = body[:star]
	}
	return strings.Split(body, ","), nil
}

func nmeaChecksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

// sentenceType strips the talker id: GPRMC, GNRMC and GLRMC are all RMC.
func sentenceType(tag string) string {
	if len(tag) < 3 {
		return ""
	}
	return tag[len(tag)-3:]
}

func parseRMC(f []string) (Reading, error) {
	if len(f) < 10 {
		return Reading{}, fmt.Errorf("nmea: short RMC sentence")
	}
	if f[2] != "A" {
		return Reading{}, ErrNoFix
	}

	lat, err := parseCoordinate(f[3], f[4])
	if err != nil {
		return Reading{}, err
	}
	lng, err := parseCoordinate(f[5], f[6])
	if err != nil {
		return Reading{}, err
	}

	r := Reading{Latitude: lat, Longitude: lng, At: parseTime(f[1], f[9])}
	if f[7] != "" {
		knots, err := strconv.ParseFloat(f[7], 64)
		if err != nil {
			return Reading{}, fmt.Errorf("nmea: bad speed %q", f[7])
		}
		mps := knots * knotsToMps
		r.SpeedMps = &mps
	}
	return r, nil
}

// parseCoordinate converts (d)ddmm.mmmm plus hemisphere into signed degrees.
func parseCoordinate(value, hemi string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("nmea: bad coordinate %q", value)
	}
	deg := math.Floor(v / 100)
	deg += (v - deg*100) / 60
	switch hemi {
	case "S", "W":
		deg = -deg
	case "N", "E":
	default:
		return 0, fmt.Errorf("nmea: bad hemisphere %q", hemi)
	}
	return deg, nil
}

// parseTime combines hhmmss(.ss) and ddmmyy. Unparseable values fall back to
// the local clock.
func parseTime(hms, dmy string) time.Time {
	if len(hms) >= 6 && len(dmy) == 6 {
		if t, err := time.Parse("020106150405", dmy+hms[:6]); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
