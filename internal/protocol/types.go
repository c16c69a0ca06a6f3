package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp accepts unix seconds or milliseconds as numbers, ISO-8601 strings with or without
// a zone (zone-less values are taken as local time), or null.
type Timestamp struct {
	time.Time
}

// layouts tried for string timestamps, most specific first.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// msThreshold separates unix seconds from unix milliseconds (year 2286 in seconds).
const msThreshold = 1e10

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range layouts {
			var (
				parsed time.Time
				err    error
			)
			if layout == time.RFC3339Nano {
				parsed, err = time.Parse(layout, s)
			} else {
				parsed, err = time.ParseInLocation(layout, s, time.Local)
			}
			if err == nil {
				t.Time = parsed
				return nil
			}
		}
		return fmt.Errorf("invalid timestamp %q", s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	if math.Abs(f) >= msThreshold {
		t.Time = time.UnixMilli(int64(f))
		return nil
	}
	sec, frac := math.Modf(f)
	t.Time = time.Unix(int64(sec), int64(frac*1e9))
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UnixMilli())
}

// DeviceID is a device identifier that the backend sends either as a string or as a number.
type DeviceID string

func (d *DeviceID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = DeviceID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid device id %s: %w", b, err)
	}
	*d = DeviceID(n.String())
	return nil
}

// RawValue is a register value. Booleans decode to 0/1 and fractional numbers are rounded.
type RawValue int64

func (v *RawValue) UnmarshalJSON(b []byte) error {
	switch s := string(bytes.TrimSpace(b)); s {
	case "true":
		*v = 1
		return nil
	case "false", "null":
		*v = 0
		return nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid register value %s: %w", s, err)
		}
		*v = RawValue(math.Round(f))
		return nil
	}
}
