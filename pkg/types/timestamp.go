package types

import (
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"
)

// Timestamp is an event occurrence time that decodes from either an
// ISO-8601 string or a numeric epoch value. Storage always uses whole epoch
// seconds; fractional seconds are truncated, not rounded.
type Timestamp struct {
	t time.Time
}

// layouts accepted for string timestamps, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NewTimestamp wraps a time.Time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t}
}

// ParseTimestamp parses an ISO-8601 string. Layouts without a zone are
// interpreted as UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t: t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Epoch returns the timestamp as whole epoch seconds, truncating any
// fractional part.
func (ts Timestamp) Epoch() int64 {
	return ts.t.Unix()
}

// Time returns the underlying time.
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// IsZero reports whether the timestamp was never set.
func (ts Timestamp) IsZero() bool {
	return ts.t.IsZero()
}

// UnmarshalJSON accepts either a JSON string (ISO-8601) or a JSON number
// (epoch seconds, possibly fractional).
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty timestamp")
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*ts = parsed
		return nil
	}

	var epoch float64
	if err := json.Unmarshal(data, &epoch); err != nil {
		return fmt.Errorf("timestamp must be a string or number: %w", err)
	}
	sec, frac := math.Modf(epoch)
	*ts = Timestamp{t: time.Unix(int64(sec), int64(frac*1e9)).UTC()}
	return nil
}

// MarshalJSON emits the timestamp as an RFC 3339 string.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.t.Format(time.RFC3339))
}
