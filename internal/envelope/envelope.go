// Package envelope is the uniform response wrapper every caller sees.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/refset/freight-risk-quoting/internal/apperr"
)

// TimeLayout is the wire format of Envelope.TS: UTC with exactly six fractional digits.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp is a UTC instant at microsecond precision.
type Timestamp struct {
	time.Time
}

// NewTimestamp converts t to UTC at microsecond precision.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Microsecond)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(TimeLayout))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("envelope ts: %w", err)
	}
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		return fmt.Errorf("envelope ts: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}

// Envelope is the uniform response wrapper.
type Envelope[T any] struct {
	OK    bool      `json:"ok"`
	Data  *T        `json:"data"`
	Error *string   `json:"error"`
	TS    Timestamp `json:"ts"`
}

// OK wraps a successful result.
func OK[T any](data T, now time.Time) Envelope[T] {
	return Envelope[T]{OK: true, Data: &data, TS: NewTimestamp(now)}
}

// Fail wraps err as "<Kind>" or "<Kind>: <detail>". Untyped errors render as Service.
func Fail[T any](err error, now time.Time) Envelope[T] {
	msg := apperr.Public(err)
	return Envelope[T]{OK: false, Error: &msg, TS: NewTimestamp(now)}
}

// From builds a success envelope when err is nil and a failure envelope otherwise.
func From[T any](data T, err error, now time.Time) Envelope[T] {
	if err != nil {
		return Fail[T](err, now)
	}
	return OK(data, now)
}

// Marshal encodes e.
func Marshal[T any](e Envelope[T]) ([]byte, error) {
	return json.Marshal(e)
}

// Parse decodes an envelope produced by Marshal.
func Parse[T any](b []byte) (Envelope[T], error) {
	var e Envelope[T]
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope[T]{}, fmt.Errorf("parse envelope: %w", err)
	}
	return e, nil
}
