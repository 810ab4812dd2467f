package model

import (
	"math"
	"sync"
	"time"

	"github.com/Aidin1998/tickbook/pkg/errors"
)

const timestampLayout = "2006-01-02 15:04:05.000000"

// Timestamp is a wall-clock instant in seconds since the Unix epoch.
type Timestamp float64

// NewTimestamp rejects negative and NaN instants. +Inf is allowed and
// sorts after every finite instant.
func NewTimestamp(seconds float64) (Timestamp, error) {
	if math.IsNaN(seconds) || seconds < 0 {
		return 0, errors.ErrInvalidArgument.Explain("timestamp %v is not a non-negative instant", seconds)
	}
	return Timestamp(seconds), nil
}

// TimestampFromTime converts t with microsecond precision.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(float64(t.UnixMicro()) / 1e6)
}

func (ts Timestamp) Seconds() float64 { return float64(ts) }

func (ts Timestamp) Before(o Timestamp) bool { return ts < o }

// Time converts ts back to a time.Time. Infinite instants have no time
// representation and report ok=false.
func (ts Timestamp) Time() (time.Time, bool) {
	if math.IsInf(float64(ts), 0) {
		return time.Time{}, false
	}
	sec, frac := math.Modf(float64(ts))
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func (ts Timestamp) String() string {
	t, ok := ts.Time()
	if !ok {
		return "inf"
	}
	return t.Format(timestampLayout)
}

// Clock supplies the current time to the book.
type Clock interface {
	Now() Timestamp
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() Timestamp {
	return TimestampFromTime(time.Now())
}

// ManualClock is a Clock moved by hand. The zero value reads 0.
type ManualClock struct {
	mu  sync.Mutex
	now Timestamp
}

func NewManualClock(now Timestamp) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(now Timestamp) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by seconds and returns the new instant.
func (c *ManualClock) Advance(seconds float64) Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Timestamp(float64(c.now) + seconds)
	return c.now
}
