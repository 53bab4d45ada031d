package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a voting or lock period, measured either in seconds or in blocks.
// Exactly one of Time and Height is set. JSON form: {"time":10} or {"height":5}.
type Duration struct {
	Time   *uint64 `json:"time,omitempty"`
	Height *uint64 `json:"height,omitempty"`
}

// TimeDuration returns a wall-clock duration of the given seconds.
func TimeDuration(seconds uint64) Duration {
	return Duration{Time: &seconds}
}

// HeightDuration returns a block-count duration.
func HeightDuration(blocks uint64) Duration {
	return Duration{Height: &blocks}
}

// IsTime reports whether d is measured in seconds.
func (d Duration) IsTime() bool {
	return d.Time != nil
}

// IsHeight reports whether d is measured in blocks.
func (d Duration) IsHeight() bool {
	return d.Height != nil
}

// Seconds returns the wall-clock length of d. It fails for height-based durations.
func (d Duration) Seconds() (time.Duration, error) {
	if d.Time == nil {
		return 0, fmt.Errorf("duration %s is not time-based", d)
	}
	return time.Duration(*d.Time) * time.Second, nil
}

// Validate checks that exactly one variant is set.
func (d Duration) Validate() error {
	if (d.Time == nil) == (d.Height == nil) {
		return Errorf(KindInvalidConfig, "duration must set exactly one of time or height")
	}
	return nil
}

func (d Duration) String() string {
	switch {
	case d.Time != nil:
		return fmt.Sprintf("time:%ds", *d.Time)
	case d.Height != nil:
		return fmt.Sprintf("height:%d", *d.Height)
	default:
		return "unset"
	}
}

// UnmarshalJSON rejects documents that set both or neither variant.
func (d *Duration) UnmarshalJSON(b []byte) error {
	type plain Duration
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if err := Duration(p).Validate(); err != nil {
		return err
	}
	*d = Duration(p)
	return nil
}
