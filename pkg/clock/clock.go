// pkg/clock/clock.go
package clock

import "time"

// Clock abstracts time lookup so schedulers and TTL caches can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the current wall-clock time in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}
