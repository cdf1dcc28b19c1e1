package outbound

import "time"

// Clock is the source of "now" injected into every operation
type Clock interface {
	Now() time.Time
}
