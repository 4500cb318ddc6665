package event

import "time"

// Event is implemented by values that carry a type tag and an occurrence
// time. Buses accept any payload; typed payloads get labeled metrics.
type Event interface {
	Type() string
	Timestamp() time.Time
}
