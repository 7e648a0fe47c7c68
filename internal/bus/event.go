package bus

import "time"

// Event is a change notification fanned out to every subscriber of any of
// its Channels. Labels name the operations the event carries.
type Event struct {
	Channels  []string
	Labels    []string
	Timestamp time.Time
	Payload   []byte
}
