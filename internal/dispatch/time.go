package dispatch

import "time"

// startInstant returns the agreed common start instant the barrier hands
// back on ack=1 (§4.4): one second past the moment the barrier opened,
// giving every node enough slack to arm its first timer before it fires.
func startInstant() (sec int64, nsec int32) {
	t := time.Now().Add(time.Second)
	return t.Unix(), int32(t.Nanosecond())
}
