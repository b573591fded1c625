// Package clock exposes a cached wall-clock time, refreshed once a
// second, so hot paths (heartbeat checks, staged-response expiry) avoid
// calling time.Now() on every message.
package clock

import "time"

var Now time.Time = time.Now()

func init() {
	go func() {
		for now := range time.NewTicker(time.Second).C {
			Now = now
		}
	}()
}
