package timezone

import "time"

// Location is the fixed UTC+8 offset the upstream sites print their
// timestamps in.
var Location = time.FixedZone("UTC+8", 8*60*60)

// Parse reads value with layout as wall-clock time in Location.
func Parse(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, Location)
}
